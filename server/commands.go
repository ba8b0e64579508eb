package server

import "sort"

// command is one dispatch table entry.
type command struct {
	handler func(*session, string)
	// open commands may run before login.
	open bool
	// data commands use the data connection.
	data bool
}

// commands maps verbs (upper case) to their handlers. Aliases share a
// handler with their canonical verb.
var commands = map[string]command{
	// Access control
	"USER":   {handler: (*session).handleUSER, open: true},
	"PASS":   {handler: (*session).handlePASS, open: true},
	"QUIT":   {handler: (*session).handleQUIT, open: true},
	"EXIT":   {handler: (*session).handleQUIT, open: true},
	"LOGOUT": {handler: (*session).handleQUIT, open: true},
	"BYE":    {handler: (*session).handleQUIT, open: true},

	// Information
	"HELP": {handler: (*session).handleHELP, open: true},
	"?":    {handler: (*session).handleHELP, open: true},
	"SYST": {handler: (*session).handleSYST, open: true},
	"NOOP": {handler: (*session).handleNOOP, open: true},
	"FEAT": {handler: (*session).handleFEAT, open: true},
	"OPTS": {handler: (*session).handleOPTS},
	"STAT": {handler: (*session).handleSTAT},
	"SIZE": {handler: (*session).handleSIZE},

	// Navigation and file management
	"CWD":   {handler: (*session).handleCWD},
	"CD":    {handler: (*session).handleCWD},
	"XCWD":  {handler: (*session).handleCWD},
	"CDUP":  {handler: (*session).handleCDUP},
	"XCUP":  {handler: (*session).handleCDUP},
	"PWD":   {handler: (*session).handlePWD},
	"XPWD":  {handler: (*session).handlePWD},
	"MKD":   {handler: (*session).handleMKD},
	"MKDIR": {handler: (*session).handleMKD},
	"XMKD":  {handler: (*session).handleMKD},
	"RMD":   {handler: (*session).handleRMD},
	"XRMD":  {handler: (*session).handleRMD},
	"DELE":  {handler: (*session).handleDELE},
	"RNFR":  {handler: (*session).handleRNFR},
	"RNTO":  {handler: (*session).handleRNTO},

	// Transfer
	"LIST": {handler: (*session).handleLIST, data: true},
	"NLST": {handler: (*session).handleNLST, data: true},
	"RETR": {handler: (*session).handleRETR, data: true},
	"STOR": {handler: (*session).handleSTOR, data: true},
	"APPE": {handler: (*session).handleAPPE, data: true},
	"STOU": {handler: (*session).handleSTOU, data: true},

	// Transfer parameters
	"TYPE": {handler: (*session).handleTYPE},
	"MODE": {handler: (*session).handleMODE},
	"STRU": {handler: (*session).handleSTRU},
	"PASV": {handler: (*session).handlePASV},
	"PORT": {handler: (*session).handlePORT},
}

// helpVerbs is the sorted verb list printed by HELP.
var helpVerbs []string

func init() {
	for verb := range commands {
		helpVerbs = append(helpVerbs, verb)
	}
	sort.Strings(helpVerbs)
}
