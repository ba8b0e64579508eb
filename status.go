package ftpd

// Reply codes used on the control channel (RFC 959, section 4.2).
const (
	StatusFileStatusOK     = 150
	StatusOK               = 200
	StatusSystemStatus     = 211
	StatusFileStatus       = 213
	StatusHelpMessage      = 214
	StatusSystemType       = 215
	StatusReady            = 220
	StatusClosing          = 221
	StatusTransferComplete = 226
	StatusPassiveMode      = 227
	StatusLoggedIn         = 230
	StatusFileActionOK     = 250
	StatusPathCreated      = 257

	StatusUserOK             = 331
	StatusFileActionPending  = 350
	StatusNotAvailable       = 421
	StatusCannotOpenDataConn = 425
	StatusTransferAborted    = 426
	StatusLocalError         = 451

	StatusSyntaxError         = 500
	StatusSyntaxErrorParams   = 501
	StatusNotImplemented      = 502
	StatusBadSequence         = 503
	StatusNotImplementedParam = 504
	StatusNotLoggedIn         = 530
	StatusFileUnavailable     = 550
)

var statusText = map[int]string{
	StatusFileStatusOK:        "File status okay; about to open data connection.",
	StatusOK:                  "Command okay.",
	StatusSystemStatus:        "System status.",
	StatusFileStatus:          "File status.",
	StatusHelpMessage:         "Help message.",
	StatusSystemType:          "NAME system type.",
	StatusReady:               "Service ready for new user.",
	StatusClosing:             "Service closing control connection.",
	StatusTransferComplete:    "Closing data connection.",
	StatusPassiveMode:         "Entering Passive Mode.",
	StatusLoggedIn:            "User logged in, proceed.",
	StatusFileActionOK:        "Requested file action okay, completed.",
	StatusPathCreated:         "Pathname created.",
	StatusUserOK:              "User name okay, need password.",
	StatusFileActionPending:   "Requested file action pending further information.",
	StatusNotAvailable:        "Service not available, closing control connection.",
	StatusCannotOpenDataConn:  "Can't open data connection.",
	StatusTransferAborted:     "Connection closed; transfer aborted.",
	StatusLocalError:          "Requested action aborted: local error in processing.",
	StatusSyntaxError:         "Syntax error, command unrecognized.",
	StatusSyntaxErrorParams:   "Syntax error in parameters or arguments.",
	StatusNotImplemented:      "Command not implemented.",
	StatusBadSequence:         "Bad sequence of commands.",
	StatusNotImplementedParam: "Command not implemented for that parameter.",
	StatusNotLoggedIn:         "Not logged in.",
	StatusFileUnavailable:     "Requested action not taken. File unavailable.",
}

// StatusText returns the canonical text for a reply code, or the empty
// string if the code is unknown.
func StatusText(code int) string {
	return statusText[code]
}
