package server

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gonzalop/ftpd"
)

// features is the FEAT body. MLST and EPSV are not offered, so clients
// fall back to LIST and PASV.
var features = []string{
	"PASV",
	"SIZE",
	"UTF8",
}

func (s *session) handleSYST(_ string) {
	s.reply(ftpd.StatusSystemType, s.server.serverName)
}

func (s *session) handleNOOP(_ string) {
	s.reply(ftpd.StatusOK, "OK.")
}

func (s *session) handleHELP(arg string) {
	if arg != "" {
		verb := strings.ToUpper(strings.TrimSpace(arg))
		if slices.Contains(helpVerbs, verb) {
			s.reply(ftpd.StatusHelpMessage, fmt.Sprintf("Syntax: %s.", verb))
			return
		}
		s.reply(ftpd.StatusSyntaxErrorParams, fmt.Sprintf("Unknown command %s.", verb))
		return
	}

	var body []string
	for i := 0; i < len(helpVerbs); i += 8 {
		body = append(body, strings.Join(helpVerbs[i:min(i+8, len(helpVerbs))], " "))
	}
	s.replyLines(ftpd.StatusHelpMessage, "The following commands are recognized.", body, "Help OK.")
}

func (s *session) handleFEAT(_ string) {
	s.replyLines(ftpd.StatusSystemStatus, "Features:", features, "End")
}

func (s *session) handleOPTS(arg string) {
	if strings.EqualFold(strings.TrimSpace(arg), "UTF8 ON") {
		s.reply(ftpd.StatusOK, "Always in UTF8 mode.")
		return
	}
	s.reply(ftpd.StatusSyntaxErrorParams, "Option not understood.")
}

// handleSTAT reports session status. STAT with an argument is not
// supported; use LIST.
func (s *session) handleSTAT(arg string) {
	if arg != "" {
		s.reply(ftpd.StatusNotImplementedParam, "STAT with a path is not supported. Use LIST.")
		return
	}

	mode := "passive"
	if m, ok := s.mode.(activeMode); ok {
		mode = "active to " + m.addr.String()
	}
	typ := "BINARY"
	if s.transferType == "A" {
		typ = "ASCII"
	}

	body := []string{
		"Connected from " + s.remoteIP,
		"Logged in as " + s.user.Name + " (" + s.user.Role + ")",
		"Working directory " + s.sb.cwd,
		"TYPE: " + typ + ", data mode " + mode,
		"Data port " + strconv.Itoa(s.dataPort),
	}
	s.replyLines(ftpd.StatusSystemStatus, "FTP server status:", body, "End of status.")
}

func (s *session) handleSIZE(arg string) {
	if arg == "" {
		s.reply(ftpd.StatusSyntaxErrorParams, "SIZE requires a file name.")
		return
	}
	info, err := s.sb.stat(arg)
	if err != nil {
		s.replyError(err)
		return
	}
	if info.IsDir() {
		s.reply(ftpd.StatusFileUnavailable, "Not a regular file.")
		return
	}
	s.reply(ftpd.StatusFileStatus, strconv.FormatInt(info.Size(), 10))
}
