package ftpd

import "fmt"

// ProtocolError is an unexpected reply to a command. It keeps the command
// and the raw reply so test failures and client logs show the full exchange.
type ProtocolError struct {
	// Command is the command line that was sent (e.g., "STOR file.txt").
	Command string

	// Response is the raw reply received (e.g., "550 Permission denied.").
	Response string

	// Code is the numeric reply code (e.g., 550).
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftpd: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// IsTemporary reports whether the reply is a transient (4xx) failure.
func (e *ProtocolError) IsTemporary() bool {
	return e.Code >= 400 && e.Code < 500
}

// IsPermanent reports whether the reply is a permanent (5xx) failure.
func (e *ProtocolError) IsPermanent() bool {
	return e.Code >= 500 && e.Code < 600
}
