package ftpd

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// Response is a single, possibly multi-line, control channel reply.
type Response struct {
	// Code is the three-digit reply code (e.g., 220, 550).
	Code int

	// Message is the text after the code. Multi-line replies are joined with "\n".
	Message string

	// Lines holds every raw line of the reply, without line terminators.
	Lines []string
}

// Is2xx reports a positive completion reply.
func (r *Response) Is2xx() bool { return r.Code >= 200 && r.Code < 300 }

// String returns the raw reply.
func (r *Response) String() string {
	return strings.Join(r.Lines, "\n")
}

// ReadResponse reads one complete reply.
//
// Single-line format: "220 Welcome\r\n"
// Multi-line format:
//
//	"214-The following commands are recognized.\r\n"
//	" USER PASS QUIT\r\n"
//	"214 Help OK.\r\n"
//
// The reply ends at the first line that starts with the code and a space.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if len(line) < 4 {
		return nil, fmt.Errorf("ftpd: invalid reply line: %q", line)
	}

	code, err := strconv.Atoi(line[:3])
	if err != nil {
		return nil, fmt.Errorf("ftpd: invalid reply code: %q", line[:3])
	}

	resp := &Response{Code: code, Lines: []string{line}}
	switch line[3] {
	case ' ':
		resp.Message = line[4:]
		return resp, nil
	case '-':
	default:
		return nil, fmt.Errorf("ftpd: invalid reply format: %q", line)
	}

	msg := []string{line[4:]}
	prefix := line[:3] + " "
	for {
		next, err := readLine(r)
		if err != nil {
			return nil, fmt.Errorf("ftpd: reading multi-line reply: %w", err)
		}
		resp.Lines = append(resp.Lines, next)
		if strings.HasPrefix(next, prefix) {
			msg = append(msg, next[4:])
			break
		}
		if len(next) > 4 && next[:3] == line[:3] && next[3] == '-' {
			next = next[4:]
		}
		msg = append(msg, strings.TrimSpace(next))
	}
	resp.Message = strings.Join(msg, "\n")
	return resp, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
