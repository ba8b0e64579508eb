// Package ftptest provides a raw FTP control connection for tests.
//
// Unlike a full client it sends exactly the commands it is given and
// returns every reply, including failures, so tests can assert on reply
// codes and on the order of replies around a transfer.
package ftptest

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gonzalop/ftpd"
)

// DefaultTimeout bounds every read and write when Dial is given zero.
const DefaultTimeout = 5 * time.Second

// Conn is a control connection.
type Conn struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration

	// Greeting is the first reply sent by the server.
	Greeting *ftpd.Response
}

// Dial connects to addr and reads the greeting. The connection is returned
// even when the greeting is not 220, so tests can inspect rejections.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	nc, err := net.DialTimeout("tcp4", addr, timeout)
	if err != nil {
		return nil, err
	}

	dc := &deadlineConn{Conn: nc, timeout: timeout}
	c := &Conn{
		conn:    nc,
		reader:  bufio.NewReader(dc),
		timeout: timeout,
	}
	c.Greeting, err = c.Read()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("reading greeting: %w", err)
	}
	return c, nil
}

// Read reads the next reply without sending anything. Use it for the final
// reply of a transfer.
func (c *Conn) Read() (*ftpd.Response, error) {
	return ftpd.ReadResponse(c.reader)
}

// Send writes a command line without waiting for a reply.
func (c *Conn) Send(format string, args ...any) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.conn, format+"\r\n", args...)
	return err
}

// Cmd sends a command line and returns the reply, whatever its code.
func (c *Conn) Cmd(format string, args ...any) (*ftpd.Response, error) {
	if err := c.Send(format, args...); err != nil {
		return nil, fmt.Errorf("sending command: %w", err)
	}
	resp, err := c.Read()
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}
	return resp, nil
}

// Expect sends a command and returns a *ftpd.ProtocolError if the reply code
// is not code.
func (c *Conn) Expect(code int, format string, args ...any) (*ftpd.Response, error) {
	resp, err := c.Cmd(format, args...)
	if err != nil {
		return nil, err
	}
	if resp.Code != code {
		return resp, &ftpd.ProtocolError{
			Command:  maskPassword(fmt.Sprintf(format, args...)),
			Response: resp.String(),
			Code:     resp.Code,
		}
	}
	return resp, nil
}

// Login sends USER and, when the server asks for one, PASS.
func (c *Conn) Login(user, pass string) error {
	resp, err := c.Cmd("USER %s", user)
	if err != nil {
		return err
	}
	switch resp.Code {
	case ftpd.StatusLoggedIn:
		return nil
	case ftpd.StatusUserOK:
		_, err = c.Expect(ftpd.StatusLoggedIn, "PASS %s", pass)
		return err
	default:
		return &ftpd.ProtocolError{Command: "USER " + user, Response: resp.String(), Code: resp.Code}
	}
}

// Passive sends PASV and dials the advertised address.
func (c *Conn) Passive() (net.Conn, error) {
	resp, err := c.Expect(ftpd.StatusPassiveMode, "PASV")
	if err != nil {
		return nil, err
	}
	addr, err := ftpd.ParsePassiveReply(resp.Message)
	if err != nil {
		return nil, err
	}
	return net.DialTimeout("tcp4", addr.String(), c.timeout)
}

// LocalAddr returns the client side address of the control connection.
func (c *Conn) LocalAddr() *net.TCPAddr {
	addr, _ := c.conn.LocalAddr().(*net.TCPAddr)
	return addr
}

// Close closes the control connection without sending QUIT.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func maskPassword(line string) string {
	if len(line) >= 4 && strings.EqualFold(line[:4], "PASS") {
		return "PASS ***"
	}
	return line
}

// deadlineConn sets a read deadline before every read.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}
