package server

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gonzalop/ftpd"
)

// transferMode is how the next data connection is established.
type transferMode interface {
	isTransferMode()
}

// passiveMode: the server accepts on its reserved data port.
type passiveMode struct{ port int }

// activeMode: the server dials the client at addr.
type activeMode struct{ addr *net.TCPAddr }

func (passiveMode) isTransferMode() {}
func (activeMode) isTransferMode()  {}

// listenPassive binds the session's data port on the control connection's
// local address. It is a no-op if the listener is already open.
func (s *session) listenPassive() error {
	if s.pasvList != nil {
		return nil
	}
	addr := net.JoinHostPort(localIP(s.conn), strconv.Itoa(s.dataPort))
	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		return err
	}
	if !s.server.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	s.pasvList = ln
	return nil
}

// closePassive closes the passive listener, dropping any connections
// still queued on it.
func (s *session) closePassive() error {
	ln := s.pasvList
	if ln == nil {
		return nil
	}
	s.pasvList = nil
	s.server.trackListener(ln, false)
	return ln.Close()
}

// resetPassive re-binds the data port so the next accept only sees
// connections made after this point.
func (s *session) resetPassive() error {
	s.closePassive()
	return s.listenPassive()
}

// discardPassive is called after a data command that never accepted its
// connection. A client may already have connected for it; that connection
// must not be handed to the next transfer.
func (s *session) discardPassive() {
	if _, ok := s.mode.(passiveMode); !ok {
		return
	}
	if err := s.resetPassive(); err != nil {
		s.server.logger.Warn("passive_listen_failed",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"user", s.user.Name,
			"port", s.dataPort,
			"error", err,
		)
	}
}

func (s *session) handlePASV(_ string) {
	if err := s.resetPassive(); err != nil {
		s.server.logger.Warn("passive_listen_failed",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"user", s.user.Name,
			"port", s.dataPort,
			"error", err,
		)
		s.reply(ftpd.StatusCannotOpenDataConn, "Can't open passive connection.")
		return
	}

	ip := s.server.publicIP
	if ip == nil {
		if addr, ok := s.conn.LocalAddr().(*net.TCPAddr); ok {
			ip = addr.IP.To4()
		}
	}
	if ip == nil {
		ip = net.IPv4zero
	}

	hp, err := ftpd.EncodeHostPort(ip, s.dataPort)
	if err != nil {
		s.reply(ftpd.StatusCannotOpenDataConn, "Can't open passive connection.")
		return
	}

	s.mode = passiveMode{port: s.dataPort}
	s.reply(ftpd.StatusPassiveMode, "Entering Passive Mode ("+hp+").")
}

func (s *session) handlePORT(arg string) {
	addr, err := ftpd.ParseHostPort(arg)
	if err != nil {
		s.reply(ftpd.StatusSyntaxErrorParams, "Syntax error in parameters or arguments.")
		return
	}
	if addr.Port == 0 {
		s.reply(ftpd.StatusSyntaxErrorParams, "Invalid port number.")
		return
	}

	// The target must be the client itself, to prevent bounce attacks.
	if !s.validateActiveIP(addr.IP) {
		s.server.logger.Warn("port_rejected",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"user", s.user.Name,
			"target", addr.String(),
		)
		s.reply(ftpd.StatusSyntaxError, "Illegal PORT command.")
		return
	}

	s.mode = activeMode{addr: addr}
	s.reply(ftpd.StatusOK, "PORT command successful.")
}

// validateActiveIP ensures the data connection target matches the control
// connection source.
func (s *session) validateActiveIP(ip net.IP) bool {
	peer := net.ParseIP(s.remoteIP)
	if peer == nil {
		return false
	}
	return ip.Equal(peer)
}

// openDataConn establishes the data connection for the current mode,
// waiting at most the configured data timeout.
func (s *session) openDataConn() (net.Conn, error) {
	var (
		conn net.Conn
		err  error
	)

	switch m := s.mode.(type) {
	case passiveMode:
		conn, err = s.acceptPassive()
	case activeMode:
		s.server.logger.Debug("dialing active connection",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"addr", m.addr.String(),
		)
		conn, err = net.DialTimeout("tcp4", m.addr.String(), s.server.dataTimeout)
	default:
		err = fmt.Errorf("no data connection mode")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDataConn, err)
	}

	s.dataOpened = true
	if !s.server.trackConn(conn, true) {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrDataConn, ErrServerClosed)
	}
	return &trackingConn{Conn: conn, server: s.server}, nil
}

func (s *session) acceptPassive() (net.Conn, error) {
	if err := s.listenPassive(); err != nil {
		return nil, err
	}

	s.server.logger.Debug("waiting for passive connection",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"port", s.dataPort,
	)

	tl, ok := s.pasvList.(*net.TCPListener)
	if !ok {
		return s.pasvList.Accept()
	}
	if err := tl.SetDeadline(time.Now().Add(s.server.dataTimeout)); err != nil {
		return nil, err
	}
	defer tl.SetDeadline(time.Time{})
	return tl.Accept()
}
