package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/gonzalop/ftpd"
	"github.com/gonzalop/ftpd/internal/ratelimit"
)

// transfer runs the data channel half of a command: open the data
// connection, send 150, move the bytes, close the data connection and only
// then send the completion reply. Failures to connect reply 425, failures
// while copying reply 426; either way the session carries on.
func (s *session) transfer(op, target, preliminary, done string, move func(data io.ReadWriter) (int64, error)) bool {
	conn, err := s.openDataConn()
	if err != nil {
		s.server.logger.Warn("data_connection_failed",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"user", s.user.Name,
			"operation", op,
			"error", err,
		)
		s.reply(ftpd.StatusCannotOpenDataConn, "Can't open data connection.")
		return false
	}

	s.reply(ftpd.StatusFileStatusOK, preliminary)

	start := time.Now()
	n, err := move(s.limit(conn))
	if cerr := conn.Close(); err == nil && cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	duration := time.Since(start)

	if err != nil {
		s.server.logger.Warn("transfer_failed",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"user", s.user.Name,
			"operation", op,
			"path", target,
			"bytes", n,
			"error", err,
		)
		s.reply(ftpd.StatusTransferAborted, "Connection closed; transfer aborted.")
		return false
	}

	throughputMBps := float64(0)
	if duration.Seconds() > 0 {
		throughputMBps = float64(n) / duration.Seconds() / 1024 / 1024
	}
	s.server.logger.Info("transfer_complete",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", s.user.Name,
		"operation", op,
		"path", target,
		"bytes", n,
		"duration_ms", duration.Milliseconds(),
		"throughput_mbps", fmt.Sprintf("%.2f", throughputMBps),
	)
	s.recordTransfer(op, n, duration)

	s.reply(ftpd.StatusTransferComplete, done)
	return true
}

// limit applies the session and global bandwidth limits to a data
// connection.
func (s *session) limit(conn net.Conn) io.ReadWriter {
	var (
		r io.Reader = conn
		w io.Writer = conn
	)
	for _, l := range []*ratelimit.Limiter{s.limiter, s.server.globalLimiter} {
		r = ratelimit.NewReader(s.ctx, r, l)
		w = ratelimit.NewWriter(s.ctx, w, l)
	}
	return struct {
		io.Reader
		io.Writer
	}{r, w}
}

func (s *session) handleRETR(arg string) {
	f, vpath, err := s.sb.openRead(arg)
	if err != nil {
		s.replyError(err)
		return
	}
	defer f.Close()

	s.transfer("RETR", vpath, "Opening data connection for RETR.", "Transfer complete.",
		func(data io.ReadWriter) (int64, error) {
			var src io.Reader = f
			if s.transferType == "A" {
				src = newASCIIReader(f)
			}
			return io.Copy(data, src)
		})
}

func (s *session) handleSTOR(arg string) {
	s.store("STOR", arg, false)
}

func (s *session) handleAPPE(arg string) {
	s.store("APPE", arg, true)
}

func (s *session) store(op, arg string, appending bool) {
	f, vpath, err := s.sb.openWrite(arg, appending)
	if err != nil {
		s.replyError(err)
		return
	}
	defer f.Close()

	s.transfer(op, vpath, "Opening data connection for "+op+".", "Transfer complete.", s.receiveInto(f))
}

// handleSTOU stores into a server generated name. The name is reported in
// both the 150 and the 226 reply.
func (s *session) handleSTOU(_ string) {
	f, vpath, err := s.sb.createUnique()
	if err != nil {
		s.replyError(err)
		return
	}
	defer f.Close()

	name := path.Base(vpath)
	ok := s.transfer("STOU", vpath, "FILE: "+name,
		fmt.Sprintf("Transfer complete (unique file name: %s).", name), s.receiveInto(f))
	if !ok {
		f.Close()
		_ = s.sb.fs.Remove(vpath)
	}
}

func (s *session) receiveInto(f afero.File) func(io.ReadWriter) (int64, error) {
	return func(data io.ReadWriter) (int64, error) {
		var src io.Reader = data
		if s.transferType == "A" {
			src = newASCIIWriter(data)
		}
		return io.Copy(f, src)
	}
}

func (s *session) handleTYPE(arg string) {
	// Only ASCII (A) and Image (I) are supported.
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "A", "A N":
		s.transferType = "A"
		s.reply(ftpd.StatusOK, "Type set to A.")
	case "I", "L 8":
		s.transferType = "I"
		s.reply(ftpd.StatusOK, "Type set to I.")
	default:
		s.reply(ftpd.StatusNotImplementedParam, "Type not supported.")
	}
}

func (s *session) handleMODE(arg string) {
	if strings.ToUpper(strings.TrimSpace(arg)) == "S" {
		s.reply(ftpd.StatusOK, "Mode set to S.")
		return
	}
	s.reply(ftpd.StatusNotImplementedParam, "Only stream mode is supported.")
}

func (s *session) handleSTRU(arg string) {
	if strings.ToUpper(strings.TrimSpace(arg)) == "F" {
		s.reply(ftpd.StatusOK, "Structure set to F.")
		return
	}
	s.reply(ftpd.StatusNotImplementedParam, "Only file structure is supported.")
}
