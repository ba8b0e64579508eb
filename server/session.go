package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/gonzalop/ftpd"
	"github.com/gonzalop/ftpd/internal/ratelimit"
	"github.com/gonzalop/ftpd/userdir"
)

// MaxCommandLength is the maximum length of a command line.
const MaxCommandLength = 4096

var errCommandTooLong = errors.New("command too long")

// session is one control connection. All of its state is owned by the
// goroutine running serve; commands are handled strictly in order.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	ctx    context.Context
	cancel context.CancelFunc

	// Session tracking
	sessionID string
	remoteIP  string

	// Authentication
	loggedIn          bool
	user              userdir.User
	pendingUser       string
	loginAttemptsLeft int

	// Filesystem state
	sb         *sandbox
	renameFrom string // virtual path recorded by RNFR, cleared by RNTO

	// Transfer parameters
	transferType string // "A" or "I"
	limiter      *ratelimit.Limiter
	dataPort     int
	mode         transferMode
	pasvList     net.Listener
	dataOpened   bool // set once the current command has its data connection

	lastCode int
	quit     bool
}

func newSession(server *Server, conn net.Conn, dataPort int) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		server:            server,
		conn:              conn,
		reader:            bufio.NewReader(newTelnetReader(conn)),
		writer:            bufio.NewWriter(conn),
		ctx:               ctx,
		cancel:            cancel,
		sessionID:         uuid.NewString()[:8],
		remoteIP:          remoteIP(conn),
		loginAttemptsLeft: server.maxLoginAttempts,
		transferType:      "I",
		limiter:           ratelimit.New(server.bandwidthPerSession),
		dataPort:          dataPort,
		mode:              passiveMode{port: dataPort},
	}
}

// serve runs the session until QUIT, too many failed logins, an idle
// timeout or a control connection failure.
func (s *session) serve() {
	defer s.close()

	if err := s.listenPassive(); err != nil {
		// Retried on PASV and at transfer time.
		s.server.logger.Warn("passive_listen_failed",
			"session_id", s.sessionID,
			"remote_ip", s.remoteIP,
			"port", s.dataPort,
			"error", err,
		)
	}

	s.reply(ftpd.StatusReady, fmt.Sprintf("%s (%s)", s.server.welcomeMessage, localIP(s.conn)))

	s.server.logger.Info("session_started",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"data_port", s.dataPort,
	)

	for !s.quit {
		if s.server.maxIdleTime > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.server.maxIdleTime))
		}

		line, err := s.readCommand()
		if errors.Is(err, errCommandTooLong) {
			s.reply(ftpd.StatusSyntaxError, "Command line too long.")
			continue
		}
		if err != nil {
			var ne net.Error
			switch {
			case errors.As(err, &ne) && ne.Timeout():
				s.reply(ftpd.StatusNotAvailable, "Timeout.")
				s.server.logger.Info("session_idle_timeout",
					"session_id", s.sessionID,
					"remote_ip", s.remoteIP,
					"user", s.user.Name,
				)
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			default:
				s.server.logger.Warn("read error",
					"session_id", s.sessionID,
					"remote_ip", s.remoteIP,
					"user", s.user.Name,
					"error", err,
				)
			}
			return
		}

		s.handleCommand(line)
	}
}

// readCommand reads one line, without its terminator. Lines longer than
// MaxCommandLength are discarded up to the next newline and reported as
// errCommandTooLong.
func (s *session) readCommand() (string, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return string(line), err
		}
		if b == '\n' {
			if tooLong {
				return "", errCommandTooLong
			}
			return strings.TrimSuffix(string(line), "\r"), nil
		}
		if len(line) >= MaxCommandLength {
			tooLong = true
			continue
		}
		line = append(line, b)
	}
}

// handleCommand parses one line and dispatches it through the command table.
func (s *session) handleCommand(line string) {
	verb, arg, _ := strings.Cut(strings.TrimLeft(line, " "), " ")
	verb = strings.ToUpper(verb)
	if verb != "PASS" {
		arg = strings.TrimRight(arg, " \t")
	}

	logArg := arg
	if verb == "PASS" {
		logArg = "***"
	}
	s.server.logger.Debug("command received",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", s.user.Name,
		"cmd", verb,
		"arg", logArg,
	)

	if !validVerb(verb) {
		s.reply(ftpd.StatusSyntaxError, "Syntax error, command unrecognized.")
		return
	}

	cmd, ok := commands[verb]
	if !ok {
		s.reply(ftpd.StatusNotImplemented, "Command not implemented.")
		// Arbitrary client verbs would make unbounded metric labels.
		s.recordCommand("UNKNOWN", false, 0)
		return
	}
	if !cmd.open && !s.loggedIn {
		s.reply(ftpd.StatusNotLoggedIn, "Not logged in.")
		s.recordCommand(verb, false, 0)
		return
	}

	start := time.Now()
	s.lastCode = 0
	s.dataOpened = false
	s.run(verb, cmd, arg)
	if cmd.data && !s.dataOpened {
		s.discardPassive()
	}
	s.recordCommand(verb, s.lastCode > 0 && s.lastCode < 400, time.Since(start))
}

// run calls the handler, converting a panic into a 451 reply so one bad
// command never takes down the session.
func (s *session) run(verb string, cmd command, arg string) {
	defer func() {
		if r := recover(); r != nil {
			s.server.logger.Error("command_panic",
				"session_id", s.sessionID,
				"remote_ip", s.remoteIP,
				"user", s.user.Name,
				"cmd", verb,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			s.reply(ftpd.StatusLocalError, "Requested action aborted: local error in processing.")
		}
	}()
	cmd.handler(s, arg)
}

func validVerb(verb string) bool {
	if verb == "" || len(verb) > 8 {
		return false
	}
	if verb == "?" {
		return true
	}
	for _, r := range verb {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// close releases every socket the session holds. The data port itself is
// returned to the pool by the server once serve returns.
func (s *session) close() {
	s.cancel()

	var result *multierror.Error
	if err := s.closePassive(); err != nil && !errors.Is(err, net.ErrClosed) {
		result = multierror.Append(result, fmt.Errorf("passive listener: %w", err))
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		result = multierror.Append(result, fmt.Errorf("control connection: %w", err))
	}

	s.server.logger.Debug("session closed",
		"session_id", s.sessionID,
		"remote_ip", s.remoteIP,
		"user", s.user.Name,
		"error", result.ErrorOrNil(),
	)
}

// replyError sends a 550 reply describing a filesystem error.
func (s *session) replyError(err error) {
	switch {
	case errors.Is(err, ErrOutsideSandbox):
		s.reply(ftpd.StatusFileUnavailable, "Permission denied: path outside home directory.")
	case errors.Is(err, os.ErrNotExist):
		s.reply(ftpd.StatusFileUnavailable, "File not found.")
	case errors.Is(err, os.ErrPermission):
		s.reply(ftpd.StatusFileUnavailable, "Permission denied.")
	case errors.Is(err, os.ErrExist):
		s.reply(ftpd.StatusFileUnavailable, "File already exists.")
	case errors.Is(err, errIsDirectory):
		s.reply(ftpd.StatusFileUnavailable, "Is a directory.")
	case errors.Is(err, errNotDirectory):
		s.reply(ftpd.StatusFileUnavailable, "Not a directory.")
	case errors.Is(err, os.ErrInvalid):
		s.reply(ftpd.StatusFileUnavailable, "Invalid file name.")
	default:
		s.reply(ftpd.StatusFileUnavailable, "Requested action not taken.")
	}
}

// reply sends a single-line response and flushes it.
func (s *session) reply(code int, message string) {
	s.lastCode = code
	fmt.Fprintf(s.writer, "%d %s\r\n", code, message)
	if err := s.writer.Flush(); err != nil {
		s.quit = true
	}
}

// replyLines sends a multi-line response: the first line and the body lines
// use the "code-" form and the final line the "code " form.
func (s *session) replyLines(code int, first string, body []string, last string) {
	s.lastCode = code
	fmt.Fprintf(s.writer, "%d-%s\r\n", code, first)
	for _, line := range body {
		fmt.Fprintf(s.writer, " %s\r\n", line)
	}
	fmt.Fprintf(s.writer, "%d %s\r\n", code, last)
	if err := s.writer.Flush(); err != nil {
		s.quit = true
	}
}

func localIP(conn net.Conn) string {
	if addr, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	host, _, _ := net.SplitHostPort(conn.LocalAddr().String())
	return host
}
