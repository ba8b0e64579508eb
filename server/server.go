package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/gonzalop/ftpd/internal/ratelimit"
	"github.com/gonzalop/ftpd/userdir"
)

// UserLookup resolves a login name to a registry entry. *userdir.Directory
// implements it.
type UserLookup interface {
	Lookup(name string) (userdir.User, bool)
}

// Server is the FTP server.
//
// It accepts control connections, reserves one data port per connection
// from its PortPool and runs each session in its own goroutine.
//
// Lifecycle:
//  1. Create server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Stop with Shutdown()
//
// Basic example:
//
//	users, _ := userdir.Load("users.cfg", "./ftproot")
//	s, err := server.NewServer(":2115", server.WithUsers(users))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(s.ListenAndServe())
type Server struct {
	// addr is the TCP address to listen on (e.g., ":2115").
	addr string

	// users is the read-only registry shared by all sessions.
	users UserLookup

	logger *slog.Logger

	// welcomeMessage is the text of the 220 greeting.
	welcomeMessage string

	// serverName is the system type returned by SYST.
	serverName string

	dataPorts   PortRange
	ports       *PortPool
	dataTimeout time.Duration
	publicIP    net.IP

	maxIdleTime      time.Duration
	maxLoginAttempts int
	identityOnly     bool

	globalLimiter       *ratelimit.Limiter
	bandwidthPerSession int64

	metrics   MetricsCollector
	fsFactory func(userdir.User) afero.Fs

	// Shutdown handling
	mu         sync.Mutex
	listeners  map[net.Listener]struct{}
	conns      map[net.Conn]struct{}
	sessions   sync.WaitGroup
	inShutdown atomic.Bool
}

// NewServer creates a new FTP server with the given address and options.
// The registry must be provided via WithUsers.
//
// Default values:
//   - Logger: slog.Default()
//   - Data ports: 27500-27999
//   - Data timeout: 10 seconds
//   - MaxIdleTime: 5 minutes
//   - MaxLoginAttempts: 3
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:             addr,
		logger:           slog.Default(),
		welcomeMessage:   "FTP server ready",
		serverName:       "UNIX Type: L8",
		dataPorts:        PortRange{Start: 27500, End: 27999},
		dataTimeout:      10 * time.Second,
		maxIdleTime:      5 * time.Minute,
		maxLoginAttempts: 3,
		listeners:        make(map[net.Listener]struct{}),
		conns:            make(map[net.Conn]struct{}),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.users == nil {
		return nil, fmt.Errorf("user registry is required (use WithUsers option)")
	}

	pool, err := NewPortPool(s.dataPorts)
	if err != nil {
		return nil, err
	}
	s.ports = pool

	return s, nil
}

// Ports returns the server's data port pool.
func (s *Server) Ports() *PortPool { return s.ports }

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp4", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("server_listening",
		"addr", ln.Addr().String(),
		"data_ports", s.dataPorts.String(),
	)
	return s.Serve(ln)
}

// Serve accepts incoming connections on l until l is closed or Shutdown is
// called. Data ports are reserved here, in the accept loop, so allocation
// order follows accept order. A connection arriving while every data port is
// in use is answered with 421 and closed; the loop keeps accepting.
func (s *Server) Serve(l net.Listener) error {
	if !s.trackListener(l, true) {
		l.Close()
		return ErrServerClosed
	}
	defer func() {
		s.trackListener(l, false)
		l.Close()
	}()

	var backoff time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			s.logger.Error("accept error", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		port, err := s.ports.Acquire()
		if err != nil {
			s.reject(conn, "data_ports_exhausted", "421 No data port available, try again later.")
			continue
		}

		if !s.trackConn(conn, true) {
			s.ports.Release(port)
			conn.Close()
			return ErrServerClosed
		}
		s.recordConnection(true, "accepted")

		s.sessions.Add(1)
		go s.handleSession(conn, port)
	}
}

func (s *Server) reject(conn net.Conn, reason, reply string) {
	ip := remoteIP(conn)
	s.logger.Warn("connection_rejected",
		"remote_ip", ip,
		"reason", reason,
		"data_ports", s.dataPorts.String(),
	)
	s.recordConnection(false, reason)

	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	fmt.Fprintf(conn, "%s\r\n", reply)
	conn.Close()
}

func (s *Server) handleSession(conn net.Conn, port int) {
	defer s.sessions.Done()
	defer s.ports.Release(port)
	defer s.trackConn(conn, false)

	sess := newSession(s, conn, port)
	sess.serve()
}

// Shutdown closes all listeners and every open control and data
// connection, then waits for session goroutines to exit or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	var err error
	for ln := range s.listeners {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.listeners = make(map[net.Listener]struct{})
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) trackListener(l net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		if s.inShutdown.Load() {
			return false
		}
		s.listeners[l] = struct{}{}
		return true
	}
	delete(s.listeners, l)
	return true
}

// trackConn returns false if we're shutting down.
func (s *Server) trackConn(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if add {
		if s.inShutdown.Load() {
			return false
		}
		s.conns[conn] = struct{}{}
		return true
	}
	delete(s.conns, conn)
	return true
}

// trackingConn removes a data connection from the server's set on Close.
type trackingConn struct {
	net.Conn
	server *Server
}

func (c *trackingConn) Close() error {
	c.server.trackConn(c.Conn, false)
	return c.Conn.Close()
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
