package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/afero"

	"github.com/gonzalop/ftpd/internal/ratelimit"
	"github.com/gonzalop/ftpd/userdir"
)

// Option is a functional option for configuring an FTP server.
type Option func(*Server) error

// WithUsers sets the registry sessions authenticate against. Required.
//
// Example:
//
//	users, _ := userdir.Load("users.cfg", "./ftproot")
//	s, _ := server.NewServer(":2115", server.WithUsers(users))
func WithUsers(users UserLookup) Option {
	return func(s *Server) error {
		if users == nil {
			return errors.New("user registry is nil")
		}
		if s.users != nil {
			return errors.New("user registry already set")
		}
		s.users = users
		return nil
	}
}

// WithLogger sets a custom logger for the server.
// If not specified, slog.Default() is used.
//
// Example with debug logging:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	s, _ := server.NewServer(":2115",
//	    server.WithUsers(users),
//	    server.WithLogger(logger),
//	)
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithDataPorts sets the range data ports are drawn from.
// Defaults to 27500-27999. Each connected session holds one port, so the
// size of the range caps the number of simultaneous sessions.
func WithDataPorts(r PortRange) Option {
	return func(s *Server) error {
		if err := r.validate(); err != nil {
			return err
		}
		s.dataPorts = r
		return nil
	}
}

// WithDataTimeout bounds how long a transfer waits for the data connection
// (passive accept or active dial). Defaults to 10 seconds.
func WithDataTimeout(d time.Duration) Option {
	return func(s *Server) error {
		if d <= 0 {
			return fmt.Errorf("data timeout must be positive, got %v", d)
		}
		s.dataTimeout = d
		return nil
	}
}

// WithMaxIdleTime sets the maximum time a control connection can be idle
// before being closed. If not specified, defaults to 5 minutes. Zero
// disables the idle timeout.
func WithMaxIdleTime(d time.Duration) Option {
	return func(s *Server) error {
		s.maxIdleTime = d
		return nil
	}
}

// WithMaxLoginAttempts sets how many consecutive failed logins end a
// session. Defaults to 3.
func WithMaxLoginAttempts(n int) Option {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("max login attempts must be at least 1, got %d", n)
		}
		s.maxLoginAttempts = n
		return nil
	}
}

// WithIdentityOnlyLogin makes USER alone log a known user in (reply 230)
// without a PASS step. Off by default.
func WithIdentityOnlyLogin(enable bool) Option {
	return func(s *Server) error {
		s.identityOnly = enable
		return nil
	}
}

// WithPublicHost sets the IPv4 address advertised in 227 replies, for
// servers behind NAT. By default the local address of the control
// connection is used.
func WithPublicHost(host string) Option {
	return func(s *Server) error {
		if host == "" {
			s.publicIP = nil
			return nil
		}
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("public host %q is not an IPv4 address", host)
		}
		s.publicIP = ip.To4()
		return nil
	}
}

// WithWelcomeMessage sets the text of the 220 greeting. The local address of
// the control connection is appended.
func WithWelcomeMessage(msg string) Option {
	return func(s *Server) error {
		s.welcomeMessage = msg
		return nil
	}
}

// WithBandwidthLimit limits data channel throughput.
//
// perSession caps each session's transfers; global is shared by every
// session. Zero disables the corresponding limit. Values are bytes per
// second.
func WithBandwidthLimit(global, perSession int64) Option {
	return func(s *Server) error {
		s.globalLimiter = ratelimit.New(global)
		s.bandwidthPerSession = perSession
		return nil
	}
}

// WithMetricsCollector sets a collector for command, transfer, connection
// and authentication metrics.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(s *Server) error {
		s.metrics = mc
		return nil
	}
}

// WithFilesystem replaces the host filesystem with fn(user) as each user's
// root. It exists mainly for tests with afero.NewMemMapFs.
func WithFilesystem(fn func(u userdir.User) afero.Fs) Option {
	return func(s *Server) error {
		s.fsFactory = fn
		return nil
	}
}
