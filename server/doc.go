// Package server implements a multi-user FTP server that confines each user
// to their own directory.
//
// # Overview
//
// A Server accepts control connections and runs one session goroutine per
// client. Every session:
//   - holds one data port from the server's PortPool for its whole life,
//   - authenticates against a read-only user registry (see package userdir),
//   - sees only its user's root directory, presented as "/".
//
// # Getting Started
//
//	package main
//
//	import (
//	    "log"
//
//	    "github.com/gonzalop/ftpd/server"
//	    "github.com/gonzalop/ftpd/userdir"
//	)
//
//	func main() {
//	    users, err := userdir.Load("users.cfg", "./ftproot")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := users.EnsureHomes(); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    s, err := server.NewServer("127.0.0.1:2115",
//	        server.WithUsers(users),
//	        server.WithDataPorts(server.PortRange{Start: 27500, End: 27999}),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Fatal(s.ListenAndServe())
//	}
//
// # Data Ports
//
// The accept loop reserves a port before the session starts, and the port
// is released when the session ends. When the range is exhausted the new
// client is answered with
//
//	421 No data port available, try again later.
//
// and disconnected; existing sessions are unaffected. The session binds its
// passive listener on that port immediately, so PASV always advertises the
// same port for a given client. Use WithPublicHost behind NAT.
//
// # Authentication
//
// Login is two-step by default: USER of a known name replies 331 and PASS
// checks the password. WithIdentityOnlyLogin accepts a known name on USER
// alone. After WithMaxLoginAttempts consecutive failures the session is
// closed.
//
// # Sandbox
//
// Paths are resolved lexically against the session's working directory and
// then checked for symlinks that lead outside the root. Anything outside is
// refused with 550. WithFilesystem swaps the host filesystem for any
// afero.Fs, which tests use with afero.NewMemMapFs.
//
// # Commands
//
// USER PASS QUIT SYST NOOP FEAT HELP OPTS STAT TYPE MODE STRU PORT PASV
// LIST NLST RETR STOR APPE STOU PWD CWD CDUP MKD RMD DELE RNFR RNTO SIZE,
// plus the aliases XPWD, CD, XCWD, XCUP, MKDIR, XMKD and XRMD. EXIT, LOGOUT
// and BYE behave as QUIT.
//
// # Observability
//
// Events are logged through log/slog (WithLogger) with session_id,
// remote_ip and user attributes. WithMetricsCollector plugs in a
// MetricsCollector; internal/promstats exports one to Prometheus.
package server
