package server

import "errors"

var (
	// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
	ErrServerClosed = errors.New("ftpd: server closed")

	// ErrNoDataPort is returned by PortPool.Acquire when every port in the
	// configured range is held by a live session.
	ErrNoDataPort = errors.New("ftpd: no data port available")

	// ErrOutsideSandbox is returned when a path resolves outside the user's
	// root, either lexically ("..") or through a symlink.
	ErrOutsideSandbox = errors.New("ftpd: path outside user root")

	// ErrUnknownUser is an authentication failure for a name missing from
	// the registry.
	ErrUnknownUser = errors.New("ftpd: unknown user")

	// ErrBadPassword is an authentication failure for a wrong password.
	ErrBadPassword = errors.New("ftpd: bad password")

	// ErrDataConn wraps failures to accept or dial a data connection.
	ErrDataConn = errors.New("ftpd: data connection failed")

	errIsDirectory  = errors.New("is a directory")
	errNotDirectory = errors.New("not a directory")
)
