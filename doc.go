// Package ftpd holds the wire-level pieces shared by the ftpd server and its
// test client: reply codes, the six-octet host-port encoding used by PORT and
// PASV, and a reply reader.
//
// # Layout
//
//   - server: the FTP server (listener, sessions, data channels, sandbox).
//   - userdir: the user registry loaded at startup.
//   - ftptest: a raw control-channel client for protocol tests.
//   - cmd/ftpd: the command-line daemon.
//
// # Host-port encoding
//
// PORT arguments and 227 replies carry an IPv4 address and a port as six
// decimal octets:
//
//	addr, _ := ftpd.ParseHostPort("127,0,0,1,107,108")
//	// addr.Port == 107*256 + 108 == 27500
//
//	s, _ := ftpd.EncodeHostPort(net.IPv4(127, 0, 0, 1), 27500)
//	// s == "127,0,0,1,107,108"
package ftpd
