package ftpd

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrBadHostPort is returned by ParseHostPort for malformed arguments.
var ErrBadHostPort = errors.New("ftpd: malformed host-port argument")

// EncodeHostPort formats an IPv4 address and port as the six comma separated
// octets used by PORT and the 227 reply: "h1,h2,h3,h4,p1,p2".
// Example: 192.168.1.100 port 50000 -> "192,168,1,100,195,80".
func EncodeHostPort(ip net.IP, port int) (string, error) {
	v4 := ip.To4()
	if v4 == nil {
		return "", fmt.Errorf("ftpd: %v is not an IPv4 address", ip)
	}
	if port < 0 || port > 65535 {
		return "", fmt.Errorf("ftpd: port %d out of range", port)
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%d", v4[0], v4[1], v4[2], v4[3], port/256, port%256), nil
}

// ParseHostPort parses "h1,h2,h3,h4,p1,p2" into a TCP address.
// The port is p1*256+p2. Surrounding parentheses and spaces are tolerated so
// the function also accepts the tail of a 227 reply.
func ParseHostPort(s string) (*net.TCPAddr, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")

	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: %q", ErrBadHostPort, s)
	}

	var octets [6]byte
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return nil, fmt.Errorf("%w: %q", ErrBadHostPort, s)
		}
		octets[i] = byte(v)
	}

	return &net.TCPAddr{
		IP:   net.IPv4(octets[0], octets[1], octets[2], octets[3]).To4(),
		Port: int(octets[4])*256 + int(octets[5]),
	}, nil
}

// ParsePassiveReply extracts the data address from a 227 reply message such
// as "Entering Passive Mode (127,0,0,1,107,108).".
func ParsePassiveReply(msg string) (*net.TCPAddr, error) {
	start := strings.IndexByte(msg, '(')
	end := strings.LastIndexByte(msg, ')')
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: %q", ErrBadHostPort, msg)
	}
	return ParseHostPort(msg[start+1 : end])
}
