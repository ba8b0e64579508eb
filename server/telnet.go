package server

import (
	"bufio"
	"io"
)

// Telnet bytes that may appear on an FTP control connection (RFC 854).
const (
	telnetSE   = 0xF0
	telnetSB   = 0xFA
	telnetWILL = 0xFB
	telnetWONT = 0xFC
	telnetDO   = 0xFD
	telnetDONT = 0xFE
	telnetIAC  = 0xFF
)

type telnetState int

const (
	tsData   telnetState = iota
	tsIAC                // saw IAC
	tsOption             // saw IAC WILL/WONT/DO/DONT, skip the option byte
	tsSub                // inside IAC SB ... IAC SE
	tsSubIAC             // saw IAC inside a subnegotiation
)

// telnetReader strips Telnet commands from the control stream. IAC IAC
// decodes to a literal 0xFF; every other sequence is dropped.
type telnetReader struct {
	r     *bufio.Reader
	state telnetState
}

func newTelnetReader(r io.Reader) *telnetReader {
	return &telnetReader{r: bufio.NewReader(r)}
}

func (t *telnetReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		// Return what we have rather than block on the network.
		if n > 0 && t.r.Buffered() == 0 {
			break
		}

		b, err := t.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		switch t.state {
		case tsData:
			if b == telnetIAC {
				t.state = tsIAC
				continue
			}
			p[n] = b
			n++
		case tsIAC:
			switch b {
			case telnetIAC:
				p[n] = telnetIAC
				n++
				t.state = tsData
			case telnetWILL, telnetWONT, telnetDO, telnetDONT:
				t.state = tsOption
			case telnetSB:
				t.state = tsSub
			default:
				t.state = tsData
			}
		case tsOption:
			t.state = tsData
		case tsSub:
			if b == telnetIAC {
				t.state = tsSubIAC
			}
		case tsSubIAC:
			if b == telnetSE {
				t.state = tsData
			} else {
				t.state = tsSub
			}
		}
	}
	return n, nil
}
