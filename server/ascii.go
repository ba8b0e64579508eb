package server

import (
	"bufio"
	"io"
)

// TYPE A transfers use CRLF line endings on the wire. Files are stored with
// the host's LF endings, so RETR encodes and STOR/APPE decode.
//
// Both readers stop filling p once the underlying buffer is drained, so a
// slow data connection never blocks bytes that are already available.

// crlfEncoder converts bare LF to CRLF. Existing CRLF pairs are left alone.
type crlfEncoder struct {
	r         *bufio.Reader
	prevCR    bool
	pendingLF bool
}

func newASCIIReader(r io.Reader) io.Reader {
	return &crlfEncoder{r: bufio.NewReader(r)}
}

func (e *crlfEncoder) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if e.pendingLF {
			p[n] = '\n'
			n++
			e.pendingLF = false
			e.prevCR = false
			continue
		}
		if n > 0 && e.r.Buffered() == 0 {
			break
		}

		b, err := e.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if b == '\n' && !e.prevCR {
			p[n] = '\r'
			n++
			e.pendingLF = true
			continue
		}
		p[n] = b
		n++
		e.prevCR = b == '\r'
	}
	return n, nil
}

// crlfDecoder converts CRLF to LF. A CR not followed by LF is kept.
type crlfDecoder struct {
	r *bufio.Reader
}

func newASCIIWriter(r io.Reader) io.Reader {
	return &crlfDecoder{r: bufio.NewReader(r)}
}

func (d *crlfDecoder) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if n > 0 && d.r.Buffered() == 0 {
			break
		}

		b, err := d.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}

		if b == '\r' {
			if next, err := d.r.Peek(1); err == nil && next[0] == '\n' {
				continue
			}
		}
		p[n] = b
		n++
	}
	return n, nil
}
