package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// PortRange is an inclusive range of TCP ports reserved for data channels.
type PortRange struct {
	Start int
	End   int
}

// ParsePortRange parses "start-end", e.g. "27500-27999".
func ParsePortRange(s string) (PortRange, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return PortRange{}, fmt.Errorf("invalid port range %q: want start-end", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	r := PortRange{Start: start, End: end}
	return r, r.validate()
}

func (r PortRange) validate() error {
	if r.Start < 1 || r.End > 65535 || r.Start > r.End {
		return fmt.Errorf("invalid port range %d-%d", r.Start, r.End)
	}
	return nil
}

// Len returns the number of ports in the range.
func (r PortRange) Len() int { return r.End - r.Start + 1 }

func (r PortRange) String() string { return fmt.Sprintf("%d-%d", r.Start, r.End) }

// PortPool hands out data ports from a PortRange. Each port is held by at
// most one session at a time and returns to the pool when that session ends.
// Ports are reused in release order once the range has been handed out.
type PortPool struct {
	mu   sync.Mutex
	free []int
	used map[int]struct{}
}

// NewPortPool returns a pool holding every port in r.
func NewPortPool(r PortRange) (*PortPool, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	p := &PortPool{
		free: make([]int, 0, r.Len()),
		used: make(map[int]struct{}),
	}
	for port := r.Start; port <= r.End; port++ {
		p.free = append(p.free, port)
	}
	return p, nil
}

// Acquire reserves the next free port. It returns ErrNoDataPort when the
// pool is empty.
func (p *PortPool) Acquire() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) == 0 {
		return 0, ErrNoDataPort
	}
	port := p.free[0]
	p.free = p.free[1:]
	p.used[port] = struct{}{}
	return port, nil
}

// Release returns port to the pool. Releasing a port that is not held is a
// no-op.
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.used[port]; !ok {
		return
	}
	delete(p.used, port)
	p.free = append(p.free, port)
}

// Available returns the number of free ports.
func (p *PortPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// InUse returns the number of ports held by live sessions.
func (p *PortPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.used)
}
