// Package ratelimit throttles data channel transfers to a fixed number of
// bytes per second. It wraps golang.org/x/time/rate so that one Limiter can be
// shared by several readers and writers when a global cap is wanted.
package ratelimit

import (
	"context"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// maxBurst caps the bucket size so a single Read or Write never moves more
// than this many bytes without waiting.
const maxBurst = 32 * 1024

// Limiter limits transfer speed to a fixed number of bytes per second.
// A nil *Limiter means unlimited.
type Limiter struct {
	lim   *rate.Limiter
	burst int
}

// New creates a limiter for bytesPerSecond. It returns nil (unlimited) for
// values <= 0. The bucket starts empty so throttling applies from the first
// byte.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}

	burst := maxBurst
	if bytesPerSecond < int64(burst) {
		burst = int(bytesPerSecond)
	}

	lim := rate.NewLimiter(rate.Limit(bytesPerSecond), burst)
	lim.AllowN(time.Now(), burst)
	return &Limiter{lim: lim, burst: burst}
}

// Rate returns the configured bytes per second.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return int64(l.lim.Limit())
}

func (l *Limiter) wait(ctx context.Context, n int) error {
	return l.lim.WaitN(ctx, n)
}

type reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *Limiter
}

// NewReader returns r throttled by limiter. If limiter is nil, r is returned
// unchanged. Waiting stops early with ctx's error when ctx is done.
func NewReader(ctx context.Context, r io.Reader, limiter *Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) > r.limiter.burst {
		p = p[:r.limiter.burst]
	}
	n, err := r.r.Read(p)
	if n > 0 {
		if werr := r.limiter.wait(r.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

type writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *Limiter
}

// NewWriter returns w throttled by limiter. If limiter is nil, w is returned
// unchanged.
func NewWriter(ctx context.Context, w io.Writer, limiter *Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{ctx: ctx, w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		chunk := min(len(p)-total, w.limiter.burst)
		if err := w.limiter.wait(w.ctx, chunk); err != nil {
			return total, err
		}
		n, err := w.w.Write(p[total : total+chunk])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
