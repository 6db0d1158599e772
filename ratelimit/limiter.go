// Package ratelimit implements the token-bucket admission control shared by
// all outbound HTTP calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/x402-agent/metrics"
)

// Config parameterizes a Limiter.
type Config struct {
	// RatePerSecond is the token refill rate. Must be >= 0.
	RatePerSecond float64

	// Burst is the bucket capacity. Must be >= 1.
	Burst int

	// BlockOnLimit selects between waiting for a token and failing fast
	// with a retry hint.
	BlockOnLimit bool

	// MaxWait caps how long a blocking Acquire will wait. Zero means no cap.
	MaxWait time.Duration
}

// Stats is a read-only snapshot of limiter counters.
// Invariant: Allowed + Throttled + Cancelled == Total.
type Stats struct {
	Total         uint64
	Allowed       uint64
	Throttled     uint64
	Cancelled     uint64
	TotalWait     time.Duration
	LastRequestAt time.Time
}

// Acquisition reports a successful token grant.
type Acquisition struct {
	// Waited is the time spent blocked before the token was granted.
	Waited time.Duration
}

// LimitError reports a denied acquisition.
type LimitError struct {
	// RetryAfter is the duration after which a token is expected to refill.
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Limiter is a token bucket. All state sits behind a single mutex; blocking
// waits sleep outside the critical section so a blocked caller does not stop
// others from observing refills.
type Limiter struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	blocking bool
	maxWait  time.Duration

	tokens float64
	// last is the instant of the previous refill. time.Time carries a
	// monotonic reading, so wall-clock changes cannot starve or flood callers.
	last  time.Time
	stats Stats

	rec metrics.Recorder
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithMetrics wires a metrics sink into the limiter.
func WithMetrics(rec metrics.Recorder) Option {
	return func(l *Limiter) {
		l.rec = rec
	}
}

// New creates a Limiter with a full bucket.
func New(cfg Config, opts ...Option) *Limiter {
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	l := &Limiter{
		rate:     cfg.RatePerSecond,
		burst:    float64(burst),
		blocking: cfg.BlockOnLimit,
		maxWait:  cfg.MaxWait,
		tokens:   float64(burst),
		last:     time.Now(),
		rec:      metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var limiterLabels = map[string]string{"component": "ratelimit"}

// refill advances the bucket to now. Caller holds the mutex.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.last = now
}

// TryAcquire attempts to take a token without blocking.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(time.Now())
	l.stats.Total++
	l.stats.LastRequestAt = time.Now()

	if l.tokens >= 1 {
		l.tokens--
		l.stats.Allowed++
		l.rec.IncCounter("ratelimit_allowed", limiterLabels)
		return true
	}

	l.stats.Throttled++
	l.rec.IncCounter("ratelimit_throttled", limiterLabels)
	return false
}

// Acquire takes a token, blocking up to MaxWait if the limiter was configured
// to block. A denied acquisition returns *LimitError with a retry hint; a
// cancelled wait returns ctx.Err() and consumes no token.
func (l *Limiter) Acquire(ctx context.Context) (Acquisition, error) {
	l.mu.Lock()

	l.refill(time.Now())
	l.stats.Total++
	l.stats.LastRequestAt = time.Now()

	if l.tokens >= 1 {
		l.tokens--
		l.stats.Allowed++
		l.mu.Unlock()
		l.rec.IncCounter("ratelimit_allowed", limiterLabels)
		return Acquisition{}, nil
	}

	waitNeeded := l.waitFor(1)
	if !l.blocking || waitNeeded < 0 || (l.maxWait > 0 && waitNeeded > l.maxWait) {
		l.stats.Throttled++
		l.mu.Unlock()
		l.rec.IncCounter("ratelimit_throttled", limiterLabels)
		if waitNeeded < 0 {
			waitNeeded = 0
		}
		return Acquisition{}, &LimitError{RetryAfter: waitNeeded}
	}

	// Sleep outside the mutex so concurrent callers can still refill and
	// read stats.
	l.mu.Unlock()

	start := time.Now()
	timer := time.NewTimer(waitNeeded)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		l.mu.Lock()
		l.stats.Cancelled++
		l.mu.Unlock()
		l.rec.IncCounter("ratelimit_cancelled", limiterLabels)
		return Acquisition{}, ctx.Err()
	case <-timer.C:
	}

	l.mu.Lock()
	l.refill(time.Now())
	if l.tokens < 1 {
		// Another caller won the refilling token, or the clock skewed.
		retry := l.waitFor(1)
		l.stats.Throttled++
		l.mu.Unlock()
		l.rec.IncCounter("ratelimit_throttled", limiterLabels)
		if retry < 0 {
			retry = 0
		}
		return Acquisition{}, &LimitError{RetryAfter: retry}
	}
	l.tokens--
	l.stats.Allowed++
	waited := time.Since(start)
	l.stats.TotalWait += waited
	l.mu.Unlock()

	l.rec.IncCounter("ratelimit_allowed", limiterLabels)
	l.rec.ObserveLatency("ratelimit.wait", waited, limiterLabels)
	return Acquisition{Waited: waited}, nil
}

// waitFor returns how long until n tokens are available, or -1 when the rate
// is zero and they never will be. Caller holds the mutex.
func (l *Limiter) waitFor(n float64) time.Duration {
	if l.tokens >= n {
		return 0
	}
	if l.rate <= 0 {
		return -1
	}
	return time.Duration((n - l.tokens) / l.rate * float64(time.Second))
}

// Stats returns a snapshot of the limiter counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Reset refills the bucket to capacity.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.burst
	l.last = time.Now()
}

// ResetStats zeroes the counters.
func (l *Limiter) ResetStats() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats = Stats{}
}
