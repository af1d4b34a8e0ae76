package backoff

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"bwtools/internal/services"
)

// ErrRateLimited marks errors caused by the remote side throttling requests.
var ErrRateLimited = errors.New("rate limited")

// failureThreshold is the number of consecutive retriable failures that trips
// the cool-down even without an explicit rate-limit response.
const failureThreshold = 3

// Policy describes capped exponential retry timing.
type Policy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
}

// Delay returns the wait before retry number attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.Initial <= 0 {
		return 0
	}
	delay := p.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		return p.Max
	}
	return delay
}

// Gate serializes the timing of remote calls across goroutines.
type Gate struct {
	mu           sync.Mutex
	minInterval  time.Duration
	cooldown     time.Duration
	next         time.Time
	blockedUntil time.Time
	failures     int
	now          func() time.Time
}

// NewGate returns a gate that spaces calls by minInterval and pauses all
// callers for cooldown after a rate-limit signal.
func NewGate(minInterval, cooldown time.Duration) *Gate {
	return &Gate{minInterval: minInterval, cooldown: cooldown, now: time.Now}
}

// Wait blocks until the caller may issue its next remote call. A nil Gate
// never blocks.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	g.mu.Lock()
	now := g.now()
	slot := now
	if g.next.After(slot) {
		slot = g.next
	}
	if g.blockedUntil.After(slot) {
		slot = g.blockedUntil
	}
	g.next = slot.Add(g.minInterval)
	g.mu.Unlock()
	return Sleep(ctx, slot.Sub(now))
}

// Observe feeds a call outcome back into the gate. Rate-limit errors start the
// cool-down immediately; repeated retriable failures start it too.
func (g *Gate) Observe(err error) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case err == nil:
		g.failures = 0
	case errors.Is(err, ErrRateLimited):
		g.failures = 0
		g.blockedUntil = g.now().Add(g.cooldown)
	case IsRetriable(err):
		g.failures++
		if g.failures >= failureThreshold {
			g.failures = 0
			g.blockedUntil = g.now().Add(g.cooldown)
		}
	}
}

// CoolingDown reports whether the gate is currently holding callers back.
func (g *Gate) CoolingDown() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockedUntil.After(g.now())
}

// Sleep blocks for the given duration, returning early if the context is
// cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetriable reports whether err represents a transient condition that
// warrants an automatic retry (rate limits, timeouts, connection errors,
// server-side failures).
func IsRetriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, services.ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, token := range []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"unexpected eof",
		"temporary failure",
		"awaiting headers",
	} {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}
