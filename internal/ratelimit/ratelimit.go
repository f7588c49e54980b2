// Package ratelimit enforces token-bucket admission for chat submissions:
// one bucket per session plus one process-wide bucket. Callers fail fast;
// nothing queues waiting for a token.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrLimited means a bucket had no token available.
var ErrLimited = errors.New("rate limited")

// Config holds refill rates (tokens per minute) and burst capacities.
// A zero rate disables that bucket.
type Config struct {
	SessionPerMinute int
	SessionBurst     int
	GlobalPerMinute  int
	GlobalBurst      int
}

// Limiter admits chat submissions. Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	sessions map[string]*rate.Limiter
	global   *rate.Limiter
	cfg      Config

	now func() time.Time // test hook
}

// New builds a Limiter with cfg.
func New(cfg Config) *Limiter {
	l := &Limiter{
		sessions: make(map[string]*rate.Limiter),
		cfg:      cfg,
		now:      time.Now,
	}
	if cfg.GlobalPerMinute > 0 {
		l.global = rate.NewLimiter(perMinute(cfg.GlobalPerMinute), max(cfg.GlobalBurst, 1))
	}
	return l
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// Allow consumes one token from the session bucket and one from the global
// bucket. If either has none available it returns ErrLimited immediately;
// a session token taken before a global miss is returned to its bucket.
func (l *Limiter) Allow(sessionID string) error {
	now := l.now()

	var res *rate.Reservation
	if sl := l.sessionLimiter(sessionID); sl != nil {
		res = sl.ReserveN(now, 1)
		if !res.OK() || res.DelayFrom(now) > 0 {
			res.CancelAt(now)
			return fmt.Errorf("%w: session %s", ErrLimited, sessionID)
		}
	}

	if l.global != nil && !l.global.AllowN(now, 1) {
		if res != nil {
			res.CancelAt(now)
		}
		return fmt.Errorf("%w: global capacity", ErrLimited)
	}
	return nil
}

// Forget drops the bucket state for a closed session.
func (l *Limiter) Forget(sessionID string) {
	l.mu.Lock()
	delete(l.sessions, sessionID)
	l.mu.Unlock()
}

// sessionLimiter returns the session's bucket, creating it on first use.
// Returns nil when per-session limiting is disabled.
func (l *Limiter) sessionLimiter(id string) *rate.Limiter {
	if l.cfg.SessionPerMinute <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.sessions[id]
	if !ok {
		sl = rate.NewLimiter(perMinute(l.cfg.SessionPerMinute), max(l.cfg.SessionBurst, 1))
		l.sessions[id] = sl
	}
	return sl
}
