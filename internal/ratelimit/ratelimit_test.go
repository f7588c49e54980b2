package ratelimit

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func frozen(l *Limiter, at time.Time) func(time.Time) {
	l.now = func() time.Time { return at }
	return func(t time.Time) { l.now = func() time.Time { return t } }
}

func TestAllow_SessionBurstThenLimited(t *testing.T) {
	l := New(Config{SessionPerMinute: 60, SessionBurst: 2})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	frozen(l, now)

	if err := l.Allow("s1"); err != nil {
		t.Fatalf("first call should pass, got %v", err)
	}
	if err := l.Allow("s1"); err != nil {
		t.Fatalf("second call (burst) should pass, got %v", err)
	}
	if err := l.Allow("s1"); !errors.Is(err, ErrLimited) {
		t.Fatalf("third call should be limited, got %v", err)
	}
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l := New(Config{SessionPerMinute: 60, SessionBurst: 1}) // 1 token/s
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	advance := frozen(l, now)

	if err := l.Allow("s1"); err != nil {
		t.Fatalf("first call should pass, got %v", err)
	}
	if err := l.Allow("s1"); !errors.Is(err, ErrLimited) {
		t.Fatalf("immediate second call should be limited, got %v", err)
	}

	advance(now.Add(1100 * time.Millisecond))
	if err := l.Allow("s1"); err != nil {
		t.Errorf("call after refill interval should pass, got %v", err)
	}
}

func TestAllow_SessionsIndependent(t *testing.T) {
	l := New(Config{SessionPerMinute: 60, SessionBurst: 1})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	frozen(l, now)

	if err := l.Allow("s1"); err != nil {
		t.Fatalf("s1 should pass, got %v", err)
	}
	if err := l.Allow("s2"); err != nil {
		t.Errorf("s2 has its own bucket, got %v", err)
	}
	if err := l.Allow("s1"); !errors.Is(err, ErrLimited) {
		t.Errorf("s1 should be limited, got %v", err)
	}
}

func TestAllow_GlobalCap(t *testing.T) {
	l := New(Config{GlobalPerMinute: 60, GlobalBurst: 2})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	frozen(l, now)

	if err := l.Allow("a"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if err := l.Allow("b"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	err := l.Allow("c")
	if !errors.Is(err, ErrLimited) {
		t.Fatalf("expected global limit across sessions, got %v", err)
	}
	if !strings.Contains(err.Error(), "global") {
		t.Errorf("expected global capacity in error, got %q", err)
	}
}

func TestAllow_GlobalMissReturnsSessionToken(t *testing.T) {
	l := New(Config{SessionPerMinute: 60, SessionBurst: 2, GlobalPerMinute: 60, GlobalBurst: 1})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	advance := frozen(l, now)

	if err := l.Allow("s1"); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	// Global bucket is now empty; the session token spent on this attempt
	// must be returned.
	if err := l.Allow("s1"); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected global limit, got %v", err)
	}

	// With the global bucket refilled, the session still has its token.
	advance(now.Add(1100 * time.Millisecond))
	if err := l.Allow("s1"); err != nil {
		t.Errorf("expected session token to have been returned, got %v", err)
	}
}

func TestForget_ResetsSessionBucket(t *testing.T) {
	l := New(Config{SessionPerMinute: 60, SessionBurst: 1})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	frozen(l, now)

	l.Allow("s1")
	if err := l.Allow("s1"); !errors.Is(err, ErrLimited) {
		t.Fatalf("expected limited, got %v", err)
	}

	l.Forget("s1")
	if err := l.Allow("s1"); err != nil {
		t.Errorf("expected fresh bucket after Forget, got %v", err)
	}
}

func TestAllow_DisabledBucketsPass(t *testing.T) {
	l := New(Config{})
	for range 100 {
		if err := l.Allow("s1"); err != nil {
			t.Fatalf("disabled limiter should always pass, got %v", err)
		}
	}
}
