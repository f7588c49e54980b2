package orchestrator

import (
	"fmt"
	"sync"

	"github.com/cabinwatch/cabinwatch/internal/provider"
)

// Totals is an accumulated token count.
type Totals struct {
	Requests     int
	InputTokens  int
	OutputTokens int
}

// UsageTracker accumulates token usage per session and overall. Counters
// survive session eviction; Forget only drops the per-session entry.
type UsageTracker struct {
	mu       sync.Mutex
	sessions map[string]Totals
	total    Totals
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{sessions: make(map[string]Totals)}
}

// Record adds one completed request's usage to the session and the total.
func (t *UsageTracker) Record(sessionID string, u provider.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sessions[sessionID]
	s.Requests++
	s.InputTokens += u.InputTokens
	s.OutputTokens += u.OutputTokens
	t.sessions[sessionID] = s

	t.total.Requests++
	t.total.InputTokens += u.InputTokens
	t.total.OutputTokens += u.OutputTokens
}

// Session returns the accumulated usage for one session.
func (t *UsageTracker) Session(id string) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessions[id]
}

// Total returns the accumulated usage across all sessions.
func (t *UsageTracker) Total() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Forget drops the per-session entry. The overall total keeps counting.
func (t *UsageTracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

// Summary returns a short human-readable usage report.
func (t *UsageTracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.total.Requests == 0 {
		return "No usage recorded."
	}
	return fmt.Sprintf("%d requests, %d input + %d output = %d tokens",
		t.total.Requests, t.total.InputTokens, t.total.OutputTokens,
		t.total.InputTokens+t.total.OutputTokens)
}
