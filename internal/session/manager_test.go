package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCreate_UniqueIDs(t *testing.T) {
	m := NewManager(Config{})
	a := m.Create()
	b := m.Create()
	if a.ID == "" || b.ID == "" {
		t.Fatal("expected non-empty session IDs")
	}
	if a.ID == b.ID {
		t.Errorf("expected unique IDs, both %q", a.ID)
	}
	if m.Len() != 2 {
		t.Errorf("expected 2 live sessions, got %d", m.Len())
	}
}

func TestAppend_AssignsSeqAndTokens(t *testing.T) {
	m := NewManager(Config{})
	s := m.Create()

	first, err := m.Append(s.ID, RoleUser, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := m.Append(s.ID, RoleAssistant, "hi there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.Seq != 0 || second.Seq != 1 {
		t.Errorf("expected seqs 0,1, got %d,%d", first.Seq, second.Seq)
	}
	if first.Tokens != EstimateTokens("hello") {
		t.Errorf("expected token estimate %d, got %d", EstimateTokens("hello"), first.Tokens)
	}
	if second.Role != RoleAssistant {
		t.Errorf("expected assistant role, got %q", second.Role)
	}

	hist, err := m.History(s.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist))
	}
	for i, msg := range hist {
		if msg.Seq != i {
			t.Errorf("history out of order: index %d has seq %d", i, msg.Seq)
		}
	}
}

func TestAppend_Invalid(t *testing.T) {
	m := NewManager(Config{MaxMessageChars: 10})
	s := m.Create()

	if _, err := m.Append(s.ID, RoleUser, ""); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage for empty text, got %v", err)
	}
	if _, err := m.Append(s.ID, RoleUser, "   \t\n"); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage for blank text, got %v", err)
	}
	if _, err := m.Append(s.ID, RoleUser, strings.Repeat("x", 11)); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage for oversized text, got %v", err)
	}

	// Nothing was committed.
	hist, _ := m.History(s.ID)
	if len(hist) != 0 {
		t.Errorf("expected empty history after rejected appends, got %d", len(hist))
	}
}

func TestAppend_UnknownSession(t *testing.T) {
	m := NewManager(Config{})
	if _, err := m.Append("missing", RoleUser, "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHistory_ReturnsCopy(t *testing.T) {
	m := NewManager(Config{})
	s := m.Create()
	m.Append(s.ID, RoleUser, "original")

	hist, _ := m.History(s.ID)
	hist[0].Text = "mutated"

	again, _ := m.History(s.ID)
	if again[0].Text != "original" {
		t.Error("History must return a snapshot copy")
	}
}

func TestClose_Idempotent(t *testing.T) {
	m := NewManager(Config{})
	s := m.Create()

	m.Close(s.ID)
	if _, err := m.History(s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after close, got %v", err)
	}

	// Second close is a no-op, not a panic or error.
	m.Close(s.ID)
	m.Close("never-existed")
	if m.Len() != 0 {
		t.Errorf("expected 0 sessions, got %d", m.Len())
	}
}

func TestAcquire_SingleFlight(t *testing.T) {
	m := NewManager(Config{})
	s := m.Create()

	release, err := m.Acquire(s.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Acquire(s.ID); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy while in flight, got %v", err)
	}

	release()
	release() // idempotent

	release2, err := m.Acquire(s.ID)
	if err != nil {
		t.Errorf("expected acquire to succeed after release, got %v", err)
	}
	release2()
}

func TestAcquire_ConcurrentOneWinner(t *testing.T) {
	m := NewManager(Config{})
	s := m.Create()

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, busy int
	var releases []func()

	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := m.Acquire(s.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				releases = append(releases, release)
				return
			}
			if errors.Is(err, ErrBusy) {
				busy++
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winner, got %d", wins)
	}
	if busy != n-1 {
		t.Errorf("expected %d ErrBusy, got %d", n-1, busy)
	}
	for _, r := range releases {
		r()
	}
}

func TestAcquire_UnknownSession(t *testing.T) {
	m := NewManager(Config{})
	if _, err := m.Acquire("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSweep_EvictsIdle(t *testing.T) {
	m := NewManager(Config{IdleTimeout: time.Minute})
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	idle := m.Create()
	fresh := m.Create()
	inFlight := m.Create()

	// fresh gets activity just before the sweep; inFlight holds its slot.
	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := m.Append(fresh.ID, RoleUser, "ping"); err != nil {
		t.Fatalf("append: %v", err)
	}
	release, err := m.Acquire(inFlight.ID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	evicted := m.Sweep(base.Add(2*time.Minute + time.Second))

	if len(evicted) != 1 || evicted[0] != idle.ID {
		t.Errorf("expected only the idle session evicted, got %v", evicted)
	}
	if _, err := m.History(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Error("idle session should be gone")
	}
	if _, err := m.History(fresh.ID); err != nil {
		t.Errorf("fresh session should survive, got %v", err)
	}
	if _, err := m.History(inFlight.ID); err != nil {
		t.Errorf("in-flight session should survive, got %v", err)
	}
}

func TestSweep_DisabledWithoutTimeout(t *testing.T) {
	m := NewManager(Config{})
	m.Create()
	if evicted := m.Sweep(time.Now().Add(24 * time.Hour)); evicted != nil {
		t.Errorf("expected no eviction with zero idle timeout, got %v", evicted)
	}
	if m.Len() != 1 {
		t.Errorf("expected session to survive, got %d live", m.Len())
	}
}
