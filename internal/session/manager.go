package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Config bounds session histories and lifetimes.
type Config struct {
	// ContextBudgetTokens caps the estimated token size of the context
	// window built for a provider call.
	ContextBudgetTokens int

	// MaxMessageChars rejects longer message payloads. 0 = no cap.
	MaxMessageChars int

	// IdleTimeout evicts sessions with no activity. 0 disables sweeping.
	IdleTimeout time.Duration
}

// Manager owns all live sessions. Safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      Config

	now func() time.Time // test hook
}

// NewManager builds a Manager with cfg.
func NewManager(cfg Config) *Manager {
	if cfg.ContextBudgetTokens <= 0 {
		cfg.ContextBudgetTokens = 8000
	}
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Create registers a new session and returns it.
func (m *Manager) Create() *Session {
	now := m.now()
	s := &Session{
		ID:           shortuuid.New(),
		CreatedAt:    now,
		lastActivity: now,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("session created", "session", s.ID)
	return s
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Append validates text, appends it to the session history and returns the
// stored message with its sequence index and token estimate assigned.
func (m *Manager) Append(id string, role Role, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	if m.cfg.MaxMessageChars > 0 && len(text) > m.cfg.MaxMessageChars {
		return Message{}, fmt.Errorf("%w: text exceeds %d chars", ErrInvalidMessage, m.cfg.MaxMessageChars)
	}

	s, err := m.get(id)
	if err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msg := Message{
		Seq:       len(s.messages),
		Role:      role,
		Text:      text,
		Tokens:    EstimateTokens(text),
		CreatedAt: m.now(),
	}
	s.messages = append(s.messages, msg)
	s.lastActivity = msg.CreatedAt
	return msg, nil
}

// History returns a snapshot copy of the full message history.
func (m *Manager) History(id string) ([]Message, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

// Close releases the session and its history. Closing an unknown or already
// closed session is a no-op, so repeated closes observe the same outcome.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	_, existed := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if existed {
		slog.Info("session closed", "session", id)
	}
}

// Acquire takes the session's single-flight slot, failing fast with ErrBusy
// when a request is already in flight. The returned release func is
// idempotent.
func (m *Manager) Acquire(id string) (func(), error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}
	s.inFlight = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			s.inFlight = false
			s.lastActivity = m.now()
			s.mu.Unlock()
		})
	}
	return release, nil
}

// Sweep evicts sessions idle longer than the configured timeout and returns
// the evicted IDs. Sessions with a request in flight are never evicted.
func (m *Manager) Sweep(now time.Time) []string {
	if m.cfg.IdleTimeout <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []string
	for id, s := range m.sessions {
		s.mu.Lock()
		idle := !s.inFlight && now.Sub(s.lastActivity) > m.cfg.IdleTimeout
		s.mu.Unlock()
		if idle {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}

	if len(evicted) > 0 {
		slog.Info("swept idle sessions", "count", len(evicted))
	}
	return evicted
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
