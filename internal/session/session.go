// Package session manages conversation sessions: ordered append-only message
// histories, token-budgeted context windows, single-flight locking and idle
// eviction. All mutation goes through the Manager.
package session

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrNotFound means the session ID is unknown (never created, closed,
	// or evicted).
	ErrNotFound = errors.New("session not found")

	// ErrInvalidMessage means the message payload failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrBusy means a request is already in flight on the session.
	ErrBusy = errors.New("session busy")
)

// Role of a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session history. Immutable once appended.
type Message struct {
	// Seq is the message's position in the history, assigned on append.
	Seq       int
	Role      Role
	Text      string
	Tokens    int
	CreatedAt time.Time
}

// Session is a single conversation. The exported fields are fixed at
// creation; everything mutable is guarded by mu and owned by the Manager.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	messages     []Message
	lastActivity time.Time
	inFlight     bool
}

// EstimateTokens approximates the token cost of text. The heuristic is
// ~4 characters per token, rounded up.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
