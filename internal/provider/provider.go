// Package provider defines the unified interface and shared types for all
// generative-AI backends. Each adapter (openai.go, anthropic.go) converts the
// unified Request into its vendor's wire format and normalizes the vendor's
// streaming response into a unified Event sequence.
package provider

import "context"

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message in the conversation context sent upstream.
type Message struct {
	Role Role
	Text string
}

// ── Request types ────────────────────────────────────────────────────────────

// Request is the unified request format sent to a provider.
type Request struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output, forwarded downstream in order.
	EventTextDelta EventType = iota

	// EventDone: end of the response, includes token usage and finish reason.
	EventDone

	// EventError: the call failed; terminal like EventDone.
	EventError
)

// FinishReason records how the provider ended a response.
type FinishReason string

const (
	FinishCompleted FinishReason = "completed"
	FinishTruncated FinishReason = "truncated"
	FinishError     FinishReason = "error"
)

// Event is the unified streaming event emitted by a provider. A stream emits
// any number of text deltas followed by exactly one terminal event (EventDone
// or EventError), then the channel closes.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage        *Usage
	FinishReason FinishReason

	// EventError
	Err error
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all generative-AI backends.
// Implementors are responsible for:
// 1. Converting the unified Request into the vendor's API request format
// 2. Converting the vendor's streaming response into a unified Event sequence
// 3. Surfacing vendor failures as classifiable errors (see Wrap)
type Provider interface {
	// Generate initiates a streaming completion.
	// The returned channel emits Events until EventDone or EventError, then
	// closes. The caller must fully consume the channel to avoid goroutine
	// leaks; cancelling ctx aborts the upstream call.
	Generate(ctx context.Context, req *Request) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "gemini", "openai", "anthropic".
	Name() string

	// Model returns the model used when a request does not name one.
	Model() string
}
