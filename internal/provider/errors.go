package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a provider failure for retry and HTTP mapping decisions.
type Kind string

const (
	// KindTransient: rate limits, overload, 5xx, network. Worth retrying.
	KindTransient Kind = "transient"

	// KindPermanent: failures that will not succeed on retry.
	KindPermanent Kind = "permanent"

	// KindInvalidRequest: the provider rejected the request itself.
	KindInvalidRequest Kind = "invalid_request"

	// KindAuth: the provider rejected the credential.
	KindAuth Kind = "auth"
)

// Error is a classified provider failure. Message is safe to show to
// clients; the wrapped cause (raw vendor error) is for logs only.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether a retry could plausibly succeed.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

// Wrap classifies err as a provider *Error. Errors that already carry a
// classification pass through unchanged.
func Wrap(err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	kind := classify(err)
	return &Error{Kind: kind, Message: kindMessage(kind), cause: err}
}

// classify maps vendor/transport errors onto a Kind by message inspection.
// The SDK error types differ per vendor, but status codes reliably show up
// in the message text.
func classify(err error) Kind {
	if err == nil {
		return KindPermanent
	}
	// Cancellation is not a provider failure and is never retryable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindPermanent
	}
	msg := strings.ToLower(err.Error())

	// Rate limit (429) and Anthropic overloaded (529)
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return KindTransient
	}
	if strings.Contains(msg, "529") || strings.Contains(msg, "overloaded") {
		return KindTransient
	}
	// Server errors (500, 502, 503, 504)
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return KindTransient
		}
	}
	// Network errors
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "temporary failure") {
		return KindTransient
	}
	// Credential rejected
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication") ||
		strings.Contains(msg, "unauthorized") {
		return KindAuth
	}
	// Request rejected
	if strings.Contains(msg, "400") || strings.Contains(msg, "invalid request") ||
		strings.Contains(msg, "invalid_request") {
		return KindInvalidRequest
	}
	return KindPermanent
}

// kindMessage returns the client-facing message for a kind. Raw vendor
// payloads never appear here.
func kindMessage(k Kind) string {
	switch k {
	case KindTransient:
		return "upstream temporarily unavailable"
	case KindAuth:
		return "upstream rejected the credential"
	case KindInvalidRequest:
		return "upstream rejected the request"
	default:
		return "upstream request failed"
	}
}
