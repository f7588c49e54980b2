// Package credential holds the provider API credential.
//
// The credential is resolved once at startup and immutable afterwards. It is
// handed only to the provider adapter; the client-facing layers never see it,
// and its String form is redacted so it cannot leak through logs.
package credential

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrMissingKey means no API key was configured for the active provider.
// The process refuses to start without one.
var ErrMissingKey = errors.New("missing provider API key")

// Credential is an immutable provider API key with an optional expiry.
type Credential struct {
	key    string
	expiry time.Time
}

// New builds a credential from a non-empty key. A zero expiry means the key
// has no known expiry.
func New(key string, expiry time.Time) (Credential, error) {
	if strings.TrimSpace(key) == "" {
		return Credential{}, ErrMissingKey
	}
	return Credential{key: key, expiry: expiry}, nil
}

// Parse builds a credential from a key and an optional RFC 3339 expiry string.
func Parse(key, expiry string) (Credential, error) {
	if expiry == "" {
		return New(key, time.Time{})
	}
	ts, err := time.Parse(time.RFC3339, expiry)
	if err != nil {
		return Credential{}, fmt.Errorf("invalid credential expiry %q: %w", expiry, err)
	}
	return New(key, ts)
}

// Key returns the raw API key. Only the provider adapter should call this.
func (c Credential) Key() string {
	return c.key
}

// Expired reports whether the credential has a known expiry in the past.
func (c Credential) Expired(now time.Time) bool {
	return !c.expiry.IsZero() && c.expiry.Before(now)
}

// String returns a redacted form safe for logs: at most the last 4
// characters of the key are shown.
func (c Credential) String() string {
	if c.key == "" {
		return "credential(empty)"
	}
	if len(c.key) <= 8 {
		return "credential(****)"
	}
	return fmt.Sprintf("credential(****%s)", c.key[len(c.key)-4:])
}

// LogValue implements slog.LogValuer, redacting the key in structured logs.
func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}
