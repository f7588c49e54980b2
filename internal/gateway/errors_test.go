package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/cabinwatch/cabinwatch/internal/orchestrator"
	"github.com/cabinwatch/cabinwatch/internal/provider"
	"github.com/cabinwatch/cabinwatch/internal/ratelimit"
	"github.com/cabinwatch/cabinwatch/internal/session"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		kind    string
		message string
	}{
		{
			"not found", session.ErrNotFound,
			http.StatusNotFound, "session_not_found", "session not found",
		},
		{
			"wrapped not found", fmt.Errorf("lookup: %w", session.ErrNotFound),
			http.StatusNotFound, "session_not_found", "session not found",
		},
		{
			"invalid message", session.ErrInvalidMessage,
			http.StatusBadRequest, "invalid_message", "message is missing, blank, or too large",
		},
		{
			"busy", session.ErrBusy,
			http.StatusConflict, "session_busy", "a request is already in flight for this session",
		},
		{
			"rate limited", ratelimit.ErrLimited,
			http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry later",
		},
		{
			"timeout", orchestrator.ErrTimeout,
			http.StatusGatewayTimeout, "timeout", "the model took too long to respond",
		},
		{
			"wrapped timeout", fmt.Errorf("%w after 5s", orchestrator.ErrTimeout),
			http.StatusGatewayTimeout, "timeout", "the model took too long to respond",
		},
		{
			"canceled", context.Canceled,
			statusClientClosed, "canceled", "request canceled",
		},
		{
			"provider transient", &provider.Error{Kind: provider.KindTransient, Message: "the provider is temporarily unavailable"},
			http.StatusBadGateway, "provider_transient", "the provider is temporarily unavailable",
		},
		{
			"provider auth", &provider.Error{Kind: provider.KindAuth, Message: "the provider rejected the configured credentials"},
			http.StatusBadGateway, "provider_auth", "the provider rejected the configured credentials",
		},
		{
			"unknown", errors.New("disk on fire"),
			http.StatusInternalServerError, "internal", "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind, message := classify(tt.err)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if kind != tt.kind {
				t.Errorf("kind = %q, want %q", kind, tt.kind)
			}
			if message != tt.message {
				t.Errorf("message = %q, want %q", message, tt.message)
			}
		})
	}
}
