package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/cabinwatch/cabinwatch/internal/orchestrator"
	"github.com/cabinwatch/cabinwatch/internal/provider"
	"github.com/cabinwatch/cabinwatch/internal/ratelimit"
	"github.com/cabinwatch/cabinwatch/internal/session"
)

type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// statusClientClosed is nginx's non-standard code for a client that went
// away mid-request.
const statusClientClosed = 499

// classify maps a domain error to its HTTP status, a stable kind string and
// a client-safe message. Provider errors surface their classified kind and
// sanitized message, never the upstream response body.
func classify(err error) (status int, kind, message string) {
	var pe *provider.Error
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found", "session not found"
	case errors.Is(err, session.ErrInvalidMessage):
		return http.StatusBadRequest, "invalid_message", "message is missing, blank, or too large"
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, "session_busy", "a request is already in flight for this session"
	case errors.Is(err, ratelimit.ErrLimited):
		return http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry later"
	case errors.Is(err, orchestrator.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout", "the model took too long to respond"
	case errors.Is(err, context.Canceled):
		return statusClientClosed, "canceled", "request canceled"
	case errors.As(err, &pe):
		return http.StatusBadGateway, "provider_" + string(pe.Kind), pe.Message
	default:
		return http.StatusInternalServerError, "internal", "internal server error"
	}
}

// errorJSON writes the structured error body for err and logs the full
// cause server-side.
func (s *Server) errorJSON(c *echo.Context, err error) error {
	status, kind, message := classify(err)
	slog.Warn("request rejected",
		"path", c.Request().URL.Path,
		"status", status,
		"kind", kind,
		"err", err)
	return c.JSON(status, errorBody{Error: errorInfo{Kind: kind, Message: message}})
}
