package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/cabinwatch/cabinwatch/internal/monitor"
	"github.com/cabinwatch/cabinwatch/internal/session"
)

type logSummaryRequest struct {
	SessionID string           `json:"session_id"`
	Summary   string           `json:"summary"`
	Metadata  monitor.Metadata `json:"metadata"`
	Timestamp string           `json:"timestamp"`
}

type logSummaryResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	LogID     string `json:"log_id"`
	Timestamp string `json:"timestamp"`
}

// logSummary ingests one monitoring summary from the client's on-device
// detection run.
func (s *Server) logSummary(c *echo.Context) error {
	var req logSummaryRequest
	if err := c.Bind(&req); err != nil {
		return s.errorJSON(c, fmt.Errorf("%w: malformed body", session.ErrInvalidMessage))
	}
	if strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Summary) == "" {
		return s.errorJSON(c, fmt.Errorf("%w: session_id and summary are required", session.ErrInvalidMessage))
	}

	r := monitor.NewReport(req.SessionID, req.Summary, req.Metadata, req.Timestamp, s.now())
	if err := s.store.Append(&r); err != nil {
		return s.errorJSON(c, fmt.Errorf("store report: %w", err))
	}

	slog.Info("monitoring summary logged",
		"session", req.SessionID,
		"log", r.LogID,
		"frames", req.Metadata.FramesProcessed,
		"people", req.Metadata.PeopleDetected)

	return c.JSON(http.StatusOK, logSummaryResponse{
		Status:    "success",
		Message:   "Summary logged successfully",
		LogID:     r.LogID,
		Timestamp: r.Timestamp,
	})
}

func (s *Server) todayLogs(c *echo.Context) error {
	day := monitor.Day(s.now())
	reports, err := s.store.ListDay(day)
	if err != nil {
		return s.errorJSON(c, err)
	}
	if reports == nil {
		reports = []monitor.Report{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"logs":  reports,
		"count": len(reports),
		"day":   day,
	})
}

func (s *Server) stats(c *echo.Context) error {
	day := monitor.Day(s.now())
	st, err := s.store.Stats(day)
	if err != nil {
		return s.errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"stats": st,
		"day":   day,
	})
}
