package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/cabinwatch/cabinwatch/internal/orchestrator"
	"github.com/cabinwatch/cabinwatch/internal/session"
)

// ── Request / Response types ─────────────────────────────────────────────────

type chatRequest struct {
	Content string `json:"content"`
}

type sessionResponse struct {
	SessionID string `json:"sessionId"`
	CreatedTs int64  `json:"createdTs"`
}

type messageResponse struct {
	Seq       int    `json:"seq"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedTs int64  `json:"createdTs"`
}

type usagePayload struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

type chatReply struct {
	Reply        string       `json:"reply"`
	Usage        usagePayload `json:"usage"`
	FinishReason string       `json:"finishReason"`
}

// ── Session lifecycle ────────────────────────────────────────────────────────

func (s *Server) createSession(c *echo.Context) error {
	sess := s.orch.Sessions().Create()
	return c.JSON(http.StatusCreated, sessionResponse{
		SessionID: sess.ID,
		CreatedTs: sess.CreatedAt.Unix(),
	})
}

// closeSession tears the session down. Closing twice (or closing an unknown
// ID) reports the same ok result.
func (s *Server) closeSession(c *echo.Context) error {
	s.orch.CloseSession(c.Param("id"))
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) listMessages(c *echo.Context) error {
	history, err := s.orch.Sessions().History(c.Param("id"))
	if err != nil {
		return s.errorJSON(c, err)
	}

	resp := make([]messageResponse, 0, len(history))
	for _, m := range history {
		resp = append(resp, messageResponse{
			Seq:       m.Seq,
			Role:      string(m.Role),
			Content:   m.Text,
			CreatedTs: m.CreatedAt.Unix(),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// ── Chat (SSE) ───────────────────────────────────────────────────────────────

// handleChat submits one user message. The default response is an SSE stream
// of chunk events closed by a done or error event; ?stream=false buffers the
// whole reply into a single JSON body instead.
func (s *Server) handleChat(c *echo.Context) error {
	id := c.Param("id")

	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return s.errorJSON(c, fmt.Errorf("%w: malformed body", session.ErrInvalidMessage))
	}

	ctx := c.Request().Context()

	if c.Request().URL.Query().Get("stream") == "false" {
		reply, err := s.orch.HandleBuffered(ctx, id, req.Content)
		if err != nil {
			return s.errorJSON(c, err)
		}
		return c.JSON(http.StatusOK, chatReply{
			Reply:        reply.Text,
			Usage:        usagePayload{reply.Usage.InputTokens, reply.Usage.OutputTokens},
			FinishReason: string(reply.FinishReason),
		})
	}

	updates, err := s.orch.Handle(ctx, id, req.Content)
	if err != nil {
		return s.errorJSON(c, err)
	}

	rw := c.Response()
	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)

	emit := func(payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(rw, "data: %s\n\n", data)
		if f, ok := rw.(http.Flusher); ok {
			f.Flush()
		}
	}

	for u := range updates {
		switch u.Type {
		case orchestrator.UpdateChunk:
			emit(map[string]string{"type": "chunk", "content": u.Chunk})
		case orchestrator.UpdateDone:
			emit(map[string]any{
				"type":         "done",
				"usage":        usagePayload{u.Usage.InputTokens, u.Usage.OutputTokens},
				"finishReason": string(u.FinishReason),
			})
		case orchestrator.UpdateError:
			_, kind, message := classify(u.Err)
			emit(map[string]string{"type": "error", "error": kind, "message": message})
		}
	}
	return nil
}
