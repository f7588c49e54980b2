// Package gateway is the HTTP surface for the mobile client: the chat
// session API (create, SSE chat, close, history) and the monitoring
// ingestion endpoints (log-summary, daily read-back, stats), plus health
// checks. It normalizes every domain error into a structured JSON body;
// upstream provider responses never pass through verbatim.
package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/cabinwatch/cabinwatch/internal/monitor"
	"github.com/cabinwatch/cabinwatch/internal/orchestrator"
)

// Config tunes the HTTP surface.
type Config struct {
	// AllowOrigins restricts CORS. Empty allows any origin, which is what
	// the Android client setup expects out of the box.
	AllowOrigins []string
}

// Server routes HTTP traffic onto the orchestrator and the monitoring
// store. It implements http.Handler; the caller owns the http.Server.
type Server struct {
	orch  *orchestrator.Orchestrator
	store monitor.Store
	cfg   Config

	echo  *echo.Echo
	start time.Time

	now func() time.Time // test hook
}

func NewServer(orch *orchestrator.Orchestrator, store monitor.Store, cfg Config) *Server {
	s := &Server{
		orch:  orch,
		store: store,
		cfg:   cfg,
		echo:  echo.New(),
		start: time.Now(),
		now:   time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.Use(s.recoverMiddleware, s.corsMiddleware, s.logMiddleware)

	e.GET("/", s.root)
	e.GET("/health", s.health)

	e.POST("/api/log-summary", s.logSummary)
	e.GET("/api/logs/today", s.todayLogs)
	e.GET("/api/stats", s.stats)

	g := e.Group("/api/v1")
	g.POST("/sessions", s.createSession)
	g.POST("/sessions/:id/chat", s.handleChat)
	g.DELETE("/sessions/:id", s.closeSession)
	g.GET("/sessions/:id/messages", s.listMessages)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// ── Middleware ───────────────────────────────────────────────────────────────

func (s *Server) recoverMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("handler panicked", "path", c.Request().URL.Path, "panic", r)
				err = c.JSON(http.StatusInternalServerError, errorBody{
					Error: errorInfo{Kind: "internal", Message: "internal server error"},
				})
			}
		}()
		return next(c)
	}
}

// corsMiddleware answers preflights and stamps the allow headers. With no
// configured origins everything is allowed; otherwise the request origin
// must match exactly.
func (s *Server) corsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		origin := "*"
		if len(s.cfg.AllowOrigins) > 0 {
			origin = ""
			reqOrigin := c.Request().Header.Get("Origin")
			for _, o := range s.cfg.AllowOrigins {
				if o == reqOrigin {
					origin = reqOrigin
					break
				}
			}
		}

		if origin != "" {
			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if c.Request().Method == http.MethodOptions {
			return c.NoContent(http.StatusNoContent)
		}
		return next(c)
	}
}

func (s *Server) logMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		start := time.Now()
		err := next(c)

		req := c.Request()
		if err != nil {
			slog.Warn("http request failed",
				"method", req.Method,
				"path", req.URL.Path,
				"duration", time.Since(start).Round(time.Millisecond),
				"err", err)
			return err
		}
		slog.Info("http request",
			"method", req.Method,
			"path", req.URL.Path,
			"duration", time.Since(start).Round(time.Millisecond))
		return nil
	}
}

// ── Health ───────────────────────────────────────────────────────────────────

func (s *Server) root(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"message":   "cabinwatch backend is running",
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339Nano),
	})
}

func (s *Server) health(c *echo.Context) error {
	total := s.orch.Usage().Total()
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": s.now().Format(time.RFC3339Nano),
		"uptime":    s.now().Sub(s.start).Round(time.Second).String(),
		"provider":  s.orch.Provider().Name(),
		"model":     s.orch.Provider().Model(),
		"sessions":  s.orch.Sessions().Len(),
		"usage": map[string]int{
			"requests":     total.Requests,
			"inputTokens":  total.InputTokens,
			"outputTokens": total.OutputTokens,
		},
	})
}
