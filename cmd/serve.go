package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cabinwatch/cabinwatch/internal/gateway"
	"github.com/cabinwatch/cabinwatch/internal/monitor"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP backend",
		Long: "Starts the HTTP server the in-car client talks to: monitoring\n" +
			"summary ingestion plus streaming chat sessions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveWithPort(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}

func runServe() error { return serveWithPort(0) }

func serveWithPort(port int) error {
	cfg := initConfig()
	if port > 0 {
		cfg.Server.Port = port
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	store, err := monitor.Open(cfg.Monitor.Store, cfg.Monitor.LogsDir, cfg.Monitor.SQLitePath)
	if err != nil {
		return fmt.Errorf("open monitor store: %w", err)
	}
	defer store.Close()

	srv := gateway.NewServer(orch, store, gateway.Config{
		AllowOrigins: cfg.Server.AllowedOrigins,
	})

	// No WriteTimeout: it would sever long-lived SSE streams.
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("cabinwatch listening",
		"addr", httpServer.Addr,
		"provider", orch.Provider().Name(),
		"model", orch.Provider().Model(),
		"monitor_store", cfg.Monitor.Store,
		"version", appVersion,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
		defer cancel()
		return httpServer.Shutdown(shutCtx)
	})

	return g.Wait()
}
