package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cabinwatch/cabinwatch/internal/config"
	"github.com/cabinwatch/cabinwatch/internal/credential"
	"github.com/cabinwatch/cabinwatch/internal/orchestrator"
	"github.com/cabinwatch/cabinwatch/internal/provider"
	"github.com/cabinwatch/cabinwatch/internal/ratelimit"
	"github.com/cabinwatch/cabinwatch/internal/session"
)

var (
	cfgFile      string
	providerFlag string
	modelFlag    string

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "cabinwatch",
		Short: "In-car monitoring backend with AI chat sessions",
		Long: "cabinwatch ingests monitoring summaries from the in-car Android client\n" +
			"and orchestrates its chat sessions against a generative-AI provider.",
		// Running cabinwatch with no subcommand starts the server.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/cabinwatch/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override provider")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "override model")

	// Subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration with CLI flag overrides applied and sets
// up the process-wide logger.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}

	setupLogging(cfg.Log)
	return cfg
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// buildProvider creates the configured provider adapter wrapped in the
// retry decorator. The API key never leaves the credential.
func buildProvider(cfg *config.Config) (provider.Provider, error) {
	name := cfg.Provider
	pc := cfg.GetProviderConfig(name)

	cred, err := credential.Parse(pc.APIKey, pc.APIKeyExpiry)
	if errors.Is(err, credential.ErrMissingKey) {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: cabinwatch init",
			name, name,
		)
	}
	if err != nil {
		return nil, err
	}
	if cred.Expired(time.Now()) {
		return nil, fmt.Errorf("credential for provider %q has expired; rotate providers.%s.api_key", name, name)
	}

	model := cfg.ResolveModel()

	var p provider.Provider
	switch name {
	case "anthropic":
		p = provider.NewAnthropic(cred, model)
	default:
		// All other providers use the OpenAI-compatible API.
		baseURL := cfg.ResolveBaseURL()
		if baseURL == "" {
			return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
		}
		p = provider.NewOpenAI(cred, baseURL, model)
	}

	return provider.NewRetrier(p, provider.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay(),
		MaxDelay:   cfg.Retry.MaxDelay(),
	}), nil
}

// buildOrchestrator wires the session manager, rate limiter and provider
// adapter into a ready orchestrator.
func buildOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, error) {
	p, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(session.Config{
		ContextBudgetTokens: cfg.Session.ContextBudgetTokens,
		MaxMessageChars:     cfg.Session.MaxMessageChars,
		IdleTimeout:         cfg.Session.IdleTimeout(),
	})
	limiter := ratelimit.New(ratelimit.Config{
		SessionPerMinute: cfg.RateLimit.SessionPerMinute,
		SessionBurst:     cfg.RateLimit.SessionBurst,
		GlobalPerMinute:  cfg.RateLimit.GlobalPerMinute,
		GlobalBurst:      cfg.RateLimit.GlobalBurst,
	})

	return orchestrator.New(sessions, limiter, p, orchestrator.Config{
		Model:          cfg.ResolveModel(),
		SystemPrompt:   cfg.Generation.SystemPrompt,
		MaxTokens:      cfg.Generation.MaxTokens,
		Temperature:    cfg.Generation.Temperature,
		RequestTimeout: cfg.Server.RequestTimeout(),
		SweepInterval:  cfg.Session.SweepInterval(),
	}), nil
}
