// Package orchestrator coordinates a single chat submission end to end:
// session locking, history append, context window assembly, rate limiting,
// the provider call, and the commit of the assistant reply. The assistant
// reply is committed only when the provider stream finishes cleanly, so a
// failed or cancelled call never leaves a partial reply in the history.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cabinwatch/cabinwatch/internal/provider"
	"github.com/cabinwatch/cabinwatch/internal/ratelimit"
	"github.com/cabinwatch/cabinwatch/internal/session"
)

// ErrTimeout means the per-request deadline elapsed before the provider
// finished responding.
var ErrTimeout = errors.New("request timed out")

// ── Updates ──────────────────────────────────────────────────────────────────

type UpdateType int

const (
	// UpdateChunk: an incremental piece of the assistant reply.
	UpdateChunk UpdateType = iota

	// UpdateDone: generation finished and the reply was committed.
	UpdateDone

	// UpdateError: generation failed; no reply was committed.
	UpdateError
)

// Update is the tagged progress event emitted by Handle. A stream carries any
// number of chunks followed by exactly one terminal update (UpdateDone or
// UpdateError), then the channel closes.
type Update struct {
	Type UpdateType

	// UpdateChunk
	Chunk string

	// UpdateDone
	Usage        provider.Usage
	FinishReason provider.FinishReason

	// UpdateError
	Err error
}

// Reply is the fully buffered result of one submission, for callers that do
// not want to stream.
type Reply struct {
	Text         string
	Usage        provider.Usage
	FinishReason provider.FinishReason
}

// ── Orchestrator ─────────────────────────────────────────────────────────────

// Config tunes request handling.
type Config struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	// SystemPrompt is prepended to every upstream request.
	SystemPrompt string

	MaxTokens   int
	Temperature float64

	// RequestTimeout bounds a single provider call, retries included.
	// Zero means no deadline beyond the caller's context.
	RequestTimeout time.Duration

	// SweepInterval is how often Run evicts idle sessions. Zero disables
	// sweeping.
	SweepInterval time.Duration
}

// Orchestrator wires the session manager, rate limiter and provider adapter
// behind a single Handle operation.
type Orchestrator struct {
	sessions *session.Manager
	limiter  *ratelimit.Limiter
	provider provider.Provider
	usage    *UsageTracker
	cfg      Config
}

func New(sessions *session.Manager, limiter *ratelimit.Limiter, p provider.Provider, cfg Config) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		limiter:  limiter,
		provider: p,
		usage:    NewUsageTracker(),
		cfg:      cfg,
	}
}

// Sessions exposes the session manager for create/history endpoints.
func (o *Orchestrator) Sessions() *session.Manager { return o.sessions }

// Provider exposes the configured adapter (name and model reporting).
func (o *Orchestrator) Provider() provider.Provider { return o.provider }

// Usage exposes the accumulated token counters.
func (o *Orchestrator) Usage() *UsageTracker { return o.usage }

// Handle runs one chat submission against a session.
//
// Failures that precede the provider call (unknown session, a request already
// in flight, an invalid message, a rate limit miss) are reported
// synchronously with a nil channel. Once a channel is returned, updates
// stream until a terminal UpdateDone or UpdateError and the channel closes.
//
// The user message is committed to the history before the provider is
// invoked and stays committed regardless of the outcome. The assistant reply
// is committed only after a clean finish.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, text string) (<-chan Update, error) {
	release, err := o.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}

	if _, err := o.sessions.Append(sessionID, session.RoleUser, text); err != nil {
		release()
		return nil, err
	}

	window, err := o.sessions.BuildContext(sessionID)
	if err != nil {
		release()
		return nil, err
	}

	if err := o.limiter.Allow(sessionID); err != nil {
		release()
		return nil, err
	}

	updates := make(chan Update, 16)
	go o.stream(ctx, sessionID, o.buildRequest(window), updates, release)
	return updates, nil
}

// HandleBuffered runs Handle and drains the update stream into a single
// reply.
func (o *Orchestrator) HandleBuffered(ctx context.Context, sessionID, text string) (*Reply, error) {
	updates, err := o.Handle(ctx, sessionID, text)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	reply := &Reply{FinishReason: provider.FinishCompleted}
	for u := range updates {
		switch u.Type {
		case UpdateChunk:
			b.WriteString(u.Chunk)
		case UpdateDone:
			reply.Usage = u.Usage
			reply.FinishReason = u.FinishReason
		case UpdateError:
			return nil, u.Err
		}
	}
	reply.Text = b.String()
	return reply, nil
}

// CloseSession tears down a session and its rate-limit bucket. Closing an
// unknown session is a no-op.
func (o *Orchestrator) CloseSession(sessionID string) {
	o.sessions.Close(sessionID)
	o.limiter.Forget(sessionID)
	o.usage.Forget(sessionID)
}

// Run drives the idle-session sweeper until ctx is done.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.cfg.SweepInterval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			for _, id := range o.sessions.Sweep(now) {
				o.limiter.Forget(id)
				o.usage.Forget(id)
			}
		}
	}
}

// stream consumes the provider's event stream, forwards deltas and commits
// the assistant reply on a clean finish. It owns release and updates.
func (o *Orchestrator) stream(ctx context.Context, sessionID string, req *provider.Request, updates chan<- Update, release func()) {
	defer close(updates)
	defer release()

	if o.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	events, err := o.provider.Generate(ctx, req)
	if err != nil {
		updates <- Update{Type: UpdateError, Err: o.mapErr(err)}
		return
	}

	var reply strings.Builder
	var usage provider.Usage
	finish := provider.FinishCompleted

	for ev := range events {
		switch ev.Type {
		case provider.EventTextDelta:
			reply.WriteString(ev.TextDelta)
			updates <- Update{Type: UpdateChunk, Chunk: ev.TextDelta}
		case provider.EventDone:
			if ev.Usage != nil {
				usage = *ev.Usage
			}
			finish = ev.FinishReason
		case provider.EventError:
			updates <- Update{Type: UpdateError, Err: o.mapErr(ev.Err)}
			return
		}
	}

	// A completion with no text commits nothing; the history keeps only the
	// user message.
	if reply.Len() > 0 {
		if _, err := o.sessions.Append(sessionID, session.RoleAssistant, reply.String()); err != nil {
			updates <- Update{Type: UpdateError, Err: err}
			return
		}
	}

	o.usage.Record(sessionID, usage)
	slog.Info("chat handled",
		"session", sessionID,
		"provider", o.provider.Name(),
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"finish", string(finish),
		"duration", time.Since(start).Round(time.Millisecond))

	updates <- Update{Type: UpdateDone, Usage: usage, FinishReason: finish}
}

// buildRequest converts a context window into a provider request.
func (o *Orchestrator) buildRequest(window []session.Message) *provider.Request {
	msgs := make([]provider.Message, 0, len(window))
	for _, m := range window {
		msgs = append(msgs, provider.Message{Role: provider.Role(m.Role), Text: m.Text})
	}

	req := &provider.Request{
		Model:        o.cfg.Model,
		Messages:     msgs,
		SystemPrompt: o.cfg.SystemPrompt,
		MaxTokens:    o.cfg.MaxTokens,
	}
	if o.cfg.Temperature > 0 {
		t := o.cfg.Temperature
		req.Temperature = &t
	}
	return req
}

// mapErr normalizes terminal failures: deadline expiry becomes ErrTimeout,
// caller cancellation passes through untouched, everything else is
// classified as a provider error.
func (o *Orchestrator) mapErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s", ErrTimeout, o.cfg.RequestTimeout)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return provider.Wrap(err)
	}
}
