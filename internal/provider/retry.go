package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

const jitterPercent = 30 // ±30% jitter

// RetryPolicy bounds retries of failed Generate calls.
type RetryPolicy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// BaseDelay is the backoff before the first retry; it doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy matches common guidance for rate-limited LLM APIs.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// delay returns the backoff for attempt n (0-indexed) with jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for range attempt {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	span := int(d) * jitterPercent * 2 / 100
	if span <= 0 {
		return d
	}
	jitter := time.Duration(rand.IntN(span)) - time.Duration(int(d)*jitterPercent/100)
	return d + jitter
}

// sleepWithContext sleeps for d, but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrier wraps a Provider with bounded retry on transient failures.
//
// A call is replayed only while nothing has been forwarded downstream: once
// the first text delta reaches the caller, a later failure surfaces as-is,
// because a partially delivered stream cannot be transparently restarted.
// Cancellation is never retried.
type Retrier struct {
	next   Provider
	policy RetryPolicy
}

// NewRetrier wraps next with policy.
func NewRetrier(next Provider, policy RetryPolicy) *Retrier {
	return &Retrier{next: next, policy: policy}
}

func (r *Retrier) Name() string  { return r.next.Name() }
func (r *Retrier) Model() string { return r.next.Model() }

func (r *Retrier) Generate(ctx context.Context, req *Request) (<-chan Event, error) {
	out := make(chan Event, 16)
	go r.run(ctx, req, out)
	return out, nil
}

func (r *Retrier) run(ctx context.Context, req *Request, out chan<- Event) {
	defer close(out)

	for attempt := 0; ; attempt++ {
		delivered, err := r.attempt(ctx, req, out)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			out <- Event{Type: EventError, Err: err}
			return
		}
		if delivered {
			out <- Event{Type: EventError, Err: Wrap(err)}
			return
		}

		perr := Wrap(err)
		if !perr.Retryable() {
			out <- Event{Type: EventError, Err: perr}
			return
		}
		if attempt >= r.policy.MaxRetries {
			out <- Event{Type: EventError, Err: &Error{
				Kind:    KindPermanent,
				Message: fmt.Sprintf("giving up after %d attempts: %s", attempt+1, perr.Message),
				cause:   perr,
			}}
			return
		}

		d := r.policy.delay(attempt)
		slog.Warn("retrying provider call",
			"provider", r.next.Name(),
			"attempt", attempt+1,
			"max_retries", r.policy.MaxRetries,
			"delay", d.Round(time.Millisecond),
			"err", truncateError(err))
		if serr := sleepWithContext(ctx, d); serr != nil {
			out <- Event{Type: EventError, Err: serr}
			return
		}
	}
}

// attempt runs one upstream call, forwarding events to out. It reports
// whether any text delta was forwarded, and the terminal error if the call
// did not finish cleanly.
func (r *Retrier) attempt(ctx context.Context, req *Request, out chan<- Event) (bool, error) {
	events, err := r.next.Generate(ctx, req)
	if err != nil {
		return false, err
	}

	delivered := false
	for ev := range events {
		if ev.Type == EventError {
			return delivered, ev.Err
		}
		if ev.Type == EventTextDelta {
			delivered = true
		}
		out <- ev
	}
	return delivered, nil
}

func truncateError(err error) string {
	s := err.Error()
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
