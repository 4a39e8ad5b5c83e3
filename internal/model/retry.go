package model

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/charleslwang/Lumara/internal"
)

// RetryConfig controls the bounded-attempt backoff loop around model calls.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64

	// Jitter adds up to this fraction of the delay as random slack.
	Jitter float64

	// Sleep waits for the given duration or until ctx is done. Nil uses a
	// real timer; tests inject a recorder here.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig matches the provider limits the pipeline was tuned for.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 1 * time.Second,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
	Jitter:       0.1,
}

type retryClient struct {
	inner Client
	cfg   RetryConfig
	log   *slog.Logger
}

// Retrying wraps inner with retry-with-exponential-backoff. Only transient
// failures (rate limits, 5xx, network errors) are retried; classified
// non-transient errors and unclassified errors propagate immediately. After
// exhausting attempts the last error is surfaced unchanged.
func Retrying(inner Client, cfg RetryConfig) Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultRetryConfig.InitialDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultRetryConfig.MaxDelay
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = DefaultRetryConfig.Multiplier
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	return &retryClient{inner: inner, cfg: cfg, log: slog.Default()}
}

func (r *retryClient) Name() string { return r.inner.Name() }

func (r *retryClient) Invoke(ctx context.Context, cfg Config, prompt string) (string, error) {
	var lastErr error
	delay := r.cfg.InitialDelay

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		text, err := r.inner.Invoke(ctx, cfg, prompt)
		if err == nil {
			return text, nil
		}

		kind, classified := internal.KindOf(err)
		if !classified || !internal.IsTransient(kind) {
			return "", err
		}
		lastErr = err

		if attempt == r.cfg.MaxAttempts {
			break
		}

		r.log.Warn("model call failed, retrying",
			"provider", r.inner.Name(),
			"attempt", attempt,
			"max_attempts", r.cfg.MaxAttempts,
			"kind", string(kind),
			"delay", delay)

		jittered := delay + time.Duration(rand.Float64()*r.cfg.Jitter*float64(delay))
		if err := r.cfg.Sleep(ctx, jittered); err != nil {
			return "", internal.WrapError(internal.KindCancelled, err, "cancelled while waiting to retry")
		}

		delay = time.Duration(float64(delay) * r.cfg.Multiplier)
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}

	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
