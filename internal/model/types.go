// Package model wraps the single call to an external generative model.
// Providers share one interface; retry policy is a decorator so the HTTP
// clients stay single-shot.
package model

import (
	"context"
	"time"
)

// Config carries the per-run parameters of a model call. The credential
// travels with each call rather than living in the client, so one client
// can serve many independent runs.
type Config struct {
	ModelID string        `mapstructure:"model_id" json:"model_id"`
	APIKey  string        `mapstructure:"api_key" json:"-"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Client issues exactly one request-response exchange with a generative
// model. Implementations classify failures with internal.Error kinds and
// never retry on their own.
type Client interface {
	Name() string
	Invoke(ctx context.Context, cfg Config, prompt string) (string, error)
}
