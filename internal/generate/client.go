// Package generate talks to the external media generator that produces
// scene videos, voiceovers and music beds for the timeline.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/reelcut/reelcut/internal/timeline"
)

var ErrEmptyPrompt = errors.New("prompt is required")

type Request struct {
	Kind   timeline.Kind `json:"kind"`
	Prompt string        `json:"prompt"`
	// Scene is the 1-based scene index for video requests.
	Scene int `json:"scene,omitempty"`
}

func (r Request) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("unsupported kind %q", r.Kind)
	}
	if r.Prompt == "" {
		return ErrEmptyPrompt
	}
	if r.Kind == timeline.KindVideo && r.Scene < 1 {
		return fmt.Errorf("video request needs a scene index, got %d", r.Scene)
	}
	return nil
}

// Output is the generated asset. Duration is zero when the generator did not
// report one.
type Output struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"`
}

type Client interface {
	Generate(ctx context.Context, req Request) (Output, error)
}

// StubClient is used when no generator is configured. It fails every request
// so the host sees a clear error instead of a silent no-op.
type StubClient struct {
	logger *slog.Logger
}

func NewStubClient(logger *slog.Logger) *StubClient {
	return &StubClient{logger: logger}
}

var ErrNotConfigured = errors.New("media generator not configured")

func (c *StubClient) Generate(ctx context.Context, req Request) (Output, error) {
	c.logger.Info("generator stub: request ignored", "kind", string(req.Kind), "scene", req.Scene)
	return Output{}, ErrNotConfigured
}
