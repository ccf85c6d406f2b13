// Package completion sends statement text to a language model and returns the
// raw response, with a single fallback attempt on a second model.
package completion

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

//go:embed prompts/system.txt
var systemPrompt string

//go:embed prompts/human.txt
var humanPrompt string

var (
	// ErrEmptyResponse is returned by providers when the model produced no content.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrCompletionFailed wraps the joined primary and fallback errors.
	ErrCompletionFailed = errors.New("primary and fallback models failed")
)

// Request is one chat completion call.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
}

// Provider is a model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Model pairs a provider with a model name.
type Model struct {
	Provider Provider
	Name     string
}

func (m Model) String() string {
	return m.Provider.Name() + "/" + m.Name
}

// Response is the unfenced model output.
type Response struct {
	Text         string
	Model        string
	UsedFallback bool
}

// Observer is notified after every model call.
type Observer func(model string, duration time.Duration, err error)

// Adapter calls the primary model and, on any error, the fallback model
// exactly once.
type Adapter struct {
	primary     Model
	fallback    Model
	temperature float64
	limiter     *rate.Limiter
	observer    Observer
	logger      *slog.Logger
}

// NewAdapter creates a completion adapter. A nil limiter disables rate limiting.
func NewAdapter(primary, fallback Model, temperature float64, limiter *rate.Limiter, logger *slog.Logger) *Adapter {
	return &Adapter{
		primary:     primary,
		fallback:    fallback,
		temperature: temperature,
		limiter:     limiter,
		logger:      logger,
	}
}

// WithObserver sets a hook called after each model call.
func (a *Adapter) WithObserver(o Observer) *Adapter {
	a.observer = o
	return a
}

// Prompts returns the system prompt and the interpolated human prompt.
func Prompts(filename, text string) (string, string) {
	user := strings.NewReplacer("{filename}", filename, "{text}", text).Replace(humanPrompt)
	return systemPrompt, user
}

// Complete runs the prompt for one document.
func (a *Adapter) Complete(ctx context.Context, filename, text string) (Response, error) {
	system, user := Prompts(filename, text)

	out, err := a.call(ctx, a.primary, system, user)
	if err == nil {
		return Response{Text: out, Model: a.primary.String()}, nil
	}

	a.logger.Warn("primary model failed, falling back",
		slog.String("filename", filename),
		slog.String("primary", a.primary.String()),
		slog.String("fallback", a.fallback.String()),
		slog.Any("error", err),
	)

	out, ferr := a.call(ctx, a.fallback, system, user)
	if ferr != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrCompletionFailed, errors.Join(
			fmt.Errorf("primary %s: %w", a.primary, err),
			fmt.Errorf("fallback %s: %w", a.fallback, ferr),
		))
	}
	return Response{Text: out, Model: a.fallback.String(), UsedFallback: true}, nil
}

func (a *Adapter) call(ctx context.Context, m Model, system, user string) (string, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	start := time.Now()
	out, err := m.Provider.Complete(ctx, Request{
		Model:       m.Name,
		System:      system,
		User:        user,
		Temperature: a.temperature,
	})
	if err == nil && strings.TrimSpace(out) == "" {
		err = ErrEmptyResponse
	}
	if a.observer != nil {
		a.observer(m.String(), time.Since(start), err)
	}
	if err != nil {
		return "", err
	}

	a.logger.Debug("model call completed",
		slog.String("model", m.String()),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		slog.Int("response_bytes", len(out)),
	)
	return StripFences(out), nil
}
