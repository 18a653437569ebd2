// Package ai defines the provider adapter contracts for embedding and
// synthesis backends, and the fallback chain that composes them into a
// single logical provider the rest of the gateway calls.
package ai

import (
	"context"
	"time"
)

// ErrorClass is the classification every adapter must map its failures into
// before returning, per the provider contract.
type ErrorClass string

const (
	ErrTimeout       ErrorClass = "timeout"
	ErrUnavailable   ErrorClass = "unavailable"
	ErrRateLimited   ErrorClass = "rate_limited"
	ErrModelNotFound ErrorClass = "model_not_found"
	ErrAuth          ErrorClass = "auth"
	ErrOther         ErrorClass = "other"
)

// ProviderError wraps an adapter failure with its classification.
type ProviderError struct {
	Provider string
	Class    ErrorClass
	Err      error
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + string(e.Class) + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// EmbedOptions configures an embedding call.
type EmbedOptions struct {
	Deadline time.Duration
}

// SynthesizeOptions configures a synthesis call. Determinism requires
// Temperature=0, a fixed Seed, and TopK=1 where the backend supports it.
type SynthesizeOptions struct {
	Temperature float64
	MaxTokens   int
	Seed        int
	TopK        int
	Deadline    time.Duration
}

// DefaultSynthesizeOptions mirrors the provider contract's stated defaults.
func DefaultSynthesizeOptions() SynthesizeOptions {
	return SynthesizeOptions{Temperature: 0.3, Seed: 42, MaxTokens: 1024}
}

// EmbeddingProvider embeds query text into a fixed-dimension vector.
type EmbeddingProvider interface {
	Name() string
	Embed(ctx context.Context, text string, opts EmbedOptions) ([]float32, error)
}

// SynthesisProvider produces a synthesized answer from a system/user prompt
// pair.
type SynthesisProvider interface {
	Name() string
	Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts SynthesizeOptions) (string, error)
}
