// Package llm streams chat completions from interchangeable hosted providers.
//
// Every provider adapter normalizes its own incremental wire format into a Stream of text
// deltas, so callers never branch on the provider.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCompletionFailure is returned when a completion stream cannot be opened.
	ErrCompletionFailure = errors.New("completion failure")
	// ErrStreamInterrupted matches a *StreamInterruptedError.
	ErrStreamInterrupted = errors.New("stream interrupted")
)

// Message is one role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams controls sampling. Nil fields are left to the provider.
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// Stream is a finite, non-restartable sequence of text deltas.
// Recv returns io.EOF once the provider signals the end of the completion.
// Chunks that carry no text are skipped, never surfaced as empty deltas.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider is one hosted completion backend.
type Provider interface {
	// Name is the configuration key the provider was registered under.
	Name() string
	// Model is the model identifier sent to the provider.
	Model() string
	StreamCompletion(ctx context.Context, messages []Message, gen *GenerationParams) (Stream, error)
}

// StreamInterruptedError reports a provider failure after the stream started.
// Partial holds every delta received before the failure.
type StreamInterruptedError struct {
	Partial string
	Err     error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream interrupted after %d bytes: %v", len(e.Partial), e.Err)
}

func (e *StreamInterruptedError) Unwrap() []error {
	return []error{ErrStreamInterrupted, e.Err}
}
