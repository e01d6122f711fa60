package llm

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Collect drains stream in order, calling onDelta after each delta, and returns the full text.
//
// A provider error after the stream started yields the partial text and a *StreamInterruptedError.
// If ctx is cancelled, or onDelta returns an error, Collect stops and returns that error; the
// partial text is returned for logging only and must not be treated as a response.
func Collect(ctx context.Context, stream Stream, onDelta func(delta string) error) (string, error) {
	defer stream.Close()

	var full strings.Builder
	for {
		delta, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return full.String(), nil
			}
			if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
				return full.String(), ctxErr
			}
			return full.String(), &StreamInterruptedError{Partial: full.String(), Err: err}
		}

		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), err
			}
		}
	}
}

// CollectText is Collect without a delta callback.
func CollectText(ctx context.Context, stream Stream) (string, error) {
	return Collect(ctx, stream, nil)
}
