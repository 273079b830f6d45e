package service

import (
	"context"

	"dora/internal/model"
)

// TextCompleter is the external language model: one prompt in, text out.
// Failures are *model.UpstreamError. Implementations never retry internally.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Provider() string
}

// StreamingCompleter is a TextCompleter that can stream partial output.
// The full text is returned once the stream ends.
type StreamingCompleter interface {
	TextCompleter
	CompleteStream(ctx context.Context, prompt string, callback StreamCallback) (string, error)
}

// StreamChunk represents a generic streaming response chunk
type StreamChunk struct {
	// Regular content
	Content string

	// Thinking/reasoning content (provider-specific, e.g. DeepSeek)
	ThinkingContent string

	Role string

	// Whether this is the final chunk
	Done bool
}

// StreamCallback is called for each chunk in streaming mode
type StreamCallback func(chunk *StreamChunk) error

// DisabledCompleter stands in when no provider is configured
type DisabledCompleter struct{}

// Complete always fails so callers fall back to canned replies
func (DisabledCompleter) Complete(context.Context, string) (string, error) {
	return "", &model.UpstreamError{Provider: "none", Kind: model.UpstreamDisabled}
}

// Provider implements TextCompleter
func (DisabledCompleter) Provider() string { return "none" }

var (
	_ StreamingCompleter = (*OpenAIClient)(nil)
	_ TextCompleter      = (*GeminiClient)(nil)
	_ TextCompleter      = DisabledCompleter{}
)
