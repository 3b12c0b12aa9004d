package resilience

import (
	"context"

	"github.com/deirlabs/mentord/pkg/provider/text"
	"github.com/deirlabs/mentord/pkg/types"
)

// TextFallback implements [text.Provider] with automatic failover across
// multiple text backends. Each backend has its own circuit breaker; when the
// primary fails or its breaker is open, the next healthy fallback is tried.
type TextFallback struct {
	group *FallbackGroup[text.Provider]
}

// Compile-time interface assertion.
var _ text.Provider = (*TextFallback)(nil)

// NewTextFallback creates a [TextFallback] with primary as the preferred
// backend.
func NewTextFallback(primary text.Provider, primaryName string, cfg FallbackConfig) *TextFallback {
	return &TextFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional text provider as a fallback.
func (f *TextFallback) AddFallback(name string, provider text.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response. If the primary fails, subsequent fallbacks are tried.
func (f *TextFallback) Complete(ctx context.Context, req text.CompletionRequest) (*text.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p text.Provider) (*text.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// StreamCompletion sends the request to the first healthy provider and returns
// a streaming chunk channel. Only the initial connection attempt is covered by
// failover; once a stream is established, mid-stream errors are the caller's
// responsibility.
func (f *TextFallback) StreamCompletion(ctx context.Context, req text.CompletionRequest) (<-chan text.Chunk, error) {
	return ExecuteWithResult(f.group, func(p text.Provider) (<-chan text.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

// CountTokens delegates to the first healthy provider's token counter.
func (f *TextFallback) CountTokens(messages []types.Message) (int, error) {
	return ExecuteWithResult(f.group, func(p text.Provider) (int, error) {
		return p.CountTokens(messages)
	})
}

// Capabilities returns the capabilities of the first entry (the primary).
// This does not participate in failover because capabilities are static metadata.
func (f *TextFallback) Capabilities() text.Capabilities {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Capabilities()
	}
	return text.Capabilities{}
}
