package usecase

import (
	"context"

	"wingman/internal/domain"
)

// callScope travels with the context of one response's tool calls: where
// their breadcrumbs go and the transcript as it stood when the response
// finished.
type callScope struct {
	record  domain.ToolCallRecorder
	history []domain.TranscriptItem
}

type callScopeKey struct{}

func withCallScope(ctx context.Context, s callScope) context.Context {
	return context.WithValue(ctx, callScopeKey{}, s)
}

func callScopeFrom(ctx context.Context) (callScope, bool) {
	s, ok := ctx.Value(callScopeKey{}).(callScope)
	return s, ok
}
