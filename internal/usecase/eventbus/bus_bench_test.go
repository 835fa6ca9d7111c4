package eventbus

import (
	"context"
	"testing"

	"wingman/internal/domain"
	"wingman/internal/infra/logger"
)

func BenchmarkPublish(b *testing.B) {
	bus := NewWithQueue(logger.Discard(), 1<<16)
	defer bus.Close()
	bus.Subscribe(domain.EventServerEvent, func(context.Context, domain.Event) {})

	ctx := context.Background()
	event := domain.Event{Type: domain.EventServerEvent, SessionID: "bench-session"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bus.Publish(ctx, event)
	}
}
