package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"wingman/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration
}

// NewBreaker builds a gobreaker circuit breaker named name. State changes are
// logged at warn level.
func NewBreaker[T any](name string, cfg CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about the upstream.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// BreakerError wraps gobreaker's fail-fast errors as domain.ErrCircuitOpen.
func BreakerError(name string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %v", name, domain.ErrCircuitOpen, err)
	}
	return err
}

// CircuitBreakerResponder wraps a Responder with circuit breaker protection.
// When the model fails repeatedly, the circuit opens and subsequent calls
// fail fast without reaching it.
type CircuitBreakerResponder struct {
	inner   domain.Responder
	breaker *gobreaker.CircuitBreaker[*domain.ResponsesResponse]
}

// NewCircuitBreakerResponder wraps inner with a circuit breaker.
func NewCircuitBreakerResponder(inner domain.Responder, cfg CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerResponder {
	return &CircuitBreakerResponder{
		inner:   inner,
		breaker: NewBreaker[*domain.ResponsesResponse]("llm:responses", cfg, logger),
	}
}

// Create implements domain.Responder. Calls are routed through the circuit breaker.
func (p *CircuitBreakerResponder) Create(ctx context.Context, req domain.ResponsesRequest) (*domain.ResponsesResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ResponsesResponse, error) {
		return p.inner.Create(ctx, req)
	})
	if err != nil {
		return nil, BreakerError("supervisor model", err)
	}
	return resp, nil
}

// State returns the current circuit breaker state for monitoring.
func (p *CircuitBreakerResponder) State() gobreaker.State {
	return p.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (p *CircuitBreakerResponder) Counts() gobreaker.Counts {
	return p.breaker.Counts()
}

var _ domain.Responder = (*CircuitBreakerResponder)(nil)
