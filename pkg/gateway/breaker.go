package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakerRegistry keeps one circuit breaker per provider family, so a broken
// provider stops receiving calls without affecting the others.
type breakerRegistry struct {
	mu       sync.Mutex
	logger   *slog.Logger
	breakers map[Family]*gobreaker.CircuitBreaker
}

func newBreakerRegistry(logger *slog.Logger) *breakerRegistry {
	return &breakerRegistry{
		logger:   logger.With("module", "gateway_breaker"),
		breakers: make(map[Family]*gobreaker.CircuitBreaker),
	}
}

func (r *breakerRegistry) Get(family Family) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if breaker, ok := r.breakers[family]; ok {
		return breaker
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(family),
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "family", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not a provider failure.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	r.breakers[family] = breaker

	return breaker
}
