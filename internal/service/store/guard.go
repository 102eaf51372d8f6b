package store

import (
	"errors"
	"time"

	"github.com/jwalitptl/task-notifier/pkg/circuitbreaker"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
)

const (
	statusOK      = "ok"
	statusError   = "error"
	statusSkipped = "skipped"
)

// Guard runs store calls behind a circuit breaker and records their outcome.
// Failures are logged here; callers degrade instead of propagating them.
type Guard struct {
	name    string
	breaker *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewGuard(name string, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics, log *logger.Logger) *Guard {
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: name})
	}
	return &Guard{
		name:    name,
		breaker: breaker,
		metrics: m,
		logger:  log.With("store", name),
	}
}

// Run executes fn and reports whether it succeeded.
func (g *Guard) Run(op, userID string, fn func() error) bool {
	start := time.Now()
	err := g.breaker.Execute(fn)
	g.metrics.StoreLatency.WithLabelValues(g.name, op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		g.metrics.StoreOperations.WithLabelValues(g.name, op, statusOK).Inc()
		return true
	case errors.Is(err, circuitbreaker.ErrOpen):
		g.metrics.StoreOperations.WithLabelValues(g.name, op, statusSkipped).Inc()
		g.logger.Debug("Store unavailable, skipping operation", "operation", op, "user_id", userID)
		return false
	default:
		g.metrics.StoreOperations.WithLabelValues(g.name, op, statusError).Inc()
		g.logger.Error(err, "Store operation failed", "operation", op, "user_id", userID)
		return false
	}
}

// State exposes the breaker state for readiness reporting.
func (g *Guard) State() circuitbreaker.State {
	return g.breaker.State()
}
