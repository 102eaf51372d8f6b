package store

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/task-notifier/pkg/circuitbreaker"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
)

func TestGuard_OpensAfterFailures(t *testing.T) {
	m := metrics.NewNop()
	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: "presence", MaxFailures: 2, Timeout: time.Minute})
	g := NewGuard("presence", breaker, m, logger.Nop())

	down := errors.New("connection refused")
	calls := 0
	fail := func() error { calls++; return down }

	assert.False(t, g.Run("put", "U1", fail))
	assert.False(t, g.Run("put", "U1", fail))
	assert.Equal(t, circuitbreaker.StateOpen, g.State())

	assert.False(t, g.Run("put", "U1", fail))
	assert.Equal(t, 2, calls, "open breaker short-circuits")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("presence", "put", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("presence", "put", "skipped")))
}

func TestGuard_Success(t *testing.T) {
	m := metrics.NewNop()
	g := NewGuard("offline", nil, m, logger.Nop())

	assert.True(t, g.Run("append", "U1", func() error { return nil }))
	assert.Equal(t, circuitbreaker.StateClosed, g.State())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperations.WithLabelValues("offline", "append", "ok")))
}
