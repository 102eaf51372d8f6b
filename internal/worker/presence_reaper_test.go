package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository/memory"
	"github.com/jwalitptl/task-notifier/internal/service/presence"
	"github.com/jwalitptl/task-notifier/internal/service/store"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
)

type countingReaper struct {
	calls atomic.Int32
}

func (r *countingReaper) Reap(context.Context) int {
	r.calls.Add(1)
	return 1
}

func TestPresenceReaper_RunsUntilCancelled(t *testing.T) {
	reaper := &countingReaper{}
	w := NewPresenceReaper(reaper, 10*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return reaper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestPresenceReaper_ReapsExpiredSessions(t *testing.T) {
	m := metrics.NewNop()
	svc := presence.NewService(
		memory.NewPresenceRepository(20*time.Millisecond),
		store.NewGuard("presence", nil, m, logger.Nop()),
	)
	ctx := context.Background()
	svc.Put(ctx, &model.Session{UserID: "U1", SocketID: "s1"})

	time.Sleep(40 * time.Millisecond)
	NewPresenceReaper(svc, time.Minute, logger.Nop()).reap(ctx)

	assert.Empty(t, svc.ListOnline(ctx))
	assert.Zero(t, svc.Reap(ctx))
}
