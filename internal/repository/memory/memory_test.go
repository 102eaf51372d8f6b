package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
)

func TestPresence_RoundTrip(t *testing.T) {
	repo := NewPresenceRepository(time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, &model.Session{UserID: "U1", SocketID: "s1", Role: model.RoleAdmin}))
	require.NoError(t, repo.Put(ctx, &model.Session{UserID: "U2", SocketID: "s2"}))

	got, err := repo.Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SocketID)

	online, err := repo.ListOnline(ctx)
	require.NoError(t, err)
	assert.Len(t, online, 2)

	require.NoError(t, repo.Remove(ctx, "U1"))
	_, err = repo.Get(ctx, "U1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPresence_ExpiryAndTouch(t *testing.T) {
	repo := NewPresenceRepository(100 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, &model.Session{UserID: "U1"}))
	require.NoError(t, repo.Put(ctx, &model.Session{UserID: "U2"}))

	time.Sleep(60 * time.Millisecond)
	seen := time.Now()
	require.NoError(t, repo.Touch(ctx, "U2", seen))
	time.Sleep(60 * time.Millisecond)

	_, err := repo.Get(ctx, "U1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	got, err := repo.Get(ctx, "U2")
	require.NoError(t, err)
	assert.True(t, got.LastSeen.Equal(seen))

	online, err := repo.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "U2", online[0].UserID)

	reaped, err := repo.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	assert.ErrorIs(t, repo.Touch(ctx, "U1", seen), repository.ErrNotFound)
	_, err = repo.Get(ctx, "U1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOffline_BoundedNewestFirst(t *testing.T) {
	repo := NewOfflineRepository(repository.StoreLimits{}, 0)
	ctx := context.Background()

	for i := 1; i <= 51; i++ {
		require.NoError(t, repo.Append(ctx, "U1", &model.Notification{ID: fmt.Sprintf("n-%d", i)}))

		got, err := repo.Drain(ctx, "U1")
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), 50)
	}

	got, err := repo.Drain(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, got, 50)
	assert.Equal(t, "n-51", got[0].ID)
	assert.Equal(t, "n-2", got[49].ID)
}

func TestOffline_ClearIsIdempotent(t *testing.T) {
	repo := NewOfflineRepository(repository.StoreLimits{MaxEntries: 5, TTL: time.Hour}, 0)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, "U1", &model.Notification{ID: "a"}))
	require.NoError(t, repo.Clear(ctx, "U1"))
	require.NoError(t, repo.Clear(ctx, "U1"))

	got, err := repo.Drain(ctx, "U1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
