package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
	"github.com/jwalitptl/task-notifier/internal/repository/memory"
	"github.com/jwalitptl/task-notifier/internal/service/dispatcher"
	"github.com/jwalitptl/task-notifier/internal/service/offline"
	"github.com/jwalitptl/task-notifier/internal/service/store"
	"github.com/jwalitptl/task-notifier/pkg/errors"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
)

type roomCounter map[string]int

func (r roomCounter) EmitToRoom(room, _ string, _ interface{}) int { return r[room] }

func (r roomCounter) EmitToRoomExceptUser(room, _ string, _ interface{}, _ string) int { return r[room] }

func (r roomCounter) Broadcast(_ string, _ interface{}, _ string) int {
	total := 0
	for _, n := range r {
		total += n
	}
	return total
}

func (r roomCounter) RoomSize(room string) int { return r[room] }

func (r roomCounter) SessionCount() int { return r.Broadcast("", nil, "") }

func newService(t *testing.T, rooms roomCounter) (Service, offline.Service) {
	t.Helper()
	m := metrics.NewNop()
	offlineSvc := offline.NewService(
		memory.NewOfflineRepository(repository.StoreLimits{}, 0),
		store.NewGuard("offline", nil, m, logger.Nop()),
	)
	d := dispatcher.New(rooms, offlineSvc, dispatcher.Options{}, m, logger.Nop())
	return NewService(d, logger.Nop()), offlineSvc
}

var maintenance = model.NotificationContent{
	Type:    "system",
	Title:   "Maintenance",
	Message: "Deploy at 18:00",
}

func TestSendToUser_StoresWhenOffline(t *testing.T) {
	svc, offlineSvc := newService(t, roomCounter{})
	ctx := context.Background()

	n, err := svc.SendToUser(ctx, "U9", maintenance)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	queued := offlineSvc.Drain(ctx, "U9")
	require.Len(t, queued, 1)
	assert.Equal(t, "Maintenance", queued[0].Title)
}

func TestSendToUser_LiveIsNotStored(t *testing.T) {
	svc, offlineSvc := newService(t, roomCounter{"user:U1": 2})
	ctx := context.Background()

	n, err := svc.SendToUser(ctx, "U1", maintenance)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, offlineSvc.Drain(ctx, "U1"))
}

func TestSendToRole(t *testing.T) {
	svc, _ := newService(t, roomCounter{"role:project_manager": 3})

	n, err := svc.SendToRole(context.Background(), model.RoleProjectManager, maintenance)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.SendToRole(context.Background(), model.RoleAdmin, maintenance)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.SendToRole(context.Background(), "guest", maintenance)
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrBadRequest, appErr.Code)
}

func TestBroadcast(t *testing.T) {
	svc, _ := newService(t, roomCounter{"user:U1": 1, "user:U2": 2})

	n, err := svc.Broadcast(context.Background(), maintenance)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestValidation(t *testing.T) {
	svc, _ := newService(t, roomCounter{})

	tests := []struct {
		name    string
		content model.NotificationContent
	}{
		{"missing type", model.NotificationContent{Title: "t", Message: "m"}},
		{"missing title", model.NotificationContent{Type: "system", Message: "m"}},
		{"blank message", model.NotificationContent{Type: "system", Title: "t", Message: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Broadcast(context.Background(), tt.content)
			appErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrBadRequest, appErr.Code)
		})
	}

	_, err := svc.SendToUser(context.Background(), " ", maintenance)
	assert.Error(t, err)
}
