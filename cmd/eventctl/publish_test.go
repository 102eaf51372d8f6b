package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/service/resolver"
)

func TestBuildEvent_StatusChanged(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	evt, err := buildEvent(publishFlags{
		eventType: "status_changed",
		taskID:    "T1",
		title:     "Fix bug",
		status:    "done",
		actor:     "B",
		assignee:  "B",
		creator:   "C",
		watchers:  []string{"A", " B ", ""},
	}, now)
	require.NoError(t, err)

	assert.Equal(t, "task.status_changed", evt.EventType.RoutingKey())
	assert.Equal(t, now, evt.Timestamp)
	assert.Len(t, evt.Task.Watchers, 2)
	assert.Nil(t, evt.Task.NewComment)

	// round-trips through the consumer's decoder and resolves like a real event
	body, err := json.Marshal(evt)
	require.NoError(t, err)
	decoded, err := model.DecodeEvent(evt.EventType.RoutingKey(), body)
	require.NoError(t, err)

	var users []string
	for _, target := range resolver.Resolve(decoded) {
		users = append(users, target.Address.ID)
	}
	assert.ElementsMatch(t, []string{"A", "C"}, users)
}

func TestBuildEvent_CommentWithMentions(t *testing.T) {
	evt, err := buildEvent(publishFlags{
		eventType: "comment_added",
		taskID:    "T2",
		actor:     "A",
		mentions:  []string{"X"},
		comment:   "@X please review",
	}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, evt.Task.NewComment)
	assert.Equal(t, "X", evt.Task.NewComment.Mentions[0].UserID)
}

func TestBuildEvent_Invalid(t *testing.T) {
	_, err := buildEvent(publishFlags{eventType: "archived", taskID: "T1"}, time.Now())
	assert.ErrorContains(t, err, "unknown event type")

	_, err = buildEvent(publishFlags{eventType: "created"}, time.Now())
	assert.ErrorContains(t, err, "--task-id")
}

func TestLoadEvent_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "event.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"eventType":"deleted","task":{"id":"T9","title":"Old"},"userId":"U1"}`), 0o600))

	evt, err := loadEvent(publishFlags{file: path})
	require.NoError(t, err)
	assert.Equal(t, model.EventTaskDeleted, evt.EventType)
	assert.Equal(t, "T9", evt.Task.ID)
}
