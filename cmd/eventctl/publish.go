package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/task-notifier/internal/config"
	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/messaging"
	"github.com/jwalitptl/task-notifier/pkg/messaging/amqp"
	redisbroker "github.com/jwalitptl/task-notifier/pkg/messaging/redis"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a task lifecycle event",
	Example: `  eventctl publish --type status_changed --task-id T1 --title "Fix bug" --status done \
    --actor B --assignee B --creator C --watchers A,B
  eventctl publish --file event.json`,
	RunE: runPublish,
}

type publishFlags struct {
	file      string
	eventType string
	taskID    string
	title     string
	status    string
	actor     string
	assignee  string
	creator   string
	watchers  []string
	mentions  []string
	comment   string
}

var pubFlags publishFlags

func init() {
	f := publishCmd.Flags()
	f.StringVar(&pubFlags.file, "file", "", "Read the event JSON from a file ('-' for stdin)")
	f.StringVar(&pubFlags.eventType, "type", "", "Event type: created, updated, status_changed, comment_added, deleted")
	f.StringVar(&pubFlags.taskID, "task-id", "", "Task id")
	f.StringVar(&pubFlags.title, "title", "", "Task title")
	f.StringVar(&pubFlags.status, "status", "", "Task status")
	f.StringVar(&pubFlags.actor, "actor", "", "User id of whoever triggered the event")
	f.StringVar(&pubFlags.assignee, "assignee", "", "Assignee user id")
	f.StringVar(&pubFlags.creator, "creator", "", "Creator user id")
	f.StringSliceVar(&pubFlags.watchers, "watchers", nil, "Watcher user ids")
	f.StringSliceVar(&pubFlags.mentions, "mentions", nil, "User ids mentioned in the new comment")
	f.StringVar(&pubFlags.comment, "comment", "", "New comment content")
}

func runPublish(cmd *cobra.Command, args []string) error {
	evt, err := loadEvent(pubFlags)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	publisher, cleanup, err := newPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := publisher.Publish(ctx, evt.EventType.RoutingKey(), body); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %s for task %s via %s\n", evt.EventType.RoutingKey(), evt.Task.ID, cfg.Broker.Driver)
	return nil
}

func loadEvent(f publishFlags) (*model.TaskLifecycleEvent, error) {
	if f.file != "" {
		var (
			raw []byte
			err error
		)
		if f.file == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(f.file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event file: %w", err)
		}
		return model.DecodeEvent("", raw)
	}
	return buildEvent(f, time.Now().UTC())
}

func buildEvent(f publishFlags, now time.Time) (*model.TaskLifecycleEvent, error) {
	eventType := model.EventType(f.eventType)
	if !eventType.Known() {
		return nil, fmt.Errorf("unknown event type %q", f.eventType)
	}
	if f.taskID == "" {
		return nil, fmt.Errorf("--task-id is required")
	}

	task := model.TaskSnapshot{
		ID:       f.taskID,
		Title:    f.title,
		Status:   f.status,
		Watchers: userRefs(f.watchers),
	}
	if f.assignee != "" {
		task.AssignedTo = &model.UserRef{UserID: f.assignee}
	}
	if f.creator != "" {
		task.CreatedBy = &model.UserRef{UserID: f.creator}
	}
	if f.comment != "" || len(f.mentions) > 0 {
		task.NewComment = &model.Comment{Content: f.comment, Mentions: userRefs(f.mentions)}
	}

	return &model.TaskLifecycleEvent{
		EventType: eventType,
		Task:      task,
		UserID:    f.actor,
		Timestamp: now,
	}, nil
}

func userRefs(ids []string) []model.UserRef {
	var refs []model.UserRef
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			refs = append(refs, model.UserRef{UserID: id})
		}
	}
	return refs
}

func newPublisher(ctx context.Context, cfg *config.Config) (messaging.Publisher, func(), error) {
	topology := messaging.Topology{
		Exchange:    cfg.Broker.Exchange,
		Queue:       cfg.Broker.Queue,
		RoutingKeys: model.RoutingKeys(),
		DeadLetter:  cfg.Broker.DeadLetterExchange,
	}
	log := logger.Nop()

	if cfg.Broker.Driver == "redis" {
		client, err := redisbroker.Connect(ctx, redisbroker.Config{URL: cfg.Redis.URL})
		if err != nil {
			return nil, nil, err
		}
		broker := redisbroker.NewStreamBroker(client, topology, redisbroker.StreamOptions{MaxLen: cfg.Broker.StreamMaxLen}, log)
		return broker, func() { client.Close() }, nil
	}

	broker := amqp.NewBroker(amqp.Config{URL: cfg.Broker.URL, Topology: topology}, log)
	return broker, func() { broker.Close() }, nil
}
