package lifecycle

import (
	"context"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/service/dispatcher"
	"github.com/jwalitptl/task-notifier/internal/service/resolver"
	"github.com/jwalitptl/task-notifier/pkg/logger"
)

// Processor turns one broker message into task:update plus per-recipient notifications.
type Processor struct {
	dispatcher *dispatcher.Dispatcher
	logger     *logger.Logger
}

func NewProcessor(d *dispatcher.Dispatcher, log *logger.Logger) *Processor {
	return &Processor{dispatcher: d, logger: log.With("component", "lifecycle")}
}

// Handle returns an error only for payloads that cannot be decoded.
func (p *Processor) Handle(ctx context.Context, routingKey string, body []byte) error {
	evt, err := model.DecodeEvent(routingKey, body)
	if err != nil {
		return err
	}

	reached := p.dispatcher.BroadcastTaskUpdate(evt)

	if !evt.EventType.Known() {
		p.logger.Warn("Unknown task event type",
			"event_type", string(evt.EventType),
			"task_id", evt.Task.ID,
		)
		return nil
	}

	targets := resolver.Resolve(evt)
	sum := p.dispatcher.Dispatch(ctx, targets)

	p.logger.Debug("Processed task event",
		"event_type", string(evt.EventType),
		"task_id", evt.Task.ID,
		"actor", evt.UserID,
		"broadcast_sessions", reached,
		"live", sum.Live,
		"offline", sum.Offline,
		"dropped", sum.Dropped,
	)
	return nil
}
