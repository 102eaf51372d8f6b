package dispatcher

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/service/offline"
	"github.com/jwalitptl/task-notifier/internal/service/resolver"
	"github.com/jwalitptl/task-notifier/pkg/logger"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
)

const (
	deliveryLive    = "live"
	deliveryOffline = "offline"
	deliveryDropped = "dropped"
)

// Emitter delivers events to live sessions. Counts are the number of sessions reached.
type Emitter interface {
	EmitToRoom(room, event string, payload interface{}) int
	// EmitToRoomExceptUser skips every session of userID.
	EmitToRoomExceptUser(room, event string, payload interface{}, userID string) int
	// Broadcast reaches every session except those of exceptUserID (empty for none).
	Broadcast(event string, payload interface{}, exceptUserID string) int
	RoomSize(room string) int
	SessionCount() int
}

type Options struct {
	// StoreOnAbsent appends user-addressed notifications to the offline store when the
	// user has no live session.
	StoreOnAbsent bool
}

type Dispatcher struct {
	emitter Emitter
	offline offline.Service
	opts    Options
	metrics *metrics.Metrics
	logger  *logger.Logger
	now     func() time.Time
}

func New(emitter Emitter, offlineSvc offline.Service, opts Options, m *metrics.Metrics, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		emitter: emitter,
		offline: offlineSvc,
		opts:    opts,
		metrics: m,
		logger:  log.With("component", "dispatcher"),
		now:     time.Now,
	}
}

// Summary counts what happened to a batch of targets.
type Summary struct {
	Live    int
	Offline int
	Dropped int
}

func (d *Dispatcher) Dispatch(ctx context.Context, targets []resolver.Target) Summary {
	var sum Summary
	for _, target := range targets {
		switch target.Address.Kind {
		case resolver.AddressRole:
			if d.ToRole(model.Role(target.Address.ID), target.Content, target.ExceptUserID) > 0 {
				sum.Live++
			} else {
				sum.Dropped++
			}
		default:
			live, stored := d.ToUser(ctx, target.Address.ID, target.Content, d.opts.StoreOnAbsent)
			switch {
			case live > 0:
				sum.Live++
			case stored:
				sum.Offline++
			default:
				sum.Dropped++
			}
		}
	}
	return sum
}

// ToUser emits to user:{id}. When nobody is connected and storeOnAbsent is set the
// notification is queued offline instead.
func (d *Dispatcher) ToUser(ctx context.Context, userID string, content model.NotificationContent, storeOnAbsent bool) (int, bool) {
	room := model.UserRoom(userID)
	if d.emitter.RoomSize(room) > 0 {
		if n := d.emitter.EmitToRoom(room, model.EventNotification, d.stamp(content)); n > 0 {
			d.count(resolver.AddressUser, deliveryLive)
			return n, false
		}
		// every session went away between the size check and the emit
	}

	if storeOnAbsent && d.offline.Append(ctx, userID, content) != nil {
		d.count(resolver.AddressUser, deliveryOffline)
		d.logger.Debug("Stored notification for offline user", "user_id", userID, "type", string(content.Type))
		return 0, true
	}

	d.count(resolver.AddressUser, deliveryDropped)
	return 0, false
}

// ToRole is live-only. Sessions of exceptUserID are skipped; empty skips nobody.
func (d *Dispatcher) ToRole(role model.Role, content model.NotificationContent, exceptUserID string) int {
	n := d.emitter.EmitToRoomExceptUser(model.RoleRoom(role), model.EventNotification, d.stamp(content), exceptUserID)
	if n > 0 {
		d.count(resolver.AddressRole, deliveryLive)
	} else {
		d.count(resolver.AddressRole, deliveryDropped)
	}
	return n
}

// ToAll emits a notification to every connected session.
func (d *Dispatcher) ToAll(content model.NotificationContent) int {
	n := d.emitter.Broadcast(model.EventNotification, d.stamp(content), "")
	d.metrics.NotificationsDispatched.WithLabelValues("broadcast", deliveryLive).Add(float64(n))
	return n
}

// BroadcastTaskUpdate sends task:update to every session, whatever the event type.
func (d *Dispatcher) BroadcastTaskUpdate(evt *model.TaskLifecycleEvent) int {
	d.metrics.Broadcasts.Inc()
	return d.emitter.Broadcast(model.EventTaskUpdate, model.TaskUpdate{
		EventType: evt.EventType,
		Task:      evt.Task,
		UserID:    evt.UserID,
		Timestamp: evt.Timestamp,
	}, "")
}

// Direct delivers a user-to-user message to every session of the recipient and returns
// the message so the caller can confirm it to the sender. An empty msgType means "text".
func (d *Dispatcher) Direct(from *model.Session, to, text, msgType string) *model.DirectMessage {
	if msgType == "" {
		msgType = model.DirectMessageText
	}
	msg := &model.DirectMessage{
		ID:        uuid.NewString(),
		From:      from.UserID,
		FromName:  from.Name,
		To:        to,
		Message:   text,
		Type:      msgType,
		Timestamp: d.now().UTC(),
	}
	d.emitter.EmitToRoom(model.UserRoom(to), model.EventMessageReceived, msg)
	return msg
}

func (d *Dispatcher) stamp(content model.NotificationContent) *model.Notification {
	return model.NewNotification(content, d.now().UTC())
}

func (d *Dispatcher) count(kind resolver.AddressKind, delivery string) {
	d.metrics.NotificationsDispatched.WithLabelValues(string(kind), delivery).Inc()
}
