package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jwalitptl/task-notifier/internal/model"
)

type eventHandler func(ctx context.Context, c *Client, data json.RawMessage) error

var (
	errReservedRoom = errors.New("room is reserved")
	errSelfMessage  = errors.New("cannot send a direct message to yourself")
)

type roomRequest struct {
	Room string `json:"room" validate:"required,max=200"`
}

type taskRequest struct {
	TaskID string `json:"taskId" validate:"required,max=200"`
}

type typingRequest struct {
	TaskID   string `json:"taskId" validate:"required,max=200"`
	IsTyping bool   `json:"isTyping"`
}

type presenceRequest struct {
	Status model.PresenceStatus `json:"status" validate:"required,oneof=online away busy"`
}

type directMessageRequest struct {
	RecipientID string `json:"recipientId" validate:"required,max=200"`
	Message     string `json:"message" validate:"required,max=5000"`
	Type        string `json:"type" validate:"max=50"`
}

type activityRequest struct {
	TaskID   string        `json:"taskId" validate:"required,max=200"`
	Activity string        `json:"activity" validate:"required,max=200"`
	Metadata model.JSONMap `json:"metadata,omitempty"`
}

func (g *Gateway) routes() map[string]eventHandler {
	return map[string]eventHandler{
		model.EventGetOfflineNotifications:   g.handleGetOffline,
		model.EventClearOfflineNotifications: g.handleClearOffline,
		model.EventJoinRoom:                  g.handleJoinRoom,
		model.EventLeaveRoom:                 g.handleLeaveRoom,
		model.EventJoinTask:                  g.handleJoinTask,
		model.EventLeaveTask:                 g.handleLeaveTask,
		model.EventTaskTyping:                g.handleTyping,
		model.EventUserPresence:              g.handlePresence,
		model.EventGetOnlineUsers:            g.handleOnlineUsers,
		model.EventDirectMessage:             g.handleDirectMessage,
		model.EventTaskActivity:              g.handleActivity,
		model.EventPing:                      g.handlePing,
	}
}

func (g *Gateway) dispatch(c *Client, msg inbound) {
	if !c.limiter.Allow() {
		g.metrics.InboundEvents.WithLabelValues(msg.Event, "throttled").Inc()
		c.Emit(model.EventError, errorPayload{Event: msg.Event, Message: "rate limit exceeded"})
		return
	}

	handler, ok := g.handlers[msg.Event]
	if !ok {
		g.metrics.InboundEvents.WithLabelValues("unknown", "rejected").Inc()
		c.Emit(model.EventError, errorPayload{Event: msg.Event, Message: "unknown event"})
		return
	}

	ctx := context.Background()
	if msg.Event != model.EventPing && c.shouldTouch(g.now(), g.opts.TouchInterval) {
		g.presence.Touch(ctx, c.session)
	}

	if err := handler(ctx, c, msg.Data); err != nil {
		g.metrics.InboundEvents.WithLabelValues(msg.Event, "error").Inc()
		c.Emit(model.EventError, errorPayload{Event: msg.Event, Message: err.Error()})
		return
	}
	g.metrics.InboundEvents.WithLabelValues(msg.Event, "ok").Inc()
}

func (g *Gateway) decode(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return errors.New("invalid payload")
	}
	return g.validator.Validate(dst)
}

func (g *Gateway) handleGetOffline(ctx context.Context, c *Client, _ json.RawMessage) error {
	c.Emit(model.EventOfflineNotifications, g.offline.Drain(ctx, c.session.UserID))
	return nil
}

func (g *Gateway) handleClearOffline(ctx context.Context, c *Client, _ json.RawMessage) error {
	g.offline.Clear(ctx, c.session.UserID)
	c.Emit(model.EventNotificationsCleared, map[string]string{"userId": c.session.UserID})
	return nil
}

func (g *Gateway) handleJoinRoom(_ context.Context, c *Client, data json.RawMessage) error {
	var req roomRequest
	if err := g.decode(data, &req); err != nil {
		return err
	}
	if model.ReservedRoom(req.Room) {
		return errReservedRoom
	}
	g.hub.Join(c, req.Room)
	c.Emit(model.EventRoomJoined, req)
	return nil
}

func (g *Gateway) handleLeaveRoom(_ context.Context, c *Client, data json.RawMessage) error {
	var req roomRequest
	if err := g.decode(data, &req); err != nil {
		return err
	}
	if model.ReservedRoom(req.Room) {
		return errReservedRoom
	}
	g.hub.Leave(c, req.Room)
	c.Emit(model.EventRoomLeft, req)
	return nil
}

func (g *Gateway) handleJoinTask(_ context.Context, c *Client, data json.RawMessage) error {
	var req taskRequest
	if err := g.decode(data, &req); err != nil {
		return err
	}
	g.hub.Join(c, model.TaskRoom(req.TaskID))
	c.Emit(model.EventTaskJoined, req)
	return nil
}

func (g *Gateway) handleLeaveTask(_ context.Context, c *Client, data json.RawMessage) error {
	var req taskRequest
	if err := g.decode(data, &req); err != nil {
		return err
	}
	g.hub.Leave(c, model.TaskRoom(req.TaskID))
	c.Emit(model.EventTaskLeft, req)
	return nil
}

func (g *Gateway) handleTyping(_ context.Context, c *Client, data json.RawMessage) error {
	var req typingRequest
	if err := g.decode(data, &req); err != nil {
		return err
	}
	g.hub.EmitToRoomExcept(model.TaskRoom(req.TaskID), model.EventTaskUserTyping, map[string]interface{}{
		"taskId":   req.TaskID,
		"userId":   c.session.UserID,
		"name":     c.session.Name,
		"isTyping": req.IsTyping,
	}, c)
	return nil
}

func (g *Gateway) handlePresence(ctx context.Context, c *Client, data json.RawMessage) error {
	var req presenceRequest
	if err := g.decode(data, &req); err != nil {
		return err
	}
	c.session.Status = req.Status
	g.presence.Put(ctx, c.session)

	g.hub.Broadcast(model.EventPresenceUpdate, presenceEvent{
		UserID:    c.session.UserID,
		Name:      c.session.Name,
		Role:      c.session.Role,
		Status:    req.Status,
		Timestamp: g.now().UTC(),
	}, c.session.UserID)
	return nil
}

func (g *Gateway) handleOnlineUsers(ctx context.Context, c *Client, _ json.RawMessage) error {
	c.Emit(model.EventOnlineUsers, g.presence.ListOnline(ctx))
	return nil
}

func (g *Gateway) handleDirectMessage(_ context.Context, c *Client, data json.RawMessage) error {
	var req directMessageRequest
	if err := g.decode(data, &req); err != nil {
		return err
	}
	if req.RecipientID == c.session.UserID {
		return errSelfMessage
	}
	msg := g.dispatcher.Direct(c.session, req.RecipientID, req.Message, req.Type)
	c.Emit(model.EventMessageSent, msg)
	return nil
}

func (g *Gateway) handleActivity(_ context.Context, c *Client, data json.RawMessage) error {
	var req activityRequest
	if err := g.decode(data, &req); err != nil {
		return err
	}
	g.hub.EmitToRoomExcept(model.TaskRoom(req.TaskID), model.EventTaskActivity, map[string]interface{}{
		"taskId":    req.TaskID,
		"userId":    c.session.UserID,
		"name":      c.session.Name,
		"activity":  req.Activity,
		"metadata":  req.Metadata,
		"timestamp": g.now().UTC(),
	}, c)
	return nil
}

func (g *Gateway) handlePing(ctx context.Context, c *Client, _ json.RawMessage) error {
	g.presence.Touch(ctx, c.session)
	c.Emit(model.EventPong, map[string]time.Time{"timestamp": g.now().UTC()})
	return nil
}
