package notification

import (
	"context"
	"strings"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/service/dispatcher"
	"github.com/jwalitptl/task-notifier/pkg/errors"
	"github.com/jwalitptl/task-notifier/pkg/logger"
)

// Service injects notifications out-of-band, outside the lifecycle event flow.
type Service interface {
	// SendToUser delivers live or queues offline. It always counts one recipient.
	SendToUser(ctx context.Context, userID string, content model.NotificationContent) (int, error)
	// SendToRole is live-only and returns the number of sessions in the role room.
	SendToRole(ctx context.Context, role model.Role, content model.NotificationContent) (int, error)
	Broadcast(ctx context.Context, content model.NotificationContent) (int, error)
}

type service struct {
	dispatcher *dispatcher.Dispatcher
	logger     *logger.Logger
}

func NewService(d *dispatcher.Dispatcher, log *logger.Logger) Service {
	return &service{
		dispatcher: d,
		logger:     log.With("component", "notification"),
	}
}

func (s *service) SendToUser(ctx context.Context, userID string, content model.NotificationContent) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, errors.BadRequest("user id is required", nil)
	}
	if err := validateContent(content); err != nil {
		return 0, err
	}

	live, stored := s.dispatcher.ToUser(ctx, userID, content, true)
	s.logger.Info("Admin notification sent to user",
		"user_id", userID,
		"type", string(content.Type),
		"live_sessions", live,
		"stored", stored,
	)
	return 1, nil
}

func (s *service) SendToRole(ctx context.Context, role model.Role, content model.NotificationContent) (int, error) {
	if !role.Valid() {
		return 0, errors.BadRequest("invalid role: "+string(role), nil)
	}
	if err := validateContent(content); err != nil {
		return 0, err
	}

	n := s.dispatcher.ToRole(role, content, "")
	s.logger.Info("Admin notification sent to role", "role", string(role), "type", string(content.Type), "recipients", n)
	return n, nil
}

func (s *service) Broadcast(ctx context.Context, content model.NotificationContent) (int, error) {
	if err := validateContent(content); err != nil {
		return 0, err
	}

	n := s.dispatcher.ToAll(content)
	s.logger.Info("Admin notification broadcast", "type", string(content.Type), "recipients", n)
	return n, nil
}

func validateContent(content model.NotificationContent) error {
	switch {
	case content.Type == "":
		return errors.BadRequest("type is required", nil)
	case strings.TrimSpace(content.Title) == "":
		return errors.BadRequest("title is required", nil)
	case strings.TrimSpace(content.Message) == "":
		return errors.BadRequest("message is required", nil)
	}
	return nil
}
