package offline

import (
	"context"
	"time"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
	"github.com/jwalitptl/task-notifier/internal/service/store"
)

type Service interface {
	// Append stores content for later and returns the stored notification, or nil if the
	// store could not take it.
	Append(ctx context.Context, userID string, content model.NotificationContent) *model.Notification
	Drain(ctx context.Context, userID string) []*model.Notification
	Clear(ctx context.Context, userID string)
	Ping(ctx context.Context) error
}

type service struct {
	repo  repository.OfflineRepository
	guard *store.Guard
	now   func() time.Time
}

func NewService(repo repository.OfflineRepository, guard *store.Guard) Service {
	return &service{repo: repo, guard: guard, now: time.Now}
}

func (s *service) Append(ctx context.Context, userID string, content model.NotificationContent) *model.Notification {
	if userID == "" {
		return nil
	}
	notification := model.NewNotification(content, s.now().UTC())

	ok := s.guard.Run("append", userID, func() error {
		return s.repo.Append(ctx, userID, notification)
	})
	if !ok {
		return nil
	}
	return notification
}

func (s *service) Drain(ctx context.Context, userID string) []*model.Notification {
	notifications := []*model.Notification{}
	s.guard.Run("drain", userID, func() error {
		found, err := s.repo.Drain(ctx, userID)
		if err != nil {
			return err
		}
		notifications = found
		return nil
	})
	return notifications
}

func (s *service) Clear(ctx context.Context, userID string) {
	s.guard.Run("clear", userID, func() error {
		return s.repo.Clear(ctx, userID)
	})
}

func (s *service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
