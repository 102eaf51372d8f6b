package presence

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
	"github.com/jwalitptl/task-notifier/internal/service/store"
)

// Service is the best-effort presence API used by the gateway. Store failures are logged
// and turned into no-ops or empty results.
type Service interface {
	Put(ctx context.Context, session *model.Session)
	// Touch renews the session's record, writing it again when the store lost it.
	Touch(ctx context.Context, session *model.Session)
	Remove(ctx context.Context, userID string)
	Get(ctx context.Context, userID string) (*model.Session, bool)
	ListOnline(ctx context.Context) []*model.Session
	Reap(ctx context.Context) int
	Ping(ctx context.Context) error
}

type service struct {
	repo  repository.PresenceRepository
	guard *store.Guard
	now   func() time.Time
}

func NewService(repo repository.PresenceRepository, guard *store.Guard) Service {
	return &service{repo: repo, guard: guard, now: time.Now}
}

func (s *service) Put(ctx context.Context, session *model.Session) {
	if session == nil || session.UserID == "" {
		return
	}
	now := s.now().UTC()
	if session.ConnectedAt.IsZero() {
		session.ConnectedAt = now
	}
	session.LastSeen = now
	if session.Status == "" {
		session.Status = model.PresenceOnline
	}

	s.guard.Run("put", session.UserID, func() error {
		return s.repo.Put(ctx, session)
	})
}

func (s *service) Touch(ctx context.Context, session *model.Session) {
	if session == nil || session.UserID == "" {
		return
	}
	s.guard.Run("touch", session.UserID, func() error {
		now := s.now().UTC()
		err := s.repo.Touch(ctx, session.UserID, now)
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		// the connect-time write failed or the record was reaped while still connected
		if session.ConnectedAt.IsZero() {
			session.ConnectedAt = now
		}
		session.LastSeen = now
		if session.Status == "" {
			session.Status = model.PresenceOnline
		}
		return s.repo.Put(ctx, session)
	})
}

func (s *service) Remove(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	s.guard.Run("remove", userID, func() error {
		return s.repo.Remove(ctx, userID)
	})
}

func (s *service) Get(ctx context.Context, userID string) (*model.Session, bool) {
	var session *model.Session
	s.guard.Run("get", userID, func() error {
		found, err := s.repo.Get(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		session = found
		return nil
	})
	return session, session != nil
}

func (s *service) ListOnline(ctx context.Context) []*model.Session {
	sessions := []*model.Session{}
	s.guard.Run("list_online", "", func() error {
		found, err := s.repo.ListOnline(ctx)
		if err != nil {
			return err
		}
		sessions = found
		return nil
	})
	return sessions
}

func (s *service) Reap(ctx context.Context) int {
	var reaped int
	s.guard.Run("reap", "", func() error {
		n, err := s.repo.Reap(ctx)
		reaped = n
		return err
	})
	return reaped
}

func (s *service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
