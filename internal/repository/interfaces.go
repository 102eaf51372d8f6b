package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/task-notifier/internal/model"
)

// ErrNotFound is returned by lookups that find no live record.
var ErrNotFound = errors.New("record not found")

const (
	DefaultPresenceTTL       = time.Hour
	DefaultOfflineMaxEntries = 50
	DefaultOfflineTTL        = 7 * 24 * time.Hour
)

type (
	// PresenceRepository keeps one session record per user plus the set of online user ids.
	PresenceRepository interface {
		Put(ctx context.Context, session *model.Session) error
		// Touch renews the record TTL and lastSeen and re-adds the user to the online set.
		// A missing record is left absent and reported as ErrNotFound.
		Touch(ctx context.Context, userID string, at time.Time) error
		Remove(ctx context.Context, userID string) error
		Get(ctx context.Context, userID string) (*model.Session, error)
		// ListOnline resolves the online set to records, skipping expired ones.
		ListOnline(ctx context.Context) ([]*model.Session, error)
		// Reap drops online-set members whose record has expired and returns how many.
		Reap(ctx context.Context) (int, error)
		Ping(ctx context.Context) error
	}

	// OfflineRepository keeps a bounded, newest-first notification queue per user.
	OfflineRepository interface {
		Append(ctx context.Context, userID string, notification *model.Notification) error
		Drain(ctx context.Context, userID string) ([]*model.Notification, error)
		Clear(ctx context.Context, userID string) error
		Ping(ctx context.Context) error
	}
)

// StoreLimits bounds offline queues.
type StoreLimits struct {
	MaxEntries int
	TTL        time.Duration
}

func (l StoreLimits) WithDefaults() StoreLimits {
	if l.MaxEntries <= 0 {
		l.MaxEntries = DefaultOfflineMaxEntries
	}
	if l.TTL <= 0 {
		l.TTL = DefaultOfflineTTL
	}
	return l
}
