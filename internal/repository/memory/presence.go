package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
)

// presenceRepository is a single-node presence store. Expired records vanish from
// Get and ListOnline immediately; Reap releases their memory.
type presenceRepository struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration
}

func NewPresenceRepository(ttl time.Duration) repository.PresenceRepository {
	if ttl <= 0 {
		ttl = repository.DefaultPresenceTTL
	}
	return &presenceRepository{
		cache: cache.New(ttl, cache.NoExpiration),
		ttl:   ttl,
	}
}

func (r *presenceRepository) Put(_ context.Context, session *model.Session) error {
	stored := *session
	r.cache.Set(session.UserID, &stored, r.ttl)
	return nil
}

func (r *presenceRepository) Touch(_ context.Context, userID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.cache.Get(userID)
	if !ok {
		return repository.ErrNotFound
	}
	touched := *item.(*model.Session)
	touched.LastSeen = at
	// Replace fails if the record expired in between.
	if err := r.cache.Replace(userID, &touched, r.ttl); err != nil {
		return repository.ErrNotFound
	}
	return nil
}

func (r *presenceRepository) Remove(_ context.Context, userID string) error {
	r.cache.Delete(userID)
	return nil
}

func (r *presenceRepository) Get(_ context.Context, userID string) (*model.Session, error) {
	item, ok := r.cache.Get(userID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	session := *item.(*model.Session)
	return &session, nil
}

func (r *presenceRepository) ListOnline(_ context.Context) ([]*model.Session, error) {
	items := r.cache.Items()
	sessions := make([]*model.Session, 0, len(items))
	for _, item := range items {
		session := *item.Object.(*model.Session)
		sessions = append(sessions, &session)
	}
	return sessions, nil
}

func (r *presenceRepository) Reap(_ context.Context) (int, error) {
	before := r.cache.ItemCount()
	r.cache.DeleteExpired()
	return before - r.cache.ItemCount(), nil
}

func (r *presenceRepository) Ping(context.Context) error {
	return nil
}
