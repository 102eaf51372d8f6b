package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
)

type offlineRepository struct {
	mu     sync.Mutex
	cache  *cache.Cache
	limits repository.StoreLimits
}

func NewOfflineRepository(limits repository.StoreLimits, cleanupInterval time.Duration) repository.OfflineRepository {
	limits = limits.WithDefaults()
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}
	return &offlineRepository{
		cache:  cache.New(limits.TTL, cleanupInterval),
		limits: limits,
	}
}

func (r *offlineRepository) Append(_ context.Context, userID string, notification *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var queue []*model.Notification
	if item, ok := r.cache.Get(userID); ok {
		queue = item.([]*model.Notification)
	}

	stored := *notification
	next := make([]*model.Notification, 0, len(queue)+1)
	next = append(next, &stored)
	next = append(next, queue...)
	if len(next) > r.limits.MaxEntries {
		next = next[:r.limits.MaxEntries]
	}

	r.cache.Set(userID, next, r.limits.TTL)
	return nil
}

func (r *offlineRepository) Drain(_ context.Context, userID string) ([]*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.cache.Get(userID)
	if !ok {
		return []*model.Notification{}, nil
	}
	queue := item.([]*model.Notification)
	out := make([]*model.Notification, len(queue))
	for i, n := range queue {
		copied := *n
		out[i] = &copied
	}
	return out, nil
}

func (r *offlineRepository) Clear(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Delete(userID)
	return nil
}

func (r *offlineRepository) Ping(context.Context) error {
	return nil
}
