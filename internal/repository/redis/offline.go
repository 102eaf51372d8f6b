package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
)

const offlineKeyPrefix = "notifications:offline:"

type offlineRepository struct {
	client *redis.Client
	limits repository.StoreLimits
}

func NewOfflineRepository(client *redis.Client, limits repository.StoreLimits) repository.OfflineRepository {
	return &offlineRepository{client: client, limits: limits.WithDefaults()}
}

func offlineKey(userID string) string {
	return offlineKeyPrefix + userID
}

func (r *offlineRepository) Append(ctx context.Context, userID string, notification *model.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	key := offlineKey(userID)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, int64(r.limits.MaxEntries-1))
		pipe.Expire(ctx, key, r.limits.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append offline notification for %s: %w", userID, err)
	}
	return nil
}

func (r *offlineRepository) Drain(ctx context.Context, userID string) ([]*model.Notification, error) {
	raw, err := r.client.LRange(ctx, offlineKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read offline notifications for %s: %w", userID, err)
	}

	notifications := make([]*model.Notification, 0, len(raw))
	for _, item := range raw {
		var n model.Notification
		// corrupt entries are skipped
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			continue
		}
		notifications = append(notifications, &n)
	}
	return notifications, nil
}

func (r *offlineRepository) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, offlineKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to clear offline notifications for %s: %w", userID, err)
	}
	return nil
}

func (r *offlineRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
