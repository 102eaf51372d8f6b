package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
)

const (
	presenceKeyPrefix = "presence:user:"
	onlineSetKey      = "presence:online"
)

type presenceRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresenceRepository(client *redis.Client, ttl time.Duration) repository.PresenceRepository {
	if ttl <= 0 {
		ttl = repository.DefaultPresenceTTL
	}
	return &presenceRepository{client: client, ttl: ttl}
}

func presenceKey(userID string) string {
	return presenceKeyPrefix + userID
}

func (r *presenceRepository) Put(ctx context.Context, session *model.Session) error {
	key := presenceKey(session.UserID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, sessionFields(session))
		pipe.Expire(ctx, key, r.ttl)
		pipe.SAdd(ctx, onlineSetKey, session.UserID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store presence for %s: %w", session.UserID, err)
	}
	return nil
}

func (r *presenceRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	key := presenceKey(userID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "lastSeen", at.UTC().Format(time.RFC3339Nano))
			pipe.Expire(ctx, key, r.ttl)
			// a concurrent Reap may have dropped the id after its existence check
			pipe.SAdd(ctx, onlineSetKey, userID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, repository.ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to touch presence for %s: %w", userID, err)
	}
	return nil
}

func (r *presenceRepository) Remove(ctx context.Context, userID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, presenceKey(userID))
		pipe.SRem(ctx, onlineSetKey, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove presence for %s: %w", userID, err)
	}
	return nil
}

func (r *presenceRepository) Get(ctx context.Context, userID string) (*model.Session, error) {
	fields, err := r.client.HGetAll(ctx, presenceKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get presence for %s: %w", userID, err)
	}
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}
	return sessionFromFields(fields), nil
}

func (r *presenceRepository) ListOnline(ctx context.Context) ([]*model.Session, error) {
	ids, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	if len(ids) == 0 {
		return []*model.Session{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, presenceKey(id))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load online sessions: %w", err)
	}

	sessions := make([]*model.Session, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		sessions = append(sessions, sessionFromFields(fields))
	}
	return sessions, nil
}

func (r *presenceRepository) Reap(ctx context.Context) (int, error) {
	ids, err := r.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list online users: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.IntCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.Exists(ctx, presenceKey(id))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to check presence records: %w", err)
	}

	var stale []interface{}
	for i, cmd := range cmds {
		if cmd.Val() == 0 {
			stale = append(stale, ids[i])
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	removed, err := r.client.SRem(ctx, onlineSetKey, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to reap online set: %w", err)
	}
	return int(removed), nil
}

func (r *presenceRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func sessionFields(s *model.Session) map[string]interface{} {
	return map[string]interface{}{
		"userId":      s.UserID,
		"socketId":    s.SocketID,
		"email":       s.Email,
		"name":        s.Name,
		"role":        string(s.Role),
		"status":      string(s.Status),
		"connectedAt": s.ConnectedAt.UTC().Format(time.RFC3339Nano),
		"lastSeen":    s.LastSeen.UTC().Format(time.RFC3339Nano),
	}
}

func sessionFromFields(fields map[string]string) *model.Session {
	s := &model.Session{
		UserID:   fields["userId"],
		SocketID: fields["socketId"],
		Email:    fields["email"],
		Name:     fields["name"],
		Role:     model.Role(fields["role"]),
		Status:   model.PresenceStatus(fields["status"]),
	}
	s.ConnectedAt, _ = time.Parse(time.RFC3339Nano, fields["connectedAt"])
	s.LastSeen, _ = time.Parse(time.RFC3339Nano, fields["lastSeen"])
	return s
}
