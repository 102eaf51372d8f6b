package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/internal/repository"
)

type offlineRow struct {
	ID        string             `db:"id"`
	Type      string             `db:"type"`
	Title     string             `db:"title"`
	Message   string             `db:"message"`
	Data      types.NullJSONText `db:"data"`
	CreatedAt time.Time          `db:"created_at"`
}

func (r offlineRow) notification() *model.Notification {
	n := &model.Notification{
		ID:        r.ID,
		Type:      model.NotificationType(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		Timestamp: r.CreatedAt,
	}
	if r.Data.Valid && len(r.Data.JSONText) > 0 {
		var data model.JSONMap
		if err := r.Data.Unmarshal(&data); err == nil {
			n.Data = data
		}
	}
	return n
}

type offlineRepository struct {
	BaseRepository
	limits repository.StoreLimits
	now    func() time.Time
}

func NewOfflineRepository(db *sqlx.DB, limits repository.StoreLimits) repository.OfflineRepository {
	return &offlineRepository{
		BaseRepository: NewBaseRepository(db),
		limits:         limits.WithDefaults(),
		now:            time.Now,
	}
}

const (
	insertOfflineQuery = `
		INSERT INTO offline_notifications (
			id, user_id, type, title, message, data, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	trimOfflineQuery = `
		DELETE FROM offline_notifications
		WHERE user_id = $1 AND seq NOT IN (
			SELECT seq FROM offline_notifications
			WHERE user_id = $1
			ORDER BY seq DESC
			LIMIT $2
		)`

	refreshOfflineQuery = `
		UPDATE offline_notifications SET expires_at = $2 WHERE user_id = $1`

	selectOfflineQuery = `
		SELECT id, type, title, message, data, created_at
		FROM offline_notifications
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY seq DESC`

	deleteOfflineQuery = `
		DELETE FROM offline_notifications WHERE user_id = $1`
)

func (r *offlineRepository) Append(ctx context.Context, userID string, notification *model.Notification) error {
	var data types.NullJSONText
	if notification.Data != nil {
		raw, err := json.Marshal(notification.Data)
		if err != nil {
			return fmt.Errorf("failed to encode notification data: %w", err)
		}
		data = types.NullJSONText{JSONText: raw, Valid: true}
	}

	now := r.now().UTC()
	expiresAt := now.Add(r.limits.TTL)

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, insertOfflineQuery,
			notification.ID,
			userID,
			string(notification.Type),
			notification.Title,
			notification.Message,
			data,
			notification.Timestamp,
			expiresAt,
		); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, trimOfflineQuery, userID, r.limits.MaxEntries); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, refreshOfflineQuery, userID, expiresAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to append offline notification for %s: %w", userID, err)
	}
	return nil
}

func (r *offlineRepository) Drain(ctx context.Context, userID string) ([]*model.Notification, error) {
	var rows []offlineRow
	if err := r.db.SelectContext(ctx, &rows, selectOfflineQuery, userID, r.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to read offline notifications for %s: %w", userID, err)
	}

	notifications := make([]*model.Notification, 0, len(rows))
	for _, row := range rows {
		notifications = append(notifications, row.notification())
	}
	return notifications, nil
}

func (r *offlineRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, deleteOfflineQuery, userID); err != nil {
		return fmt.Errorf("failed to clear offline notifications for %s: %w", userID, err)
	}
	return nil
}

func (r *offlineRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
