package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

type IntentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewIntentRepository(db *pgxpool.Pool, logger *zap.Logger) *IntentRepository {
	return &IntentRepository{
		db:     db,
		logger: logger,
	}
}

// InitSchema creates the notification tables if they do not exist yet.
func (r *IntentRepository) InitSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
            id             BIGSERIAL PRIMARY KEY,
            user_id        TEXT        NOT NULL,
            content        JSONB       NOT NULL,
            channel        TEXT        NOT NULL,
            status         TEXT        NOT NULL DEFAULT 'PENDING',
            priority       TEXT        NOT NULL DEFAULT 'LOW',
            is_batch       BOOLEAN     NOT NULL DEFAULT FALSE,
            scheduled_time TIMESTAMPTZ,
            recurring      BOOLEAN     NOT NULL DEFAULT FALSE,
            pattern        TEXT        NOT NULL DEFAULT '',
            created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_due
            ON notifications (scheduled_time)
            WHERE status = 'PENDING'`,
		`CREATE TABLE IF NOT EXISTS notification_preferences (
            user_id  TEXT PRIMARY KEY,
            channels TEXT[] NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS failed_notifications (
            id          BIGSERIAL PRIMARY KEY,
            user_id     TEXT        NOT NULL,
            channel     TEXT        NOT NULL,
            destination TEXT        NOT NULL,
            subject     TEXT        NOT NULL,
            body        TEXT        NOT NULL,
            error       TEXT        NOT NULL,
            failed_at   TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (r *IntentRepository) Create(ctx context.Context, n *model.Intent) (int64, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("insert", "notifications", start)

	content, err := json.Marshal(n.Content)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal content: %w", err)
	}

	query := `
        INSERT INTO notifications
            (user_id, content, channel, status, priority, is_batch, scheduled_time, recurring, pattern)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id, created_at
    `
	var scheduled *time.Time
	if !n.ScheduledTime.IsZero() {
		scheduled = &n.ScheduledTime
	}

	err = r.db.QueryRow(ctx, query,
		n.UserID,
		content,
		n.Channel,
		n.Status,
		n.Priority,
		n.IsBatch,
		scheduled,
		n.Recurring,
		n.Pattern,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert notification",
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
		return 0, err
	}

	r.logger.Debug("Notification inserted",
		zap.Int64("id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("channel", string(n.Channel)),
	)
	return n.ID, nil
}

func (r *IntentRepository) ListByUser(ctx context.Context, userID string) ([]model.Intent, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("select", "notifications", start)

	query := `
        SELECT id, user_id, content, channel, status, priority, is_batch,
               scheduled_time, recurring, pattern, created_at
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return scanIntents(rows)
}

// FindDue returns pending notifications whose scheduled time has passed,
// oldest first, up to limit rows.
func (r *IntentRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]model.Intent, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("select", "notifications", start)

	query := `
        SELECT id, user_id, content, channel, status, priority, is_batch,
               scheduled_time, recurring, pattern, created_at
        FROM notifications
        WHERE status = 'PENDING' AND scheduled_time IS NOT NULL AND scheduled_time <= $1
        ORDER BY scheduled_time ASC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		r.logger.Error("Failed to find due notifications", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	return scanIntents(rows)
}

// Claim flips one notification from PENDING to PROCESSING. It reports false
// when another sweep already took the row, so at most one caller wins.
func (r *IntentRepository) Claim(ctx context.Context, id int64) (bool, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("update", "notifications", start)

	query := `
        UPDATE notifications
        SET status = 'PROCESSING'
        WHERE id = $1 AND status = 'PENDING'
    `
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to claim notification", zap.Int64("id", id), zap.Error(err))
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Reschedule moves a recurring notification to its next occurrence and
// reopens it for the scheduler.
func (r *IntentRepository) Reschedule(ctx context.Context, id int64, next time.Time) error {
	start := time.Now()
	defer metrics.ObserveDBQuery("update", "notifications", start)

	query := `
        UPDATE notifications
        SET status = 'PENDING', scheduled_time = $2
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, id, next)
	if err != nil {
		r.logger.Error("Failed to reschedule notification", zap.Int64("id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *IntentRepository) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	defer metrics.ObserveDBQuery("delete", "notifications", start)

	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete notification", zap.Int64("id", id), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Reclaim reopens notifications stuck in PROCESSING longer than age. It is
// a recovery sweep for workers that died between claim and delivery.
func (r *IntentRepository) Reclaim(ctx context.Context, now time.Time, age time.Duration) (int64, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("update", "notifications", start)

	query := `
        UPDATE notifications
        SET status = 'PENDING'
        WHERE status = 'PROCESSING' AND scheduled_time <= $1
    `
	tag, err := r.db.Exec(ctx, query, now.Add(-age))
	if err != nil {
		r.logger.Error("Failed to reclaim stuck notifications", zap.Error(err))
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanIntents(rows pgx.Rows) ([]model.Intent, error) {
	var intents []model.Intent
	for rows.Next() {
		var (
			n         model.Intent
			content   []byte
			scheduled *time.Time
		)
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&content,
			&n.Channel,
			&n.Status,
			&n.Priority,
			&n.IsBatch,
			&scheduled,
			&n.Recurring,
			&n.Pattern,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(content, &n.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content for notification %d: %w", n.ID, err)
		}
		if scheduled != nil {
			n.ScheduledTime = *scheduled
		}
		intents = append(intents, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return intents, nil
}
