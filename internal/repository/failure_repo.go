package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

type FailureRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewFailureRepository(db *pgxpool.Pool, logger *zap.Logger) *FailureRepository {
	return &FailureRepository{
		db:     db,
		logger: logger,
	}
}

func (r *FailureRepository) Insert(ctx context.Context, f *model.FailureRecord) error {
	start := time.Now()
	defer metrics.ObserveDBQuery("insert", "failed_notifications", start)

	query := `
        INSERT INTO failed_notifications
            (user_id, channel, destination, subject, body, error, failed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	err := r.db.QueryRow(ctx, query,
		f.UserID,
		f.Channel,
		f.Destination,
		f.Subject,
		f.Body,
		f.Error,
		f.FailedAt,
	).Scan(&f.ID)
	if err != nil {
		r.logger.Error("Failed to insert failure record",
			zap.String("user_id", f.UserID),
			zap.Error(err),
		)
		return err
	}

	metrics.FailureRecords.WithLabelValues(string(f.Channel)).Inc()
	r.logger.Warn("Failure record written",
		zap.Int64("id", f.ID),
		zap.String("user_id", f.UserID),
		zap.String("channel", string(f.Channel)),
		zap.String("error", f.Error),
	)
	return nil
}

// List returns failure records newest first. An empty channel means all
// channels; limit <= 0 defaults to 100.
func (r *FailureRepository) List(ctx context.Context, channel model.Channel, limit int) ([]model.FailureRecord, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("select", "failed_notifications", start)

	if limit <= 0 {
		limit = 100
	}

	query := `
        SELECT id, user_id, channel, destination, subject, body, error, failed_at
        FROM failed_notifications
        WHERE ($1 = '' OR channel = $1)
        ORDER BY failed_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, string(channel), limit)
	if err != nil {
		r.logger.Error("Failed to list failure records", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var records []model.FailureRecord
	for rows.Next() {
		var f model.FailureRecord
		if err := rows.Scan(
			&f.ID,
			&f.UserID,
			&f.Channel,
			&f.Destination,
			&f.Subject,
			&f.Body,
			&f.Error,
			&f.FailedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, f)
	}
	return records, rows.Err()
}
