package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

type PreferenceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPreferenceRepository(db *pgxpool.Pool, logger *zap.Logger) *PreferenceRepository {
	return &PreferenceRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert replaces the user's whole channel set.
func (r *PreferenceRepository) Upsert(ctx context.Context, p *model.Preference) error {
	start := time.Now()
	defer metrics.ObserveDBQuery("upsert", "notification_preferences", start)

	channels := make([]string, len(p.Channels))
	for i, ch := range p.Channels {
		channels[i] = string(ch)
	}

	query := `
        INSERT INTO notification_preferences (user_id, channels)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE SET channels = EXCLUDED.channels
    `
	if _, err := r.db.Exec(ctx, query, p.UserID, channels); err != nil {
		r.logger.Error("Failed to upsert preferences",
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("Preferences updated",
		zap.String("user_id", p.UserID),
		zap.Strings("channels", channels),
	)
	return nil
}

// Get returns the stored preference, or ErrPreferencesNotFound when the
// user has never registered one.
func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*model.Preference, error) {
	start := time.Now()
	defer metrics.ObserveDBQuery("select", "notification_preferences", start)

	var channels []string
	err := r.db.QueryRow(ctx,
		`SELECT channels FROM notification_preferences WHERE user_id = $1`,
		userID,
	).Scan(&channels)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrPreferencesNotFound, userID)
	}
	if err != nil {
		r.logger.Error("Failed to get preferences",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}

	p := &model.Preference{UserID: userID}
	for _, ch := range channels {
		p.Channels = append(p.Channels, model.Channel(ch))
	}
	return p, nil
}
