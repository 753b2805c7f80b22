// Package router fans a send request out to the bus topics of the
// channels a user accepts, persisting an intent row per channel first.
package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	contracts "notifyhub/contracts/mq"
	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

// Publisher pushes a payload onto a bus topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// IntentStore persists notification intents.
type IntentStore interface {
	Create(ctx context.Context, n *model.Intent) (int64, error)
}

// PreferenceStore resolves a user's enabled channel set.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*model.Preference, error)
}

type Router struct {
	intents     IntentStore
	preferences PreferenceStore
	publisher   Publisher
	topics      map[model.Channel]string
	logger      *zap.Logger
	now         func() time.Time
}

func New(intents IntentStore, preferences PreferenceStore, publisher Publisher, topics map[model.Channel]string, logger *zap.Logger) *Router {
	return &Router{
		intents:     intents,
		preferences: preferences,
		publisher:   publisher,
		topics:      topics,
		logger:      logger,
		now:         time.Now,
	}
}

// SendToChannel persists an intent for the request's channel and, when the
// request is not scheduled for later, publishes it to the channel's topic.
// Persistence failure aborts; publish failure is logged and swallowed
// since the pending row remains visible to the scheduler sweep.
func (r *Router) SendToChannel(ctx context.Context, req model.SendRequest) error {
	topic, ok := r.topics[req.Channel]
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnsupportedChannel, req.Channel)
	}

	scheduled := req.ScheduledTime != nil
	intent := &model.Intent{
		UserID:   req.UserID,
		Content:  req.Content,
		Channel:  req.Channel,
		Status:   model.StatusPending,
		Priority: req.Priority,
		IsBatch:  req.IsBatch,
	}
	if scheduled {
		intent.ScheduledTime = *req.ScheduledTime
	} else {
		intent.ScheduledTime = r.now()
	}

	if _, err := r.intents.Create(ctx, intent); err != nil {
		return fmt.Errorf("failed to persist notification: %w", err)
	}

	if scheduled {
		r.logger.Debug("Notification scheduled",
			zap.Int64("id", intent.ID),
			zap.String("user_id", req.UserID),
			zap.Time("scheduled_time", intent.ScheduledTime),
		)
		return nil
	}

	msg := contracts.NotificationMessage{
		UserID:   req.UserID,
		Channel:  req.Channel,
		Content:  req.Content,
		Priority: req.Priority,
		IsBatch:  req.IsBatch,
	}
	if err := r.publisher.Publish(ctx, topic, msg); err != nil {
		metrics.PublishFailures.WithLabelValues(string(req.Channel)).Inc()
		r.logger.Warn("Publish failed, notification stays pending",
			zap.Int64("id", intent.ID),
			zap.String("topic", topic),
			zap.Error(err),
		)
		return nil
	}

	metrics.NotificationsPublished.WithLabelValues(string(req.Channel)).Inc()
	r.logger.Info("Notification published",
		zap.Int64("id", intent.ID),
		zap.String("user_id", req.UserID),
		zap.String("topic", topic),
	)
	return nil
}

// Dispatch publishes an already-persisted intent to its channel topic.
// The scheduler's claim path uses it; unlike SendToChannel no new row is
// created, and a publish failure is surfaced so the claimed row is not
// retired.
func (r *Router) Dispatch(ctx context.Context, n *model.Intent) error {
	topic, ok := r.topics[n.Channel]
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnsupportedChannel, n.Channel)
	}

	msg := contracts.NotificationMessage{
		UserID:   n.UserID,
		Channel:  n.Channel,
		Content:  n.Content,
		Priority: n.Priority,
		IsBatch:  n.IsBatch,
	}
	if err := r.publisher.Publish(ctx, topic, msg); err != nil {
		metrics.PublishFailures.WithLabelValues(string(n.Channel)).Inc()
		return fmt.Errorf("failed to publish notification %d: %w", n.ID, err)
	}

	metrics.NotificationsPublished.WithLabelValues(string(n.Channel)).Inc()
	r.logger.Info("Notification dispatched",
		zap.Int64("id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("topic", topic),
	)
	return nil
}

// SendToAllChannels fans the request out to every channel the user has
// enabled. Scheduled fan-out is not supported; the request is skipped when
// a scheduled time is present.
func (r *Router) SendToAllChannels(ctx context.Context, req model.SendRequest) error {
	if req.ScheduledTime != nil {
		r.logger.Warn("Scheduled send-to-all not supported, skipping",
			zap.String("user_id", req.UserID),
		)
		return nil
	}

	pref, err := r.preferences.Get(ctx, req.UserID)
	if err != nil {
		return err
	}

	for _, ch := range pref.Channels {
		chReq := req
		chReq.Channel = ch
		if err := r.SendToChannel(ctx, chReq); err != nil {
			return fmt.Errorf("fan-out to %s: %w", ch, err)
		}
	}
	return nil
}
