// Package delivery consumes channel topics and drives messages through
// the channel transport, batching and retrying as configured.
package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	contracts "notifyhub/contracts/mq"
	"notifyhub/internal/model"
	"notifyhub/pkg/metrics"
)

// Transport sends one message over a concrete channel provider.
type Transport interface {
	Channel() model.Channel
	Resolve(ctx context.Context, userID string) (string, error)
	Send(ctx context.Context, destination string, msg contracts.NotificationMessage) error
}

// FailureStore records deliveries that exhausted their retries.
type FailureStore interface {
	Insert(ctx context.Context, f *model.FailureRecord) error
}

type Options struct {
	BatchSize     int
	DrainInterval time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
}

type Worker struct {
	transport Transport
	failures  FailureStore
	opts      Options
	buffer    *batchBuffer
	logger    *zap.Logger
	wg        sync.WaitGroup
	sleep     func(context.Context, time.Duration)
	now       func() time.Time
}

func NewWorker(transport Transport, failures FailureStore, opts Options, logger *zap.Logger) *Worker {
	return &Worker{
		transport: transport,
		failures:  failures,
		opts:      opts,
		buffer:    newBatchBuffer(opts.BatchSize),
		logger:    logger,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// HandleMessage is the bus handler. Malformed payloads return nil so the
// consumer acks and drops them; valid payloads are always accepted and
// any delivery failure is handled internally.
func (w *Worker) HandleMessage(ctx context.Context, body []byte) error {
	var msg contracts.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		metrics.Deliveries.WithLabelValues(string(w.transport.Channel()), "dropped").Inc()
		w.logger.Error("dropping malformed message",
			zap.String("channel", string(w.transport.Channel())),
			zap.Error(err),
		)
		return nil
	}

	if msg.IsBatch {
		if batch := w.buffer.Add(msg); batch != nil {
			w.deliverBatchAsync(ctx, batch)
		}
		return nil
	}

	// Own goroutine so a backoff sleep never stalls ingress.
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliver(ctx, msg)
	}()
	return nil
}

// RunDrain flushes partial batches on a fixed interval until ctx is
// cancelled.
func (w *Worker) RunDrain(ctx context.Context) {
	ticker := time.NewTicker(w.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if batch := w.buffer.Drain(); batch != nil {
				w.deliverBatch(ctx, batch)
			}
			return
		case <-ticker.C:
			if batch := w.buffer.Drain(); batch != nil {
				w.deliverBatchAsync(ctx, batch)
			}
		}
	}
}

// Wait blocks until in-flight deliveries finish.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) deliverBatchAsync(ctx context.Context, batch []contracts.NotificationMessage) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.deliverBatch(ctx, batch)
	}()
}

func (w *Worker) deliverBatch(ctx context.Context, batch []contracts.NotificationMessage) {
	metrics.BatchFlushSize.WithLabelValues(string(w.transport.Channel())).Observe(float64(len(batch)))
	w.logger.Info("flushing batch",
		zap.String("channel", string(w.transport.Channel())),
		zap.Int("size", len(batch)),
	)
	for _, msg := range batch {
		w.deliver(ctx, msg)
	}
}

func (w *Worker) deliver(ctx context.Context, msg contracts.NotificationMessage) {
	channel := string(w.transport.Channel())

	dest, err := w.transport.Resolve(ctx, msg.UserID)
	if err != nil {
		metrics.Deliveries.WithLabelValues(channel, "dropped").Inc()
		if errors.Is(err, model.ErrProfileNotFound) {
			w.logger.Warn("no destination for user, dropping",
				zap.String("channel", channel),
				zap.String("user_id", msg.UserID),
			)
		} else {
			w.logger.Error("destination resolution failed, dropping",
				zap.String("channel", channel),
				zap.String("user_id", msg.UserID),
				zap.Error(err),
			)
		}
		return
	}

	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		lastErr = w.transport.Send(ctx, dest, msg)
		if lastErr == nil {
			metrics.Deliveries.WithLabelValues(channel, "sent").Inc()
			w.logger.Info("delivered",
				zap.String("channel", channel),
				zap.String("user_id", msg.UserID),
				zap.Int("attempt", attempt),
			)
			return
		}

		w.logger.Warn("delivery attempt failed",
			zap.String("channel", channel),
			zap.String("user_id", msg.UserID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt < w.opts.MaxAttempts {
			metrics.DeliveryRetries.WithLabelValues(channel).Inc()
			w.sleep(ctx, w.opts.BackoffBase*(1<<attempt))
		}
	}

	metrics.Deliveries.WithLabelValues(channel, "failed").Inc()
	record := &model.FailureRecord{
		UserID:      msg.UserID,
		Channel:     w.transport.Channel(),
		Destination: dest,
		Subject:     msg.Content.Header,
		Body:        msg.Content.Message,
		Error:       lastErr.Error(),
		FailedAt:    w.now(),
	}
	if err := w.failures.Insert(ctx, record); err != nil {
		w.logger.Error("failed to write failure record",
			zap.String("channel", channel),
			zap.String("user_id", msg.UserID),
			zap.Error(err),
		)
	}
}
