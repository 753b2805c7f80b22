package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"notifyhub/internal/config"
	"notifyhub/internal/delivery"
	"notifyhub/internal/delivery/transport"
	"notifyhub/internal/httpserver"
	"notifyhub/internal/profile"
	"notifyhub/internal/repository"
	"notifyhub/pkg/db"
	"notifyhub/pkg/logger"
	"notifyhub/pkg/mq"
	redisclient "notifyhub/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New()
	defer log.Sync()

	log.Info("Starting delivery worker...",
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("profile_base_url", cfg.Profile.BaseURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DB.DSN(), log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()

	failureRepo := repository.NewFailureRepository(pool, log)

	cache, err := redisclient.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatal("Failed to init redis", zap.Error(err))
	}
	defer cache.Close()

	directory := profile.NewCachedDirectory(
		profile.NewClient(cfg.Profile.BaseURL, cfg.Profile.Timeout),
		cache,
		cfg.Redis.ProfileTTL,
		log,
	)

	channels := []struct {
		transport delivery.Transport
		topic     string
		channel   config.ChannelConfig
	}{
		{transport.NewEmail(cfg.SMTP, directory), cfg.Topics.Email, cfg.Delivery.Email},
		{transport.NewSMS(cfg.Twilio, directory), cfg.Topics.SMS, cfg.Delivery.SMS},
		{transport.NewPush(cfg.Push, directory), cfg.Topics.Push, cfg.Delivery.Push},
	}

	var consumers []*mq.Consumer
	var workers []*delivery.Worker
	for _, ch := range channels {
		worker := delivery.NewWorker(ch.transport, failureRepo, delivery.Options{
			BatchSize:     ch.channel.BatchSize,
			DrainInterval: ch.channel.DrainInterval,
			MaxAttempts:   ch.channel.MaxAttempts,
			BackoffBase:   ch.channel.BackoffBase,
		}, log)
		workers = append(workers, worker)
		go worker.RunDrain(ctx)

		consumer, err := mq.NewConsumer(cfg.MQ.URL, ch.channel.Queue, ch.topic, log)
		if err != nil {
			log.Fatal("Failed to init consumer",
				zap.String("topic", ch.topic),
				zap.Error(err),
			)
		}
		consumers = append(consumers, consumer)

		consumer.SetHandler(worker.HandleMessage)
		go func(c *mq.Consumer, topic string) {
			if err := c.StartConsuming(ctx); err != nil && err != context.Canceled {
				log.Error("Consumer stopped", zap.String("topic", topic), zap.Error(err))
			}
		}(consumer, ch.topic)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Server.WorkerPort,
		Handler: httpserver.NewWorkerRouter(pool, consumers),
	}
	go func() {
		log.Info("Health server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Health server failed", zap.Error(err))
		}
	}()

	log.Info("delivery worker is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down delivery worker gracefully...")
	for _, c := range consumers {
		c.Stop()
	}
	cancel()
	for _, w := range workers {
		w.Wait()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}

	log.Info("delivery worker shutdown complete")
}
