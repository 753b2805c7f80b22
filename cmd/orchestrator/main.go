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
	"notifyhub/internal/handler"
	"notifyhub/internal/httpserver"
	"notifyhub/internal/model"
	"notifyhub/internal/repository"
	"notifyhub/internal/router"
	"notifyhub/internal/scheduler"
	"notifyhub/pkg/db"
	"notifyhub/pkg/logger"
	"notifyhub/pkg/mq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New()
	defer log.Sync()

	log.Info("Starting orchestrator...",
		zap.String("db_host", cfg.DB.Host),
		zap.String("mq_url", cfg.MQ.URL),
		zap.String("port", cfg.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DB.DSN(), log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer pool.Close()

	intentRepo := repository.NewIntentRepository(pool, log)
	preferenceRepo := repository.NewPreferenceRepository(pool, log)
	failureRepo := repository.NewFailureRepository(pool, log)

	if err := intentRepo.InitSchema(ctx); err != nil {
		log.Fatal("Failed to init schema", zap.Error(err))
	}

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	topics := map[model.Channel]string{
		model.ChannelEmail: cfg.Topics.Email,
		model.ChannelSMS:   cfg.Topics.SMS,
		model.ChannelPush:  cfg.Topics.Push,
	}
	fanout := router.New(intentRepo, preferenceRepo, publisher, topics, log)

	sched := scheduler.New(
		intentRepo,
		fanout,
		cfg.Scheduler.Interval,
		cfg.Scheduler.BatchLimit,
		cfg.Scheduler.ReclaimAfter,
		log,
	)
	go sched.Run(ctx)

	notificationHandler := handler.NewNotificationHandler(fanout, intentRepo, failureRepo, log)
	userHandler := handler.NewUserHandler(preferenceRepo, log)

	engine := httpserver.NewRouter(notificationHandler, userHandler, log, pool)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("orchestrator is fully initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down orchestrator gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	log.Info("orchestrator shutdown complete")
}
