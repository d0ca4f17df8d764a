package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"CrisisDesk/config"
	"CrisisDesk/internal/notify"
	"CrisisDesk/internal/queue"
	"CrisisDesk/internal/repository"
	"CrisisDesk/pkg/logger"
	"CrisisDesk/pkg/metrics"
	pkgotel "CrisisDesk/pkg/otel"
	"CrisisDesk/storage"
	"CrisisDesk/storage/database"
	"CrisisDesk/storage/mq"
	"CrisisDesk/storage/redis"
	"CrisisDesk/utils"
)

func main() {
	config.Init()

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOTel, err := pkgotel.Setup(ctx, "worker")
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdownOTel(context.Background()); err != nil {
			logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	cipher, err := utils.NewCipher(config.Cfg.EncryptionKey)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize PHI cipher", zap.Error(err))
	}

	store := repository.NewInterventionStore(database.DB(), cipher, logger.Named("repository"))
	consumer := queue.NewFollowUpConsumer(
		store,
		notify.NewCrisisTeamBroadcaster(mq.Broker{}, logger.Named("notify")),
		queue.NewMessageMarker(redis.Client(), redis.Key("follow_up")),
		logger.Named("follow_up_consumer"),
	)

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	// 阻塞直到收到退出信号
	if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Logger.Error("Follow-up consumer stopped unexpectedly", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
