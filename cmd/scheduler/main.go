package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"CrisisDesk/config"
	"CrisisDesk/internal/queue"
	"CrisisDesk/internal/repository"
	"CrisisDesk/internal/schedule"
	"CrisisDesk/pkg/logger"
	"CrisisDesk/pkg/metrics"
	pkgotel "CrisisDesk/pkg/otel"
	"CrisisDesk/storage"
	"CrisisDesk/storage/database"
	"CrisisDesk/storage/mq"
	"CrisisDesk/utils"
)

func main() {
	config.Init()

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOTel, err := pkgotel.Setup(ctx, "scheduler")
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
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	cipher, err := utils.NewCipher(config.Cfg.EncryptionKey)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize PHI cipher", zap.Error(err))
	}
	store := repository.NewInterventionStore(database.DB(), cipher, logger.Named("repository"))

	producer := queue.NewFollowUpProducer(mq.Broker{}, store, logger.Named("follow_up"))
	scheduler := schedule.NewFollowUpScheduler(store, producer, logger.Named("follow_up_scheduler"))

	interval, window := scanSettings()
	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
		zap.Duration("interval", interval),
		zap.Duration("window", window),
	)

	scheduler.Run(ctx, interval, window)

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// scanSettings 窗口不小于扫描间隔，否则两次扫描之间到期的随访会被漏掉
func scanSettings() (interval, window time.Duration) {
	interval = config.Cfg.FollowUpScanInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if config.Cfg.IsDevelopment() {
		// 本地调试时缩短扫描间隔
		interval = time.Minute
	}
	window = config.Cfg.FollowUpScanWindow
	if window < interval {
		window = interval
	}
	return interval, window
}
