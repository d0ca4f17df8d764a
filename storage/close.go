package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"CrisisDesk/pkg/logger"
	"CrisisDesk/storage/database"
	"CrisisDesk/storage/mq"
	"CrisisDesk/storage/redis"
)

const closeTimeout = 15 * time.Second

type closer struct {
	name  string
	close func(ctx context.Context) error
}

// 先停 MQ 不再收发消息，再关 Redis，最后关数据库等待写入完成
var closers = []closer{
	{name: "message queue", close: mq.Close},
	{name: "redis", close: redis.Close},
	{name: "database", close: database.Close},
}

// Close 按顺序关闭所有存储连接，单个失败不影响后续
func Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	logger.Logger.Info("Closing storage connections...")

	for _, c := range closers {
		if err := c.close(ctx); err != nil {
			logger.Logger.Error("Failed to close storage connection",
				zap.String("storage", c.name),
				zap.Error(err),
			)
			continue
		}
		logger.Logger.Info("Storage connection closed", zap.String("storage", c.name))
	}

	logger.Logger.Info("All storage connections closed")
}
