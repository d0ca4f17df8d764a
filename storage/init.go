package storage

import (
	"errors"

	"go.uber.org/zap"

	"CrisisDesk/pkg/logger"
	"CrisisDesk/storage/database"
	"CrisisDesk/storage/mq"
	"CrisisDesk/storage/redis"
)

// Init 统一初始化存储层。Redis 启动时不可达只告警，危机评估不能因为限流组件停摆
func Init() error {
	if err := database.Init(); err != nil {
		return err
	}

	if err := redis.Init(); err != nil {
		if !errors.Is(err, redis.ErrDegraded) {
			return err
		}
		logger.Logger.Warn("Redis unavailable, rate limiting and message dedup will fail open", zap.Error(err))
	}

	if err := mq.Init(); err != nil {
		return err
	}

	return nil
}
