package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"CrisisDesk/config"
	pkgredis "CrisisDesk/pkg/redis"
)

// ErrDegraded 启动时 Redis 不可达。客户端仍然返回，限流与消息去重在 Redis 出错时放行，
// go-redis 会在后续命令中自动重连
var ErrDegraded = errors.New("redis unreachable at startup")

var (
	client  *redis.Client
	once    sync.Once
	initErr error
)

func Init() error {
	once.Do(func() {
		client, initErr = open(config.Cfg)
	})
	return initErr
}

// open 限流与去重都在请求路径上，超时比通用配置更短
func open(cfg config.Config) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MinIdleConns: 5,
		MaxRetries:   1,
	})
	if cfg.TracingEnabled {
		c = pkgredis.InstrumentRedisClient(c, cfg.ServiceName, cfg.RedisDB)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		return c, fmt.Errorf("%w: %v", ErrDegraded, err)
	}
	return c, nil
}

func Client() *redis.Client {
	if client == nil {
		panic("Redis client not init")
	}
	return client
}

func Close(ctx context.Context) error {
	if client == nil {
		return nil
	}

	return client.Close()
}

// Key 拼接带前缀的键，空片段跳过
func Key(parts ...string) string {
	prefix := config.Cfg.RedisPrefix
	if prefix == "" {
		prefix = "crisis"
	}

	var sb strings.Builder
	sb.WriteString(prefix)
	for _, part := range parts {
		if part != "" {
			sb.WriteString(":")
			sb.WriteString(part)
		}
	}

	return sb.String()
}
