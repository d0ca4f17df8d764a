package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"CrisisDesk/internal/crisis"
)

// Config 限流配置
type Config struct {
	// 时间窗口
	Window time.Duration
	// 时间窗口内最大请求数
	MaxRequests int
	// 超过限制后禁止访问的时间，为 0 时不额外阻塞
	BlockDuration time.Duration
	// 限流键前缀，如 crisis:rate:assess
	KeyPrefix string
}

// DefaultConfig 危机评估默认每分钟 10 次，超限阻塞 5 分钟
var DefaultConfig = Config{
	Window:        time.Minute,
	MaxRequests:   10,
	BlockDuration: 5 * time.Minute,
	KeyPrefix:     "crisis:rate:assess",
}

// SlidingWindowLimiter 基于 Redis ZSET 的滑动窗口限流
type SlidingWindowLimiter struct {
	client redislib.Cmdable
	config Config
	now    func() time.Time
}

var _ crisis.RateLimiter = (*SlidingWindowLimiter)(nil)

func NewSlidingWindowLimiter(client redislib.Cmdable, config Config) *SlidingWindowLimiter {
	if config.Window <= 0 {
		config.Window = DefaultConfig.Window
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = DefaultConfig.MaxRequests
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig.KeyPrefix
	}
	return &SlidingWindowLimiter{client: client, config: config, now: time.Now}
}

func (l *SlidingWindowLimiter) windowKey(identifier string) string {
	return l.config.KeyPrefix + ":" + identifier
}

func (l *SlidingWindowLimiter) blockKey(identifier string) string {
	return l.config.KeyPrefix + ":block:" + identifier
}

// Check 实现 crisis.RateLimiter，Redis 出错时返回 error，由调用方决定是否放行
func (l *SlidingWindowLimiter) Check(ctx context.Context, identifier string) (crisis.Decision, error) {
	now := l.now()

	blockedFor, err := l.blockedFor(ctx, identifier)
	if err != nil {
		return crisis.Decision{}, err
	}
	if blockedFor > 0 {
		return crisis.Decision{Allowed: false, Remaining: 0, ResetAt: now.Add(blockedFor)}, nil
	}

	count, err := l.hit(ctx, identifier, now)
	if err != nil {
		return crisis.Decision{}, err
	}

	remaining := l.config.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	decision := crisis.Decision{
		Allowed:   count <= l.config.MaxRequests,
		Remaining: remaining,
		ResetAt:   now.Add(l.config.Window),
	}

	if !decision.Allowed && l.config.BlockDuration > 0 {
		if err := l.client.Set(ctx, l.blockKey(identifier), "1", l.config.BlockDuration).Err(); err != nil {
			return decision, fmt.Errorf("failed to set block key: %w", err)
		}
		decision.ResetAt = now.Add(l.config.BlockDuration)
	}
	return decision, nil
}

func (l *SlidingWindowLimiter) blockedFor(ctx context.Context, identifier string) (time.Duration, error) {
	if l.config.BlockDuration <= 0 {
		return 0, nil
	}
	ttl, err := l.client.PTTL(ctx, l.blockKey(identifier)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check block status: %w", err)
	}
	// go-redis 对 -2（不存在）与 -1（无过期时间）原样返回
	switch {
	case ttl == -2:
		return 0, nil
	case ttl < 0:
		return l.config.BlockDuration, nil
	default:
		return ttl, nil
	}
}

// hit 先移除窗口外的记录再写入本次请求，返回窗口内请求数。
// 超限的请求会被撤回，被拒绝的重试不占用窗口名额
func (l *SlidingWindowLimiter) hit(ctx context.Context, identifier string, now time.Time) (int, error) {
	key := l.windowKey(identifier)
	windowStart := now.Add(-l.config.Window)
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redislib.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	zcard := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.config.Window+10*time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to execute pipeline: %w", err)
	}

	count := int(zcard.Val())
	if count > l.config.MaxRequests {
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			return count, fmt.Errorf("failed to withdraw rejected request: %w", err)
		}
	}
	return count, nil
}
