package queue

import (
	"context"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

const (
	processingTTL = 24 * time.Hour
	processedTTL  = 48 * time.Hour
)

// MessageMarker 基于 SETNX 的消息幂等标记，多个消费者之间共享
type MessageMarker struct {
	client redislib.Cmdable
	prefix string
}

func NewMessageMarker(client redislib.Cmdable, prefix string) *MessageMarker {
	return &MessageMarker{client: client, prefix: prefix}
}

func (m *MessageMarker) key(messageID string) string {
	return m.prefix + ":msg:" + messageID
}

// TryMarkProcessing 返回 false 表示消息已处理或正在处理
func (m *MessageMarker) TryMarkProcessing(ctx context.Context, messageID string) (bool, error) {
	return m.client.SetNX(ctx, m.key(messageID), "processing", processingTTL).Result()
}

// Unmark 处理失败时调用，允许重试
func (m *MessageMarker) Unmark(ctx context.Context, messageID string) error {
	return m.client.Del(ctx, m.key(messageID)).Err()
}

// MarkProcessed 处理成功后延长 TTL
func (m *MessageMarker) MarkProcessed(ctx context.Context, messageID string) error {
	return m.client.Set(ctx, m.key(messageID), "processed", processedTTL).Err()
}
