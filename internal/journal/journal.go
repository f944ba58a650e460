package journal

import (
	"context"
	"time"

	"hotel-sync/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Journal 变更日志
// Appends every committed mutation to a Redis Stream so external consumers
// (audit, analytics) can replay state changes in commit order. Journaling is
// best effort: a Redis failure is logged and never blocks or rolls back the
// mutation itself.
type Journal struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewClient 创建Redis客户端
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewJournal(client *redis.Client, stream string, logger *zap.Logger) *Journal {
	return &Journal{client: client, stream: stream, logger: logger}
}

// Ping 测试Redis连接
func (j *Journal) Ping(ctx context.Context) error {
	return j.client.Ping(ctx).Err()
}

// Record appends one committed mutation to the stream.
func (j *Journal) Record(ctx context.Context, kind string, payload []byte) {
	id, err := j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		Values: map[string]interface{}{
			"type":      kind,
			"payload":   string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		j.logger.Warn("failed to journal mutation",
			zap.String("kind", kind), zap.Error(err))
		return
	}
	j.logger.Debug("mutation journaled",
		zap.String("kind", kind), zap.String("stream_id", id))
}

// Close 关闭Redis连接
func (j *Journal) Close() error {
	return j.client.Close()
}
