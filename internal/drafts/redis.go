package drafts

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-chat/internal/config"
)

// redisKV persists drafts in Redis so shared admin consoles keep them
// across processes. Keys are namespaced under draft:.
type redisKV struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisKV connects to Redis using the provided configuration.
func NewRedisKV(cfg config.RedisConfig, retention time.Duration, logger *zap.Logger) KV {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis, drafts will fail until it recovers", zap.Error(err))
	} else {
		logger.Info("connected to redis for drafts")
	}

	return &redisKV{client: client, retention: retention}
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, draftKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, draftKey(key), value, r.retention).Err()
}

func (r *redisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, draftKey(key)).Err()
}

func draftKey(key string) string {
	return "draft:" + key
}
