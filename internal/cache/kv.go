package cache

import (
	"context"
	"errors"
	"time"

	rediscommon "wisefido-floor/internal/common/redis"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss 表示缓存不存在
var ErrCacheMiss = errors.New("cache miss")

// KVStore 抽象的 KV 存储（用于在单元测试中替换 Redis）
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// EventAppender 事件流追加
type EventAppender interface {
	Append(ctx context.Context, stream string, data interface{}) error
}

// RedisKVStore 基于 go-redis 的 KV 实现
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// RedisStreamAppender 基于 Redis Streams 的事件追加
type RedisStreamAppender struct {
	client *redis.Client
}

func NewRedisStreamAppender(client *redis.Client) *RedisStreamAppender {
	return &RedisStreamAppender{client: client}
}

func (r *RedisStreamAppender) Append(ctx context.Context, stream string, data interface{}) error {
	_, err := rediscommon.PublishJSONToStream(ctx, r.client, stream, data)
	return err
}
