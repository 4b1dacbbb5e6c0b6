package redis

import (
	"context"
	"fmt"
	"time"

	"wisefido-floor/internal/common/config"

	"github.com/go-redis/redis/v8"
)

// connectTimeout 建立连接时 PING 的超时
const connectTimeout = 5 * time.Second

// Connect 创建 Redis 客户端并确认可达；失败时关闭客户端
func Connect(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
