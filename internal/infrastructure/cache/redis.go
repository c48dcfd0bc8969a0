package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kidbank/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewRedis 创建 Redis 客户端并检查连通性，目前只用于策略巡检的分布式锁
func NewRedis(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	slog.Info("Redis 连接成功", "component", "cache", "addr", client.Options().Addr)
	return client, nil
}
