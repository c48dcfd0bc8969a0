package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis 分布式锁
//
// 加锁：SET key value NX PX ttl
//   - NX 保证互斥，过期时间保证持有者崩溃后锁能自动释放
//   - value 为持有者标识，续期和释放时校验，避免误删别人的锁
//
// 释放与续期都用 Lua 脚本保证"检查+操作"的原子性。

var ErrLockFailed = errors.New("获取分布式锁失败")

var (
	unlockScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	refreshScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

type DistributedLock struct {
	client     redis.Cmdable
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(c redis.Cmdable, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     c,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞获取锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞获取锁，最多重试 maxRetries 次
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Refresh 续期，锁已不属于自己时返回 ErrLockFailed
func (l *DistributedLock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.value, l.expiration.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockFailed
	}
	return nil
}

// Unlock 只释放自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// NewSweepLock 策略巡检锁，同一时刻只有一个实例执行巡检
func NewSweepLock(c redis.Cmdable, owner string, ttl time.Duration) *DistributedLock {
	return NewDistributedLock(c, "kidbank:lock:policy-sweep", owner, ttl)
}
