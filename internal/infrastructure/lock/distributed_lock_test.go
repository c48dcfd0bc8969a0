package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestTryLockIsExclusive(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()

	a := NewSweepLock(client, "instance-a", time.Minute)
	b := NewSweepLock(client, "instance-b", time.Minute)

	if ok, err := a.TryLock(ctx); err != nil || !ok {
		t.Fatalf("a.TryLock ok=%v err=%v", ok, err)
	}
	if ok, err := b.TryLock(ctx); err != nil || ok {
		t.Fatalf("b.TryLock ok=%v err=%v want false", ok, err)
	}

	// b 释放不属于自己的锁不会生效
	if err := b.Unlock(ctx); err != nil {
		t.Fatalf("b.Unlock err=%v", err)
	}
	if ok, _ := b.TryLock(ctx); ok {
		t.Fatal("b acquired lock still held by a")
	}

	if err := a.Unlock(ctx); err != nil {
		t.Fatalf("a.Unlock err=%v", err)
	}
	if ok, err := b.TryLock(ctx); err != nil || !ok {
		t.Fatalf("b.TryLock after release ok=%v err=%v", ok, err)
	}
}

func TestLockExpires(t *testing.T) {
	srv, client := newClient(t)
	ctx := context.Background()

	a := NewSweepLock(client, "instance-a", time.Second)
	if ok, _ := a.TryLock(ctx); !ok {
		t.Fatal("a.TryLock failed")
	}
	srv.FastForward(2 * time.Second)

	b := NewSweepLock(client, "instance-b", time.Second)
	if ok, _ := b.TryLock(ctx); !ok {
		t.Fatal("lock should be free after expiry")
	}
	if err := a.Refresh(ctx); !errors.Is(err, ErrLockFailed) {
		t.Fatalf("a.Refresh err=%v want=%v", err, ErrLockFailed)
	}
	if err := b.Refresh(ctx); err != nil {
		t.Fatalf("b.Refresh err=%v", err)
	}
}

func TestLockGivesUp(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()

	holder := NewDistributedLock(client, "k", "holder", time.Minute)
	if ok, _ := holder.TryLock(ctx); !ok {
		t.Fatal("holder.TryLock failed")
	}

	waiter := NewDistributedLock(client, "k", "waiter", time.Minute)
	if err := waiter.Lock(ctx, time.Millisecond, 3); !errors.Is(err, ErrLockFailed) {
		t.Fatalf("Lock err=%v want=%v", err, ErrLockFailed)
	}
}
