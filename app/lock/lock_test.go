package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestNoopLockerAlwaysGrants(t *testing.T) {
	var l Locker = NoopLocker{}
	if _, err := l.TryLock(context.Background(), "pix:webhook:P1", time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Unlock(context.Background(), "pix:webhook:P1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedisLockerReturnsTransportError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	l := NewRedisLocker(client)
	l.retries = 2
	l.backoff = time.Millisecond

	_, err := l.TryLock(context.Background(), "pix:webhook:P1", time.Second)
	if err == nil || errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected a transport error, got %v", err)
	}
}

func TestRedisLockerHonoursContext(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := NewRedisLocker(client)
	l.backoff = time.Hour
	if _, err := l.TryLock(ctx, "pix:webhook:P1", time.Second); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}
