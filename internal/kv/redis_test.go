package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

func TestRedisStoreMissingKey(t *testing.T) {
	s, _ := newRedisStore(t)
	if _, err := s.Get(context.Background(), "storefront:cart:nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreSetNXAndExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Expected ping to succeed, got %v", err)
	}

	ok, err := s.SetNX(ctx, "lock", "1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("Expected first SetNX to win, got %v (%v)", ok, err)
	}
	ok, err = s.SetNX(ctx, "lock", "2", time.Minute)
	if err != nil || ok {
		t.Fatalf("Expected second SetNX to lose, got %v (%v)", ok, err)
	}
	if v, err := s.Get(ctx, "lock"); err != nil || v != "1" {
		t.Errorf("Expected value 1, got %q (%v)", v, err)
	}

	mr.FastForward(time.Minute)
	if _, err := s.Get(ctx, "lock"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected lock expired, got %v", err)
	}
	ok, err = s.SetNX(ctx, "lock", "3", time.Minute)
	if err != nil || !ok {
		t.Errorf("Expected SetNX to win after expiry, got %v (%v)", ok, err)
	}

	if err := s.Del(ctx, "lock"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := s.Get(ctx, "lock"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after Del, got %v", err)
	}
}

func TestRedisStoreSetOverwrites(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	if err := s.Set(ctx, "storefront:cart:s-1", `{"version":1}`, time.Hour); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := s.Set(ctx, "storefront:cart:s-1", `{"version":1,"items":{"A":2}}`, time.Hour); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if v, _ := s.Get(ctx, "storefront:cart:s-1"); v != `{"version":1,"items":{"A":2}}` {
		t.Errorf("Expected overwritten value, got %q", v)
	}
	if ttl := mr.TTL("storefront:cart:s-1"); ttl != time.Hour {
		t.Errorf("Expected TTL 1h, got %v", ttl)
	}

	mr.Close()
	if _, err := s.Get(ctx, "storefront:cart:s-1"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected a connection error distinct from ErrNotFound, got %v", err)
	}
}
