package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Snapshot keys.
const (
	KeyStatusBoard = "status"
	KeyDashboard   = "dashboard"
)

// DefaultTTL is used when a RedisSnapshots is built with a non-positive TTL.
const DefaultTTL = 3 * time.Second

// Snapshots stores short-lived JSON projections.
type Snapshots interface {
	// Get decodes the snapshot stored under key into dst and reports whether
	// it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	// Set stores v under key until the TTL elapses.
	Set(ctx context.Context, key string, v any) error
	// Invalidate drops every snapshot.
	Invalidate(ctx context.Context) error
}

// RedisSnapshots is a Snapshots backed by Redis.
type RedisSnapshots struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSnapshots returns snapshots stored under "<prefix>:<key>".
func NewRedisSnapshots(rdb *redis.Client, prefix string, ttl time.Duration) *RedisSnapshots {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = "callcenter:snapshot"
	}
	return &RedisSnapshots{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (s *RedisSnapshots) key(k string) string { return s.prefix + ":" + k }

// Get implements Snapshots.
func (s *RedisSnapshots) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("snapshot get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("snapshot decode %s: %w", key, err)
	}
	return true, nil
}

// Set implements Snapshots.
func (s *RedisSnapshots) Set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("snapshot encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, s.key(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot set %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Snapshots.
func (s *RedisSnapshots) Invalidate(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key(KeyStatusBoard), s.key(KeyDashboard)).Err(); err != nil {
		return fmt.Errorf("snapshot invalidate: %w", err)
	}
	return nil
}

// Nop is a Snapshots that never stores anything.
type Nop struct{}

// Get implements Snapshots.
func (Nop) Get(context.Context, string, any) (bool, error) { return false, nil }

// Set implements Snapshots.
func (Nop) Set(context.Context, string, any) error { return nil }

// Invalidate implements Snapshots.
func (Nop) Invalidate(context.Context) error { return nil }
