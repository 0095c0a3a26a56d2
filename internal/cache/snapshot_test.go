package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type board struct {
	Active int    `json:"active"`
	Note   string `json:"note"`
}

func newSnapshots(t *testing.T, ttl time.Duration) (*RedisSnapshots, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSnapshots(rdb, "test", ttl), mr
}

func TestRedisSnapshots_SetGetExpire(t *testing.T) {
	s, mr := newSnapshots(t, 3*time.Second)
	ctx := context.Background()

	var got board
	ok, err := s.Get(ctx, KeyStatusBoard, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, KeyStatusBoard, board{Active: 2, Note: "llamadas"}))
	assert.True(t, mr.Exists("test:status"))

	ok, err = s.Get(ctx, KeyStatusBoard, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, board{Active: 2, Note: "llamadas"}, got)

	mr.FastForward(4 * time.Second)
	ok, err = s.Get(ctx, KeyStatusBoard, &got)
	require.NoError(t, err)
	assert.False(t, ok, "snapshot should expire after the TTL")
}

func TestRedisSnapshots_Invalidate(t *testing.T) {
	s, mr := newSnapshots(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, KeyStatusBoard, board{Active: 1}))
	require.NoError(t, s.Set(ctx, KeyDashboard, board{Active: 1}))
	require.NoError(t, s.Invalidate(ctx))

	assert.False(t, mr.Exists("test:status"))
	assert.False(t, mr.Exists("test:dashboard"))
}

func TestRedisSnapshots_DecodeError(t *testing.T) {
	s, mr := newSnapshots(t, time.Minute)
	require.NoError(t, mr.Set("test:dashboard", "not-json"))

	var got board
	ok, err := s.Get(context.Background(), KeyDashboard, &got)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestRedisSnapshots_ServerDown(t *testing.T) {
	s, mr := newSnapshots(t, time.Minute)
	mr.Close()

	ctx := context.Background()
	_, err := s.Get(ctx, KeyDashboard, &board{})
	assert.Error(t, err)
	assert.Error(t, s.Set(ctx, KeyDashboard, board{}))
	assert.Error(t, s.Invalidate(ctx))
}

func TestNewRedisSnapshots_Defaults(t *testing.T) {
	s := NewRedisSnapshots(nil, "", 0)
	assert.Equal(t, DefaultTTL, s.ttl)
	assert.Equal(t, "callcenter:snapshot:status", s.key(KeyStatusBoard))
}

func TestNop(t *testing.T) {
	var s Snapshots = Nop{}
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, KeyDashboard, board{Active: 1}))
	ok, err := s.Get(ctx, KeyDashboard, &board{})
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.NoError(t, s.Invalidate(ctx))
}

func TestOpenRedis(t *testing.T) {
	ctx := context.Background()

	_, err := OpenRedis(ctx, RedisConfig{})
	assert.Error(t, err, "empty addr must be rejected")

	mr := miniredis.RunT(t)
	rdb, err := OpenRedis(ctx, RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	_ = rdb.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = OpenRedis(ctx, RedisConfig{Addr: addr, DialTimeout: 200 * time.Millisecond, PingTimeout: 500 * time.Millisecond})
	assert.Error(t, err)
}
