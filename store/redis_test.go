package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"p2p-chat/core"
)

const testRedisAddr = "localhost:6379"

// setupRedis returns a Redis store or skips when no local Redis is running.
func setupRedis(t *testing.T) *Redis {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}

	t.Cleanup(func() {
		client.Del(ctx, "peer:redis-test-alice", "peer:redis-test-bob")
		client.SRem(ctx, onlineSetKey, "redis-test-alice", "redis-test-bob")
		client.Close()
	})
	return NewRedis(client)
}

func TestRedis_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupRedis(t)

	_, err := s.Get(ctx, "redis-test-alice")
	require.ErrorIs(t, err, core.ErrNotFound)

	now := time.Now().Truncate(time.Millisecond)
	rec := &core.PeerRecord{
		Username:     "redis-test-alice",
		IPAddress:    "10.0.0.1",
		Port:         9000,
		Status:       core.StatusOnline,
		LastSeen:     now,
		RegisteredAt: now,
	}
	require.NoError(t, s.Set(ctx, rec))

	got, err := s.Get(ctx, "redis-test-alice")
	require.NoError(t, err)
	require.Equal(t, rec.Username, got.Username)
	require.Equal(t, rec.Addr(), got.Addr())
	require.Equal(t, core.StatusOnline, got.Status)
	require.True(t, got.LastSeen.Equal(now))
	require.True(t, got.RegisteredAt.Equal(now))
}

func TestRedis_ScanOnlineTracksStatus(t *testing.T) {
	ctx := context.Background()
	s := setupRedis(t)

	now := time.Now()
	alice := &core.PeerRecord{Username: "redis-test-alice", IPAddress: "10.0.0.1", Port: 9000,
		Status: core.StatusOnline, LastSeen: now, RegisteredAt: now}
	bob := &core.PeerRecord{Username: "redis-test-bob", IPAddress: "10.0.0.2", Port: 9001,
		Status: core.StatusOnline, LastSeen: now, RegisteredAt: now}
	require.NoError(t, s.Set(ctx, alice))
	require.NoError(t, s.Set(ctx, bob))

	online, err := s.ScanOnline(ctx)
	require.NoError(t, err)
	require.Subset(t, usernames(online), []string{"redis-test-alice", "redis-test-bob"})

	bob.Status = core.StatusOffline
	require.NoError(t, s.Set(ctx, bob))

	online, err = s.ScanOnline(ctx)
	require.NoError(t, err)
	require.NotContains(t, usernames(online), "redis-test-bob")

	require.NoError(t, s.Delete(ctx, "redis-test-alice"))
	_, err = s.Get(ctx, "redis-test-alice")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func usernames(recs []*core.PeerRecord) []string {
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		names = append(names, rec.Username)
	}
	return names
}
