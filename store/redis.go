package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"p2p-chat/core"
)

const (
	peerKeyPrefix = "peer:"
	onlineSetKey  = "online_peers"

	// Records disappear from Redis an hour after the last write; the
	// registry's 30-minute TTL marks them offline well before that.
	recordExpiry = time.Hour
)

// Redis stores each record as a hash under "peer:<username>" plus an
// "online_peers" set for ScanOnline.
type Redis struct {
	client *redis.Client
}

var _ Store = (*Redis)(nil)

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Ping checks that the Redis connection is healthy.
func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Redis) Get(ctx context.Context, username string) (*core.PeerRecord, error) {
	fields, err := s.client.HGetAll(ctx, peerKeyPrefix+username).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", username, err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNotFound
	}
	return recordFromFields(fields)
}

func (s *Redis) Set(ctx context.Context, rec *core.PeerRecord) error {
	key := peerKeyPrefix + rec.Username
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"username":      rec.Username,
		"ip_address":    rec.IPAddress,
		"port":          rec.Port,
		"status":        string(rec.Status),
		"last_seen":     rec.LastSeen.Format(time.RFC3339Nano),
		"registered_at": rec.RegisteredAt.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, recordExpiry)
	if rec.Status == core.StatusOnline {
		pipe.SAdd(ctx, onlineSetKey, rec.Username)
	} else {
		pipe.SRem(ctx, onlineSetKey, rec.Username)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", rec.Username, err)
	}
	return nil
}

func (s *Redis) Delete(ctx context.Context, username string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, peerKeyPrefix+username)
	pipe.SRem(ctx, onlineSetKey, username)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete %s: %w", username, err)
	}
	return nil
}

func (s *Redis) ScanOnline(ctx context.Context) ([]*core.PeerRecord, error) {
	usernames, err := s.client.SMembers(ctx, onlineSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis scan online: %w", err)
	}
	var online []*core.PeerRecord
	for _, username := range usernames {
		rec, err := s.Get(ctx, username)
		if err == core.ErrNotFound {
			// Hash expired under us; drop the stale set member.
			s.client.SRem(ctx, onlineSetKey, username)
			continue
		}
		if err != nil {
			return nil, err
		}
		online = append(online, rec)
	}
	return online, nil
}

func recordFromFields(fields map[string]string) (*core.PeerRecord, error) {
	port, err := strconv.Atoi(fields["port"])
	if err != nil {
		return nil, fmt.Errorf("invalid port %q: %w", fields["port"], err)
	}
	lastSeen, err := time.Parse(time.RFC3339Nano, fields["last_seen"])
	if err != nil {
		return nil, fmt.Errorf("invalid last_seen %q: %w", fields["last_seen"], err)
	}
	registeredAt, err := time.Parse(time.RFC3339Nano, fields["registered_at"])
	if err != nil {
		return nil, fmt.Errorf("invalid registered_at %q: %w", fields["registered_at"], err)
	}
	return &core.PeerRecord{
		Username:     fields["username"],
		IPAddress:    fields["ip_address"],
		Port:         port,
		Status:       core.PeerStatus(fields["status"]),
		LastSeen:     lastSeen,
		RegisteredAt: registeredAt,
	}, nil
}
