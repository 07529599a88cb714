package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

const keyPrefix = "crosspost:ratelimit:"

// RedisStore garde le dernier quota annoncé par chaque plateforme, par action.
// La clé expire au reset de la fenêtre : pas de donnée = pas de limite connue.
type RedisStore struct {
	client *redis.Client
	nowFn  func() time.Time
}

var _ ports.RateLimitStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, nowFn: func() time.Time { return time.Now().UTC() }}
}

func key(platform domain.PlatformID, action domain.ActionType) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, platform, action)
}

func (s *RedisStore) Snapshot(ctx context.Context, platform domain.PlatformID, action domain.ActionType) (*ports.RateLimitSnapshot, error) {
	data, err := s.client.HGetAll(ctx, key(platform, action)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: rate limit snapshot: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	snap := &ports.RateLimitSnapshot{}
	if raw, ok := data["limit"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			snap.Limit = n
		}
	}
	if raw, ok := data["remaining"]; ok {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			snap.Remaining = n
		}
	}
	if raw, ok := data["reset_at"]; ok {
		if unix, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil && unix > 0 {
			snap.ResetAt = time.Unix(unix, 0).UTC()
		}
	}
	return snap, nil
}

func (s *RedisStore) Observe(ctx context.Context, platform domain.PlatformID, action domain.ActionType, snap ports.RateLimitSnapshot) error {
	k := key(platform, action)
	ttl := snap.ResetAt.Sub(s.nowFn())
	if ttl <= 0 {
		// fenêtre déjà écoulée : rien à retenir
		return s.client.Del(ctx, k).Err()
	}

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k,
			"limit", snap.Limit,
			"remaining", snap.Remaining,
			"reset_at", snap.ResetAt.Unix(),
		)
		p.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: rate limit observe: %w", err)
	}
	return nil
}
