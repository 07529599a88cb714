package tokens

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/ports"
)

const keyPrefix = "crosspost:token:"

// RedisTokenStore lit les jetons OAuth déposés par le flux de connexion.
type RedisTokenStore struct {
	client *redis.Client
	nowFn  func() time.Time
}

var _ ports.TokenStore = (*RedisTokenStore)(nil)

func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client, nowFn: func() time.Time { return time.Now().UTC() }}
}

func key(platform domain.PlatformID, userID string) string {
	return keyPrefix + string(platform) + ":" + userID
}

func (s *RedisTokenStore) AccessToken(ctx context.Context, platform domain.PlatformID, userID string) (string, error) {
	data, err := s.client.HGetAll(ctx, key(platform, userID)).Result()
	if err != nil {
		return "", fmt.Errorf("redis: access token: %w", err)
	}
	token := data["access_token"]
	if token == "" {
		return "", domain.ErrTokenNotFound
	}
	if raw, ok := data["expires_at"]; ok && raw != "" && raw != "0" {
		unix, convErr := strconv.ParseInt(raw, 10, 64)
		if convErr == nil && !time.Unix(unix, 0).After(s.nowFn()) {
			return "", domain.ErrTokenExpired
		}
	}
	return token, nil
}

// Put enregistre un jeton ; expiresAt nul = pas d'expiration connue.
func (s *RedisTokenStore) Put(ctx context.Context, platform domain.PlatformID, userID, token string, expiresAt time.Time) error {
	var exp int64
	if !expiresAt.IsZero() {
		exp = expiresAt.Unix()
	}
	return s.client.HSet(ctx, key(platform, userID), "access_token", token, "expires_at", exp).Err()
}

// Revoke supprime le jeton d'un compte délié.
func (s *RedisTokenStore) Revoke(ctx context.Context, platform domain.PlatformID, userID string) error {
	return s.client.Del(ctx, key(platform, userID)).Err()
}
