package permissions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "secretsportal/internal/platform/redis"
)

// GrantCache caches resolved grants per bearer token so repeated requests
// from the same session skip directory-group parsing. Cache failures are
// soft: callers always get grants back, cached or freshly resolved.
type GrantCache struct {
	client *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewGrantCache(client *platformredis.Client, ttl time.Duration, logger *slog.Logger) *GrantCache {
	return &GrantCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// key hashes the token so raw credentials never reach the cache.
func (c *GrantCache) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "grants:" + hex.EncodeToString(sum[:])
}

// Resolve returns the cached grants for the token, resolving from the group
// list and populating the cache on a miss.
func (c *GrantCache) Resolve(ctx context.Context, token string, groups []string) []Grant {
	if c == nil || c.client == nil {
		return ResolveGrants(groups)
	}

	key := c.key(token)
	raw, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var grants []Grant
		if err := json.Unmarshal([]byte(raw), &grants); err == nil {
			return grants
		}
		c.logger.WarnContext(ctx, "discarding malformed grant cache entry", "error", err)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "grant cache read failed", "error", err)
	}

	grants := ResolveGrants(groups)
	if encoded, err := json.Marshal(grants); err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "grant cache write failed", "error", err)
		}
	}
	return grants
}

// Invalidate drops the cached grants for a token.
func (c *GrantCache) Invalidate(ctx context.Context, token string) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key(token)).Err(); err != nil {
		c.logger.WarnContext(ctx, "grant cache invalidation failed", "error", err)
	}
}
