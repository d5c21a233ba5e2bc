package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/relink/relink/internal/model"
)

// Cache key prefixes and TTLs.
const (
	linkKeyPrefix     = "link:"
	negCacheKeySuffix = ":neg"

	// DefaultLinkTTL is the TTL for cached link data.
	DefaultLinkTTL = 24 * time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries. Kept short
	// so a freshly created code becomes resolvable quickly.
	NegativeCacheTTL = 5 * time.Minute
)

// ErrCacheMiss indicates the key is not in the cache.
var ErrCacheMiss = errors.New("cache miss")

// GetLink retrieves a link from cache by short code.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetLink(ctx context.Context, shortCode string) (*model.CachedLink, error) {
	key := linkKeyPrefix + shortCode

	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	cached := &model.CachedLink{
		Destination: result["destination"],
		Enabled:     result["enabled"],
		ExpiresAt:   result["expires_at"],
		DeletedAt:   result["deleted_at"],
		UpdatedAt:   result["updated_at"],
	}

	return cached, nil
}

// SetLink stores a link in cache. The TTL is capped at the link's expiry
// so an expired record never outlives its deadline in Redis.
func (c *Cache) SetLink(ctx context.Context, shortCode string, link *model.Link) error {
	key := linkKeyPrefix + shortCode
	cached := link.ToCachedLink()

	ttl := DefaultLinkTTL
	if link.ExpiresAt != nil {
		expiresIn := time.Until(*link.ExpiresAt)
		if expiresIn <= 0 {
			c.client.Del(ctx, key, key+negCacheKeySuffix)
			return nil
		}
		if expiresIn < ttl {
			ttl = expiresIn
		}
	}

	fields := map[string]any{
		"destination": cached.Destination,
		"enabled":     cached.Enabled,
		"updated_at":  cached.UpdatedAt,
	}

	// Only set optional fields if they have values
	if cached.ExpiresAt != "" {
		fields["expires_at"] = cached.ExpiresAt
	}
	if cached.DeletedAt != "" {
		fields["deleted_at"] = cached.DeletedAt
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache link: %w", err)
	}

	// Remove negative cache if present
	c.client.Del(ctx, key+negCacheKeySuffix)

	return nil
}

// DeleteLink removes a link from cache.
func (c *Cache) DeleteLink(ctx context.Context, shortCode string) error {
	key := linkKeyPrefix + shortCode

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete link from cache: %w", err)
	}

	return nil
}

// IsNegativelyCached checks if a short code is in the negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, shortCode string) (bool, error) {
	key := linkKeyPrefix + shortCode + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks a short code as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, shortCode string) error {
	key := linkKeyPrefix + shortCode + negCacheKeySuffix

	if err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
