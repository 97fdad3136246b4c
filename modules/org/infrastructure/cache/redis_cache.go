package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/composables"
)

// RedisCache shares hierarchy views between server instances. Each tenant has
// one hash whose only field is the revision of the stored view.
type RedisCache struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

var _ services.HierarchyCache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: client, prefix: "org:hierarchy:v2", ttl: ttl}
}

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) Get(ctx context.Context, tenantID uuid.UUID, revision int64) (*services.HierarchyView, bool) {
	result, err := c.redis.HGet(ctx, c.hashKey(tenantID), strconv.FormatInt(revision, 10)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			composables.UseLogger(ctx).WithError(err).WithField("tenant_id", tenantID).Warn("org.cache.redis_get_failed")
		}
		return nil, false
	}
	var view services.HierarchyView
	if err := json.Unmarshal([]byte(result), &view); err != nil {
		composables.UseLogger(ctx).WithError(err).WithField("tenant_id", tenantID).Warn("org.cache.redis_decode_failed")
		return nil, false
	}
	if view.TenantID != tenantID || view.Revision != revision {
		return nil, false
	}
	return &view, true
}

func (c *RedisCache) Set(ctx context.Context, view *services.HierarchyView) {
	if view == nil || view.TenantID == uuid.Nil {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Warn("org.cache.redis_encode_failed")
		return
	}
	key := c.hashKey(view.TenantID)
	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, strconv.FormatInt(view.Revision, 10), payload)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		composables.UseLogger(ctx).WithError(err).WithField("tenant_id", view.TenantID).Warn("org.cache.redis_set_failed")
	}
}

func (c *RedisCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) {
	if tenantID == uuid.Nil {
		return
	}
	if err := c.redis.Del(ctx, c.hashKey(tenantID)).Err(); err != nil {
		composables.UseLogger(ctx).WithError(err).WithField("tenant_id", tenantID).Warn("org.cache.redis_invalidate_failed")
	}
}

func (c *RedisCache) hashKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("%s:{%s}", c.prefix, tenantID.String())
}
