package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"barberq/internal/models"
	"barberq/internal/store"
)

const defaultTTL = 5 * time.Minute

// Catalog resolves service definitions, fronting the store with a redis
// read-through cache for durations. Durations change rarely, so a short TTL
// is enough; a miss or a redis outage falls back to the store.
type Catalog struct {
	store store.TicketStore
	redis *redis.Client
	ttl   time.Duration
	log   *slog.Logger
}

type Options struct {
	// TTL bounds how long a cached duration may lag a catalog edit.
	TTL time.Duration
}

// New builds a catalog. The redis client may be nil, in which case every
// lookup goes to the store.
func New(st store.TicketStore, rdb *redis.Client, log *slog.Logger, options Options) *Catalog {
	ttl := options.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{store: st, redis: rdb, ttl: ttl, log: log}
}

// DurationMinutes returns the expected duration for a service.
func (c *Catalog) DurationMinutes(ctx context.Context, serviceID string) (int, error) {
	if c.redis != nil {
		cached, err := c.redis.Get(ctx, durationKey(serviceID)).Result()
		if err == nil {
			if minutes, convErr := strconv.Atoi(cached); convErr == nil && minutes > 0 {
				return minutes, nil
			}
		} else if err != redis.Nil {
			c.log.Warn("catalog cache read failed", "service_id", serviceID, "error", err)
		}
	}

	service, err := c.store.GetService(ctx, serviceID)
	if err != nil {
		return 0, err
	}

	if c.redis != nil {
		if err := c.redis.Set(ctx, durationKey(serviceID), strconv.Itoa(service.DurationMinutes), c.ttl).Err(); err != nil {
			c.log.Warn("catalog cache write failed", "service_id", serviceID, "error", err)
		}
	}
	return service.DurationMinutes, nil
}

// Service returns the full service row, uncached.
func (c *Catalog) Service(ctx context.Context, serviceID string) (models.Service, error) {
	return c.store.GetService(ctx, serviceID)
}

// Invalidate drops the cached duration for a service after a catalog edit.
func (c *Catalog) Invalidate(ctx context.Context, serviceID string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, durationKey(serviceID)).Err(); err != nil {
		c.log.Warn("catalog cache invalidation failed", "service_id", serviceID, "error", err)
	}
}

func durationKey(serviceID string) string {
	return fmt.Sprintf("barberq:svc:%s:duration", serviceID)
}
