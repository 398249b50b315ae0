// Package cache provides a Redis-backed cache-aside layer in front of the
// profile lookup used by consultation rooms.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/careline/realtime/internal/database"
	"github.com/careline/realtime/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Stats tracks cache statistics.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// ProfileCache decorates a ProfileLookup. Redis failures degrade to the
// underlying lookup instead of failing the caller.
type ProfileCache struct {
	client *redis.Client
	next   database.ProfileLookup
	prefix string
	ttl    time.Duration
	log    zerolog.Logger

	hits, misses, errs atomic.Uint64
}

func NewProfileCache(client *redis.Client, next database.ProfileLookup, ttl time.Duration, log zerolog.Logger) *ProfileCache {
	return &ProfileCache{
		client: client,
		next:   next,
		prefix: "profile:",
		ttl:    ttl,
		log:    log.With().Str("component", "profile_cache").Logger(),
	}
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *ProfileCache) GetDisplayInfo(ctx context.Context, userID string) (*models.DisplayInfo, error) {
	key := c.prefix + userID

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var info models.DisplayInfo
		if jsonErr := json.Unmarshal(data, &info); jsonErr == nil {
			c.hits.Add(1)
			return &info, nil
		}
		c.errs.Add(1)
	case errors.Is(err, redis.Nil):
		c.misses.Add(1)
	default:
		c.errs.Add(1)
		c.log.Warn().Err(err).Str("user_id", userID).Msg("profile cache read failed")
	}

	info, err := c.next.GetDisplayInfo(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(info); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.errs.Add(1)
			c.log.Warn().Err(err).Str("user_id", userID).Msg("profile cache write failed")
		}
	}
	return info, nil
}

func (c *ProfileCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errs.Load(),
	}
}
