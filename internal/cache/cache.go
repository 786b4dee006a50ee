// Package cache provides a Redis-backed price-history cache with graceful
// degradation: when Redis is unavailable callers fall through to the store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mtf-signal-engine/internal/market"
)

// Config holds Redis connection settings.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// BarCache caches bar history per (symbol, resolution, range) key.
type BarCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*BarCache, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info().Str("address", cfg.Address).Msg("connected to Redis")
	return &BarCache{client: client, log: log}, nil
}

// Close releases the Redis connection.
func (c *BarCache) Close() error {
	return c.client.Close()
}

func barKey(symbol string, res market.Resolution, from, to time.Time) string {
	return fmt.Sprintf("bars:%s:%s:%d:%d", symbol, res, from.Unix(), to.Unix())
}

// ttlFor scales the cache lifetime with the resolution: coarse history goes
// stale far slower than minute bars.
func ttlFor(res market.Resolution) time.Duration {
	switch res {
	case market.Res1Min:
		return 30 * time.Second
	case market.Res5Min:
		return 2 * time.Minute
	case market.Res15Min:
		return 5 * time.Minute
	case market.Res30Min:
		return 10 * time.Minute
	case market.Res1H:
		return 30 * time.Minute
	case market.Res4H:
		return 2 * time.Hour
	case market.Res1D:
		return 12 * time.Hour
	default:
		return time.Minute
	}
}

// Get returns cached bars, or ok=false on miss or Redis failure.
func (c *BarCache) Get(ctx context.Context, symbol string, res market.Resolution, from, to time.Time) ([]market.Bar, bool) {
	data, err := c.client.Get(ctx, barKey(symbol, res, from, to)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn().Err(err).Msg("bar cache read failed")
		}
		return nil, false
	}

	var bars []market.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		c.log.Warn().Err(err).Msg("bar cache entry corrupt, ignoring")
		return nil, false
	}
	// JSON round-trips timestamps as fixed offsets; rebucketing needs the
	// exchange location back.
	for i := range bars {
		bars[i].OpenTime = bars[i].OpenTime.In(market.DefaultLocation)
		bars[i].CloseTime = bars[i].CloseTime.In(market.DefaultLocation)
	}
	return bars, true
}

// Set stores bars with a resolution-scaled TTL. Failures are logged, never
// propagated: the cache is an optimization, not a dependency.
func (c *BarCache) Set(ctx context.Context, symbol string, res market.Resolution, from, to time.Time, bars []market.Bar) {
	data, err := json.Marshal(bars)
	if err != nil {
		c.log.Warn().Err(err).Msg("bar cache encode failed")
		return
	}
	if err := c.client.Set(ctx, barKey(symbol, res, from, to), data, ttlFor(res)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("bar cache write failed")
	}
}

// HistoryProvider is the read side of the bar store.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, res market.Resolution, from, to time.Time) ([]market.Bar, error)
}

// CachedProvider reads through the cache in front of a HistoryProvider.
type CachedProvider struct {
	Cache    *BarCache // nil disables caching
	Provider HistoryProvider
}

// History returns cached bars when present, otherwise loads from the
// underlying provider and populates the cache.
func (p *CachedProvider) History(ctx context.Context, symbol string, res market.Resolution, from, to time.Time) ([]market.Bar, error) {
	if p.Cache != nil {
		if bars, ok := p.Cache.Get(ctx, symbol, res, from, to); ok {
			return bars, nil
		}
	}
	bars, err := p.Provider.History(ctx, symbol, res, from, to)
	if err != nil {
		return nil, err
	}
	if p.Cache != nil {
		p.Cache.Set(ctx, symbol, res, from, to, bars)
	}
	return bars, nil
}
