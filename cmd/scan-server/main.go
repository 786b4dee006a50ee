// Command scan-server hosts the signal engine behind the HTTP API, with an
// optional Postgres bar store and Redis cache.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"mtf-signal-engine/config"
	"mtf-signal-engine/internal/api"
	"mtf-signal-engine/internal/cache"
	"mtf-signal-engine/internal/engine"
	"mtf-signal-engine/internal/store"
)

func main() {
	configPath := flag.String("config", "", "config JSON file")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.Logging.Pretty {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var provider cache.HistoryProvider
	var barStore api.BarStore
	if cfg.DatabaseEnabled {
		db, err := store.New(ctx, cfg.Database, log.With().Str("component", "store").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}

		cached := &cache.CachedProvider{Provider: db}
		if cfg.Redis.Enabled {
			barCache, err := cache.New(ctx, cfg.Redis, log.With().Str("component", "cache").Logger())
			if err != nil {
				// The cache is optional; degrade to direct store reads.
				log.Warn().Err(err).Msg("redis unavailable, caching disabled")
			} else {
				defer barCache.Close()
				cached.Cache = barCache
			}
		}
		provider = cached
		barStore = db
	}

	generator := engine.NewGenerator(cfg.Engine, log.With().Str("component", "engine").Logger())
	server := api.NewServer(cfg.Server, generator, provider, barStore, log.With().Str("component", "api").Logger())

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("shutdown complete")
}
