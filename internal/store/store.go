// Package store persists price history and scan output in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"mtf-signal-engine/internal/engine"
	"mtf-signal-engine/internal/market"
)

// Config holds database connection settings.
type Config struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// Store wraps the PostgreSQL connection pool.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// New connects to PostgreSQL and verifies connectivity.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")
	return &Store{pool: pool, log: log}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.log.Info().Msg("database connection closed")
	}
}

// EnsureSchema creates the tables the engine reads and writes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS price_bars (
			symbol VARCHAR(20) NOT NULL,
			resolution VARCHAR(8) NOT NULL,
			open_time TIMESTAMPTZ NOT NULL,
			close_time TIMESTAMPTZ NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (symbol, resolution, close_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_bars_lookup
			ON price_bars (symbol, resolution, close_time)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			signal_time TIMESTAMPTZ NOT NULL,
			signal_type VARCHAR(16) NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			shares INTEGER NOT NULL,
			reason TEXT NOT NULL,
			direction VARCHAR(8) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_run ON signals (run_id)`,
	}

	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// History loads base-resolution bars for a symbol ordered by close time.
func (s *Store) History(ctx context.Context, symbol string, res market.Resolution, from, to time.Time) ([]market.Bar, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM price_bars
		WHERE symbol = $1 AND resolution = $2 AND close_time >= $3 AND close_time <= $4
		ORDER BY close_time ASC`,
		symbol, string(res), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query price bars: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var b market.Bar
		if err := rows.Scan(&b.OpenTime, &b.CloseTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan price bar: %w", err)
		}
		// Stored timestamps come back in UTC; the engine buckets in
		// exchange-local wall time.
		b.OpenTime = b.OpenTime.In(market.DefaultLocation)
		b.CloseTime = b.CloseTime.In(market.DefaultLocation)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// SaveBars upserts a batch of bars.
func (s *Store) SaveBars(ctx context.Context, symbol string, res market.Resolution, bars []market.Bar) error {
	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(`
			INSERT INTO price_bars (symbol, resolution, open_time, close_time, open, high, low, close, volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, resolution, close_time) DO UPDATE SET
				open_time = EXCLUDED.open_time, open = EXCLUDED.open,
				high = EXCLUDED.high, low = EXCLUDED.low,
				close = EXCLUDED.close, volume = EXCLUDED.volume`,
			symbol, string(res), b.OpenTime, b.CloseTime, b.Open, b.High, b.Low, b.Close, b.Volume,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert price bar: %w", err)
		}
	}
	return nil
}

// SaveSignals records one scan run's output under a run ID.
func (s *Store) SaveSignals(ctx context.Context, runID uuid.UUID, symbol string, signals []engine.Signal) error {
	batch := &pgx.Batch{}
	for _, sig := range signals {
		batch.Queue(`
			INSERT INTO signals (run_id, symbol, signal_time, signal_type, price, shares, reason, direction)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			runID, symbol, sig.Timestamp, string(sig.Type), sig.Price, sig.Shares, sig.Reason, sig.Direction,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range signals {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert signal: %w", err)
		}
	}
	s.log.Info().Str("run_id", runID.String()).Str("symbol", symbol).Int("signals", len(signals)).Msg("scan results saved")
	return nil
}
