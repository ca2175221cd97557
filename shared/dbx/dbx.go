// Package dbx builds the shared pgx connection pool.
package dbx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esheo1787/qc-management-system/shared/config"
)

// NewPool parses DATABASE_URL and applies the pool sizing knobs. Connections
// are established lazily; readiness is probed through Ping.
func NewPool(cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	pc.MaxConns = int32(cfg.DBMaxConns)
	pc.MinConns = int32(cfg.DBMinConns)
	pc.MaxConnIdleTime = time.Duration(cfg.DBConnMaxIdleSec) * time.Second
	pc.MaxConnLifetime = time.Duration(cfg.DBConnMaxLifeSec) * time.Second
	pc.HealthCheckPeriod = 30 * time.Second

	return pgxpool.NewWithConfig(context.Background(), pc)
}

func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("db pool is nil")
	}
	return pool.Ping(ctx)
}
