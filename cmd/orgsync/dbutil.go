package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizdash/orgsync/pkg/configuration"
)

func connectDB(ctx context.Context, conf *configuration.Configuration) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(conf.Database.Opts)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("invalid database config: %w", err))
	}
	if conf.Database.MaxConns > 0 {
		cfg.MaxConns = conf.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, withCode(exitDB, fmt.Errorf("db connect failed: %w", err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, withCode(exitDB, fmt.Errorf("db connect failed: %w", err))
	}
	return pool, nil
}
