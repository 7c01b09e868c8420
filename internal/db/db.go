package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool connects and verifies the connection with a ping.
// In lambda mode a single long-lived connection is kept to avoid
// exhausting the database across concurrent invocations.
func NewPool(dbURL string, lambdaMode bool) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)

	if err != nil {
		return nil, err
	}

	if lambdaMode {
		cfg.MaxConns = 1
		cfg.MaxConnIdleTime = 15 * time.Minute
	} else {
		cfg.MaxConns = 5
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)

	if err != nil {
		return nil, err
	}

	err = pool.Ping(ctx)

	if err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}
