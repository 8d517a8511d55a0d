package db

import (
	"context"
	"fmt"
	"time"

	"exproctor/pkg/types"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	schemaName      = "exproctor"
	applicationName = "exproctor"
)

// Connect opens the ledger pool. Unless the URL says otherwise, the search
// path is the service schema and connections identify as exproctor in
// pg_stat_activity.
func Connect(ctx context.Context, config *types.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	params := poolConfig.ConnConfig.RuntimeParams
	for key, value := range map[string]string{
		"search_path":      schemaName,
		"application_name": applicationName,
	} {
		if _, ok := params[key]; !ok {
			params[key] = value
		}
	}

	// every submit holds a connection for its advisory lock transaction
	if config.DBMaxConns > 0 {
		poolConfig.MaxConns = config.DBMaxConns
	}
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	poolConfig.MaxConnLifetime = 45 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}
