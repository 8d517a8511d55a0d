package main

import (
	"context"
	"fmt"

	"exproctor/internal/db"

	"github.com/urfave/cli/v2"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Create or update the database schema",
	Action: func(c *cli.Context) error {
		logger := newLogger(c)

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := context.Background()

		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()

		logger.Info("Connected to database")

		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}

		logger.Info("Schema applied successfully")

		return nil
	},
}
