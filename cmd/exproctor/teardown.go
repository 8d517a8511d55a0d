package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

var teardownCommand = &cli.Command{
	Name:  "teardown",
	Usage: "Delete every evidence container and its ledger rows (plugin uninstall)",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "yes",
			Usage: "Confirm that all stored evidence should be destroyed",
		},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			return fmt.Errorf("refusing to tear down without --yes")
		}

		ctx := context.Background()
		logger := newLogger(c)

		d, err := buildDeps(ctx, logger)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.retention.TeardownPlugin(ctx); err != nil {
			return fmt.Errorf("teardown incomplete: %w", err)
		}

		logger.Info("teardown complete")
		return nil
	},
}
