package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bizdash/orgsync/pkg/dbmigrate"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect schema migrations",
	}
	cmd.AddCommand(newMigrateRunCmd("up", "Apply all pending migrations"))
	cmd.AddCommand(newMigrateRunCmd("down", "Roll back the most recent migration"))
	cmd.AddCommand(newMigrateRunCmd("status", "List migrations and whether they are applied"))
	return cmd
}

func newMigrateRunCmd(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			runner, err := dbmigrate.NewRunner(rt.pool, rt.log)
			if err != nil {
				return withCode(exitDB, err)
			}

			start := time.Now()
			var result any
			switch direction {
			case "up":
				n, err := runner.Up(ctx)
				if err != nil {
					return withCode(exitDB, fmt.Errorf("migrate up: %w", err))
				}
				result = map[string]int{"applied": n}
			case "down":
				if err := runner.Down(ctx); err != nil {
					return withCode(exitDB, fmt.Errorf("migrate down: %w", err))
				}
				result = map[string]bool{"rolled_back": true}
			default:
				statuses, err := runner.Status(ctx)
				if err != nil {
					return withCode(exitDB, fmt.Errorf("migrate status: %w", err))
				}
				result = statuses
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "migrate " + direction,
				DurationMS: time.Since(start).Milliseconds(),
				Result:     result,
			})
		},
	}
}
