package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alem-hub/drop-matcher/internal/application/command"
	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

func newRunCmd(e *env) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one matching cycle now",
		Long: `Run one matching cycle and print its summary as JSON.

With --dry-run the pairs are computed and reported but nothing is
persisted and nobody is notified.

Examples:
  matchctl run
  matchctl run --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			app, err := e.connectApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			outcome, err := app.MatchCycle.Handle(ctx, command.RunMatchCycleCommand{
				DryRun:  dryRun,
				Trigger: "cli",
			})
			if errors.Is(err, matching.ErrRunInProgress) {
				return fmt.Errorf("another run is in progress")
			}
			if err != nil {
				return err
			}

			if err := printJSON(cmd.OutOrStdout(), outcome.Summary); err != nil {
				return err
			}
			if outcome.Failed() {
				return fmt.Errorf("run %s failed: %w", outcome.Summary.RunID, outcome.Err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute pairs without persisting or notifying")
	return cmd
}
