package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alem-hub/drop-matcher/internal/application/query"
	"github.com/alem-hub/drop-matcher/internal/bootstrap"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/persistence/postgres"
)

func newRunsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded run attempts",
	}
	cmd.AddCommand(newRunsGetCmd(e), newRunsListCmd(e))
	return cmd
}

func uuidArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one run id, got %d", len(args))
	}
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}
	return nil
}

func newRunsGetCmd(e *env) *cobra.Command {
	var withPairs bool

	cmd := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Print one run attempt as JSON",
		Args:  uuidArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			conn, err := bootstrap.ConnectDatabase(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			h := query.NewGetRunHandler(
				postgres.NewRunRepository(conn),
				postgres.NewMatchStore(conn),
				postgres.NewDeliveryRepository(conn),
			)
			dto, err := h.Handle(ctx, query.GetRunQuery{
				RunID:        uuid.MustParse(args[0]),
				IncludePairs: withPairs,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), dto)
		},
	}

	cmd.Flags().BoolVar(&withPairs, "pairs", true, "include pairs and delivery statistics")
	return cmd
}

func newRunsListCmd(e *env) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent run attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			conn, err := bootstrap.ConnectDatabase(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer conn.Close()

			runs, err := query.ListRecentRuns(ctx, postgres.NewRunRepository(conn), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), runs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCYCLE\tSTATUS\tSTAGE\tPAIRS\tREASON")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.CycleDate.Format("2006-01-02"), r.Status, r.Stage, r.Stats.MatchedPairs, r.Reason)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "max runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
