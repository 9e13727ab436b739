package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/alem-hub/drop-matcher/config"
	"github.com/alem-hub/drop-matcher/internal/bootstrap"
	"github.com/alem-hub/drop-matcher/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// env holds state shared by subcommands after PersistentPreRunE.
type env struct {
	verbose  bool
	cfg      *config.Config
	log      *slog.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "matchctl",
		Short: "Operate the drop matcher",
		Long: `matchctl runs a matching cycle on demand, manages the database schema
and prints recorded run attempts.

Configuration is read from the same environment variables as the worker.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg = cfg

			level := logger.ParseLevel(cfg.Observability.LogLevel)
			if e.verbose {
				level = slog.LevelDebug
			}
			e.log, e.closeLog = logger.Setup(logger.Options{
				Output: cmd.ErrOrStderr(),
				Level:  level,
				JSON:   cfg.Observability.LogFormat == "json",
			})
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if e.closeLog != nil {
				return e.closeLog()
			}
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCmd(e),
		newMigrateCmd(e),
		newRunsCmd(e),
	)
	return root
}

// connectApp wires every backend the way the worker does.
func (e *env) connectApp(ctx context.Context) (*bootstrap.App, error) {
	return bootstrap.New(ctx, e.cfg, e.log)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
