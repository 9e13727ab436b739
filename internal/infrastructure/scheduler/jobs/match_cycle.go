// Package jobs contains the scheduled jobs of the drop matcher.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alem-hub/drop-matcher/internal/application/command"
	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH CYCLE JOB
// ══════════════════════════════════════════════════════════════════════════════

// CycleRunner runs one matching cycle.
type CycleRunner interface {
	Handle(ctx context.Context, cmd command.RunMatchCycleCommand) (*command.RunOutcome, error)
}

// MatchCycleJob triggers the weekly drop from the in-process scheduler.
// A cycle that is already running elsewhere (HTTP trigger, another replica)
// is not an error: the tick is logged and skipped.
type MatchCycleJob struct {
	runner CycleRunner
	logger *slog.Logger
	config MatchCycleConfig

	lastSummary atomic.Pointer[command.RunSummary]
}

// MatchCycleConfig contains configuration for the match cycle job.
type MatchCycleConfig struct {
	// Timeout is the maximum duration of one cycle.
	Timeout time.Duration
}

// DefaultMatchCycleConfig returns sensible defaults.
func DefaultMatchCycleConfig() MatchCycleConfig {
	return MatchCycleConfig{Timeout: 15 * time.Minute}
}

// NewMatchCycleJob creates a new match cycle job.
func NewMatchCycleJob(runner CycleRunner, logger *slog.Logger, config MatchCycleConfig) *MatchCycleJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultMatchCycleConfig().Timeout
	}
	return &MatchCycleJob{
		runner: runner,
		logger: logger.With(slog.String("job", "match_cycle")),
		config: config,
	}
}

// Name returns the job name.
func (j *MatchCycleJob) Name() string {
	return "match_cycle"
}

// Description returns a human-readable description.
func (j *MatchCycleJob) Description() string {
	return "Pairs opted-in candidates and notifies them about their drop"
}

// Run executes one matching cycle.
func (j *MatchCycleJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	outcome, err := j.runner.Handle(ctx, command.RunMatchCycleCommand{Trigger: "scheduler"})
	if errors.Is(err, matching.ErrRunInProgress) {
		j.logger.Info("matching run already in progress, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("match cycle: %w", err)
	}

	summary := outcome.Summary
	j.lastSummary.Store(&summary)

	if outcome.Failed() {
		return fmt.Errorf("match cycle %s failed: %w", summary.RunID, outcome.Err)
	}
	return nil
}

// LastSummary returns the summary of the last cycle this job ran, or nil.
func (j *MatchCycleJob) LastSummary() *command.RunSummary {
	return j.lastSummary.Load()
}
