package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/drop-matcher/internal/application/command"
	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/pkg/logger"
)

type stubRunner struct {
	outcome *command.RunOutcome
	err     error
	cmd     command.RunMatchCycleCommand
	hasDL   bool
}

func (r *stubRunner) Handle(ctx context.Context, cmd command.RunMatchCycleCommand) (*command.RunOutcome, error) {
	r.cmd = cmd
	_, r.hasDL = ctx.Deadline()
	return r.outcome, r.err
}

func TestMatchCycleJob_Run(t *testing.T) {
	runner := &stubRunner{outcome: &command.RunOutcome{
		Kind:    command.OutcomeCompleted,
		Summary: command.RunSummary{RunID: "r1", MatchesCreated: 2},
	}}
	job := NewMatchCycleJob(runner, logger.Discard(), MatchCycleConfig{})

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, "scheduler", runner.cmd.Trigger)
	assert.False(t, runner.cmd.DryRun)
	assert.True(t, runner.hasDL)
	require.NotNil(t, job.LastSummary())
	assert.Equal(t, 2, job.LastSummary().MatchesCreated)
}

func TestMatchCycleJob_InProgressIsSkipped(t *testing.T) {
	runner := &stubRunner{err: matching.ErrRunInProgress}
	job := NewMatchCycleJob(runner, logger.Discard(), DefaultMatchCycleConfig())

	assert.NoError(t, job.Run(context.Background()))
	assert.Nil(t, job.LastSummary())
}

func TestMatchCycleJob_FailedRun(t *testing.T) {
	cause := errors.New("database is down")
	runner := &stubRunner{outcome: &command.RunOutcome{
		Kind:    command.OutcomeFailed,
		Summary: command.RunSummary{RunID: "r2"},
		Err:     cause,
	}}
	job := NewMatchCycleJob(runner, logger.Discard(), DefaultMatchCycleConfig())

	err := job.Run(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "r2")
}

type staleRuns struct {
	matching.RunRepository
	cutoff time.Time
	reason string
}

func (r *staleRuns) FailStale(_ context.Context, olderThan time.Time, reason string) (int, error) {
	r.cutoff, r.reason = olderThan, reason
	return 1, nil
}

func TestRecoverStaleRunsJob(t *testing.T) {
	runs := &staleRuns{}
	job := NewRecoverStaleRunsJob(runs, 2*time.Hour, logger.Discard())
	now := time.Date(2026, 3, 6, 20, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, now.Add(-2*time.Hour), runs.cutoff)
	assert.Equal(t, matching.ReasonAbandoned, runs.reason)
}
