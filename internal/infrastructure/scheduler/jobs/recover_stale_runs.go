package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// RecoverStaleRunsJob marks run attempts stuck in processing as failed, so
// that a crashed worker does not block the next drop until it is triggered.
type RecoverStaleRunsJob struct {
	runs     matching.RunRepository
	staleFor time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewRecoverStaleRunsJob creates the job. Attempts processing for longer
// than staleFor are failed with matching.ReasonAbandoned.
func NewRecoverStaleRunsJob(runs matching.RunRepository, staleFor time.Duration, logger *slog.Logger) *RecoverStaleRunsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoverStaleRunsJob{
		runs:     runs,
		staleFor: staleFor,
		logger:   logger.With(slog.String("job", "recover_stale_runs")),
		now:      time.Now,
	}
}

func (j *RecoverStaleRunsJob) Name() string { return "recover_stale_runs" }

func (j *RecoverStaleRunsJob) Description() string {
	return "Fails run attempts abandoned in the processing state"
}

// Run executes the job.
func (j *RecoverStaleRunsJob) Run(ctx context.Context) error {
	n, err := j.runs.FailStale(ctx, j.now().UTC().Add(-j.staleFor), matching.ReasonAbandoned)
	if err != nil {
		return fmt.Errorf("fail stale runs: %w", err)
	}
	if n > 0 {
		j.logger.Warn("marked stale runs as failed", slog.Int("count", n))
	}
	return nil
}
