package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORDER
// ══════════════════════════════════════════════════════════════════════════════

// PersistResult is what the recorder actually wrote.
type PersistResult struct {
	Persisted  []matching.Assignment
	Collisions int
}

// Recorder writes a run's assignments and their historical pairs in one transaction.
type Recorder struct {
	uow    matching.UnitOfWork
	logger *slog.Logger
}

// NewRecorder creates a new Recorder.
func NewRecorder(uow matching.UnitOfWork, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{uow: uow, logger: logger}
}

// Persist re-checks every pair against the in-memory ledger and the stored
// history before inserting it. A pair seen before is skipped and counted.
// Any error rolls back the whole batch and the ledger is left untouched.
func (r *Recorder) Persist(ctx context.Context, assignments []matching.Assignment, ledger *matching.Ledger) (PersistResult, error) {
	var (
		persisted  []matching.Assignment
		collisions int
		added      []matching.PairKey
	)

	err := r.uow.WithinTx(ctx, func(ctx context.Context, w matching.MatchWriter) error {
		persisted = persisted[:0]
		collisions = 0
		added = added[:0]
		seen := make(map[matching.PairKey]struct{}, len(assignments))

		for i := range assignments {
			a := &assignments[i]
			key := a.Key()

			_, dup := seen[key]
			if dup || ledger.Has(a.A, a.B) {
				collisions++
				r.logger.Warn("skipping historical pair", slog.String("pair", key.String()))
				continue
			}

			exists, err := w.PairExists(ctx, key)
			if err != nil {
				return fmt.Errorf("check pair %s: %w", key, err)
			}
			if exists {
				collisions++
				r.logger.Warn("skipping pair found in storage", slog.String("pair", key.String()))
				continue
			}

			if err := w.InsertAssignment(ctx, a); err != nil {
				return fmt.Errorf("insert assignment %s: %w", key, err)
			}
			if err := w.InsertHistoricalPair(ctx, matching.HistoricalPair{
				Key:       key,
				RunID:     a.RunID,
				CreatedAt: a.CreatedAt,
			}); err != nil {
				return fmt.Errorf("insert historical pair %s: %w", key, err)
			}

			seen[key] = struct{}{}
			added = append(added, key)
			persisted = append(persisted, *a)
		}
		return nil
	})
	if err != nil {
		return PersistResult{}, err
	}

	for _, key := range added {
		ledger.Add(key.Low, key.High)
	}

	return PersistResult{Persisted: persisted, Collisions: collisions}, nil
}
