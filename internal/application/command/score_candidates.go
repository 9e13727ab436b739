package command

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORING
// Fills in missing desirability scores before the graph is built.
// ══════════════════════════════════════════════════════════════════════════════

// Scorer returns a desirability score in [0,100] for a photo.
type Scorer interface {
	Score(ctx context.Context, imageURL string) (float64, error)
}

// ScoringStats counts what happened while scoring.
type ScoringStats struct {
	Scored   int
	Failed   int
	Zero     int
	Excluded int
}

// CandidateScorer scores unscored candidates in parallel.
type CandidateScorer struct {
	scorer      Scorer
	roster      matching.RosterRepository
	concurrency int
	logger      *slog.Logger
}

// NewCandidateScorer creates a CandidateScorer. A nil scorer leaves unscored
// candidates out of the run.
func NewCandidateScorer(scorer Scorer, roster matching.RosterRepository, concurrency int, logger *slog.Logger) *CandidateScorer {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CandidateScorer{
		scorer:      scorer,
		roster:      roster,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ScoreMissing returns the candidates that end up with a positive score.
// Candidates that already have a score are never sent to the oracle.
// An oracle failure excludes the candidate from this run only; an explicit
// zero is written back and also excludes it. With persist=false nothing is
// written back.
func (s *CandidateScorer) ScoreMissing(ctx context.Context, candidates []matching.Candidate, persist bool) ([]matching.Candidate, ScoringStats, error) {
	out := make([]matching.Candidate, len(candidates))
	copy(out, candidates)

	ok := make([]bool, len(out))
	var scored, failed, zero atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for i := range out {
		if out[i].HasScore() {
			ok[i] = true
			continue
		}
		if s.scorer == nil {
			failed.Add(1)
			continue
		}

		c := &out[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			score, err := s.scorer.Score(ctx, c.PhotoURL)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("oracle scoring failed, candidate excluded",
					slog.String("candidate_id", c.ID.String()),
					slog.Any("error", err),
				)
				return nil
			}

			scored.Add(1)
			c.Score = score
			if persist {
				if err := s.roster.UpdateScore(ctx, c.ID, score); err != nil {
					s.logger.Warn("failed to store oracle score",
						slog.String("candidate_id", c.ID.String()),
						slog.Any("error", err),
					)
				}
			}

			if score == 0 {
				zero.Add(1)
				return nil
			}
			ok[i] = true
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, ScoringStats{}, err
	}

	ready := make([]matching.Candidate, 0, len(out))
	for i := range out {
		if ok[i] {
			ready = append(ready, out[i])
		}
	}

	stats := ScoringStats{
		Scored:   int(scored.Load()),
		Failed:   int(failed.Load()),
		Zero:     int(zero.Load()),
		Excluded: len(out) - len(ready),
	}
	return ready, stats, nil
}
