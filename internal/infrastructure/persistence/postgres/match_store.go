package postgres

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH STORE
// Atomic persistence of a run's assignments and their historical pairs.
// ══════════════════════════════════════════════════════════════════════════════

// MatchStore implements matching.UnitOfWork and matching.AssignmentReader.
type MatchStore struct {
	conn *Connection
}

// NewMatchStore creates a new MatchStore.
func NewMatchStore(conn *Connection) *MatchStore {
	return &MatchStore{conn: conn}
}

// WithinTx runs fn inside a single transaction. Any error rolls back
// every assignment and historical pair written by fn.
func (s *MatchStore) WithinTx(ctx context.Context, fn func(ctx context.Context, w matching.MatchWriter) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &txMatchWriter{q: tx})
	})
}

// ListByRun returns assignments created by a run.
func (s *MatchStore) ListByRun(ctx context.Context, runID uuid.UUID) ([]matching.Assignment, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, run_id, user_a, user_b, weight, score, score_diff, algorithm,
		       profile_a, profile_b, created_at
		FROM match_assignments
		WHERE run_id = $1
		ORDER BY created_at, id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []matching.Assignment
	for rows.Next() {
		var (
			a                  matching.Assignment
			userA, userB, algo string
			profA, profB       []byte
		)
		err := rows.Scan(&a.ID, &a.RunID, &userA, &userB, &a.Weight, &a.Score, &a.ScoreDiff,
			&algo, &profA, &profB, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.A = matching.CandidateID(userA)
		a.B = matching.CandidateID(userB)
		a.Algorithm = matching.Algorithm(algo)
		if err := json.Unmarshal(profA, &a.ProfileA); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
		if err := json.Unmarshal(profB, &a.ProfileB); err != nil {
			return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
		}
		out = append(out, a)
	}

	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Transactional writer
// ─────────────────────────────────────────────────────────────────────────────

type txMatchWriter struct {
	q Querier
}

func (w *txMatchWriter) PairExists(ctx context.Context, key matching.PairKey) (bool, error) {
	var exists bool
	err := w.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM historical_pairs WHERE user_low = $1 AND user_high = $2
		)
	`, string(key.Low), string(key.High)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check historical pair: %w", err)
	}
	return exists, nil
}

func (w *txMatchWriter) InsertAssignment(ctx context.Context, a *matching.Assignment) error {
	profA, err := json.Marshal(a.ProfileA)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	profB, err := json.Marshal(a.ProfileB)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	_, err = w.q.Exec(ctx, `
		INSERT INTO match_assignments (
			id, run_id, user_a, user_b, weight, score, score_diff, algorithm,
			profile_a, profile_b, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		a.ID,
		a.RunID,
		string(a.A),
		string(a.B),
		a.Weight,
		a.Score,
		a.ScoreDiff,
		string(a.Algorithm),
		profA,
		profB,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

func (w *txMatchWriter) InsertHistoricalPair(ctx context.Context, p matching.HistoricalPair) error {
	_, err := w.q.Exec(ctx, `
		INSERT INTO historical_pairs (user_low, user_high, run_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, string(p.Key.Low), string(p.Key.High), p.RunID, p.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("matching", "InsertHistoricalPair", shared.ErrAlreadyExists,
				fmt.Sprintf("pair %s already matched", p.Key), err)
		}
		return fmt.Errorf("failed to insert historical pair: %w", err)
	}
	return nil
}
