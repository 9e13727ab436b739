package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// HistoryRepository implements matching.HistoryRepository for PostgreSQL.
type HistoryRepository struct {
	conn *Connection
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(conn *Connection) *HistoryRepository {
	return &HistoryRepository{conn: conn}
}

// ListPairs returns every pair that has ever been matched.
func (r *HistoryRepository) ListPairs(ctx context.Context) ([]matching.HistoricalPair, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_low, user_high, run_id, created_at
		FROM historical_pairs
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list historical pairs: %w", err)
	}
	defer rows.Close()

	var out []matching.HistoricalPair
	for rows.Next() {
		p, err := scanHistoricalPair(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}

	return out, rows.Err()
}

func scanHistoricalPair(row pgx.Row) (matching.HistoricalPair, error) {
	var (
		low, high string
		runID     uuid.UUID
		createdAt time.Time
	)
	if err := row.Scan(&low, &high, &runID, &createdAt); err != nil {
		return matching.HistoricalPair{}, fmt.Errorf("failed to scan historical pair: %w", err)
	}
	return matching.HistoricalPair{
		Key:       matching.NewPairKey(matching.CandidateID(low), matching.CandidateID(high)),
		RunID:     runID,
		CreatedAt: createdAt,
	}, nil
}
