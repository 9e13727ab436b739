package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// DROUGHT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// DroughtRepository implements matching.DroughtRepository for PostgreSQL.
type DroughtRepository struct {
	conn *Connection
}

// NewDroughtRepository creates a new DroughtRepository.
func NewDroughtRepository(conn *Connection) *DroughtRepository {
	return &DroughtRepository{conn: conn}
}

// ListSince returns records with cycle_date >= since.
func (r *DroughtRepository) ListSince(ctx context.Context, since time.Time) ([]matching.DroughtRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT candidate_id, cycle_date, run_id, created_at
		FROM drought_records
		WHERE cycle_date >= $1
		ORDER BY cycle_date, candidate_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list drought records: %w", err)
	}
	defer rows.Close()

	var out []matching.DroughtRecord
	for rows.Next() {
		var (
			rec matching.DroughtRecord
			id  string
		)
		if err := rows.Scan(&id, &rec.CycleDate, &rec.RunID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan drought record: %w", err)
		}
		rec.CandidateID = matching.CandidateID(id)
		out = append(out, rec)
	}

	return out, rows.Err()
}

// Record inserts records in one batch. A candidate already recorded for the
// same cycle is skipped. Returns the number of rows actually inserted.
func (r *DroughtRepository) Record(ctx context.Context, records []matching.DroughtRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO drought_records (candidate_id, cycle_date, run_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (candidate_id, cycle_date) DO NOTHING
		`, string(rec.CandidateID), rec.CycleDate, rec.RunID, rec.CreatedAt)
	}

	inserted := 0
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for range records {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("failed to insert drought record: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, err
	}

	return inserted, nil
}
