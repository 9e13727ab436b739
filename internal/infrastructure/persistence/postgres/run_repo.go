package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RunRepository implements matching.RunRepository for PostgreSQL.
// A partial unique index guarantees at most one run in status processing.
type RunRepository struct {
	conn *Connection
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(conn *Connection) *RunRepository {
	return &RunRepository{conn: conn}
}

const runColumns = `
	id, cycle_date, status, stage, algorithm, degraded, reason, error_detail,
	stats, started_at, finished_at
`

// Create inserts a new run attempt.
func (r *RunRepository) Create(ctx context.Context, run *matching.RunAttempt) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO run_attempts (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		run.ID,
		run.CycleDate,
		string(run.Status),
		string(run.Stage),
		string(run.Algorithm),
		run.Degraded,
		run.Reason,
		run.ErrorDetail,
		stats,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return matching.ErrRunInProgress
		}
		return fmt.Errorf("failed to create run attempt: %w", err)
	}

	return nil
}

// Update persists status, stage, flags and stats of a run.
// Only a run still in status processing can be updated; a closed run
// yields matching.ErrRunFinished.
func (r *RunRepository) Update(ctx context.Context, run *matching.RunAttempt) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal run stats: %w", err)
	}

	result, err := r.conn.Exec(ctx, `
		UPDATE run_attempts SET
			status = $1,
			stage = $2,
			algorithm = $3,
			degraded = $4,
			reason = $5,
			error_detail = $6,
			stats = $7,
			finished_at = $8
		WHERE id = $9 AND status = 'processing'
	`,
		string(run.Status),
		string(run.Stage),
		string(run.Algorithm),
		run.Degraded,
		run.Reason,
		run.ErrorDetail,
		stats,
		run.FinishedAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run attempt: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		err := r.conn.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM run_attempts WHERE id = $1)`, run.ID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check run attempt: %w", err)
		}
		if exists {
			return matching.ErrRunFinished
		}
		return matching.ErrRunNotFound
	}

	return nil
}

// GetByID returns a run attempt by ID.
func (r *RunRepository) GetByID(ctx context.Context, id uuid.UUID) (*matching.RunAttempt, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+runColumns+` FROM run_attempts WHERE id = $1`, id)
	return scanRun(row)
}

// ListRecent returns the latest run attempts, newest first.
func (r *RunRepository) ListRecent(ctx context.Context, limit int) ([]*matching.RunAttempt, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.conn.Query(ctx,
		`SELECT `+runColumns+` FROM run_attempts ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run attempts: %w", err)
	}
	defer rows.Close()

	var out []*matching.RunAttempt
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}

	return out, rows.Err()
}

// FailStale marks processing runs started before olderThan as failed.
func (r *RunRepository) FailStale(ctx context.Context, olderThan time.Time, reason string) (int, error) {
	result, err := r.conn.Exec(ctx, `
		UPDATE run_attempts SET
			status = 'failed',
			reason = $1,
			error_detail = $1,
			finished_at = NOW()
		WHERE status = 'processing' AND started_at < $2
	`, reason, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale runs: %w", err)
	}

	return int(result.RowsAffected()), nil
}

func scanRun(row pgx.Row) (*matching.RunAttempt, error) {
	var (
		run                      matching.RunAttempt
		status, stage, algorithm string
		stats                    []byte
	)

	err := row.Scan(
		&run.ID,
		&run.CycleDate,
		&status,
		&stage,
		&algorithm,
		&run.Degraded,
		&run.Reason,
		&run.ErrorDetail,
		&stats,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, matching.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to scan run attempt: %w", err)
	}

	run.Status = matching.Status(status)
	run.Stage = matching.Stage(stage)
	run.Algorithm = matching.Algorithm(algorithm)

	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &run.Stats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run stats: %w", err)
		}
	}

	return &run, nil
}
