package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/drop-matcher/internal/domain/notification"
)

// DeliveryRepository implements notification.DeliveryRepository for PostgreSQL.
type DeliveryRepository struct {
	conn *Connection
}

// NewDeliveryRepository creates a new DeliveryRepository.
func NewDeliveryRepository(conn *Connection) *DeliveryRepository {
	return &DeliveryRepository{conn: conn}
}

// SaveBatch appends deliveries to the log.
func (r *DeliveryRepository) SaveBatch(ctx context.Context, deliveries []notification.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(deliveries))
	for _, d := range deliveries {
		rows = append(rows, []any{
			d.ID,
			d.RunID,
			d.CandidateID,
			string(d.Kind),
			string(d.Channel),
			string(d.Status),
			d.Attempts,
			d.Error,
			d.CreatedAt,
		})
	}

	_, err := r.conn.Pool().CopyFrom(ctx,
		pgx.Identifier{"notification_deliveries"},
		[]string{"id", "run_id", "candidate_id", "kind", "channel", "status", "attempts", "error", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to save deliveries: %w", err)
	}

	return nil
}

// ListByRun returns deliveries of a run in insertion order.
func (r *DeliveryRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]notification.Delivery, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, run_id, candidate_id, kind, channel, status, attempts, error, created_at
		FROM notification_deliveries
		WHERE run_id = $1
		ORDER BY created_at, candidate_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []notification.Delivery
	for rows.Next() {
		var (
			d                     notification.Delivery
			kind, channel, status string
		)
		err := rows.Scan(&d.ID, &d.RunID, &d.CandidateID, &kind, &channel, &status,
			&d.Attempts, &d.Error, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		d.Kind = notification.Kind(kind)
		d.Channel = notification.ChannelType(channel)
		d.Status = notification.DeliveryStatus(status)
		out = append(out, d)
	}

	return out, rows.Err()
}
