package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RosterRepository implements matching.RosterRepository for PostgreSQL.
type RosterRepository struct {
	conn     *Connection
	validate *validator.Validate
	log      *slog.Logger
}

// NewRosterRepository creates a new RosterRepository.
// A nil logger falls back to slog.Default.
func NewRosterRepository(conn *Connection, log *slog.Logger) *RosterRepository {
	if log == nil {
		log = slog.Default()
	}
	return &RosterRepository{
		conn:     conn,
		validate: validator.New(),
		log:      log.With("component", "roster_repo"),
	}
}

const candidateColumns = `
	id, name, email, gender, ethnicity, gender_preference, ethnicity_preference,
	cohort, major, instagram, photo_url, telegram_chat_id, score, opted_in, registered_at
`

// ListOptedIn returns every opted-in candidate ordered by ID.
// Rows failing validation are returned with Malformed set, so the caller
// excludes them from the pool and counts them as invalid profiles.
func (r *RosterRepository) ListOptedIn(ctx context.Context) ([]matching.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM candidates WHERE opted_in ORDER BY id`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var out []matching.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		r.check(&c)
		out = append(out, c)
	}

	return out, rows.Err()
}

// UpdateScore stores a score obtained from the oracle.
func (r *RosterRepository) UpdateScore(ctx context.Context, id matching.CandidateID, score float64) error {
	if score < 0 || score > 100 {
		return shared.WrapError("roster", "UpdateScore", shared.ErrValueOutOfRange,
			fmt.Sprintf("score %.2f outside [0,100]", score), nil)
	}

	result, err := r.conn.Exec(ctx,
		`UPDATE candidates SET score = $1, updated_at = $2 WHERE id = $3`,
		score, time.Now().UTC(), string(id),
	)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}

	if result.RowsAffected() == 0 {
		return shared.WrapError("roster", "UpdateScore", shared.ErrNotFound,
			fmt.Sprintf("candidate %s not found", id), nil)
	}

	return nil
}

// Upsert validates a candidate and inserts or replaces it.
func (r *RosterRepository) Upsert(ctx context.Context, c *matching.Candidate) error {
	if err := r.validate.Struct(c); err != nil {
		return shared.WrapError("roster", "Upsert", shared.ErrValidation,
			fmt.Sprintf("candidate %s: %v", c.ID, err), err)
	}

	query := `
		INSERT INTO candidates (` + candidateColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			gender = EXCLUDED.gender,
			ethnicity = EXCLUDED.ethnicity,
			gender_preference = EXCLUDED.gender_preference,
			ethnicity_preference = EXCLUDED.ethnicity_preference,
			cohort = EXCLUDED.cohort,
			major = EXCLUDED.major,
			instagram = EXCLUDED.instagram,
			photo_url = EXCLUDED.photo_url,
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			score = EXCLUDED.score,
			opted_in = EXCLUDED.opted_in,
			updated_at = NOW()
	`

	_, err := r.conn.Exec(ctx, query,
		string(c.ID),
		c.Name,
		c.Email,
		c.Gender,
		nonNil(c.Ethnicity),
		nonNil(c.GenderPreference),
		nonNil(c.EthnicityPreference),
		c.Cohort,
		c.Major,
		c.Instagram,
		c.PhotoURL,
		c.TelegramChatID,
		c.Score,
		c.OptedIn,
		c.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate: %w", err)
	}

	return nil
}

// check validates a loaded candidate and flags it when the record is malformed.
func (r *RosterRepository) check(c *matching.Candidate) {
	if err := r.validate.Struct(c); err != nil {
		c.Malformed = true
		r.log.Warn("candidate failed validation, excluded from drop",
			"candidate_id", c.ID,
			"error", err,
		)
	}
}

func scanCandidate(row pgx.Row) (matching.Candidate, error) {
	var (
		c  matching.Candidate
		id string
	)

	err := row.Scan(
		&id,
		&c.Name,
		&c.Email,
		&c.Gender,
		&c.Ethnicity,
		&c.GenderPreference,
		&c.EthnicityPreference,
		&c.Cohort,
		&c.Major,
		&c.Instagram,
		&c.PhotoURL,
		&c.TelegramChatID,
		&c.Score,
		&c.OptedIn,
		&c.RegisteredAt,
	)
	if err != nil {
		return matching.Candidate{}, fmt.Errorf("failed to scan candidate: %w", err)
	}

	c.ID = matching.CandidateID(id)
	return c, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
