package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
)

// migrationLockKey serializes migrations across worker replicas starting at
// the same time.
const migrationLockKey int64 = 0x64726f70 // "drop"

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	migrations := GetMigrations()
	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return &Migrator{conn: conn, migrations: migrations}
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// applied must run inside a transaction holding the migration lock.
func applied(ctx context.Context, tx pgx.Tx) (map[int]time.Time, error) {
	if _, err := tx.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := tx.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	versions := make(map[int]time.Time)
	var (
		v  int
		at time.Time
	)
	_, err = pgx.ForEachRow(rows, []any{&v, &at}, func() error {
		versions[v] = at
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan schema_migrations: %w", err)
	}
	return versions, nil
}

// locked runs fn in one transaction that holds the migration advisory lock.
func (m *Migrator) locked(ctx context.Context, fn func(tx pgx.Tx, done map[int]time.Time) error) error {
	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		done, err := applied(ctx, tx)
		if err != nil {
			return err
		}
		return fn(tx, done)
	})
}

// Migrate applies all pending migrations in version order and returns how
// many were applied. Either every pending migration applies or none does.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	count := 0
	err := m.locked(ctx, func(tx pgx.Tx, done map[int]time.Time) error {
		for _, mig := range m.migrations {
			if _, ok := done[mig.Version]; ok {
				continue
			}
			if mig.UpSQL == "" {
				return fmt.Errorf("%w: migration %d has no up SQL", ErrMigrationFailed, mig.Version)
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("%w: %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.Version, mig.Name,
			); err != nil {
				return fmt.Errorf("record migration %d: %w", mig.Version, err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Rollback reverts the latest applied migration. It is a no-op on an empty schema.
func (m *Migrator) Rollback(ctx context.Context) error {
	return m.locked(ctx, func(tx pgx.Tx, done map[int]time.Time) error {
		for i := len(m.migrations) - 1; i >= 0; i-- {
			mig := m.migrations[i]
			if _, ok := done[mig.Version]; !ok {
				continue
			}
			if mig.DownSQL == "" {
				return fmt.Errorf("%w: migration %d has no down SQL", ErrMigrationFailed, mig.Version)
			}
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("%w: rollback %03d_%s: %v", ErrMigrationFailed, mig.Version, mig.Name, err)
			}
			_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, mig.Version)
			return err
		}
		return nil
	})
}

// Status lists every known migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	var result []Migration
	err := m.locked(ctx, func(_ pgx.Tx, done map[int]time.Time) error {
		result = slices.Clone(m.migrations)
		for i := range result {
			if at, ok := done[result[i].Version]; ok {
				result[i].IsApplied = true
				result[i].AppliedAt = at
			}
		}
		return nil
	})
	return result, err
}
