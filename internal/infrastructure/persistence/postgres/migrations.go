package postgres

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_candidates",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_runs_and_assignments",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_drought_and_deliveries",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE CANDIDATES
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Roster of users taking part in drops
CREATE TABLE IF NOT EXISTS candidates (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(100) NOT NULL DEFAULT '',
    email VARCHAR(255) NOT NULL DEFAULT '',
    gender VARCHAR(30) NOT NULL DEFAULT '',
    ethnicity TEXT[] NOT NULL DEFAULT '{}',
    gender_preference TEXT[] NOT NULL DEFAULT '{}',
    ethnicity_preference TEXT[] NOT NULL DEFAULT '{}',
    cohort VARCHAR(30) NOT NULL DEFAULT '',
    major VARCHAR(100) NOT NULL DEFAULT '',
    instagram VARCHAR(100) NOT NULL DEFAULT '',
    photo_url TEXT NOT NULL DEFAULT '',
    telegram_chat_id BIGINT NOT NULL DEFAULT 0,
    score DOUBLE PRECISION NOT NULL DEFAULT 0,
    opted_in BOOLEAN NOT NULL DEFAULT TRUE,
    registered_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_score CHECK (score >= 0 AND score <= 100)
);

CREATE INDEX IF NOT EXISTS idx_candidates_opted_in ON candidates(opted_in) WHERE opted_in;

-- Every pair that has ever been matched, stored in canonical order.
-- Byte-order collation keeps the CHECK consistent with PairKey ordering.
CREATE TABLE IF NOT EXISTS historical_pairs (
    id BIGSERIAL PRIMARY KEY,
    user_low VARCHAR(64) COLLATE "C" NOT NULL,
    user_high VARCHAR(64) COLLATE "C" NOT NULL,
    run_id UUID NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT historical_pairs_canonical CHECK (user_low < user_high),
    CONSTRAINT historical_pairs_unique UNIQUE (user_low, user_high)
);
`

const migration001Down = `
DROP TABLE IF EXISTS historical_pairs;
DROP TABLE IF EXISTS candidates;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE RUNS AND ASSIGNMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS run_attempts (
    id UUID PRIMARY KEY,
    cycle_date TIMESTAMP WITH TIME ZONE NOT NULL,
    status VARCHAR(20) NOT NULL,
    stage VARCHAR(20) NOT NULL,
    algorithm VARCHAR(30) NOT NULL DEFAULT '',
    degraded BOOLEAN NOT NULL DEFAULT FALSE,
    reason TEXT NOT NULL DEFAULT '',
    error_detail TEXT NOT NULL DEFAULT '',
    stats JSONB NOT NULL DEFAULT '{}'::jsonb,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL,
    finished_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_run_status CHECK (status IN ('processing', 'completed', 'failed'))
);

-- At most one run may be processing at any time
CREATE UNIQUE INDEX IF NOT EXISTS idx_run_attempts_single_processing
    ON run_attempts ((true)) WHERE status = 'processing';

CREATE INDEX IF NOT EXISTS idx_run_attempts_started_at ON run_attempts(started_at DESC);

CREATE TABLE IF NOT EXISTS match_assignments (
    id UUID PRIMARY KEY,
    run_id UUID NOT NULL REFERENCES run_attempts(id),
    user_a VARCHAR(64) NOT NULL,
    user_b VARCHAR(64) NOT NULL,
    weight DOUBLE PRECISION NOT NULL,
    score DOUBLE PRECISION NOT NULL,
    score_diff DOUBLE PRECISION NOT NULL,
    algorithm VARCHAR(30) NOT NULL,
    profile_a JSONB NOT NULL,
    profile_b JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_match_assignments_run ON match_assignments(run_id);
`

const migration002Down = `
DROP TABLE IF EXISTS match_assignments;
DROP TABLE IF EXISTS run_attempts;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE DROUGHT RECORDS AND DELIVERIES
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS drought_records (
    id BIGSERIAL PRIMARY KEY,
    candidate_id VARCHAR(64) NOT NULL,
    cycle_date TIMESTAMP WITH TIME ZONE NOT NULL,
    run_id UUID NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT drought_records_unique UNIQUE (candidate_id, cycle_date)
);

CREATE INDEX IF NOT EXISTS idx_drought_records_cycle_date ON drought_records(cycle_date);

CREATE TABLE IF NOT EXISTS notification_deliveries (
    id UUID PRIMARY KEY,
    run_id UUID NOT NULL,
    candidate_id VARCHAR(64) NOT NULL,
    kind VARCHAR(20) NOT NULL,
    channel VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notification_deliveries_run ON notification_deliveries(run_id);
`

const migration003Down = `
DROP TABLE IF EXISTS notification_deliveries;
DROP TABLE IF EXISTS drought_records;
`
