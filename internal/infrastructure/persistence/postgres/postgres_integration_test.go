//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/domain/notification"
	"github.com/alem-hub/drop-matcher/internal/domain/shared"
)

var testConn *Connection

// TestMain starts a PostgreSQL container and applies migrations once.
func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "matcher",
				"POSTGRES_PASSWORD": "matcher",
				"POSTGRES_DB":       "drops",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	url := fmt.Sprintf("postgres://matcher:matcher@%s:%s/drops?sslmode=disable", host, port.Port())
	testConn, err = NewConnection(ctx, DefaultConfig(url))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	if _, err := NewMigrator(testConn).Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	code := m.Run()

	testConn.Close()
	_ = container.Terminate(ctx)

	os.Exit(code)
}

func resetTables(t *testing.T) {
	t.Helper()
	_, err := testConn.Exec(context.Background(), `
		TRUNCATE candidates, historical_pairs, match_assignments, run_attempts,
		         drought_records, notification_deliveries
	`)
	require.NoError(t, err)
}

func fixtureCandidate(id string) *matching.Candidate {
	return &matching.Candidate{
		ID:                  matching.CandidateID(id),
		Name:                "User " + id,
		Email:               id + "@example.com",
		Gender:              "female",
		Ethnicity:           []string{"asian"},
		GenderPreference:    []string{"male"},
		EthnicityPreference: []string{"prefer not to answer"},
		Cohort:              "2027",
		Major:               "CS",
		Instagram:           "@" + id,
		PhotoURL:            "https://cdn.example.com/" + id + ".jpg",
		RegisteredAt:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		OptedIn:             true,
	}
}

func TestMigrator_StatusAndRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMigrator(testConn)

	status, err := m.Status(ctx)
	require.NoError(t, err)
	for _, mig := range status {
		assert.True(t, mig.IsApplied, mig.Name)
	}

	require.NoError(t, m.Rollback(ctx))
	n, err := m.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRosterRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewRosterRepository(testConn, nil)

	require.NoError(t, repo.Upsert(ctx, fixtureCandidate("b")))
	require.NoError(t, repo.Upsert(ctx, fixtureCandidate("a")))
	out := fixtureCandidate("c")
	out.OptedIn = false
	require.NoError(t, repo.Upsert(ctx, out))

	bad := fixtureCandidate("d")
	bad.Email = "not-an-email"
	assert.True(t, shared.IsValidation(repo.Upsert(ctx, bad)))

	list, err := repo.ListOptedIn(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, matching.CandidateID("a"), list[0].ID)
	assert.Equal(t, []string{"asian"}, list[0].Ethnicity)

	require.NoError(t, repo.UpdateScore(ctx, "a", 72.5))
	list, err = repo.ListOptedIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 72.5, list[0].Score)

	assert.True(t, shared.IsNotFound(repo.UpdateScore(ctx, "zzz", 10)))

	_, err = testConn.Exec(ctx, `UPDATE candidates SET email = 'broken' WHERE id = 'b'`)
	require.NoError(t, err)
	list, err = repo.ListOptedIn(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, list[0].Malformed)
	assert.True(t, list[1].Malformed)
	assert.False(t, list[1].IsEligible())
}

func TestRunRepository_SingleProcessing(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewRunRepository(testConn)
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := matching.NewRunAttempt(now, now.Add(-3*time.Hour))
	require.NoError(t, repo.Create(ctx, first))

	second := matching.NewRunAttempt(now, now)
	assert.ErrorIs(t, repo.Create(ctx, second), matching.ErrRunInProgress)

	n, err := repo.FailStale(ctx, now.Add(-2*time.Hour), matching.ReasonAbandoned)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, matching.StatusFailed, got.Status)
	assert.Equal(t, matching.ReasonAbandoned, got.Reason)

	require.NoError(t, first.Advance(matching.StageBuilding))
	require.NoError(t, first.Complete(now))
	assert.ErrorIs(t, repo.Update(ctx, first), matching.ErrRunFinished)
	got, err = repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, matching.StatusFailed, got.Status)

	require.NoError(t, repo.Create(ctx, second))
	second.Stats.MatchedPairs = 4
	require.NoError(t, second.Advance(matching.StageBuilding))
	require.NoError(t, second.Complete(now))
	require.NoError(t, repo.Update(ctx, second))

	got, err = repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, matching.StatusCompleted, got.Status)
	assert.Equal(t, 4, got.Stats.MatchedPairs)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, matching.ErrRunNotFound)
}

func TestMatchStore_RollbackOnError(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	now := time.Now().UTC()

	run := matching.NewRunAttempt(now, now)
	require.NoError(t, NewRunRepository(testConn).Create(ctx, run))

	store := NewMatchStore(testConn)
	a, b := fixtureCandidate("a"), fixtureCandidate("b")
	asg := matching.NewAssignment(run.ID, a, b, 10, matching.AlgorithmBlossom, now)

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, w matching.MatchWriter) error {
		require.NoError(t, w.InsertAssignment(ctx, &asg))
		require.NoError(t, w.InsertHistoricalPair(ctx, matching.HistoricalPair{Key: asg.Key(), RunID: run.ID, CreatedAt: now}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := store.ListByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	pairs, err := NewHistoryRepository(testConn).ListPairs(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	err = store.WithinTx(ctx, func(ctx context.Context, w matching.MatchWriter) error {
		if err := w.InsertAssignment(ctx, &asg); err != nil {
			return err
		}
		return w.InsertHistoricalPair(ctx, matching.HistoricalPair{Key: asg.Key(), RunID: run.ID, CreatedAt: now})
	})
	require.NoError(t, err)

	list, err = store.ListByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "User b", list[0].ProfileB.Name)

	err = store.WithinTx(ctx, func(ctx context.Context, w matching.MatchWriter) error {
		exists, err := w.PairExists(ctx, matching.NewPairKey("b", "a"))
		require.NoError(t, err)
		assert.True(t, exists)
		return w.InsertHistoricalPair(ctx, matching.HistoricalPair{Key: asg.Key(), RunID: run.ID, CreatedAt: now})
	})
	assert.True(t, shared.IsAlreadyExists(err))
}

func TestDroughtRepository_Idempotent(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewDroughtRepository(testConn)
	cycle := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	runID := uuid.New()

	recs := []matching.DroughtRecord{
		{CandidateID: "a", CycleDate: cycle, RunID: runID, CreatedAt: cycle},
		{CandidateID: "b", CycleDate: cycle, RunID: runID, CreatedAt: cycle},
	}
	n, err := repo.Record(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.Record(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := repo.ListSince(ctx, cycle.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = repo.ListSince(ctx, cycle.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeliveryRepository(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	repo := NewDeliveryRepository(testConn)
	runID := uuid.New()
	now := time.Now().UTC()

	err := repo.SaveBatch(ctx, []notification.Delivery{
		{ID: uuid.New(), RunID: runID, CandidateID: "a", Kind: notification.KindMatch, Channel: notification.ChannelTypeEmail, Status: notification.DeliveryStatusSent, Attempts: 1, CreatedAt: now},
		{ID: uuid.New(), RunID: runID, CandidateID: "b", Kind: notification.KindMatch, Channel: notification.ChannelTypeEmail, Status: notification.DeliveryStatusFailed, Attempts: 3, Error: "timeout", CreatedAt: now},
	})
	require.NoError(t, err)

	got, err := repo.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsSent())
	assert.Equal(t, "timeout", got[1].Error)
}

func TestMatchStore_MixedCaseIDs(t *testing.T) {
	resetTables(t)
	ctx := context.Background()
	now := time.Now().UTC()

	run := matching.NewRunAttempt(now, now)
	require.NoError(t, NewRunRepository(testConn).Create(ctx, run))

	// "Carl" < "bob" byte-wise, the reverse under en_US collation.
	key := matching.NewPairKey("bob", "Carl")
	require.Equal(t, matching.CandidateID("Carl"), key.Low)

	store := NewMatchStore(testConn)
	err := store.WithinTx(ctx, func(ctx context.Context, w matching.MatchWriter) error {
		return w.InsertHistoricalPair(ctx, matching.HistoricalPair{Key: key, RunID: run.ID, CreatedAt: now})
	})
	require.NoError(t, err)

	pairs, err := NewHistoryRepository(testConn).ListPairs(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, key, pairs[0].Key)
}
