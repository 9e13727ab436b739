package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("completed"))

	RecordRun("completed", 2*time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("completed")))
	assert.Greater(t, testutil.ToFloat64(LastSuccessTimestamp), 0.0)
}

func TestRecordNotification(t *testing.T) {
	before := testutil.ToFloat64(NotificationsTotal.WithLabelValues("match", "email", "failed"))

	RecordNotification("match", "email", false)

	assert.Equal(t, before+1, testutil.ToFloat64(NotificationsTotal.WithLabelValues("match", "email", "failed")))
}

func TestSetBreakerState(t *testing.T) {
	SetBreakerState("oracle", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(CircuitBreakerState.WithLabelValues("oracle")))
}

func TestRunObserver_ObserveRun(t *testing.T) {
	blossom := testutil.ToFloat64(PairsCreated.WithLabelValues("blossom"))
	fallbacks := testutil.ToFloat64(SolverFallbacks)

	RunObserver{}.ObserveRun("completed", time.Second, map[string]int{"blossom": 3}, 1, true)

	assert.Equal(t, blossom+3, testutil.ToFloat64(PairsCreated.WithLabelValues("blossom")))
	assert.Equal(t, fallbacks+1, testutil.ToFloat64(SolverFallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(UnmatchedCandidates))
}

func TestRecordJob(t *testing.T) {
	before := testutil.ToFloat64(JobRunsTotal.WithLabelValues("match_cycle", "skipped"))

	RecordJob("match_cycle", "skipped", 0)

	assert.Equal(t, before+1, testutil.ToFloat64(JobRunsTotal.WithLabelValues("match_cycle", "skipped")))
}
