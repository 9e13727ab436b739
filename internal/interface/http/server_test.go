package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/drop-matcher/internal/application/command"
	"github.com/alem-hub/drop-matcher/internal/application/query"
	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/interface/http/handlers"
	"github.com/alem-hub/drop-matcher/pkg/logger"
)

const secret = "cron-secret"

type stubRunner struct {
	outcome *command.RunOutcome
	err     error
	calls   int
	last    command.RunMatchCycleCommand
}

func (r *stubRunner) Handle(_ context.Context, cmd command.RunMatchCycleCommand) (*command.RunOutcome, error) {
	r.calls++
	r.last = cmd
	return r.outcome, r.err
}

type stubGetter struct {
	dto *query.RunDTO
}

func (g stubGetter) Handle(_ context.Context, q query.GetRunQuery) (*query.RunDTO, error) {
	if g.dto == nil || g.dto.ID != q.RunID.String() {
		return nil, matching.ErrRunNotFound
	}
	return g.dto, nil
}

func newTestServer(runner *stubRunner, getter stubGetter) http.Handler {
	cfg := DefaultConfig()
	cfg.CronSecret = secret
	cfg.RateLimitPerMinute = 0

	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("database", func(context.Context) error { return nil })

	s := NewServer(cfg, Dependencies{
		Runs:   handlers.NewRunsHandler(runner, getter, nil, time.Minute),
		Health: checker,
		Logger: logger.Discard(),
	})
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, authorized bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authorized {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTriggerMatch_Unauthorized(t *testing.T) {
	runner := &stubRunner{}
	h := newTestServer(runner, stubGetter{})

	rec := do(t, h, http.MethodPost, "/api/v1/cron/match", false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, runner.calls)
}

func TestTriggerMatch_Completed(t *testing.T) {
	runner := &stubRunner{outcome: &command.RunOutcome{
		Kind: command.OutcomeCompleted,
		Summary: command.RunSummary{
			RunID:          "run-1",
			Outcome:        "completed",
			Status:         "completed",
			TotalUsers:     10,
			EligibleUsers:  8,
			MatchesCreated: 4,
			MatchedUsers:   8,
			Algorithm:      "blossom",
		},
	}}
	h := newTestServer(runner, stubGetter{})

	for _, method := range []string{http.MethodPost, http.MethodGet} {
		rec := do(t, h, method, "/api/v1/cron/match", true)
		require.Equal(t, http.StatusOK, rec.Code, method)

		var body command.RunSummary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "run-1", body.RunID)
		assert.Equal(t, 4, body.MatchesCreated)
		assert.Equal(t, "blossom", body.Algorithm)
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
	assert.Equal(t, "http", runner.last.Trigger)
	assert.False(t, runner.last.DryRun)
}

func TestTriggerMatch_DryRun(t *testing.T) {
	runner := &stubRunner{outcome: &command.RunOutcome{Kind: command.OutcomeDryRun}}
	h := newTestServer(runner, stubGetter{})

	rec := do(t, h, http.MethodPost, "/api/v1/cron/match?dry_run=true", true)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, runner.last.DryRun)
}

func TestTriggerMatch_InProgress(t *testing.T) {
	runner := &stubRunner{err: matching.ErrRunInProgress}
	h := newTestServer(runner, stubGetter{})

	rec := do(t, h, http.MethodPost, "/api/v1/cron/match", true)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "run_in_progress")
}

func TestTriggerMatch_Failed(t *testing.T) {
	runner := &stubRunner{outcome: &command.RunOutcome{
		Kind:    command.OutcomeFailed,
		Summary: command.RunSummary{RunID: "run-2", Status: "failed", Error: "load roster: boom"},
		Err:     errors.New("load roster: boom"),
	}}
	h := newTestServer(runner, stubGetter{})

	rec := do(t, h, http.MethodPost, "/api/v1/cron/match", true)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"failed"`)
}

func TestGetRun(t *testing.T) {
	id := uuid.New()
	h := newTestServer(&stubRunner{}, stubGetter{dto: &query.RunDTO{ID: id.String(), Status: "completed"}})

	rec := do(t, h, http.MethodGet, "/api/v1/runs/"+id.String(), true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id.String())

	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/runs/not-a-uuid", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+id.String(), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/runs", true)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(&stubRunner{}, stubGetter{})

	rec := do(t, h, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":true`)

	rec = do(t, h, http.MethodGet, "/ready", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))

	rec = do(t, h, http.MethodGet, "/nope", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
