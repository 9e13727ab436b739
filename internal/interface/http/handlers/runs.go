package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/drop-matcher/internal/application/command"
	"github.com/alem-hub/drop-matcher/internal/application/query"
	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// CycleRunner runs one matching cycle.
type CycleRunner interface {
	Handle(ctx context.Context, cmd command.RunMatchCycleCommand) (*command.RunOutcome, error)
}

// RunGetter loads a run attempt with its pairs.
type RunGetter interface {
	Handle(ctx context.Context, q query.GetRunQuery) (*query.RunDTO, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RunsHandler serves the cron trigger and run lookups.
type RunsHandler struct {
	runner     CycleRunner
	getter     RunGetter
	lister     query.RecentRunLister
	runTimeout time.Duration
}

// NewRunsHandler creates a new RunsHandler. lister may be nil.
func NewRunsHandler(runner CycleRunner, getter RunGetter, lister query.RecentRunLister, runTimeout time.Duration) *RunsHandler {
	if runTimeout <= 0 {
		runTimeout = 9 * time.Minute
	}
	return &RunsHandler{runner: runner, getter: getter, lister: lister, runTimeout: runTimeout}
}

// TriggerMatch runs one cycle and returns its RunSummary.
//
//	200 completed, insufficient population or dry run
//	409 another run is in progress
//	500 the run failed (body still carries the summary)
//
// The run outlives the client connection and is bounded by runTimeout.
func (h *RunsHandler) TriggerMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.runTimeout)
	defer cancel()

	cmd := command.RunMatchCycleCommand{
		DryRun:  isTrue(r.URL.Query().Get("dry_run")),
		Trigger: "http",
	}

	outcome, err := h.runner.Handle(ctx, cmd)
	switch {
	case errors.Is(err, matching.ErrRunInProgress):
		WriteError(w, http.StatusConflict, "run_in_progress", "a matching run is already in progress")
		return
	case err != nil:
		logger.FromContext(r.Context()).Error("match trigger failed", slog.Any("error", err))
		WriteError(w, http.StatusInternalServerError, "run_not_started", err.Error())
		return
	}

	status := http.StatusOK
	if outcome.Failed() {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, outcome.Summary)
}

// GetRun returns one run attempt with its pairs and delivery summary.
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "run id must be a UUID")
		return
	}

	dto, err := h.getter.Handle(r.Context(), query.GetRunQuery{RunID: id, IncludePairs: true})
	switch {
	case errors.Is(err, matching.ErrRunNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "run not found")
		return
	case err != nil:
		logger.FromContext(r.Context()).Error("get run failed", slog.Any("error", err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "failed to load run")
		return
	}

	WriteJSON(w, http.StatusOK, dto)
}

// ListRuns returns the most recent run attempts (?limit=, default 10).
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.lister == nil {
		WriteError(w, http.StatusNotImplemented, "not_implemented", "run listing is not available")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	runs, err := query.ListRecentRuns(r.Context(), h.lister, limit)
	if err != nil {
		logger.FromContext(r.Context()).Error("list runs failed", slog.Any("error", err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "failed to list runs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
