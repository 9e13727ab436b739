package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alem-hub/drop-matcher/internal/application/command"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/scheduler"
	"github.com/alem-hub/drop-matcher/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// JobController is the part of the scheduler exposed over HTTP.
type JobController interface {
	ListJobs() []scheduler.JobInfo
	GetJobInfo(name string) (*scheduler.JobInfo, error)
	GetHistory(limit int) []scheduler.JobResult
	RunNow(ctx context.Context, name string) (*scheduler.JobResult, error)
	EnableJob(name string) error
	DisableJob(name string) error
}

// LastCycleReporter reports the summary of the latest scheduled cycle.
type LastCycleReporter interface {
	LastSummary() *command.RunSummary
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE SHAPES
// ══════════════════════════════════════════════════════════════════════════════

// JobResultResponse is one job execution.
type JobResultResponse struct {
	Job         string    `json:"job"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
	Success     bool      `json:"success"`
	Manual      bool      `json:"manual"`
	Error       string    `json:"error,omitempty"`
}

// JobResponse describes a registered job.
type JobResponse struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Enabled     bool               `json:"enabled"`
	Running     bool               `json:"running"`
	Schedule    string             `json:"schedule"`
	LastRun     *time.Time         `json:"last_run,omitempty"`
	NextRun     *time.Time         `json:"next_run,omitempty"`
	RunCount    int64              `json:"run_count"`
	FailCount   int64              `json:"fail_count"`
	SkipCount   int64              `json:"skip_count"`
	LastResult  *JobResultResponse `json:"last_result,omitempty"`
}

func toJobResult(r *scheduler.JobResult) *JobResultResponse {
	if r == nil {
		return nil
	}
	out := &JobResultResponse{
		Job:         r.JobName,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		DurationMS:  r.Duration.Milliseconds(),
		Success:     r.Success,
		Manual:      r.Manual,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return out
}

func toJob(info *scheduler.JobInfo) JobResponse {
	return JobResponse{
		Name:        info.Name,
		Description: info.Description,
		Enabled:     info.Enabled,
		Running:     info.Running,
		Schedule:    info.Schedule,
		LastRun:     optionalTime(info.LastRun),
		NextRun:     optionalTime(info.NextRun),
		RunCount:    info.RunCount,
		FailCount:   info.FailCount,
		SkipCount:   info.SkipCount,
		LastResult:  toJobResult(info.LastResult),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// JobsHandler lets operators inspect and drive the in-process scheduler.
type JobsHandler struct {
	jobs   JobController
	cycles LastCycleReporter
}

// NewJobsHandler creates a new JobsHandler. cycles may be nil.
func NewJobsHandler(jobs JobController, cycles LastCycleReporter) *JobsHandler {
	return &JobsHandler{jobs: jobs, cycles: cycles}
}

// ListJobs returns every registered job and the last scheduled cycle summary.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, _ *http.Request) {
	infos := h.jobs.ListJobs()
	jobs := make([]JobResponse, 0, len(infos))
	for i := range infos {
		jobs = append(jobs, toJob(&infos[i]))
	}

	body := map[string]any{"jobs": jobs}
	if h.cycles != nil {
		if s := h.cycles.LastSummary(); s != nil {
			body["last_cycle"] = s
		}
	}
	WriteJSON(w, http.StatusOK, body)
}

// GetJob returns one job.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	info, err := h.jobs.GetJobInfo(r.PathValue("name"))
	if err != nil {
		writeJobError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, toJob(info))
}

// History returns recent executions, oldest first (?limit=, default all kept).
func (h *JobsHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	results := h.jobs.GetHistory(limit)
	out := make([]*JobResultResponse, 0, len(results))
	for i := range results {
		out = append(out, toJobResult(&results[i]))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"history": out})
}

// RunJob executes a job immediately and waits for it.
//
//	200 the job succeeded
//	404 unknown job
//	409 the job is already running
//	500 the job failed (body carries the result)
func (h *JobsHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	result, err := h.jobs.RunNow(context.WithoutCancel(r.Context()), r.PathValue("name"))
	if result == nil {
		writeJobError(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, toJobResult(result))
}

// EnableJob resumes scheduling of a job.
func (h *JobsHandler) EnableJob(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.jobs.EnableJob)
}

// DisableJob stops scheduling a job. A running execution is not interrupted.
func (h *JobsHandler) DisableJob(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, h.jobs.DisableJob)
}

func (h *JobsHandler) toggle(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	name := r.PathValue("name")
	if err := fn(name); err != nil {
		writeJobError(w, r, err)
		return
	}
	h.GetJob(w, r)
}

func writeJobError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		WriteError(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, scheduler.ErrJobRunning):
		WriteError(w, http.StatusConflict, "job_running", "job is already running")
	default:
		logger.FromContext(r.Context()).Error("job request failed", slog.Any("error", err))
		WriteError(w, http.StatusInternalServerError, "internal_error", "job request failed")
	}
}
