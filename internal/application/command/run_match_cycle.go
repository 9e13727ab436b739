// Package command contains write operations (CQRS - Commands).
// The main command runs one matching cycle end to end.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/domain/notification"
	"github.com/alem-hub/drop-matcher/pkg/logger"
	"github.com/alem-hub/drop-matcher/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN MATCH CYCLE COMMAND
// Builds the compatibility graph for the current cycle, matches it, persists
// the pairs atomically and notifies everyone who took part.
// ══════════════════════════════════════════════════════════════════════════════

// RunMatchCycleCommand triggers one matching cycle.
type RunMatchCycleCommand struct {
	// DryRun builds and matches without locking, persisting or notifying.
	DryRun bool

	// Trigger names the caller for logs: http, scheduler, cli.
	Trigger string
}

// OutcomeKind classifies how a run ended.
type OutcomeKind string

const (
	OutcomeCompleted              OutcomeKind = "completed"
	OutcomeInsufficientPopulation OutcomeKind = "insufficient_population"
	OutcomeFailed                 OutcomeKind = "failed"
	OutcomeDryRun                 OutcomeKind = "dry_run"
)

// RunOutcome is the result of a run that got as far as creating a RunAttempt.
// Only load and persistence failures produce OutcomeFailed.
type RunOutcome struct {
	Kind    OutcomeKind
	Summary RunSummary
	Err     error
}

// Failed reports whether the run failed.
func (o *RunOutcome) Failed() bool {
	return o.Kind == OutcomeFailed
}

// RunSummary is the JSON body returned to callers.
type RunSummary struct {
	RunID     string `json:"run_id"`
	Outcome   string `json:"outcome"`
	Status    string `json:"status"`
	CycleDate string `json:"cycle_date"`
	DryRun    bool   `json:"dry_run,omitempty"`

	TotalUsers          int `json:"total_users"`
	EligibleUsers       int `json:"eligible_users"`
	MatchesCreated      int `json:"matches_created"`
	MatchedUsers        int `json:"matched_users"`
	UnmatchedUsers      int `json:"unmatched_users"`
	DroughtServed       int `json:"drought_served"`
	CollisionsSkipped   int `json:"collisions_skipped"`
	NotificationsSent   int `json:"notifications_sent"`
	NotificationsFailed int `json:"notifications_failed"`

	Algorithm string `json:"algorithm,omitempty"`
	Degraded  bool   `json:"degraded"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`

	// Pairs is filled only for dry runs.
	Pairs []PairPreview `json:"pairs,omitempty"`
}

// PairPreview shows a computed pair without persisting it.
type PairPreview struct {
	A         string  `json:"a"`
	B         string  `json:"b"`
	Weight    float64 `json:"weight"`
	ScoreDiff float64 `json:"score_diff"`
	Algorithm string  `json:"algorithm"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// RunObserver receives run timings and results, e.g. for metrics.
type RunObserver interface {
	ObserveStage(stage string, duration time.Duration)
	ObserveRun(outcome string, duration time.Duration, pairsByAlgorithm map[string]int, unmatched int, degraded bool)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration)                          {}
func (noopObserver) ObserveRun(string, time.Duration, map[string]int, int, bool) {}

// RunMatchCycleDeps are the ports the handler works through.
type RunMatchCycleDeps struct {
	Roster     matching.RosterRepository
	History    matching.HistoryRepository
	Droughts   matching.DroughtRepository
	Runs       matching.RunRepository
	UoW        matching.UnitOfWork
	Lock       matching.RunLock
	Scorer     Scorer
	Dispatcher notification.Dispatcher
	Observer   RunObserver
	Logger     *slog.Logger
}

// RunMatchCycleConfig is the matching policy for a run.
type RunMatchCycleConfig struct {
	Solver              matching.Solver
	DroughtPrePass      bool
	DroughtWindowCycles int
	CycleLength         time.Duration
	CohortFilter        bool
	OptimizerEnabled    bool
	OptimizerMaxPasses  int
	MinPopulation       int
	StaleRunAfter       time.Duration
	LockTTL             time.Duration
	NotifyUnmatched     bool
	ScoreConcurrency    int
	Location            *time.Location

	// FinishTimeout bounds the final RunAttempt update, which runs on a
	// context detached from the caller's.
	FinishTimeout time.Duration
}

// DefaultRunMatchCycleConfig returns default configuration.
func DefaultRunMatchCycleConfig() RunMatchCycleConfig {
	return RunMatchCycleConfig{
		Solver:              matching.BlossomSolver{},
		DroughtPrePass:      true,
		DroughtWindowCycles: matching.DefaultDroughtWindowCycles,
		CycleLength:         matching.DefaultCycleLength,
		OptimizerEnabled:    true,
		OptimizerMaxPasses:  matching.DefaultOptimizerPasses,
		MinPopulation:       2,
		StaleRunAfter:       2 * time.Hour,
		LockTTL:             15 * time.Minute,
		NotifyUnmatched:     true,
		ScoreConcurrency:    4,
		Location:            time.UTC,
		FinishTimeout:       30 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RunMatchCycleHandler handles the RunMatchCycleCommand.
type RunMatchCycleHandler struct {
	roster     matching.RosterRepository
	history    matching.HistoryRepository
	droughts   matching.DroughtRepository
	runs       matching.RunRepository
	lock       matching.RunLock
	dispatcher notification.Dispatcher
	observer   RunObserver
	logger     *slog.Logger

	scorer   *CandidateScorer
	recorder *Recorder
	matcher  *matching.Matcher
	config   RunMatchCycleConfig
	now      func() time.Time
}

// NewRunMatchCycleHandler creates a new RunMatchCycleHandler.
func NewRunMatchCycleHandler(deps RunMatchCycleDeps, config RunMatchCycleConfig) *RunMatchCycleHandler {
	defaults := DefaultRunMatchCycleConfig()
	if config.Solver == nil {
		config.Solver = defaults.Solver
	}
	if config.MinPopulation < 2 {
		config.MinPopulation = defaults.MinPopulation
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.StaleRunAfter <= 0 {
		config.StaleRunAfter = defaults.StaleRunAfter
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FinishTimeout <= 0 {
		config.FinishTimeout = defaults.FinishTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = noopObserver{}
	}
	if deps.Lock == nil {
		deps.Lock = NewLocalRunLock()
	}

	log := deps.Logger.With(slog.String("component", "run_match_cycle"))

	return &RunMatchCycleHandler{
		roster:     deps.Roster,
		history:    deps.History,
		droughts:   deps.Droughts,
		runs:       deps.Runs,
		lock:       deps.Lock,
		dispatcher: deps.Dispatcher,
		observer:   deps.Observer,
		logger:     log,
		scorer:     NewCandidateScorer(deps.Scorer, deps.Roster, config.ScoreConcurrency, log),
		recorder:   NewRecorder(deps.UoW, log),
		matcher:    matching.NewMatcher(config.Solver, config.DroughtPrePass),
		config:     config,
		now:        time.Now,
	}
}

// Handle executes one matching cycle.
//
// An error is returned only when no RunAttempt was started: the lock is held,
// another run is processing (matching.ErrRunInProgress) or the attempt could
// not be created. Every other result, including failures, is a RunOutcome.
func (h *RunMatchCycleHandler) Handle(ctx context.Context, cmd RunMatchCycleCommand) (*RunOutcome, error) {
	now := h.now().UTC()
	run := matching.NewRunAttempt(timeutil.CycleDate(now, h.config.Location), now)
	log := h.logger.With(
		logger.RunID(run.ID.String()),
		slog.Bool("dry_run", cmd.DryRun),
	)

	if !cmd.DryRun {
		release, err := h.lock.Acquire(ctx, h.config.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("run_match_cycle: acquire lock: %w", err)
		}
		defer func() {
			relCtx, cancel := h.detached(ctx)
			defer cancel()
			if err := release(relCtx); err != nil {
				log.Warn("failed to release run lock", slog.Any("error", err))
			}
		}()

		cutoff := now.Add(-h.config.StaleRunAfter)
		if n, err := h.runs.FailStale(ctx, cutoff, matching.ReasonAbandoned); err != nil {
			log.Warn("failed to recover stale runs", slog.Any("error", err))
		} else if n > 0 {
			log.Warn("marked stale runs as failed", slog.Int("count", n))
		}

		if err := h.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("run_match_cycle: create run attempt: %w", err)
		}
	}

	ctx = logger.WithContext(ctx, log)
	log.Info("matching run started",
		slog.String("trigger", cmd.Trigger),
		slog.Time("cycle_date", run.CycleDate),
	)

	outcome, persisted := h.execute(ctx, run, cmd.DryRun, log)
	h.finish(ctx, run, outcome, persisted, cmd.DryRun, log)
	return outcome, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STAGES
// ══════════════════════════════════════════════════════════════════════════════

// snapshot is the immutable input of one run.
type snapshot struct {
	pool    []matching.Candidate
	ledger  *matching.Ledger
	drought []int
	edges   []matching.Edge
}

func (h *RunMatchCycleHandler) execute(ctx context.Context, run *matching.RunAttempt, dryRun bool, log *slog.Logger) (*RunOutcome, []matching.Assignment) {
	fail := func(err error) (*RunOutcome, []matching.Assignment) {
		return &RunOutcome{Kind: OutcomeFailed, Err: err}, nil
	}

	// ─── Building ───
	if err := run.Advance(matching.StageBuilding); err != nil {
		return fail(err)
	}
	start := time.Now()
	snap, err := h.build(ctx, run, dryRun)
	run.Stats.BuildDuration = time.Since(start)
	h.observer.ObserveStage(string(matching.StageBuilding), run.Stats.BuildDuration)
	if err != nil {
		return fail(err)
	}

	// A cycle that never matched is not a missed drop: no drought records.
	if len(snap.pool) < h.config.MinPopulation {
		run.Reason = matching.ReasonInsufficientPopulation
		run.Stats.Unmatched = len(snap.pool)
		log.Info("not enough eligible candidates to match",
			slog.Int("eligible", len(snap.pool)),
			slog.Int("required", h.config.MinPopulation),
		)
		return &RunOutcome{Kind: OutcomeInsufficientPopulation}, nil
	}

	// ─── Matching ───
	if err := run.Advance(matching.StageMatching); err != nil {
		return fail(err)
	}
	start = time.Now()
	pairs := h.match(snap, run, log)
	assignments := make([]matching.Assignment, 0, len(pairs))
	for _, p := range pairs {
		assignments = append(assignments, matching.NewAssignment(
			run.ID, &snap.pool[p.U], &snap.pool[p.V], p.Weight, p.Algorithm, run.StartedAt,
		))
	}
	run.Stats.MatchDuration = time.Since(start)
	h.observer.ObserveStage(string(matching.StageMatching), run.Stats.MatchDuration)

	if dryRun {
		fillPairStats(&run.Stats, assignments, len(snap.pool))
		return &RunOutcome{Kind: OutcomeDryRun}, assignments
	}

	// ─── Persisting ───
	if err := run.Advance(matching.StagePersisting); err != nil {
		return fail(err)
	}
	start = time.Now()
	res, err := h.recorder.Persist(ctx, assignments, snap.ledger)
	if err != nil {
		run.Stats.PersistDuration = time.Since(start)
		return fail(fmt.Errorf("persist assignments: %w", err))
	}
	run.Stats.CollisionsSkipped = res.Collisions
	fillPairStats(&run.Stats, res.Persisted, len(snap.pool))

	unmatched := unmatchedCandidates(snap.pool, res.Persisted)
	run.Stats.DroughtRecorded = h.recordDroughts(ctx, run, unmatched, log)
	run.Stats.PersistDuration = time.Since(start)
	h.observer.ObserveStage(string(matching.StagePersisting), run.Stats.PersistDuration)

	// ─── Notifying ───
	if err := run.Advance(matching.StageNotifying); err != nil {
		return fail(err)
	}
	start = time.Now()
	if h.dispatcher != nil {
		jobs := BuildNotificationJobs(run.ID, snap.pool, res.Persisted, unmatched, h.config.NotifyUnmatched)
		report := h.dispatcher.Dispatch(ctx, jobs)
		run.Stats.NotificationsSent = report.Sent
		run.Stats.NotificationsFail = report.Failed
	}
	run.Stats.NotifyDuration = time.Since(start)
	h.observer.ObserveStage(string(matching.StageNotifying), run.Stats.NotifyDuration)

	return &RunOutcome{Kind: OutcomeCompleted}, res.Persisted
}

// build loads the roster, scores it and builds the compatibility graph.
func (h *RunMatchCycleHandler) build(ctx context.Context, run *matching.RunAttempt, dryRun bool) (*snapshot, error) {
	roster, err := h.roster.ListOptedIn(ctx)
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	run.Stats.TotalCandidates = len(roster)

	eligible, invalid := matching.SplitByEligibility(roster)
	run.Stats.InvalidProfiles = invalid

	pool, scoring, err := h.scorer.ScoreMissing(ctx, eligible, !dryRun)
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	run.Stats.ScoredByOracle = scoring.Scored
	run.Stats.OracleFailures = scoring.Failed
	run.Stats.ZeroScored = scoring.Zero
	run.Stats.EligibleCandidates = len(pool)

	pairs, err := h.history.ListPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	ledger := matching.NewLedger(pairs)

	windowStart := matching.DroughtWindowStart(run.CycleDate, h.config.CycleLength, h.config.DroughtWindowCycles)
	records, err := h.droughts.ListSince(ctx, windowStart)
	if err != nil {
		return nil, fmt.Errorf("load droughts: %w", err)
	}
	priority := matching.ComputeDroughtPriority(records, windowStart)
	drought := matching.DroughtIndices(priority, pool)
	run.Stats.DroughtCandidates = len(drought)

	edges := matching.BuildEdges(pool, ledger, h.predicate(), run.StartedAt)
	run.Stats.Edges = len(edges)

	return &snapshot{pool: pool, ledger: ledger, drought: drought, edges: edges}, nil
}

// match runs the matcher and the optional optimizer.
func (h *RunMatchCycleHandler) match(snap *snapshot, run *matching.RunAttempt, log *slog.Logger) []matching.MatchedPair {
	result := h.matcher.Match(len(snap.pool), snap.edges, snap.drought)
	run.Algorithm = result.Algorithm
	run.Degraded = result.Degraded
	run.Stats.DroughtServed = result.DroughtServed

	if result.Degraded {
		run.Reason = "solver fallback: " + result.FallbackReason
		log.Warn("optimal solver failed, fell back to greedy",
			slog.String("reason", result.FallbackReason),
		)
	}

	pairs := result.Pairs
	if h.config.OptimizerEnabled && len(pairs) > 1 {
		opt := matching.Optimizer{
			MaxPasses: h.config.OptimizerMaxPasses,
			Predicate: h.predicate(),
			Ledger:    snap.ledger,
			Now:       run.StartedAt,
		}
		var swaps int
		pairs, swaps = opt.Optimize(snap.pool, pairs)
		run.Stats.OptimizerSwaps = swaps
	}

	log.Debug("matching computed",
		slog.Int("pairs", len(pairs)),
		slog.Int("edges", len(snap.edges)),
		slog.String("algorithm", string(result.Algorithm)),
	)
	return pairs
}

// recordDroughts marks unmatched candidates. It runs after the pairs are
// committed, so a failure here is logged and does not fail the run.
func (h *RunMatchCycleHandler) recordDroughts(ctx context.Context, run *matching.RunAttempt, unmatched []matching.Candidate, log *slog.Logger) int {
	if len(unmatched) == 0 {
		return 0
	}
	records := make([]matching.DroughtRecord, 0, len(unmatched))
	for i := range unmatched {
		records = append(records, matching.DroughtRecord{
			CandidateID: unmatched[i].ID,
			CycleDate:   run.CycleDate,
			RunID:       run.ID,
			CreatedAt:   run.StartedAt,
		})
	}

	n, err := h.droughts.Record(ctx, records)
	if err != nil {
		log.Error("failed to record droughts", slog.Int("unmatched", len(unmatched)), slog.Any("error", err))
		return 0
	}
	return n
}

func (h *RunMatchCycleHandler) predicate() matching.Predicate {
	return matching.Predicate{CohortFilter: h.config.CohortFilter}
}

// ══════════════════════════════════════════════════════════════════════════════
// FINISHING
// ══════════════════════════════════════════════════════════════════════════════

// finish closes the RunAttempt exactly once and fills the summary.
func (h *RunMatchCycleHandler) finish(ctx context.Context, run *matching.RunAttempt, outcome *RunOutcome, persisted []matching.Assignment, dryRun bool, log *slog.Logger) {
	finishedAt := h.now().UTC()

	switch {
	case dryRun:
		run.FinishedAt = &finishedAt
	case outcome.Kind == OutcomeFailed:
		if err := run.Fail(outcome.Err, finishedAt); err != nil {
			log.Error("failed to mark run failed", slog.Any("error", err))
		}
	default:
		if err := run.Complete(finishedAt); err != nil {
			log.Error("failed to complete run", slog.Any("error", err))
		}
	}

	if !dryRun {
		updCtx, cancel := h.detached(ctx)
		defer cancel()
		if err := h.runs.Update(updCtx, run); err != nil {
			log.Error("failed to save run attempt", slog.Any("error", err))
		}
	}

	outcome.Summary = summarize(run, outcome, persisted, dryRun, h.config.Location)

	pairsByAlgorithm := make(map[string]int)
	if !dryRun {
		for i := range persisted {
			pairsByAlgorithm[string(persisted[i].Algorithm)]++
		}
	}
	h.observer.ObserveRun(string(outcome.Kind), run.Duration(), pairsByAlgorithm, run.Stats.Unmatched, run.Degraded)

	attrs := []any{
		slog.String("outcome", string(outcome.Kind)),
		slog.Int("pairs", run.Stats.MatchedPairs),
		slog.Int("unmatched", run.Stats.Unmatched),
		slog.Bool("degraded", run.Degraded),
		slog.Duration("duration", run.Duration()),
	}
	if outcome.Err != nil {
		log.Error("matching run failed", append(attrs,
			slog.String("stage", string(run.FailedStage())),
			slog.Any("error", outcome.Err),
		)...)
		return
	}
	log.Info("matching run finished", attrs...)
}

// detached returns a context that survives cancellation of parent.
func (h *RunMatchCycleHandler) detached(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), h.config.FinishTimeout)
}

func summarize(run *matching.RunAttempt, outcome *RunOutcome, persisted []matching.Assignment, dryRun bool, loc *time.Location) RunSummary {
	s := RunSummary{
		RunID:               run.ID.String(),
		Outcome:             string(outcome.Kind),
		Status:              string(run.Status),
		CycleDate:           timeutil.FormatDate(run.CycleDate, loc),
		DryRun:              dryRun,
		TotalUsers:          run.Stats.TotalCandidates,
		EligibleUsers:       run.Stats.EligibleCandidates,
		MatchesCreated:      run.Stats.MatchedPairs,
		MatchedUsers:        2 * run.Stats.MatchedPairs,
		UnmatchedUsers:      run.Stats.Unmatched,
		DroughtServed:       run.Stats.DroughtServed,
		CollisionsSkipped:   run.Stats.CollisionsSkipped,
		NotificationsSent:   run.Stats.NotificationsSent,
		NotificationsFailed: run.Stats.NotificationsFail,
		Algorithm:           string(run.Algorithm),
		Degraded:            run.Degraded,
		Reason:              run.Reason,
		StartedAt:           run.StartedAt,
		DurationMs:          run.Duration().Milliseconds(),
	}
	if run.FinishedAt != nil {
		s.FinishedAt = *run.FinishedAt
	}
	if outcome.Err != nil {
		s.Error = outcome.Err.Error()
	}
	if dryRun {
		s.Status = string(OutcomeDryRun)
		s.Pairs = make([]PairPreview, 0, len(persisted))
		for i := range persisted {
			a := &persisted[i]
			s.Pairs = append(s.Pairs, PairPreview{
				A:         a.A.String(),
				B:         a.B.String(),
				Weight:    a.Weight,
				ScoreDiff: a.ScoreDiff,
				Algorithm: string(a.Algorithm),
			})
		}
	}
	return s
}

// fillPairStats sets pair counts and weight statistics.
func fillPairStats(stats *matching.RunStats, assignments []matching.Assignment, poolSize int) {
	stats.MatchedPairs = len(assignments)
	stats.Unmatched = poolSize - 2*len(assignments)
	stats.MinWeight, stats.MaxWeight, stats.AverageWeight, stats.AverageScore = 0, 0, 0, 0
	if len(assignments) == 0 {
		return
	}

	var sumWeight, sumScore float64
	stats.MinWeight = assignments[0].Weight
	for i := range assignments {
		w := assignments[i].Weight
		sumWeight += w
		sumScore += assignments[i].Score
		if w < stats.MinWeight {
			stats.MinWeight = w
		}
		if w > stats.MaxWeight {
			stats.MaxWeight = w
		}
	}
	n := float64(len(assignments))
	stats.AverageWeight = sumWeight / n
	stats.AverageScore = sumScore / n
}

// unmatchedCandidates returns pool members that are in no assignment.
func unmatchedCandidates(pool []matching.Candidate, assignments []matching.Assignment) []matching.Candidate {
	matched := make(map[matching.CandidateID]struct{}, 2*len(assignments))
	for i := range assignments {
		matched[assignments[i].A] = struct{}{}
		matched[assignments[i].B] = struct{}{}
	}
	out := make([]matching.Candidate, 0, len(pool)-len(matched))
	for i := range pool {
		if _, ok := matched[pool[i].ID]; !ok {
			out = append(out, pool[i])
		}
	}
	return out
}
