package matching

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/drop-matcher/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT
// ══════════════════════════════════════════════════════════════════════════════

// Assignment - пара, созданная в запуске. Каждой паре соответствует ровно
// одна новая историческая пара.
type Assignment struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	A         CandidateID
	B         CandidateID
	Weight    float64
	Score     float64
	ScoreDiff float64
	Algorithm Algorithm
	ProfileA  Profile
	ProfileB  Profile
	CreatedAt time.Time
}

// Key возвращает канонический ключ пары.
func (a *Assignment) Key() PairKey {
	return NewPairKey(a.A, a.B)
}

// NewAssignment строит запись о паре из двух кандидатов.
func NewAssignment(runID uuid.UUID, a, b *Candidate, weight float64, algo Algorithm, now time.Time) Assignment {
	diff := ScoreDiff(a, b)
	pa, pb := a.Profile(), b.Profile()
	pa.ScoreDiff, pb.ScoreDiff = diff, diff
	return Assignment{
		ID:        uuid.New(),
		RunID:     runID,
		A:         a.ID,
		B:         b.ID,
		Weight:    weight,
		Score:     MatchScore(a, b),
		ScoreDiff: diff,
		Algorithm: algo,
		ProfileA:  pa,
		ProfileB:  pb,
		CreatedAt: now,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN STATUS & STAGE
// ══════════════════════════════════════════════════════════════════════════════

// Status - статус попытки запуска в хранилище.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal возвращает true для завершённых статусов.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage - позиция запуска в конечном автомате.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageBuilding   Stage = "building"
	StageMatching   Stage = "matching"
	StagePersisting Stage = "persisting"
	StageNotifying  Stage = "notifying"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// stageTransitions - допустимые переходы. Failed достижим из любой нетерминальной стадии.
var stageTransitions = map[Stage][]Stage{
	StageIdle:       {StageBuilding, StageFailed},
	StageBuilding:   {StageMatching, StageCompleted, StageFailed},
	StageMatching:   {StagePersisting, StageFailed},
	StagePersisting: {StageNotifying, StageFailed},
	StageNotifying:  {StageCompleted, StageFailed},
}

// CanTransitionTo проверяет допустимость перехода.
func (s Stage) CanTransitionTo(next Stage) bool {
	for _, allowed := range stageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для конечных стадий.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Reasons завершения без пар.
const (
	ReasonInsufficientPopulation = "insufficient_population"
	ReasonAbandoned              = "abandoned"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN ATTEMPT
// ══════════════════════════════════════════════════════════════════════════════

// RunStats - счётчики запуска, сохраняются как JSON.
type RunStats struct {
	TotalCandidates    int `json:"total_candidates"`
	EligibleCandidates int `json:"eligible_candidates"`
	InvalidProfiles    int `json:"invalid_profiles"`
	ScoredByOracle     int `json:"scored_by_oracle"`
	OracleFailures     int `json:"oracle_failures"`
	ZeroScored         int `json:"zero_scored"`
	Edges              int `json:"edges"`

	MatchedPairs      int `json:"matched_pairs"`
	Unmatched         int `json:"unmatched"`
	DroughtCandidates int `json:"drought_candidates"`
	DroughtServed     int `json:"drought_served"`
	CollisionsSkipped int `json:"collisions_skipped"`
	OptimizerSwaps    int `json:"optimizer_swaps"`

	MinWeight     float64 `json:"min_weight"`
	MaxWeight     float64 `json:"max_weight"`
	AverageWeight float64 `json:"average_weight"`
	AverageScore  float64 `json:"average_score"`

	DroughtRecorded   int `json:"drought_recorded"`
	NotificationsSent int `json:"notifications_sent"`
	NotificationsFail int `json:"notifications_failed"`

	BuildDuration   time.Duration `json:"build_duration_ns"`
	MatchDuration   time.Duration `json:"match_duration_ns"`
	PersistDuration time.Duration `json:"persist_duration_ns"`
	NotifyDuration  time.Duration `json:"notify_duration_ns"`
}

// RunAttempt - попытка запуска дропа. Создаётся в статусе processing
// и завершается ровно один раз.
type RunAttempt struct {
	ID          uuid.UUID
	CycleDate   time.Time
	Status      Status
	Stage       Stage
	Algorithm   Algorithm
	Degraded    bool
	Reason      string
	ErrorDetail string
	Stats       RunStats
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// NewRunAttempt создаёт новую попытку.
func NewRunAttempt(cycleDate, now time.Time) *RunAttempt {
	return &RunAttempt{
		ID:        uuid.New(),
		CycleDate: cycleDate,
		Status:    StatusProcessing,
		Stage:     StageIdle,
		StartedAt: now,
	}
}

// Advance переводит запуск в следующую стадию.
func (r *RunAttempt) Advance(next Stage) error {
	if !r.Stage.CanTransitionTo(next) {
		return shared.WrapError("matching", "Advance", shared.ErrStateTransition,
			fmt.Sprintf("cannot move run from %s to %s", r.Stage, next), nil)
	}
	r.Stage = next
	return nil
}

// Complete завершает запуск успешно.
func (r *RunAttempt) Complete(now time.Time) error {
	if r.Status.IsTerminal() {
		return ErrRunFinished
	}
	if err := r.Advance(StageCompleted); err != nil {
		return err
	}
	r.Status = StatusCompleted
	r.FinishedAt = &now
	return nil
}

// Fail завершает запуск с ошибкой. Stage остаётся равной стадии, на которой произошёл сбой.
func (r *RunAttempt) Fail(cause error, now time.Time) error {
	if r.Status.IsTerminal() {
		return ErrRunFinished
	}
	if !r.Stage.CanTransitionTo(StageFailed) {
		return shared.WrapError("matching", "Fail", shared.ErrStateTransition,
			fmt.Sprintf("cannot fail run from %s", r.Stage), nil)
	}
	r.Status = StatusFailed
	if cause != nil {
		r.ErrorDetail = cause.Error()
	}
	r.FinishedAt = &now
	return nil
}

// FailedStage возвращает стадию, на которой запуск упал, или пустую строку.
func (r *RunAttempt) FailedStage() Stage {
	if r.Status != StatusFailed {
		return ""
	}
	return r.Stage
}

// Duration возвращает длительность запуска.
func (r *RunAttempt) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
