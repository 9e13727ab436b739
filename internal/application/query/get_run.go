// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/drop-matcher/internal/domain/matching"
	"github.com/alem-hub/drop-matcher/internal/domain/notification"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RUN QUERY
// Возвращает попытку запуска вместе с созданными парами и журналом доставок.
// ══════════════════════════════════════════════════════════════════════════════

// GetRunQuery содержит параметры запроса.
type GetRunQuery struct {
	// RunID - идентификатор попытки.
	RunID uuid.UUID

	// IncludePairs - добавить пары и доставки.
	IncludePairs bool
}

// Validate проверяет корректность параметров запроса.
func (q GetRunQuery) Validate() error {
	if q.RunID == uuid.Nil {
		return errors.New("run_id must be provided")
	}
	return nil
}

// RunDTO - попытка запуска для API и CLI.
type RunDTO struct {
	ID          string              `json:"id"`
	CycleDate   time.Time           `json:"cycle_date"`
	Status      string              `json:"status"`
	Stage       string              `json:"stage"`
	Algorithm   string              `json:"algorithm,omitempty"`
	Degraded    bool                `json:"degraded"`
	Reason      string              `json:"reason,omitempty"`
	ErrorDetail string              `json:"error,omitempty"`
	Stats       matching.RunStats   `json:"stats"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  *time.Time          `json:"finished_at,omitempty"`
	DurationMs  int64               `json:"duration_ms"`
	Pairs       []PairDTO           `json:"pairs,omitempty"`
	Deliveries  *DeliverySummaryDTO `json:"deliveries,omitempty"`
}

// PairDTO - созданная пара.
type PairDTO struct {
	A         string  `json:"a"`
	B         string  `json:"b"`
	Weight    float64 `json:"weight"`
	Score     float64 `json:"score"`
	ScoreDiff float64 `json:"score_diff"`
	Algorithm string  `json:"algorithm"`
}

// DeliverySummaryDTO - сводка по уведомлениям запуска.
type DeliverySummaryDTO struct {
	Sent   int                `json:"sent"`
	Failed int                `json:"failed"`
	Errors []DeliveryErrorDTO `json:"errors,omitempty"`
}

// DeliveryErrorDTO - неудачная доставка.
type DeliveryErrorDTO struct {
	CandidateID string `json:"candidate_id"`
	Kind        string `json:"kind"`
	Attempts    int    `json:"attempts"`
	Error       string `json:"error"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// RunReader - чтение попыток запуска.
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*matching.RunAttempt, error)
}

// RecentRunLister - последние попытки запуска.
type RecentRunLister interface {
	ListRecent(ctx context.Context, limit int) ([]*matching.RunAttempt, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetRunHandler обрабатывает GetRunQuery.
type GetRunHandler struct {
	runs        RunReader
	assignments matching.AssignmentReader
	deliveries  notification.DeliveryRepository
}

// NewGetRunHandler создаёт обработчик. assignments и deliveries могут быть nil.
func NewGetRunHandler(runs RunReader, assignments matching.AssignmentReader, deliveries notification.DeliveryRepository) *GetRunHandler {
	return &GetRunHandler{runs: runs, assignments: assignments, deliveries: deliveries}
}

// Handle выполняет запрос. Для неизвестного ID возвращает matching.ErrRunNotFound.
func (h *GetRunHandler) Handle(ctx context.Context, q GetRunQuery) (*RunDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_run: %w", err)
	}

	run, err := h.runs.GetByID(ctx, q.RunID)
	if err != nil {
		return nil, fmt.Errorf("get_run: %w", err)
	}
	dto := ToRunDTO(run)

	if !q.IncludePairs {
		return dto, nil
	}

	if h.assignments != nil {
		assignments, err := h.assignments.ListByRun(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("get_run: list assignments: %w", err)
		}
		dto.Pairs = make([]PairDTO, 0, len(assignments))
		for _, a := range assignments {
			dto.Pairs = append(dto.Pairs, PairDTO{
				A:         a.A.String(),
				B:         a.B.String(),
				Weight:    a.Weight,
				Score:     a.Score,
				ScoreDiff: a.ScoreDiff,
				Algorithm: string(a.Algorithm),
			})
		}
	}

	if h.deliveries != nil {
		deliveries, err := h.deliveries.ListByRun(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("get_run: list deliveries: %w", err)
		}
		dto.Deliveries = summarizeDeliveries(deliveries)
	}

	return dto, nil
}

// ListRecentRuns возвращает последние limit попыток (1..100, по умолчанию 10).
func ListRecentRuns(ctx context.Context, runs RecentRunLister, limit int) ([]*RunDTO, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	list, err := runs.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list_runs: %w", err)
	}
	out := make([]*RunDTO, 0, len(list))
	for _, r := range list {
		out = append(out, ToRunDTO(r))
	}
	return out, nil
}

// ToRunDTO переводит попытку в DTO без пар.
func ToRunDTO(run *matching.RunAttempt) *RunDTO {
	return &RunDTO{
		ID:          run.ID.String(),
		CycleDate:   run.CycleDate,
		Status:      string(run.Status),
		Stage:       string(run.Stage),
		Algorithm:   string(run.Algorithm),
		Degraded:    run.Degraded,
		Reason:      run.Reason,
		ErrorDetail: run.ErrorDetail,
		Stats:       run.Stats,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
		DurationMs:  run.Duration().Milliseconds(),
	}
}

func summarizeDeliveries(deliveries []notification.Delivery) *DeliverySummaryDTO {
	s := &DeliverySummaryDTO{}
	for _, d := range deliveries {
		if d.IsSent() {
			s.Sent++
			continue
		}
		s.Failed++
		s.Errors = append(s.Errors, DeliveryErrorDTO{
			CandidateID: d.CandidateID,
			Kind:        string(d.Kind),
			Attempts:    d.Attempts,
			Error:       d.Error,
		})
	}
	return s
}
