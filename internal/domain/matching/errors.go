package matching

import (
	"errors"

	"github.com/alem-hub/drop-matcher/internal/domain/shared"
)

// Ошибки домена matching.
var (
	ErrRunInProgress   = shared.NewDomainError("matching", "StartRun", shared.ErrConflict, "another matching run is in progress")
	ErrRunNotFound     = shared.NewDomainError("matching", "FindRun", shared.ErrNotFound, "run attempt not found")
	ErrRunFinished     = shared.NewDomainError("matching", "FinishRun", shared.ErrInvalidState, "run attempt already finished")
	ErrInvalidGraph    = shared.NewDomainError("matching", "Solve", shared.ErrInvalidInput, "invalid matching graph")
	ErrInvalidMatching = shared.NewDomainError("matching", "Solve", shared.ErrInvalidState, "solver produced an invalid matching")
	ErrInvalidStrategy = shared.NewDomainError("matching", "Configure", shared.ErrInvalidInput, "unknown matching strategy")
)

// ErrSolverPanic возвращается, когда решатель упал с паникой.
var ErrSolverPanic = errors.New("solver panicked")
