package matching

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// Интерфейсы хранилища. Реализации - в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// RosterRepository - источник кандидатов.
type RosterRepository interface {
	// ListOptedIn возвращает всех участвующих в дропе пользователей.
	ListOptedIn(ctx context.Context) ([]Candidate, error)

	// UpdateScore записывает оценку, полученную от оракула.
	UpdateScore(ctx context.Context, id CandidateID, score float64) error
}

// HistoryRepository - хранилище исторических пар.
type HistoryRepository interface {
	// ListPairs возвращает все пары, которые уже встречались.
	ListPairs(ctx context.Context) ([]HistoricalPair, error)
}

// DroughtRepository - хранилище отметок о засухе.
type DroughtRepository interface {
	// ListSince возвращает записи с CycleDate >= since.
	ListSince(ctx context.Context, since time.Time) ([]DroughtRecord, error)

	// Record сохраняет записи; повтор того же цикла игнорируется.
	// Возвращает число реально добавленных записей.
	Record(ctx context.Context, records []DroughtRecord) (int, error)
}

// RunRepository - хранилище попыток запуска.
type RunRepository interface {
	// Create сохраняет новую попытку. Если уже есть попытка в статусе processing,
	// возвращает ErrRunInProgress.
	Create(ctx context.Context, run *RunAttempt) error

	// Update сохраняет статус, стадию и статистику.
	Update(ctx context.Context, run *RunAttempt) error

	// GetByID возвращает попытку по ID или ErrRunNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*RunAttempt, error)

	// FailStale помечает зависшие попытки (processing, начатые до olderThan) как failed.
	FailStale(ctx context.Context, olderThan time.Time, reason string) (int, error)
}

// MatchWriter - операции записи внутри транзакции.
type MatchWriter interface {
	// PairExists проверяет историческую пару внутри транзакции.
	PairExists(ctx context.Context, key PairKey) (bool, error)

	InsertAssignment(ctx context.Context, a *Assignment) error
	InsertHistoricalPair(ctx context.Context, p HistoricalPair) error
}

// UnitOfWork выполняет fn атомарно: любая ошибка откатывает всё.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, w MatchWriter) error) error
}

// AssignmentReader - чтение пар запуска.
type AssignmentReader interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]Assignment, error)
}

// RunLock - взаимное исключение запусков.
type RunLock interface {
	// Acquire захватывает блокировку на ttl. Если она занята, возвращает ErrRunInProgress.
	Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, err error)
}
