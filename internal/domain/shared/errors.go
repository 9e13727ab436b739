// Package shared содержит базовые доменные ошибки, общие для всех пакетов.
// Пакет не имеет внешних зависимостей.
package shared

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок для проверки через errors.Is().
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrConflict      = errors.New("conflict")

	ErrValidation      = errors.New("validation error")
	ErrInvalidInput    = errors.New("invalid input")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError - ошибка с контекстом: где (Domain.Op), какого вида (Kind) и почему (Err).
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap возвращает причину, а при её отсутствии - вид ошибки.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is совпадает и по виду, и по причине.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	return e.Err != nil && errors.Is(e.Err, target)
}

// NewDomainError создаёт доменную ошибку без причины.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError оборачивает err доменным контекстом.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// Ошибки внешних сервисов.
var (
	ErrOracleUnavailable     = NewDomainError("oracle", "Score", ErrServiceUnavailable, "scoring oracle is unavailable")
	ErrOracleRateLimited     = NewDomainError("oracle", "Score", ErrRateLimited, "scoring oracle rate limit exceeded")
	ErrOracleInvalidResponse = NewDomainError("oracle", "Parse", ErrInvalidFormat, "invalid response from scoring oracle")
	ErrEmailAPIFailed        = NewDomainError("email", "Send", ErrExternalService, "email API request failed")
	ErrTelegramAPIFailed     = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")
)

// IsNotFound - сущность не найдена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists - сущность уже существует.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation - ошибка входных данных.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrValueOutOfRange)
}
