// Package notification содержит доменную модель уведомлений о результатах дропа.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHANNEL & KIND
// ══════════════════════════════════════════════════════════════════════════════

// ChannelType определяет канал доставки уведомлений.
type ChannelType string

const (
	// ChannelTypeEmail - доставка по email.
	ChannelTypeEmail ChannelType = "email"

	// ChannelTypeTelegram - доставка через Telegram Bot API.
	ChannelTypeTelegram ChannelType = "telegram"

	// ChannelTypeLog - только запись в лог (разработка).
	ChannelTypeLog ChannelType = "log"
)

// IsValid проверяет корректность канала.
func (ct ChannelType) IsValid() bool {
	switch ct {
	case ChannelTypeEmail, ChannelTypeTelegram, ChannelTypeLog:
		return true
	default:
		return false
	}
}

// Kind - тип уведомления.
type Kind string

const (
	// KindMatch - у пользователя появилась пара.
	KindMatch Kind = "match"

	// KindNoMatch - в этом дропе пары не нашлось.
	KindNoMatch Kind = "no_match"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECIPIENT & PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Recipient - получатель уведомления.
type Recipient struct {
	CandidateID    string
	Name           string
	Email          string
	TelegramChatID int64
}

// MatchProfile - публичный профиль партнёра, который видит получатель.
type MatchProfile struct {
	Name      string
	Cohort    string
	Major     string
	Ethnicity []string
	Gender    string
	Instagram string
	PhotoURL  string
	ScoreDiff float64
}

// Job - одно уведомление в очереди рассылки.
type Job struct {
	Kind      Kind
	RunID     uuid.UUID
	Recipient Recipient

	// Partner заполнен только для KindMatch.
	Partner *MatchProfile
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

// DeliveryStatus - итог доставки одному получателю.
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// Delivery - результат доставки; сохраняется в журнал и никогда не откатывает матчи.
type Delivery struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	CandidateID string
	Kind        Kind
	Channel     ChannelType
	Status      DeliveryStatus
	Attempts    int
	Error       string
	CreatedAt   time.Time
}

// IsSent возвращает true при успешной доставке.
func (d Delivery) IsSent() bool {
	return d.Status == DeliveryStatusSent
}

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Notifier отправляет уведомление через конкретный канал.
type Notifier interface {
	// Channel возвращает тип канала.
	Channel() ChannelType

	// NotifyMatch сообщает получателю о новой паре.
	NotifyMatch(ctx context.Context, to Recipient, partner MatchProfile) error

	// NotifyNoMatch сообщает, что в этом дропе пары нет.
	NotifyNoMatch(ctx context.Context, to Recipient) error
}

// DispatchReport - итог рассылки по всем заданиям.
type DispatchReport struct {
	Sent       int
	Failed     int
	Deliveries []Delivery
}

// Dispatcher рассылает задания последовательно. Ошибки доставки не возвращаются,
// а попадают в отчёт: неудачное уведомление не отменяет матч.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobs []Job) DispatchReport
}

// DeliveryRepository - журнал доставок.
type DeliveryRepository interface {
	SaveBatch(ctx context.Context, deliveries []Delivery) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]Delivery, error)
}
