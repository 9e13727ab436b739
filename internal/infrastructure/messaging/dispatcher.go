// Package messaging delivers drop notifications through a single channel.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alem-hub/drop-matcher/internal/domain/notification"
	"github.com/alem-hub/drop-matcher/internal/infrastructure/metrics"
	"github.com/alem-hub/drop-matcher/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

var _ notification.Dispatcher = (*NotificationDispatcher)(nil)

// NotificationDispatcher sends notification jobs sequentially with:
// - per-job retry with doubling backoff
// - a fixed throttle between jobs
// - panic recovery around the notifier
// - a per-recipient delivery log
type NotificationDispatcher struct {
	notifier   notification.Notifier
	deliveries notification.DeliveryRepository
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time
}

// DispatcherConfig contains configuration for the NotificationDispatcher.
type DispatcherConfig struct {
	// Notifier is the delivery channel
	Notifier notification.Notifier

	// Deliveries persists per-recipient outcomes (optional)
	Deliveries notification.DeliveryRepository

	// MaxRetries is the number of retries after the first attempt
	MaxRetries int

	// BaseDelay is the first retry delay; it doubles on each retry
	BaseDelay time.Duration

	// Throttle is the minimum spacing between jobs (0 disables)
	Throttle time.Duration

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig(n notification.Notifier) DispatcherConfig {
	return DispatcherConfig{
		Notifier:   n,
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		Throttle:   time.Second,
	}
}

// NewNotificationDispatcher creates a new dispatcher.
func NewNotificationDispatcher(config DispatcherConfig) *NotificationDispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	limit := rate.Inf
	if config.Throttle > 0 {
		limit = rate.Every(config.Throttle)
	}

	return &NotificationDispatcher{
		notifier:   config.Notifier,
		deliveries: config.Deliveries,
		maxRetries: config.MaxRetries,
		baseDelay:  config.BaseDelay,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     config.Logger.With(slog.String("component", "notification_dispatcher")),
		now:        time.Now,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHING
// ══════════════════════════════════════════════════════════════════════════════

// Dispatch sends every job and returns per-recipient outcomes. Failures are
// recorded, never returned: a failed notification must not undo a match.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, jobs []notification.Job) notification.DispatchReport {
	report := notification.DispatchReport{Deliveries: make([]notification.Delivery, 0, len(jobs))}
	if len(jobs) == 0 {
		return report
	}

	channel := d.notifier.Channel()
	start := time.Now()

	for _, job := range jobs {
		var (
			attempts int
			err      error
		)
		if err = d.limiter.Wait(ctx); err == nil {
			attempts, err = d.deliver(ctx, job)
		}

		delivery := notification.Delivery{
			ID:          uuid.New(),
			RunID:       job.RunID,
			CandidateID: job.Recipient.CandidateID,
			Kind:        job.Kind,
			Channel:     channel,
			Status:      notification.DeliveryStatusSent,
			Attempts:    attempts,
			CreatedAt:   d.now().UTC(),
		}
		if err != nil {
			delivery.Status = notification.DeliveryStatusFailed
			delivery.Error = err.Error()
			report.Failed++
			d.logger.Warn("notification failed",
				slog.String("run_id", job.RunID.String()),
				slog.String("candidate_id", job.Recipient.CandidateID),
				slog.String("kind", string(job.Kind)),
				slog.Int("attempts", attempts),
				slog.Any("error", err),
			)
		} else {
			report.Sent++
		}

		metrics.RecordNotification(string(job.Kind), string(channel), err == nil)
		report.Deliveries = append(report.Deliveries, delivery)
	}

	d.logger.Info("notifications dispatched",
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", time.Since(start)),
	)

	if d.deliveries != nil {
		// Saved even when the run context is already cancelled.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := d.deliveries.SaveBatch(saveCtx, report.Deliveries); err != nil {
			d.logger.Error("failed to save delivery log", slog.Any("error", err))
		}
	}

	return report
}

// deliver runs one job under the retry policy and returns the attempt count.
func (d *NotificationDispatcher) deliver(ctx context.Context, job notification.Job) (int, error) {
	attempts := 0
	retrier := retry.NotificationRetrier(d.maxRetries, d.baseDelay,
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			d.logger.Debug("retrying notification",
				slog.String("candidate_id", job.Recipient.CandidateID),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.Any("error", err),
			)
		}),
	)

	err := retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		return d.send(ctx, job)
	})
	return attempts, err
}

// send recovers notifier panics into permanent errors.
func (d *NotificationDispatcher) send(ctx context.Context, job notification.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notifier panic recovered",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = retry.Permanent(fmt.Errorf("notifier panic: %v", r))
		}
	}()

	switch job.Kind {
	case notification.KindMatch:
		if job.Partner == nil {
			return retry.Permanent(fmt.Errorf("match job for %s has no partner", job.Recipient.CandidateID))
		}
		return d.notifier.NotifyMatch(ctx, job.Recipient, *job.Partner)
	case notification.KindNoMatch:
		return d.notifier.NotifyNoMatch(ctx, job.Recipient)
	default:
		return retry.Permanent(fmt.Errorf("unknown notification kind %q", job.Kind))
	}
}
