package messaging

import (
	"context"
	"log/slog"

	"github.com/alem-hub/drop-matcher/internal/domain/notification"
)

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *slog.Logger
}

var _ notification.Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier for development environments.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With(slog.String("component", "log_notifier"))}
}

// Channel returns the channel type.
func (n *LogNotifier) Channel() notification.ChannelType {
	return notification.ChannelTypeLog
}

// NotifyMatch logs the match.
func (n *LogNotifier) NotifyMatch(_ context.Context, to notification.Recipient, partner notification.MatchProfile) error {
	n.logger.Info("match notification",
		slog.String("candidate_id", to.CandidateID),
		slog.String("email", to.Email),
		slog.String("partner", partner.Name),
		slog.Float64("score_diff", partner.ScoreDiff),
	)
	return nil
}

// NotifyNoMatch logs the no-match.
func (n *LogNotifier) NotifyNoMatch(_ context.Context, to notification.Recipient) error {
	n.logger.Info("no-match notification",
		slog.String("candidate_id", to.CandidateID),
		slog.String("email", to.Email),
	)
	return nil
}
