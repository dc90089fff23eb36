package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier delivers user-facing notifications about withdrawal events.
// Delivery is best effort; callers must never let a notification failure
// roll back a financial transition.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error
}

// LogNotifier writes notifications to the structured log instead of an
// external channel. Used until a real email/push sender is wired in.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.L()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) error {
	n.logger.Info("notification",
		zap.String("user_id", userID.String()),
		zap.String("event", event),
		zap.Any("payload", payload),
	)
	return nil
}
