package notify

import (
	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
)

// Log writes one info line per blocked press.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a sink writing to logger.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.With(zap.String("component", "notify-log"))}
}

// Notify implements bounce.Notifier.
func (l *Log) Notify(target string, event bounce.BlockedEvent) {
	l.logger.Info("key press blocked",
		zap.String("event", event.Name),
		zap.String("code", event.Code),
		zap.String("target", target),
	)
}
