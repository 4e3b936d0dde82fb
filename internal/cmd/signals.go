package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/session"
)

// subscribeSignals is swapped in tests.
var subscribeSignals = func() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, sessionSignals...)
	return ch, func() { signal.Stop(ch) }
}

// forwardSignals translates process signals into controller requests until ctx ends.
func forwardSignals(ctx context.Context, signals <-chan os.Signal, controller *session.Controller, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			switch {
			case pauseSignal != nil && sig == pauseSignal:
				logger.Info("pausing key filter", zap.String("signal", sig.String()))
				controller.Pause()
			case resumeSignal != nil && sig == resumeSignal:
				logger.Info("resuming key filter", zap.String("signal", sig.String()))
				controller.Resume()
			default:
				logger.Info("stopping session", zap.String("signal", sig.String()))
				controller.Kill(fmt.Errorf("%w: received %s", session.ErrStopped, sig))
			}
		}
	}
}
