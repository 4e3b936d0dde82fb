//go:build !windows

package cmd

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/offlinefirst/bouncekeys/pkg/session"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestForwardSignalsPauseAndResume(t *testing.T) {
	controller := session.NewController()
	signals := make(chan os.Signal)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go forwardSignals(ctx, signals, controller, newTestLogger())

	signals <- pauseSignal
	waitFor(t, controller.Paused)

	signals <- resumeSignal
	waitFor(t, func() bool { return !controller.Paused() })

	select {
	case <-controller.Stopped():
		t.Fatalf("pause and resume must not stop the controller")
	default:
	}
}
