package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestControllerPauseResume(t *testing.T) {
	controller := NewController()

	controller.Pause()
	done := make(chan error, 1)
	go func() {
		done <- controller.Wait(context.Background())
	}()

	select {
	case <-time.After(100 * time.Millisecond):
	case err := <-done:
		t.Fatalf("expected wait to block, got %v", err)
	}

	controller.Resume()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error after resume, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("controller wait did not resume")
	}
}

func TestControllerKillPropagatesError(t *testing.T) {
	controller := NewController()
	controller.Pause()
	customErr := errors.New("boom")

	done := make(chan error, 1)
	go func() {
		done <- controller.Wait(context.Background())
	}()

	controller.Kill(customErr)

	select {
	case err := <-done:
		if !errors.Is(err, customErr) {
			t.Fatalf("expected custom error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("controller wait did not unblock after kill")
	}
}

func TestControllerWaitRespectsContextCancellation(t *testing.T) {
	controller := NewController()
	controller.Pause()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- controller.Wait(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("controller wait did not exit on cancellation")
	}
}

func TestControllerKillClosesStoppedOnce(t *testing.T) {
	controller := NewController()
	first := errors.New("first")

	controller.Kill(first)
	controller.Kill(errors.New("second"))

	select {
	case <-controller.Stopped():
	default:
		t.Fatalf("expected stopped channel to be closed")
	}
	if !errors.Is(controller.Err(), first) {
		t.Fatalf("expected first error to win, got %v", controller.Err())
	}
	if controller.State() != "stopping" {
		t.Fatalf("unexpected state %q", controller.State())
	}
}

func TestControllerTimeline(t *testing.T) {
	controller := NewController()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	controller.setClock(func() time.Time { return base })

	controller.Record("running", "")
	controller.Pause()
	controller.Pause()
	if !controller.Paused() {
		t.Fatalf("expected paused controller")
	}
	controller.Resume()
	controller.Kill(nil)
	controller.Pause()

	timeline := controller.Timeline()
	states := make([]string, 0, len(timeline))
	for _, entry := range timeline {
		states = append(states, entry.State)
	}
	want := []string{"running", "paused", "running", "stopping"}
	if len(states) != len(want) {
		t.Fatalf("expected %v, got %v", want, states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, states)
		}
	}
	if !timeline[0].Timestamp.Equal(base) {
		t.Fatalf("expected timeline to use the controller clock")
	}
}
