package session

import (
	"context"
	"sync"
	"time"

	"github.com/offlinefirst/bouncekeys/pkg/runmanifest"
)

// Controller coordinates pause/resume/kill requests for a filtering session
// and keeps a timeline of the transitions for the run manifest.
type Controller struct {
	mu       sync.Mutex
	paused   bool
	stopping bool
	stopErr  error
	signal   chan struct{}
	stopped  chan struct{}
	clock    func() time.Time
	timeline []runmanifest.ControllerTimelineEntry
}

// NewController constructs a controller in the running state.
func NewController() *Controller {
	return &Controller{
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
		clock:   time.Now,
	}
}

// Pause transitions the controller into a paused state. While paused the
// session lets every key press through unfiltered.
func (c *Controller) Pause() {
	c.mu.Lock()
	if !c.paused && !c.stopping {
		c.paused = true
		c.recordLocked("paused", "")
	}
	c.mu.Unlock()
}

// Resume clears a paused state and notifies waiters.
func (c *Controller) Resume() {
	c.mu.Lock()
	wasPaused := c.paused
	c.paused = false
	if wasPaused && !c.stopping {
		c.recordLocked("running", "resumed")
	}
	c.mu.Unlock()
	if wasPaused {
		c.notify()
	}
}

// Kill requests the session to stop and propagates an optional error.
func (c *Controller) Kill(err error) {
	c.mu.Lock()
	first := !c.stopping
	c.stopping = true
	if err != nil && c.stopErr == nil {
		c.stopErr = err
	}
	if first {
		reason := ""
		if err != nil {
			reason = err.Error()
		}
		c.recordLocked("stopping", reason)
		close(c.stopped)
	}
	c.mu.Unlock()
	c.notify()
}

// Wait blocks until the controller is running or stopping.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		paused := c.paused
		stopping := c.stopping
		stopErr := c.stopErr
		c.mu.Unlock()

		if stopping {
			if stopErr != nil {
				return stopErr
			}
			if ctx != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return context.Canceled
		}
		if !paused {
			return nil
		}

		if ctx == nil {
			<-c.signal
			continue
		}

		select {
		case <-ctx.Done():
			c.Kill(ctx.Err())
			return ctx.Err()
		case <-c.signal:
			continue
		}
	}
}

// Stopped is closed by the first Kill.
func (c *Controller) Stopped() <-chan struct{} {
	return c.stopped
}

// Err returns the error passed to Kill, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopErr
}

// Paused reports whether key presses should bypass the filter.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// State reports the textual state for diagnostics.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopping:
		return "stopping"
	case c.paused:
		return "paused"
	default:
		return "running"
	}
}

func (c *Controller) setClock(clock func() time.Time) {
	c.mu.Lock()
	c.clock = clock
	c.mu.Unlock()
}

// Record appends an arbitrary transition to the timeline.
func (c *Controller) Record(state, reason string) {
	c.mu.Lock()
	c.recordLocked(state, reason)
	c.mu.Unlock()
}

// Timeline returns a copy of the recorded transitions.
func (c *Controller) Timeline() []runmanifest.ControllerTimelineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]runmanifest.ControllerTimelineEntry(nil), c.timeline...)
}

func (c *Controller) recordLocked(state, reason string) {
	c.timeline = append(c.timeline, runmanifest.ControllerTimelineEntry{
		State:     state,
		Reason:    reason,
		Timestamp: c.clock().UTC(),
	})
}

func (c *Controller) notify() {
	select {
	case c.signal <- struct{}{}:
	default:
	}
}
