package events

import (
	"context"
	"time"
)

// syntheticSource replays a short typing session with chattering keys.
type syntheticSource struct {
	clock func() time.Time
}

// NewSyntheticSource returns a deterministic source replaying a brief typing
// session in which three presses chatter. A nil clock uses time.Now.
func NewSyntheticSource(clock func() time.Time) EventSource {
	if clock == nil {
		clock = time.Now
	}
	return syntheticSource{clock: clock}
}

func (s syntheticSource) Stream(ctx context.Context, emit func(*Event) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := s.clock().UTC()
	for _, event := range syntheticTimeline(start) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(event); err != nil {
			return err
		}
	}
	return nil
}

func syntheticTimeline(start time.Time) []*Event {
	key := func(offset time.Duration, action, code string) *Event {
		return &Event{
			Timestamp: start.Add(offset),
			Category:  CategoryKeyboard,
			Action:    action,
			Target:    "editor",
			Code:      code,
			Metadata:  map[string]string{"app": "notes"},
		}
	}
	ms := time.Millisecond
	return []*Event{
		key(0, ActionPress, "KeyH"),
		key(30*ms, ActionRelease, "KeyH"),
		key(120*ms, ActionPress, "KeyE"),
		key(126*ms, ActionPress, "KeyE"),
		key(240*ms, ActionPress, "KeyL"),
		key(330*ms, ActionPress, "KeyL"),
		key(450*ms, ActionPress, "KeyO"),
		key(455*ms, ActionPress, "KeyO"),
		{
			Timestamp: start.Add(600 * ms),
			Category:  CategoryMouse,
			Action:    "left-down",
			Target:    "editor",
			Metadata:  map[string]string{"app": "notes"},
		},
		key(700*ms, ActionPress, "Backspace"),
		key(710*ms, ActionPress, "Backspace"),
	}
}
