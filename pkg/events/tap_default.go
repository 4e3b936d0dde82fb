//go:build !darwin

package events

import "time"

func defaultEventSource(clock func() time.Time) EventSource {
	return NewSyntheticSource(clock)
}
