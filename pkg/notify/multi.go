package notify

import "github.com/offlinefirst/bouncekeys/pkg/bounce"

// Multi fans a notification out to every sink in order.
type Multi []bounce.Notifier

// Notify implements bounce.Notifier.
func (m Multi) Notify(target string, event bounce.BlockedEvent) {
	for _, sink := range m {
		if sink != nil {
			sink.Notify(target, event)
		}
	}
}
