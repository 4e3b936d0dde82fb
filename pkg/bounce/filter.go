package bounce

import (
	"fmt"
	"strings"
	"time"
)

// BlockedEventName names the notification emitted for suppressed presses.
const BlockedEventName = "bounce-keys:blocked"

// Decision is the outcome of processing a single key press.
type Decision int

const (
	// Allow lets the key press through.
	Allow Decision = iota
	// Suppress asks the caller to cancel the key press.
	Suppress
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Suppress:
		return "suppress"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// KeyPress is a single key-down signal. At is an offset on a monotonic clock;
// the filter never reads a clock itself.
type KeyPress struct {
	Code   string
	At     time.Duration
	Target string
}

// BlockedEvent is the payload delivered to a Notifier when a press is suppressed.
type BlockedEvent struct {
	Name string `json:"type"`
	Code string `json:"code"`
}

// Notifier receives block notifications scoped to the press's originating target.
// Implementations must not block.
type Notifier interface {
	Notify(target string, event BlockedEvent)
}

// NotifierFunc adapts a function literal to the Notifier interface.
type NotifierFunc func(target string, event BlockedEvent)

// Notify calls the underlying function.
func (f NotifierFunc) Notify(target string, event BlockedEvent) {
	f(target, event)
}

// Options configures a Filter. The configuration is fixed for the filter's lifetime.
type Options struct {
	// BounceWindow is the span after a press within which a repeat of the same
	// key is treated as bounce. A repeat landing exactly on the boundary is suppressed.
	BounceWindow time.Duration
	// RepeatOnly restricts suppression to presses whose immediately preceding
	// press, of any key, was the same key.
	RepeatOnly bool
	// IgnoredKeys are never suppressed, although their timing is still tracked.
	IgnoredKeys []string
	// EmitBlockEvents sends a BlockedEvent to Notifier for every suppression.
	EmitBlockEvents bool
	Notifier        Notifier
}

// Filter tracks the last sighting of every key and decides whether new
// presses are bounce. It is not safe for concurrent use.
type Filter struct {
	window     time.Duration
	repeatOnly bool
	ignored    map[string]struct{}
	notifier   Notifier

	lastPress map[string]time.Duration
	lastKey   string
}

// New validates opts and returns an empty filter.
func New(opts Options) (*Filter, error) {
	if opts.BounceWindow < 0 {
		return nil, fmt.Errorf("%w: bounce window must not be negative (got %s)", ErrInvalidConfig, opts.BounceWindow)
	}

	ignored := make(map[string]struct{}, len(opts.IgnoredKeys))
	for _, code := range opts.IgnoredKeys {
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		ignored[trimmed] = struct{}{}
	}

	var notifier Notifier
	if opts.EmitBlockEvents {
		notifier = opts.Notifier
	}

	return &Filter{
		window:     opts.BounceWindow,
		repeatOnly: opts.RepeatOnly,
		ignored:    ignored,
		notifier:   notifier,
		lastPress:  make(map[string]time.Duration),
	}, nil
}

// Process decides whether press is bounce and records it. Every valid press
// updates the filter's memory, including suppressed ones, so a burst of
// bounces keeps extending the window from the most recent bounce.
func (f *Filter) Process(press KeyPress) (Decision, error) {
	if press.Code == "" {
		return Allow, fmt.Errorf("%w: missing key code", ErrInvalidSignal)
	}

	decision := Allow
	if f.bounced(press) {
		decision = Suppress
		if f.notifier != nil {
			f.notifier.Notify(press.Target, BlockedEvent{Name: BlockedEventName, Code: press.Code})
		}
	}

	f.lastPress[press.Code] = press.At
	f.lastKey = press.Code
	return decision, nil
}

func (f *Filter) bounced(press KeyPress) bool {
	last, seen := f.lastPress[press.Code]
	if !seen {
		return false
	}
	if press.At-last > f.window {
		return false
	}
	if f.repeatOnly && f.lastKey != press.Code {
		return false
	}
	if _, ignored := f.ignored[press.Code]; ignored {
		return false
	}
	return true
}
