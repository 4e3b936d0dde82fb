package session

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
	"github.com/offlinefirst/bouncekeys/pkg/config"
	"github.com/offlinefirst/bouncekeys/pkg/events"
	"github.com/offlinefirst/bouncekeys/pkg/metrics"
)

// GateDeps are the collaborators shared by every filter a Gate builds.
type GateDeps struct {
	Notifier bounce.Notifier
	Metrics  *metrics.Recorder
	Logger   *zap.Logger
	// Paused, when set and true, lets presses through without consulting the filter.
	Paused func() bool
}

// Gate adapts a bounce filter to the event pipeline. Press offsets are
// measured from the first press the gate sees.
type Gate struct {
	mu      sync.Mutex
	proc    bounce.Processor
	deps    GateDeps
	logger  *zap.Logger
	origin  time.Time
	started bool
	reloads int
}

// NewGate builds the filter described by cfg.
func NewGate(cfg config.FilterConfig, deps GateDeps) (*Gate, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	proc, err := newProcessor(cfg, deps.Notifier)
	if err != nil {
		return nil, err
	}
	return &Gate{
		proc:   proc,
		deps:   deps,
		logger: deps.Logger.With(zap.String("component", "gate")),
	}, nil
}

func newProcessor(cfg config.FilterConfig, notifier bounce.Notifier) (bounce.Processor, error) {
	opts := bounce.Options{
		BounceWindow:    cfg.BounceWindow,
		RepeatOnly:      cfg.RepeatOnly,
		IgnoredKeys:     cfg.IgnoredKeys,
		EmitBlockEvents: cfg.EmitBlockEvents,
		Notifier:        notifier,
	}
	if cfg.PerTarget {
		return bounce.NewSet(opts)
	}
	return bounce.New(opts)
}

// Handle implements events.Gate.
func (g *Gate) Handle(event *events.Event) error {
	if !event.IsKeyPress() {
		g.deps.Metrics.ObserveInvalid()
		return fmt.Errorf("%w: %s %s is not a key press", bounce.ErrInvalidSignal, event.Category, event.Action)
	}
	if g.deps.Paused != nil && g.deps.Paused() {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started {
		g.origin = event.Timestamp
		g.started = true
	}
	code := event.KeyCode()
	decision, err := g.proc.Process(bounce.KeyPress{
		Code:   code,
		At:     event.Timestamp.Sub(g.origin),
		Target: event.Target,
	})
	if err != nil {
		g.deps.Metrics.ObserveInvalid()
		return err
	}

	g.deps.Metrics.ObserveDecision(code, decision)
	if decision == bounce.Suppress {
		event.PreventDefault()
		g.logger.Debug("suppressed bounce",
			zap.String("code", code),
			zap.String("target", event.Target),
			zap.Time("at", event.Timestamp),
		)
	}
	return nil
}

// Reload swaps in a fresh filter built from cfg. Timing memory starts over;
// an invalid cfg leaves the current filter in place.
func (g *Gate) Reload(cfg config.FilterConfig) error {
	proc, err := newProcessor(cfg, g.deps.Notifier)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.proc = proc
	g.reloads++
	g.mu.Unlock()
	g.deps.Metrics.ObserveReload()
	return nil
}

// Reloads reports how many times the filter was swapped.
func (g *Gate) Reloads() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reloads
}
