// Package session runs a debounce filtering session: it resolves the event
// source, wires the filter to notification sinks and metrics, and reports the
// lifecycle for the run manifest.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/config"
	"github.com/offlinefirst/bouncekeys/pkg/events"
	"github.com/offlinefirst/bouncekeys/pkg/metrics"
	"github.com/offlinefirst/bouncekeys/pkg/notify"
	"github.com/offlinefirst/bouncekeys/pkg/runmanifest"
)

// ErrStopped marks a deliberate stop, e.g. an interrupt signal.
var ErrStopped = errors.New("session stopped")

// Options controls session orchestration.
type Options struct {
	Config    config.Config
	Layout    runmanifest.Layout
	Logger    *zap.Logger
	Clock     func() time.Time
	Control   *Controller
	SessionID string
	Metrics   *metrics.Recorder
	// Source overrides the source selected by Config.Input.
	Source events.EventSource
	// Stdin backs the stdin input source; defaults to os.Stdin.
	Stdin io.Reader
	// Reloads delivers configuration changes; only the filter section is applied.
	Reloads <-chan config.Config
}

// Lifecycle captures timing and termination details.
type Lifecycle struct {
	StartedAt          time.Time
	FinishedAt         time.Time
	TerminationCause   string
	ControllerTimeline []runmanifest.ControllerTimelineEntry
}

// Summary reports what the session did.
type Summary struct {
	Events    *events.Result
	Source    runmanifest.SourceStatus
	Sinks     []string
	Reloads   int
	Cancelled bool
	Lifecycle *Lifecycle
}

// Counts converts the summary into its manifest form.
func (s Summary) Counts() *runmanifest.Counts {
	if s.Events == nil {
		return nil
	}
	return &runmanifest.Counts{
		Events:      s.Events.EventCount,
		Suppressed:  s.Events.SuppressedCount,
		Passthrough: s.Events.PassthroughCount,
		Keys:        s.Events.KeyCount,
		Reloads:     s.Reloads,
	}
}

// Run filters events until the source is exhausted, the controller is
// killed, or ctx is cancelled. A deliberate stop is not an error.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Logger == nil {
		return Summary{}, errors.New("logger must be provided")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger.With(zap.String("component", "session"))

	controller := opts.Control
	if controller == nil {
		controller = NewController()
	}
	controller.setClock(clock)

	logFile, err := os.OpenFile(opts.Layout.SessionLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Summary{}, fmt.Errorf("open session log: %w", err)
	}
	defer logFile.Close()

	summary := Summary{}
	lifecycle := &Lifecycle{StartedAt: clock().UTC()}
	summary.Lifecycle = lifecycle
	finish := func(cause string) {
		lifecycle.FinishedAt = clock().UTC()
		lifecycle.TerminationCause = cause
		lifecycle.ControllerTimeline = controller.Timeline()
	}

	if err := controller.Wait(ctx); err != nil {
		controller.Kill(err)
		finish("error")
		return summary, err
	}
	controller.Record("running", "session started")

	source, status, closeSource, err := resolveSource(opts, clock)
	summary.Source = status
	if err != nil {
		controller.Kill(err)
		finish("error")
		writeSessionLog(logFile, clock(), "source", "unavailable: %v", err)
		return summary, err
	}
	defer closeSource()
	writeSessionLog(logFile, clock(), "source", "provider=%s available=%t %s", status.Provider, status.Available, status.Message)

	blockedFile, err := os.OpenFile(opts.Layout.BlockedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		controller.Kill(err)
		finish("error")
		return summary, fmt.Errorf("open blocked log: %w", err)
	}
	defer blockedFile.Close()

	sinks, err := notify.Build(ctx, opts.Config.Notify, notify.Deps{
		Logger:   opts.Logger,
		Envelope: notify.Envelope{Session: opts.SessionID, Clock: clock},
		Blocked:  blockedFile,
	})
	if err != nil {
		controller.Kill(err)
		finish("error")
		return summary, fmt.Errorf("initialise notification sinks: %w", err)
	}
	defer sinks.Close()
	summary.Sinks = sinks.Names
	writeSessionLog(logFile, clock(), "notify", "sinks=%v emit_block_events=%t", sinks.Names, opts.Config.Filter.EmitBlockEvents)

	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.New()
	}

	gate, err := NewGate(opts.Config.Filter, GateDeps{
		Notifier: sinks.Notifier,
		Metrics:  recorder,
		Logger:   opts.Logger,
		Paused:   controller.Paused,
	})
	if err != nil {
		controller.Kill(err)
		finish("error")
		return summary, fmt.Errorf("initialise filter: %w", err)
	}
	writeSessionLog(logFile, clock(), "filter", "bounce_window=%s repeat_only=%t ignored=%v per_target=%t",
		opts.Config.Filter.BounceWindow, opts.Config.Filter.RepeatOnly, opts.Config.Filter.IgnoredKeys, opts.Config.Filter.PerTarget)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-controller.Stopped():
			cause := controller.Err()
			if cause == nil {
				cause = ErrStopped
			}
			cancel(cause)
		case <-runCtx.Done():
		}
	}()

	if addr := opts.Config.Metrics.Addr; addr != "" {
		_, serveErrs, err := recorder.Serve(runCtx, addr, opts.Logger)
		if err != nil {
			controller.Kill(err)
			finish("error")
			return summary, err
		}
		go watchMetricsServer(serveErrs, logger)
	}

	reloadsDone := make(chan struct{})
	go func() {
		defer close(reloadsDone)
		watchReloads(runCtx, opts.Reloads, gate, logger, func(format string, args ...any) {
			writeSessionLog(logFile, clock(), "filter", format, args...)
		})
	}()

	tap, err := events.NewTap(events.Options{
		Gate:   gate,
		Scope:  events.NewScope(opts.Config.Input.Apps, opts.Config.Input.DropUnknown),
		Clock:  clock,
		Source: source,
	})
	if err != nil {
		controller.Kill(err)
		finish("error")
		return summary, fmt.Errorf("initialise event tap: %w", err)
	}

	logger.Info("filtering key events",
		zap.String("session_id", opts.SessionID),
		zap.String("provider", status.Provider),
		zap.Duration("bounce_window", opts.Config.Filter.BounceWindow),
	)
	res, runErr := tap.Capture(runCtx, opts.Layout.EventsDir)
	cancel(nil)
	<-reloadsDone
	summary.Reloads = gate.Reloads()

	if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
		cause := context.Cause(runCtx)
		if errors.Is(cause, ErrStopped) || ctx.Err() != nil {
			summary.Events = &res
			summary.Cancelled = true
			controller.Kill(cause)
			finish(cause.Error())
			writeSessionLog(logFile, clock(), "events", "stopped (%v): %d events, %d suppressed", cause, res.EventCount, res.SuppressedCount)
			logger.Info("filtering stopped", zap.Error(cause), zap.Int("suppressed", res.SuppressedCount))
			return summary, nil
		}
		runErr = cause
	}
	if runErr != nil {
		controller.Kill(runErr)
		finish("error")
		writeSessionLog(logFile, clock(), "events", "failed: %v", runErr)
		return summary, fmt.Errorf("filter events: %w", runErr)
	}

	summary.Events = &res
	controller.Record("completed", "source exhausted")
	finish("completed")
	writeSessionLog(logFile, clock(), "events", "filtered %d events (%d suppressed, %d passthrough, %d keys)",
		res.EventCount, res.SuppressedCount, res.PassthroughCount, res.KeyCount)
	logger.Info("filtering complete",
		zap.Int("events", res.EventCount),
		zap.Int("suppressed", res.SuppressedCount),
		zap.Int("passthrough", res.PassthroughCount),
	)
	return summary, nil
}

func watchReloads(ctx context.Context, updates <-chan config.Config, gate *Gate, logger *zap.Logger, record func(string, ...any)) {
	if updates == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			if err := gate.Reload(cfg.Filter); err != nil {
				logger.Warn("ignoring filter reload", zap.Error(err))
				continue
			}
			logger.Info("filter reloaded",
				zap.Duration("bounce_window", cfg.Filter.BounceWindow),
				zap.Bool("repeat_only", cfg.Filter.RepeatOnly),
			)
			record("reloaded bounce_window=%s repeat_only=%t ignored=%v", cfg.Filter.BounceWindow, cfg.Filter.RepeatOnly, cfg.Filter.IgnoredKeys)
		}
	}
}

// watchMetricsServer logs a metrics endpoint that fails after it started.
func watchMetricsServer(errs <-chan error, logger *zap.Logger) {
	for err := range errs {
		if err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}
}

func resolveSource(opts Options, clock func() time.Time) (events.EventSource, runmanifest.SourceStatus, func(), error) {
	noop := func() {}
	if opts.Source != nil {
		return opts.Source, runmanifest.SourceStatus{Provider: "custom", Available: true}, noop, nil
	}

	input := opts.Config.Input
	switch input.Source {
	case config.SourceSynthetic:
		return events.NewSyntheticSource(clock), runmanifest.SourceStatus{Provider: events.ProviderSynthetic, Available: true}, noop, nil
	case config.SourceFile:
		file, err := os.Open(input.Path)
		if err != nil {
			return nil, runmanifest.SourceStatus{Provider: "file", Message: err.Error()}, noop, fmt.Errorf("open input: %w", err)
		}
		status := runmanifest.SourceStatus{Provider: "file", Available: true, Message: input.Path}
		return events.NewReaderSource(file), status, func() { file.Close() }, nil
	case config.SourceStdin:
		stdin := opts.Stdin
		if stdin == nil {
			stdin = os.Stdin
		}
		return events.NewReaderSource(stdin), runmanifest.SourceStatus{Provider: "stdin", Available: true}, noop, nil
	}

	env := events.DetectEnvironment()
	status := runmanifest.SourceStatus{
		Provider:   env.Provider,
		Available:  env.Available,
		Permission: env.Permission,
		Message:    env.Message,
	}
	if input.Source == config.SourceTap {
		if runtime.GOOS != "darwin" {
			return nil, status, noop, fmt.Errorf("live key tap requires macOS (running on %s)", runtime.GOOS)
		}
		if !env.Available {
			return nil, status, noop, events.ErrAccessibilityPermission
		}
		return nil, status, noop, nil
	}

	// Default: the platform tap when it can run, otherwise the synthetic timeline.
	if !env.Available {
		status.Provider = events.ProviderSynthetic
		status.Available = true
		return events.NewSyntheticSource(clock), status, noop, nil
	}
	return nil, status, noop, nil
}

func writeSessionLog(file *os.File, timestamp time.Time, component, message string, args ...any) {
	if file == nil {
		return
	}
	formatted := message
	if len(args) > 0 {
		formatted = fmt.Sprintf(message, args...)
	}
	line := fmt.Sprintf("[%s] component=%s %s\n", timestamp.UTC().Format(time.RFC3339), component, formatted)
	_, _ = file.WriteString(line)
}
