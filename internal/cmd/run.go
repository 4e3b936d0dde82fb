package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/internal/buildinfo"
	"github.com/offlinefirst/bouncekeys/pkg/config"
	"github.com/offlinefirst/bouncekeys/pkg/notify"
	"github.com/offlinefirst/bouncekeys/pkg/runmanifest"
	"github.com/offlinefirst/bouncekeys/pkg/session"
)

func newRunCommand() command {
	return command{
		name:        "run",
		description: "Start a key debounce session",
		configure: func(fs *flag.FlagSet) {
			fs.Bool("plan-only", false, "Print the resolved configuration without starting the session")
			fs.String("input", "", "Event source: default, synthetic, tap, '-' for stdin, or a JSONL file path")
			fs.Bool("watch-config", false, "Reload the filter when the config file changes")
		},
		run: runSession,
	}
}

var (
	timeNow      = time.Now
	hostname     = os.Hostname
	manifestSave = runmanifest.Save
	newSessionID = notify.NewSessionID
	sessionRun   = session.Run
)

func runSession(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}

	cfg := ctx.Config
	if input := stringFlag(fs, "input"); input != "" {
		applyInputFlag(&cfg.Input, input)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	planOnly := boolFlag(fs, "plan-only")
	watch := boolFlag(fs, "watch-config")
	ctx.Logger.Info("run command invoked",
		zap.Bool("plan_only", planOnly),
		zap.Bool("watch_config", watch),
		zap.String("input", cfg.Input.Source),
		zap.String("runs_dir", cfg.Paths.RunsDir),
		zap.String("config_source", cfg.Source),
	)

	if planOnly {
		printRunPlan(cfg, stdout)
		return nil
	}

	if err := os.MkdirAll(cfg.Paths.RunsDir, 0o755); err != nil {
		return fmt.Errorf("ensure runs directory: %w", err)
	}

	runID, err := runmanifest.ResolveRunID(cfg.Paths.RunsDir, timeNow())
	if err != nil {
		return fmt.Errorf("resolve run id: %w", err)
	}

	layout := runmanifest.BuildLayout(cfg.Paths.RunsDir, runID)
	if err := runmanifest.EnsureFilesystem(layout); err != nil {
		return fmt.Errorf("prepare run filesystem: %w", err)
	}

	host, err := hostname()
	if err != nil {
		host = "unknown"
	}

	sessionID := newSessionID()
	manifest := runmanifest.New(runmanifest.Options{
		RunID:      runID,
		SessionID:  sessionID,
		CreatedAt:  timeNow(),
		Hostname:   host,
		AppVersion: buildinfo.Version(),
		Config:     cfg,
		Layout:     layout,
	})

	manifest.Status.State = runmanifest.StateRunning
	manifest.Status.Summary = "filtering in progress"
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	controller := session.NewController()
	signals, release := subscribeSignals()
	defer release()
	go forwardSignals(runCtx, signals, controller, ctx.Logger)

	var reloads <-chan config.Config
	if watch {
		reloads = watchConfig(runCtx, cfg, ctx.Logger)
	}

	summary, err := sessionRun(runCtx, session.Options{
		Config:    cfg,
		Layout:    layout,
		Logger:    ctx.Logger,
		Clock:     timeNow,
		Control:   controller,
		SessionID: sessionID,
		Reloads:   reloads,
	})

	if summary.Lifecycle != nil {
		started := summary.Lifecycle.StartedAt.UTC()
		finished := summary.Lifecycle.FinishedAt.UTC()
		manifest.Status.StartedAt = &started
		manifest.Status.EndedAt = &finished
		manifest.Status.Termination = summary.Lifecycle.TerminationCause
		if len(summary.Lifecycle.ControllerTimeline) > 0 {
			manifest.Status.Controller = append([]runmanifest.ControllerTimelineEntry(nil), summary.Lifecycle.ControllerTimeline...)
		}
	}
	if summary.Source.Provider != "" {
		source := summary.Source
		manifest.Status.Source = &source
	}
	manifest.Status.Counts = summary.Counts()

	if err != nil {
		manifest.Status.State = runmanifest.StateFailed
		manifest.Status.Summary = err.Error()
		if manifest.Status.Termination == "" {
			manifest.Status.Termination = "error"
		}
		ctx.Logger.Error("debounce session failed", zap.Error(err))
		if saveErr := manifestSave(manifest, layout.ManifestPath); saveErr != nil {
			return fmt.Errorf("run debounce session: %v (additionally failed to persist manifest: %w)", err, saveErr)
		}
		return fmt.Errorf("run debounce session: %w", err)
	}

	if manifest.Status.Termination == "" {
		manifest.Status.Termination = "completed"
	}
	manifest.Status.State = runmanifest.StateCompleted
	if summary.Cancelled {
		manifest.Status.State = runmanifest.StateCancelled
	}
	manifest.Status.Summary = fmt.Sprintf("filtering finished (%s)", manifest.Status.Termination)
	if err := manifestSave(manifest, layout.ManifestPath); err != nil {
		return fmt.Errorf("finalise manifest: %w", err)
	}

	printRunSummary(stdout, layout, sessionID, cfg, summary)
	return nil
}

func printRunSummary(stdout io.Writer, layout runmanifest.Layout, sessionID string, cfg config.Config, summary session.Summary) {
	fmt.Fprintf(stdout, "Run directory: %s\n", layout.Root)
	fmt.Fprintf(stdout, "Manifest: %s\n", layout.ManifestPath)
	fmt.Fprintf(stdout, "Session log: %s\n", layout.SessionLogPath)
	fmt.Fprintf(stdout, "Session: %s\n", sessionID)
	fmt.Fprintf(stdout, "Source: provider=%s available=%t", summary.Source.Provider, summary.Source.Available)
	if summary.Source.Permission != "" {
		fmt.Fprintf(stdout, " permission=%s", summary.Source.Permission)
	}
	if summary.Source.Message != "" {
		fmt.Fprintf(stdout, " (%s)", summary.Source.Message)
	}
	fmt.Fprintln(stdout)
	fmt.Fprintf(stdout, "Filter: window=%s repeat_only=%t ignored=%s per_target=%t\n",
		cfg.Filter.BounceWindow, cfg.Filter.RepeatOnly, strings.Join(cfg.Filter.IgnoredKeys, ","), cfg.Filter.PerTarget)

	if res := summary.Events; res != nil {
		fmt.Fprintf(stdout, "Events: %d written (%d suppressed, %d passthrough, %d keys) -> %s\n",
			res.EventCount, res.SuppressedCount, res.PassthroughCount, res.KeyCount, res.AllowedPath)
		fmt.Fprintf(stdout, "  key summary: %s\n", res.SummaryPath)
	}
	if len(summary.Sinks) > 0 {
		fmt.Fprintf(stdout, "Notification sinks: %s (block events %s)\n", strings.Join(summary.Sinks, ", "), enabledString(cfg.Filter.EmitBlockEvents))
	}
	if summary.Reloads > 0 {
		fmt.Fprintf(stdout, "Filter reloads: %d\n", summary.Reloads)
	}

	if summary.Lifecycle != nil {
		fmt.Fprintf(stdout, "Lifecycle: started %s, ended %s (termination: %s)\n",
			summary.Lifecycle.StartedAt.Format(time.RFC3339), summary.Lifecycle.FinishedAt.Format(time.RFC3339), summary.Lifecycle.TerminationCause)
		if len(summary.Lifecycle.ControllerTimeline) > 0 {
			fmt.Fprintf(stdout, "  Controller timeline:\n")
			for _, entry := range summary.Lifecycle.ControllerTimeline {
				fmt.Fprintf(stdout, "    - %s -> %s", entry.Timestamp.Format(time.RFC3339), entry.State)
				if entry.Reason != "" {
					fmt.Fprintf(stdout, " (%s)", entry.Reason)
				}
				fmt.Fprintln(stdout)
			}
		}
	}
}

func printRunPlan(cfg config.Config, stdout io.Writer) {
	fmt.Fprintf(stdout, "Resolved configuration (source: %s)\n", cfg.Source)
	fmt.Fprintf(stdout, "  runs_dir: %s\n", cfg.Paths.RunsDir)
	fmt.Fprintf(stdout, "  filter.bounce_window: %s\n", cfg.Filter.BounceWindow)
	fmt.Fprintf(stdout, "  filter.repeat_only: %t\n", cfg.Filter.RepeatOnly)
	fmt.Fprintf(stdout, "  filter.ignored_keys: %s\n", strings.Join(cfg.Filter.IgnoredKeys, ","))
	fmt.Fprintf(stdout, "  filter.emit_block_events: %t\n", cfg.Filter.EmitBlockEvents)
	fmt.Fprintf(stdout, "  filter.per_target: %t\n", cfg.Filter.PerTarget)
	fmt.Fprintf(stdout, "  input.source: %s\n", cfg.Input.Source)
	if cfg.Input.Path != "" {
		fmt.Fprintf(stdout, "  input.path: %s\n", cfg.Input.Path)
	}
	fmt.Fprintf(stdout, "  input.apps: %s\n", strings.Join(cfg.Input.Apps, ","))
	fmt.Fprintf(stdout, "  notify.sinks: %s\n", strings.Join(cfg.Notify.Sinks, ","))
	fmt.Fprintf(stdout, "  metrics.addr: %s\n", cfg.Metrics.Addr)
	fmt.Fprintf(stdout, "  logging.level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(stdout, "  logging.format: %s\n", cfg.Logging.Format)
}

// applyInputFlag maps the --input shorthand onto the input section.
func applyInputFlag(input *config.InputConfig, value string) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case config.SourceDefault, config.SourceSynthetic, config.SourceTap:
		input.Source = strings.ToLower(strings.TrimSpace(value))
		input.Path = ""
	case "-", config.SourceStdin:
		input.Source = config.SourceStdin
		input.Path = ""
	default:
		input.Source = config.SourceFile
		input.Path = value
	}
}

func watchConfig(ctx context.Context, cfg config.Config, logger *zap.Logger) <-chan config.Config {
	if cfg.Source == "" || cfg.Source == config.Default().Source {
		logger.Warn("--watch-config ignored: no configuration file in use")
		return nil
	}
	updates, err := config.Watch(ctx, cfg.Source, logger)
	if err != nil {
		logger.Warn("config watch unavailable", zap.Error(err))
		return nil
	}
	return updates
}

func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func boolFlag(fs *flag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	if f == nil {
		return false
	}
	value, err := strconv.ParseBool(f.Value.String())
	if err != nil {
		return false
	}
	return value
}

func stringFlag(fs *flag.FlagSet, name string) string {
	f := fs.Lookup(name)
	if f == nil {
		return ""
	}
	return strings.TrimSpace(f.Value.String())
}
