package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
	"github.com/offlinefirst/bouncekeys/pkg/events"
	"github.com/offlinefirst/bouncekeys/pkg/notify"
	"github.com/offlinefirst/bouncekeys/pkg/session"
)

// stdin is swapped in tests.
var stdin io.Reader = os.Stdin

func newFilterCommand() command {
	return command{
		name:        "filter",
		description: "Debounce newline-delimited JSON events from stdin to stdout",
		configure: func(fs *flag.FlagSet) {
			fs.Duration("window", 0, "Bounce window, e.g. 40ms (overrides filter.bounce_window)")
			fs.Bool("repeat-only", false, "Only suppress a press when the previous press was the same key")
			fs.String("ignore", "", "Comma-separated key codes that are never suppressed")
			fs.Bool("per-target", false, "Keep an independent filter per target")
			fs.Bool("emit", false, "Log a "+bounce.BlockedEventName+" entry for every suppressed press")
		},
		run: runFilter,
	}
}

func runFilter(fs *flag.FlagSet, args []string, ctx *AppContext, stdout io.Writer, stderr io.Writer) error {
	if ctx == nil {
		return fmt.Errorf("application context unavailable")
	}

	cfg := ctx.Config.Filter
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "window":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.BounceWindow = d
			}
		case "repeat-only":
			cfg.RepeatOnly = boolFlag(fs, f.Name)
		case "ignore":
			cfg.IgnoredKeys = splitList(f.Value.String())
		case "per-target":
			cfg.PerTarget = boolFlag(fs, f.Name)
		case "emit":
			cfg.EmitBlockEvents = boolFlag(fs, f.Name)
		}
	})

	gate, err := session.NewGate(cfg, session.GateDeps{
		Notifier: notify.NewLog(ctx.Logger),
		Logger:   ctx.Logger,
	})
	if err != nil {
		return err
	}

	tap, err := events.NewTap(events.Options{
		Gate:   gate,
		Scope:  events.NewScope(ctx.Config.Input.Apps, ctx.Config.Input.DropUnknown),
		Source: events.NewReaderSource(stdin),
	})
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := tap.Filter(sigCtx, stdout)
	if err != nil && sigCtx.Err() == nil {
		return fmt.Errorf("filter events: %w", err)
	}

	ctx.Logger.Info("filter finished",
		zap.Int("events", res.EventCount),
		zap.Int("suppressed", res.SuppressedCount),
		zap.Int("passthrough", res.PassthroughCount),
		zap.Duration("bounce_window", cfg.BounceWindow),
	)
	fmt.Fprintf(stderr, "%d events written, %d suppressed\n", res.EventCount, res.SuppressedCount)
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
