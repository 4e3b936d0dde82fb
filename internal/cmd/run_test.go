package cmd

import (
	"bytes"
	"flag"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/config"
	"github.com/offlinefirst/bouncekeys/pkg/runmanifest"
)

func newTestLogger() *zap.Logger {
	return zap.NewNop()
}

func newRunFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	newRunCommand().configure(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func stubSignals(t *testing.T) {
	t.Helper()
	orig := subscribeSignals
	subscribeSignals = func() (<-chan os.Signal, func()) {
		return make(chan os.Signal), func() {}
	}
	t.Cleanup(func() { subscribeSignals = orig })
}

func TestRunCommandPlanOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Filter.BounceWindow = 75 * time.Millisecond
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runSession(newRunFlags(t, "-plan-only"), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runSession returned error: %v", err)
	}

	if !bytes.Contains(stdout.Bytes(), []byte("Resolved configuration")) {
		t.Fatalf("expected plan output, got %q", stdout.String())
	}
	if !bytes.Contains(stdout.Bytes(), []byte("filter.bounce_window: 75ms")) {
		t.Fatalf("expected bounce window in plan, got %q", stdout.String())
	}
}

func TestRunCommandPlanOnlyAppliesInputFlag(t *testing.T) {
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runSession(newRunFlags(t, "-plan-only", "-input", "recorded/keys.jsonl"), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runSession returned error: %v", err)
	}
	if !strings.Contains(stdout.String(), "input.source: file") || !strings.Contains(stdout.String(), "input.path: recorded/keys.jsonl") {
		t.Fatalf("expected file input in plan, got %q", stdout.String())
	}
}

func TestRunCommandPreparesLayout(t *testing.T) {
	stubSignals(t)

	cfg := config.Default()
	cfg.Input.Source = config.SourceSynthetic
	runsDir := t.TempDir()
	cfg.Paths.RunsDir = runsDir
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	now := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	origTime := timeNow
	timeNow = func() time.Time { return now }
	defer func() { timeNow = origTime }()

	origHost := hostname
	hostname = func() (string, error) { return "test-host", nil }
	defer func() { hostname = origHost }()

	origID := newSessionID
	newSessionID = func() string { return "session-under-test" }
	defer func() { newSessionID = origID }()

	var stdout bytes.Buffer
	if err := runSession(newRunFlags(t), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runSession returned error: %v", err)
	}

	expectedID := now.Format("20060102_150405")
	layout := runmanifest.BuildLayout(runsDir, expectedID)

	man, err := runmanifest.Load(layout.ManifestPath)
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if man.Status.State != runmanifest.StateCompleted {
		t.Fatalf("expected completed state, got %q", man.Status.State)
	}
	if man.Status.Termination != "completed" {
		t.Fatalf("unexpected termination reason %q", man.Status.Termination)
	}
	if man.Status.StartedAt == nil || man.Status.EndedAt == nil {
		t.Fatalf("expected lifecycle timestamps in manifest")
	}
	if man.SessionID != "session-under-test" {
		t.Fatalf("unexpected session id %q", man.SessionID)
	}
	if man.Status.Counts == nil || man.Status.Counts.Suppressed != 3 || man.Status.Counts.Events != 8 {
		t.Fatalf("unexpected counts %+v", man.Status.Counts)
	}
	if man.Status.Source == nil || man.Status.Source.Provider != "synthetic" {
		t.Fatalf("expected synthetic source recorded, got %+v", man.Status.Source)
	}
	if len(man.Status.Controller) == 0 {
		t.Fatalf("expected controller timeline persisted to manifest")
	}

	if info, err := os.Stat(layout.EventsDir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory %s: %v", layout.EventsDir, err)
	}
	blocked, err := os.ReadFile(layout.BlockedPath)
	if err != nil {
		t.Fatalf("read blocked log: %v", err)
	}
	if lines := strings.Count(string(blocked), "\n"); lines != 0 {
		t.Fatalf("expected no block notifications while emit is disabled, got %d lines", lines)
	}

	out := stdout.String()
	for _, want := range []string{
		"Run directory:",
		"Session: session-under-test",
		"Events: 8 written (3 suppressed, 2 passthrough, 5 keys)",
		"Notification sinks: jsonl (block events disabled)",
		"Lifecycle:",
		"Controller timeline",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestRunCommandEmitsBlockNotifications(t *testing.T) {
	stubSignals(t)

	cfg := config.Default()
	cfg.Input.Source = config.SourceSynthetic
	cfg.Filter.EmitBlockEvents = true
	cfg.Paths.RunsDir = t.TempDir()
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runSession(newRunFlags(t), nil, ctx, &stdout, io.Discard); err != nil {
		t.Fatalf("runSession returned error: %v", err)
	}

	entries, err := os.ReadDir(cfg.Paths.RunsDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one run directory, got %v (%v)", entries, err)
	}
	layout := runmanifest.BuildLayout(cfg.Paths.RunsDir, entries[0].Name())
	blocked, err := os.ReadFile(layout.BlockedPath)
	if err != nil {
		t.Fatalf("read blocked log: %v", err)
	}
	if lines := strings.Count(string(blocked), "\n"); lines != 3 {
		t.Fatalf("expected 3 block notifications, got %d: %s", lines, blocked)
	}
	if !strings.Contains(string(blocked), `"type":"bounce-keys:blocked"`) {
		t.Fatalf("unexpected notification payload: %s", blocked)
	}
}

func TestRunCommandRejectsMissingInputFile(t *testing.T) {
	stubSignals(t)

	cfg := config.Default()
	cfg.Paths.RunsDir = t.TempDir()
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	err := runSession(newRunFlags(t, "-input", "does-not-exist.jsonl"), nil, ctx, io.Discard, io.Discard)
	if err == nil {
		t.Fatalf("expected error for missing input file")
	}

	entries, readErr := os.ReadDir(cfg.Paths.RunsDir)
	if readErr != nil || len(entries) != 1 {
		t.Fatalf("expected one run directory, got %v (%v)", entries, readErr)
	}
	man, loadErr := runmanifest.Load(runmanifest.BuildLayout(cfg.Paths.RunsDir, entries[0].Name()).ManifestPath)
	if loadErr != nil {
		t.Fatalf("load manifest: %v", loadErr)
	}
	if man.Status.State != runmanifest.StateFailed {
		t.Fatalf("expected failed state, got %q", man.Status.State)
	}
}

func TestApplyInputFlag(t *testing.T) {
	cases := []struct {
		value      string
		wantSource string
		wantPath   string
	}{
		{"synthetic", config.SourceSynthetic, ""},
		{" TAP ", config.SourceTap, ""},
		{"-", config.SourceStdin, ""},
		{"stdin", config.SourceStdin, ""},
		{"keys.jsonl", config.SourceFile, "keys.jsonl"},
	}
	for _, tc := range cases {
		input := config.InputConfig{Source: config.SourceDefault, Path: "stale"}
		applyInputFlag(&input, tc.value)
		if input.Source != tc.wantSource || input.Path != tc.wantPath {
			t.Fatalf("applyInputFlag(%q) = %+v", tc.value, input)
		}
	}
}
