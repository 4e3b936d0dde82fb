package cmd

import (
	"bytes"
	"flag"
	"strings"
	"testing"

	"github.com/offlinefirst/bouncekeys/pkg/config"
	"github.com/offlinefirst/bouncekeys/pkg/events"
	"github.com/offlinefirst/bouncekeys/pkg/permissions"
)

func stubDoctorProbes(t *testing.T, env events.Environment, probes []permissions.ProbeResult) {
	t.Helper()
	origEnv, origProbes := detectEnvironment, probePermissions
	detectEnvironment = func() events.Environment { return env }
	probePermissions = func() []permissions.ProbeResult { return probes }
	t.Cleanup(func() {
		detectEnvironment = origEnv
		probePermissions = origProbes
	})
}

func newDoctorFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	newDoctorCommand().configure(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestDoctorReportsEnvironment(t *testing.T) {
	stubDoctorProbes(t,
		events.Environment{Provider: events.ProviderQuartz, Available: true, Permission: "granted"},
		[]permissions.ProbeResult{{Name: "accessibility", Status: "granted"}},
	)
	cfg := config.Default()
	cfg.Metrics.Addr = "127.0.0.1:9102"
	ctx := &AppContext{Config: cfg, Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runDoctor(newDoctorFlags(t, "-strict"), nil, ctx, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{
		"Configuration: <defaults>",
		"provider=quartz_event_tap available=true permission=granted",
		"- accessibility: granted",
		"Filter: window=50ms",
		"Notification sinks: jsonl",
		"Metrics: http://127.0.0.1:9102/metrics",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in doctor output, got %q", want, out)
		}
	}
}

func TestDoctorStrictFailsWithoutLiveTap(t *testing.T) {
	stubDoctorProbes(t,
		events.Environment{Provider: events.ProviderSynthetic, Available: true, Permission: "not_applicable"},
		[]permissions.ProbeResult{{Name: "accessibility", Status: "denied", Guidance: "grant access"}},
	)
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runDoctor(newDoctorFlags(t), nil, ctx, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("non-strict doctor must not fail: %v", err)
	}
	if !strings.Contains(stdout.String(), "hint: grant access") {
		t.Fatalf("expected guidance in output, got %q", stdout.String())
	}

	if err := runDoctor(newDoctorFlags(t, "-strict"), nil, ctx, &bytes.Buffer{}, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected strict doctor to fail when a permission is blocking")
	}
}
