package cmd

import (
	"bytes"
	"flag"
	"strings"
	"testing"

	"github.com/offlinefirst/bouncekeys/pkg/config"
)

const chatteringInput = `{"timestamp":"2024-05-12T09:30:00.000Z","category":"keyboard","action":"press","target":"editor","code":"KeyA"}
{"timestamp":"2024-05-12T09:30:00.010Z","category":"keyboard","action":"press","target":"editor","code":"KeyA"}

{"timestamp":"2024-05-12T09:30:00.020Z","category":"mouse","action":"press","target":"editor","code":"left"}
{"timestamp":"2024-05-12T09:30:00.030Z","category":"keyboard","action":"press","target":"editor","code":"KeyB"}
{"timestamp":"2024-05-12T09:30:00.060Z","category":"keyboard","action":"press","target":"editor","code":"KeyB"}
`

func swapStdin(t *testing.T, input string) {
	t.Helper()
	orig := stdin
	stdin = strings.NewReader(input)
	t.Cleanup(func() { stdin = orig })
}

func newFilterFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	newFilterCommand().configure(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func outputCodes(t *testing.T, out string) []string {
	t.Helper()
	var codes []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		start := strings.Index(line, `"code":"`)
		if start < 0 {
			t.Fatalf("line without code: %q", line)
		}
		rest := line[start+len(`"code":"`):]
		codes = append(codes, rest[:strings.Index(rest, `"`)])
	}
	return codes
}

func TestFilterCommandSuppressesBounces(t *testing.T) {
	swapStdin(t, chatteringInput)
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var stdout, stderr bytes.Buffer
	if err := runFilter(newFilterFlags(t), nil, ctx, &stdout, &stderr); err != nil {
		t.Fatalf("runFilter returned error: %v", err)
	}

	got := strings.Join(outputCodes(t, stdout.String()), ",")
	if got != "KeyA,left,KeyB" {
		t.Fatalf("unexpected filtered stream %q", got)
	}
	if !strings.Contains(stderr.String(), "3 events written, 2 suppressed") {
		t.Fatalf("unexpected stderr summary %q", stderr.String())
	}
}

func TestFilterCommandFlagsOverrideConfig(t *testing.T) {
	swapStdin(t, chatteringInput)
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var stdout, stderr bytes.Buffer
	if err := runFilter(newFilterFlags(t, "-window", "5ms", "-ignore", "KeyB"), nil, ctx, &stdout, &stderr); err != nil {
		t.Fatalf("runFilter returned error: %v", err)
	}

	got := strings.Join(outputCodes(t, stdout.String()), ",")
	if got != "KeyA,KeyA,left,KeyB,KeyB" {
		t.Fatalf("unexpected filtered stream %q", got)
	}
}

func TestFilterCommandRepeatOnly(t *testing.T) {
	input := `{"timestamp":"2024-05-12T09:30:00.000Z","category":"keyboard","action":"press","code":"KeyA"}
{"timestamp":"2024-05-12T09:30:00.010Z","category":"keyboard","action":"press","code":"KeyB"}
{"timestamp":"2024-05-12T09:30:00.020Z","category":"keyboard","action":"press","code":"KeyB"}
`
	swapStdin(t, input)
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var stdout bytes.Buffer
	if err := runFilter(newFilterFlags(t, "-repeat-only"), nil, ctx, &stdout, &bytes.Buffer{}); err != nil {
		t.Fatalf("runFilter returned error: %v", err)
	}

	got := strings.Join(outputCodes(t, stdout.String()), ",")
	if got != "KeyA,KeyB" {
		t.Fatalf("unexpected filtered stream %q", got)
	}
}

func TestFilterCommandRejectsMalformedInput(t *testing.T) {
	swapStdin(t, "{not json}\n")
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	err := runFilter(newFilterFlags(t), nil, ctx, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Fatalf("expected decode error naming the line, got %v", err)
	}
}

func TestFilterCommandDebouncesUnidentifiedKeys(t *testing.T) {
	input := `{"timestamp":"2024-05-12T09:30:00.000Z","category":"keyboard","action":"press"}
{"timestamp":"2024-05-12T09:30:00.010Z","category":"keyboard","action":"press"}
`
	swapStdin(t, input)
	ctx := &AppContext{Config: config.Default(), Logger: newTestLogger()}

	var stdout, stderr bytes.Buffer
	if err := runFilter(newFilterFlags(t), nil, ctx, &stdout, &stderr); err != nil {
		t.Fatalf("runFilter returned error: %v", err)
	}
	if lines := strings.Count(stdout.String(), "\n"); lines != 1 {
		t.Fatalf("expected one surviving press, got %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "1 events written, 1 suppressed") {
		t.Fatalf("unexpected stderr summary %q", stderr.String())
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" Backspace, ,Enter,")
	if len(got) != 2 || got[0] != "Backspace" || got[1] != "Enter" {
		t.Fatalf("unexpected split result %v", got)
	}
	if splitList("") != nil {
		t.Fatalf("expected nil for empty list")
	}
}
