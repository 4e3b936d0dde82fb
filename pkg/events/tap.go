package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// File names written by Capture.
const (
	KeysFileName    = "keys.jsonl"
	SummaryFileName = "summary.json"
)

// Gate decides the fate of a key press. Handle calls PreventDefault on events
// that must not reach the focused application.
type Gate interface {
	Handle(event *Event) error
}

// GateFunc adapts a function literal to the Gate interface.
type GateFunc func(event *Event) error

// Handle calls the underlying function.
func (f GateFunc) Handle(event *Event) error {
	return f(event)
}

// Options controls tap behaviour.
type Options struct {
	Gate   Gate
	Scope  Scope
	Clock  func() time.Time
	Source EventSource
}

// Tap routes events from a source through a gate and records what survives.
type Tap struct {
	gate   Gate
	scope  Scope
	clock  func() time.Time
	source EventSource
}

// Result reports what a tap session produced. AllowedPath and SummaryPath are
// empty when the tap streamed to a writer.
type Result struct {
	AllowedPath      string
	SummaryPath      string
	EventCount       int
	SuppressedCount  int
	PassthroughCount int
	KeyCount         int
	CaptureStart     time.Time
	CaptureEnd       time.Time
}

// KeySummary aggregates gate decisions for one key code.
type KeySummary struct {
	Code       string `json:"code"`
	Presses    int    `json:"presses"`
	Suppressed int    `json:"suppressed"`
}

// NewTap validates options and constructs a tap instance.
func NewTap(opts Options) (*Tap, error) {
	if opts.Gate == nil {
		return nil, errors.New("gate must not be nil")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	source := opts.Source
	if source == nil {
		source = defaultEventSource(clock)
	}
	return &Tap{
		gate:   opts.Gate,
		scope:  opts.Scope,
		clock:  clock,
		source: source,
	}, nil
}

// Capture streams events through the gate, persists the surviving events and
// a per-key summary under destDir, and returns metadata. A live source only
// ends through cancellation, so the partial result and summary are still
// produced alongside the context error.
func (t *Tap) Capture(ctx context.Context, destDir string) (Result, error) {
	if destDir == "" {
		return Result{}, errors.New("destination directory must not be empty")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("ensure destination: %w", err)
	}

	keysPath := filepath.Join(destDir, KeysFileName)
	summaryPath := filepath.Join(destDir, SummaryFileName)

	keysFile, err := os.OpenFile(keysPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Result{}, fmt.Errorf("create keys file: %w", err)
	}
	defer keysFile.Close()

	result, keys, streamErr := t.run(ctx, keysFile)

	if err := keysFile.Close(); err != nil {
		return Result{}, fmt.Errorf("close keys file: %w", err)
	}
	if streamErr != nil && !isCancellation(streamErr) {
		return Result{}, streamErr
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("marshal key summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write key summary: %w", err)
	}

	result.AllowedPath = keysPath
	result.SummaryPath = summaryPath
	return result, streamErr
}

// Filter streams surviving events to w as newline-delimited JSON. Like
// Capture, it returns the partial result when ctx is cancelled.
func (t *Tap) Filter(ctx context.Context, w io.Writer) (Result, error) {
	if w == nil {
		return Result{}, errors.New("writer must not be nil")
	}
	result, _, err := t.run(ctx, w)
	if err != nil && !isCancellation(err) {
		return Result{}, err
	}
	return result, err
}

func (t *Tap) run(ctx context.Context, w io.Writer) (Result, []KeySummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := t.clock().UTC()
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)

	var (
		result      Result
		firstEvent  time.Time
		lastAllowed time.Time
		perKey      = make(map[string]*KeySummary)
	)

	streamErr := t.source.Stream(ctx, func(event *Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if firstEvent.IsZero() {
			firstEvent = event.Timestamp
		}

		if event.IsKeyPress() && t.scope.Covers(*event) {
			if err := t.gate.Handle(event); err != nil {
				return fmt.Errorf("gate key press: %w", err)
			}
			code := event.KeyCode()
			summary := perKey[code]
			if summary == nil {
				summary = &KeySummary{Code: code}
				perKey[code] = summary
			}
			summary.Presses++
			if event.DefaultPrevented() {
				summary.Suppressed++
			}
		} else {
			result.PassthroughCount++
		}

		if event.DefaultPrevented() {
			result.SuppressedCount++
			return nil
		}

		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		result.EventCount++
		lastAllowed = event.Timestamp
		return nil
	})

	if streamErr != nil && !isCancellation(streamErr) {
		return Result{}, nil, fmt.Errorf("stream events: %w", streamErr)
	}

	keys := make([]KeySummary, 0, len(perKey))
	for _, summary := range perKey {
		keys = append(keys, *summary)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].Code < keys[j].Code
	})

	result.KeyCount = len(keys)
	result.CaptureStart = start
	if !firstEvent.IsZero() {
		result.CaptureStart = firstEvent
	}
	result.CaptureEnd = result.CaptureStart
	if result.EventCount > 0 && !lastAllowed.IsZero() {
		result.CaptureEnd = lastAllowed
	}
	return result, keys, streamErr
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
