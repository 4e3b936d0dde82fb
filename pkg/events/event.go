package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Event categories and actions understood by the pipeline.
const (
	CategoryKeyboard = "keyboard"
	CategoryMouse    = "mouse"

	ActionPress   = "press"
	ActionRelease = "release"
)

// Event describes a single interaction sample.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Category  string            `json:"category"`
	Action    string            `json:"action"`
	Target    string            `json:"target,omitempty"`
	Code      string            `json:"code,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	prevented bool
}

// IsKeyPress reports whether the event is a key-down.
func (e Event) IsKeyPress() bool {
	return e.Category == CategoryKeyboard && e.Action == ActionPress
}

// UnidentifiedCode names a key press whose source could not identify the key.
const UnidentifiedCode = "Unidentified"

// KeyCode returns Code, or UnidentifiedCode for a keyboard event without one.
func (e Event) KeyCode() string {
	if e.Code == "" && e.Category == CategoryKeyboard {
		return UnidentifiedCode
	}
	return e.Code
}

// App returns the originating application recorded in metadata, if any.
func (e Event) App() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata["app"]
}

// PreventDefault asks the source to cancel the event. Sources that can drop
// events do so; recordings simply omit it from the filtered output.
func (e *Event) PreventDefault() {
	e.prevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e.prevented
}

// EventSource emits interaction events in the order they occurred. After emit
// returns, the source honours DefaultPrevented where it is able to.
type EventSource interface {
	Stream(ctx context.Context, emit func(*Event) error) error
}

// EventSourceFunc adapts a function literal to the EventSource interface.
type EventSourceFunc func(ctx context.Context, emit func(*Event) error) error

// Stream calls the underlying function.
func (f EventSourceFunc) Stream(ctx context.Context, emit func(*Event) error) error {
	return f(ctx, emit)
}

type readerSource struct {
	r io.Reader
}

// NewReaderSource decodes newline-delimited JSON events from r. Blank lines are skipped.
func NewReaderSource(r io.Reader) EventSource {
	return readerSource{r: r}
}

func (s readerSource) Stream(ctx context.Context, emit func(*Event) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return fmt.Errorf("line %d: decode event: %w", lineNo, err)
		}
		if err := emit(&event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	return nil
}
