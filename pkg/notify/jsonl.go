package notify

import (
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
)

// JSONL appends one Message per line to a writer.
type JSONL struct {
	mu       sync.Mutex
	encoder  *json.Encoder
	envelope Envelope
	logger   *zap.Logger
	written  int
}

// NewJSONL returns a sink encoding to w.
func NewJSONL(w io.Writer, envelope Envelope, logger *zap.Logger) *JSONL {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	return &JSONL{
		encoder:  encoder,
		envelope: envelope,
		logger:   logger.With(zap.String("component", "notify-jsonl")),
	}
}

// Notify implements bounce.Notifier. Write failures are logged.
func (j *JSONL) Notify(target string, event bounce.BlockedEvent) {
	msg := j.envelope.Wrap(target, event)

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.encoder.Encode(msg); err != nil {
		j.logger.Warn("write block notification", zap.Error(err))
		return
	}
	j.written++
}

// Written reports how many notifications were encoded.
func (j *JSONL) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}
