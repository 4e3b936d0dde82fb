// Package notify delivers bounce-keys:blocked notifications to log output,
// JSONL files and message brokers.
package notify

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
)

// Message is the wire form of a block notification.
type Message struct {
	Type    string    `json:"type"`
	Detail  Detail    `json:"detail"`
	Target  string    `json:"target,omitempty"`
	Session string    `json:"session,omitempty"`
	At      time.Time `json:"at"`
}

// Detail carries the notification payload.
type Detail struct {
	Code string `json:"code"`
}

// Envelope stamps notifications with a session id and wall-clock time.
type Envelope struct {
	Session string
	Clock   func() time.Time
}

// NewSessionID returns a random identifier for a filtering session.
func NewSessionID() string {
	return uuid.NewString()
}

// Wrap builds the message for a blocked press.
func (e Envelope) Wrap(target string, event bounce.BlockedEvent) Message {
	clock := e.Clock
	if clock == nil {
		clock = time.Now
	}
	return Message{
		Type:    event.Name,
		Detail:  Detail{Code: event.Code},
		Target:  target,
		Session: e.Session,
		At:      clock().UTC(),
	}
}

// Encode marshals the message for a blocked press.
func (e Envelope) Encode(target string, event bounce.BlockedEvent) ([]byte, error) {
	return json.Marshal(e.Wrap(target, event))
}
