package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
	"github.com/offlinefirst/bouncekeys/pkg/config"
)

// Deps supplies what Build cannot derive from configuration.
type Deps struct {
	Logger   *zap.Logger
	Envelope Envelope
	// Blocked receives the jsonl sink's output. Required when that sink is enabled.
	Blocked io.Writer
}

// Sinks is the set of notifiers built from configuration.
type Sinks struct {
	Notifier bounce.Notifier
	Names    []string
	closers  []func()
}

// Close flushes and disconnects broker sinks in reverse order of creation.
func (s *Sinks) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Build constructs every configured sink. On failure, sinks created so far are closed.
func Build(ctx context.Context, cfg config.NotifyConfig, deps Deps) (*Sinks, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sinks := &Sinks{}
	var multi Multi
	for _, name := range cfg.Sinks {
		switch name {
		case config.SinkLog:
			multi = append(multi, NewLog(logger))
		case config.SinkJSONL:
			if deps.Blocked == nil {
				sinks.Close()
				return nil, errors.New("jsonl sink requires a destination writer")
			}
			multi = append(multi, NewJSONL(deps.Blocked, deps.Envelope, logger))
		case config.SinkNATS:
			conn, err := ConnectNATS(ctx, cfg.NATS, cfg.ConnectTimeout, logger)
			if err != nil {
				sinks.Close()
				return nil, err
			}
			multi = append(multi, NewNATS(conn, cfg.NATS.Subject, deps.Envelope, logger))
			sinks.closers = append(sinks.closers, func() {
				if err := conn.Drain(); err != nil {
					logger.Warn("drain NATS connection", zap.Error(err))
					conn.Close()
				}
			})
		case config.SinkMQTT:
			client, err := ConnectMQTT(ctx, cfg.MQTT, cfg.ConnectTimeout, logger)
			if err != nil {
				sinks.Close()
				return nil, err
			}
			sink := NewMQTT(client, cfg.MQTT.Topic, byte(cfg.MQTT.QoS), deps.Envelope, logger)
			multi = append(multi, sink)
			sinks.closers = append(sinks.closers, func() {
				if !sink.Flush(5 * time.Second) {
					logger.Warn("timed out flushing MQTT notifications")
				}
				client.Disconnect(250)
			})
		default:
			sinks.Close()
			return nil, fmt.Errorf("unknown notification sink %q", name)
		}
		sinks.Names = append(sinks.Names, name)
	}

	if len(multi) == 1 {
		sinks.Notifier = multi[0]
	} else {
		sinks.Notifier = multi
	}
	return sinks, nil
}
