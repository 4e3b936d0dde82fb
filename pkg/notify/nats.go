package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
	"github.com/offlinefirst/bouncekeys/pkg/config"
)

// SubjectPublisher is the subset of *nats.Conn the sink needs.
type SubjectPublisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes each notification to "<subject>.<target>".
type NATS struct {
	pub      SubjectPublisher
	subject  string
	envelope Envelope
	logger   *zap.Logger
}

// NewNATS returns a sink publishing through pub.
func NewNATS(pub SubjectPublisher, subject string, envelope Envelope, logger *zap.Logger) *NATS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATS{
		pub:      pub,
		subject:  strings.TrimSuffix(subject, "."),
		envelope: envelope,
		logger:   logger.With(zap.String("component", "notify-nats")),
	}
}

// Notify implements bounce.Notifier. Core NATS publishes are buffered by the
// client so this never waits on the network.
func (n *NATS) Notify(target string, event bounce.BlockedEvent) {
	data, err := n.envelope.Encode(target, event)
	if err != nil {
		n.logger.Warn("encode block notification", zap.Error(err))
		return
	}
	subject := n.subject + "." + subjectToken(target)
	if err := n.pub.Publish(subject, data); err != nil {
		n.logger.Warn("publish block notification", zap.String("subject", subject), zap.Error(err))
	}
}

// subjectToken turns a target into a single NATS subject token.
func subjectToken(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, target)
}

// ConnectNATS dials the configured server, retrying with exponential backoff
// until timeout elapses or ctx is cancelled.
func ConnectNATS(ctx context.Context, cfg config.NATSConfig, timeout time.Duration, logger *zap.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "nats-client"))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(timeout),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = timeout

	var conn *nats.Conn
	err := backoff.Retry(func() error {
		c, err := nats.Connect(cfg.URL, opts...)
		if err != nil {
			logger.Warn("connect to NATS", zap.String("url", cfg.URL), zap.Error(err))
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	logger.Info("connected to NATS",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("server_id", conn.ConnectedServerId()),
	)
	return conn, nil
}
