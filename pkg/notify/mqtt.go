package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
	"github.com/offlinefirst/bouncekeys/pkg/config"
)

// TopicPublisher is the subset of mqtt.Client the sink needs.
type TopicPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes each notification to "<topic>/<target>".
type MQTT struct {
	pub      TopicPublisher
	topic    string
	qos      byte
	envelope Envelope
	logger   *zap.Logger

	mu       sync.Mutex
	inflight int
	idle     chan struct{}
}

// NewMQTT returns a sink publishing through pub.
func NewMQTT(pub TopicPublisher, topic string, qos byte, envelope Envelope, logger *zap.Logger) *MQTT {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTT{
		pub:      pub,
		topic:    strings.TrimSuffix(topic, "/"),
		qos:      qos,
		envelope: envelope,
		logger:   logger.With(zap.String("component", "notify-mqtt")),
	}
}

// Notify implements bounce.Notifier. Delivery is confirmed asynchronously.
func (m *MQTT) Notify(target string, event bounce.BlockedEvent) {
	data, err := m.envelope.Encode(target, event)
	if err != nil {
		m.logger.Warn("encode block notification", zap.Error(err))
		return
	}
	topic := m.topic + "/" + topicLevel(target)
	token := m.pub.Publish(topic, m.qos, false, data)

	m.begin()
	go func() {
		defer m.end()
		<-token.Done()
		if err := token.Error(); err != nil {
			m.logger.Warn("publish block notification", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func (m *MQTT) begin() {
	m.mu.Lock()
	if m.inflight == 0 {
		m.idle = make(chan struct{})
	}
	m.inflight++
	m.mu.Unlock()
}

func (m *MQTT) end() {
	m.mu.Lock()
	m.inflight--
	if m.inflight == 0 {
		close(m.idle)
	}
	m.mu.Unlock()
}

// Flush waits for outstanding publishes to complete or timeout to pass.
func (m *MQTT) Flush(timeout time.Duration) bool {
	m.mu.Lock()
	if m.inflight == 0 {
		m.mu.Unlock()
		return true
	}
	idle := m.idle
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	}
}

func topicLevel(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, target)
}

// newMQTTClient is swapped in tests.
var newMQTTClient = mqtt.NewClient

// ConnectMQTT dials the configured broker, retrying with exponential backoff
// until timeout elapses or ctx is cancelled.
func ConnectMQTT(ctx context.Context, cfg config.MQTTConfig, timeout time.Duration, logger *zap.Logger) (mqtt.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mqtt-client"))

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("lost MQTT connection", zap.Error(err))
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = timeout

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = newMQTTClient(opts)
		token := client.Connect()
		if !token.WaitTimeout(timeout) {
			client.Disconnect(0)
			return errors.New("connect timed out")
		}
		if err := token.Error(); err != nil {
			client.Disconnect(0)
			logger.Warn("connect to MQTT broker", zap.String("broker", cfg.Broker), zap.Error(err))
			return err
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("connect to MQTT broker at %s: %w", cfg.Broker, err)
	}

	logger.Info("connected to MQTT broker", zap.String("broker", cfg.Broker))
	return client, nil
}
