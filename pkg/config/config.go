package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is read from the working directory when no path is given.
const DefaultFileName = "bouncekeys.yaml"

// EnvPrefix namespaces every environment override, e.g. BOUNCEKEYS_FILTER_BOUNCE_WINDOW.
const EnvPrefix = "BOUNCEKEYS_"

// Input source identifiers.
const (
	SourceDefault   = "default"
	SourceSynthetic = "synthetic"
	SourceTap       = "tap"
	SourceFile      = "file"
	SourceStdin     = "stdin"
)

// Notification sink identifiers.
const (
	SinkLog   = "log"
	SinkJSONL = "jsonl"
	SinkNATS  = "nats"
	SinkMQTT  = "mqtt"
)

// Config captures the user-adjustable knobs for filtering sessions.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" envPrefix:"PATHS_"`
	Filter  FilterConfig  `yaml:"filter" envPrefix:"FILTER_"`
	Input   InputConfig   `yaml:"input" envPrefix:"INPUT_"`
	Notify  NotifyConfig  `yaml:"notify" envPrefix:"NOTIFY_"`
	Metrics MetricsConfig `yaml:"metrics" envPrefix:"METRICS_"`
	Logging LoggingConfig `yaml:"logging" envPrefix:"LOGGING_"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `yaml:"-"`
}

// PathsConfig controls filesystem locations used by the CLI.
type PathsConfig struct {
	RunsDir string `yaml:"runs_dir" env:"RUNS_DIR"`
}

// FilterConfig mirrors bounce.Options.
type FilterConfig struct {
	BounceWindow    time.Duration `yaml:"bounce_window" env:"BOUNCE_WINDOW"`
	RepeatOnly      bool          `yaml:"repeat_only" env:"REPEAT_ONLY"`
	IgnoredKeys     []string      `yaml:"ignored_keys" env:"IGNORED_KEYS" envSeparator:","`
	EmitBlockEvents bool          `yaml:"emit_block_events" env:"EMIT_BLOCK_EVENTS"`
	// PerTarget keeps an independent filter for every originating target.
	PerTarget bool `yaml:"per_target" env:"PER_TARGET"`
}

// InputConfig selects where key events come from and which of them are debounced.
type InputConfig struct {
	Source      string   `yaml:"source" env:"SOURCE"`
	Path        string   `yaml:"path" env:"PATH"`
	Apps        []string `yaml:"apps" env:"APPS" envSeparator:","`
	DropUnknown bool     `yaml:"drop_unknown" env:"DROP_UNKNOWN"`
}

// NotifyConfig lists the sinks that receive block notifications.
type NotifyConfig struct {
	Sinks          []string      `yaml:"sinks" env:"SINKS" envSeparator:","`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	NATS           NATSConfig    `yaml:"nats" envPrefix:"NATS_"`
	MQTT           MQTTConfig    `yaml:"mqtt" envPrefix:"MQTT_"`
}

// NATSConfig configures the NATS notification sink.
type NATSConfig struct {
	URL     string `yaml:"url" env:"URL"`
	Subject string `yaml:"subject" env:"SUBJECT"`
	Name    string `yaml:"name" env:"NAME"`
}

// MQTTConfig configures the MQTT notification sink.
type MQTTConfig struct {
	Broker   string `yaml:"broker" env:"BROKER"`
	Topic    string `yaml:"topic" env:"TOPIC"`
	ClientID string `yaml:"client_id" env:"CLIENT_ID"`
	QoS      int    `yaml:"qos" env:"QOS"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables serving.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// LoggingConfig defines log verbosity, formatting and optional rotated file output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	File   string `yaml:"file" env:"FILE"`
}

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			RunsDir: "runs",
		},
		Filter: FilterConfig{
			BounceWindow: 50 * time.Millisecond,
		},
		Input: InputConfig{
			Source: SourceDefault,
		},
		Notify: NotifyConfig{
			Sinks:          []string{SinkJSONL},
			ConnectTimeout: 10 * time.Second,
			NATS: NATSConfig{
				Subject: "bouncekeys.blocked",
				Name:    "bouncekeys",
			},
			MQTT: MQTTConfig{
				Topic:    "bouncekeys/blocked",
				ClientID: "bouncekeys",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Source: "<defaults>",
	}
}

// Load reads configuration from disk if present, otherwise returning defaults.
// When path is empty, the loader attempts to read ./bouncekeys.yaml but tolerates
// a missing file. Values from ./.env and BOUNCEKEYS_* environment variables are
// applied on top of the file.
func Load(path string) (Config, error) {
	cfg := Default()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	file, err := os.Open(candidate)
	switch {
	case err == nil:
		defer file.Close()
		if err := decodeYAML(file, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %q: %w", candidate, err)
		}
		cfg.Source = candidate
	case errors.Is(err, os.ErrNotExist):
		if explicit {
			return cfg, fmt.Errorf("config file %q not found", candidate)
		}
	default:
		return cfg, fmt.Errorf("open config file %q: %w", candidate, err)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("apply environment overrides: %w", err)
	}
	return nil
}

// Validate ensures essential configuration values are present and sensible.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Paths.RunsDir) == "" {
		return errors.New("paths.runs_dir must not be empty")
	}

	if c.Filter.BounceWindow < 0 {
		return fmt.Errorf("filter.bounce_window must not be negative (got %s)", c.Filter.BounceWindow)
	}

	switch c.Input.Source {
	case SourceDefault, SourceSynthetic, SourceTap, SourceStdin:
	case SourceFile:
		if strings.TrimSpace(c.Input.Path) == "" {
			return errors.New("input.path is required when input.source is file")
		}
	default:
		return fmt.Errorf("unsupported input.source %q", c.Input.Source)
	}

	for _, sink := range c.Notify.Sinks {
		switch sink {
		case SinkLog, SinkJSONL:
		case SinkNATS:
			if strings.TrimSpace(c.Notify.NATS.URL) == "" {
				return errors.New("notify.nats.url is required when the nats sink is enabled")
			}
			if strings.TrimSpace(c.Notify.NATS.Subject) == "" {
				return errors.New("notify.nats.subject must not be empty")
			}
		case SinkMQTT:
			if strings.TrimSpace(c.Notify.MQTT.Broker) == "" {
				return errors.New("notify.mqtt.broker is required when the mqtt sink is enabled")
			}
			if strings.TrimSpace(c.Notify.MQTT.Topic) == "" {
				return errors.New("notify.mqtt.topic must not be empty")
			}
			if c.Notify.MQTT.QoS < 0 || c.Notify.MQTT.QoS > 2 {
				return fmt.Errorf("notify.mqtt.qos must be 0, 1 or 2 (got %d)", c.Notify.MQTT.QoS)
			}
		default:
			return fmt.Errorf("unsupported notify sink %q", sink)
		}
	}
	if c.Notify.ConnectTimeout <= 0 {
		return errors.New("notify.connect_timeout must be positive")
	}

	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	return nil
}

// HasSink reports whether the named notification sink is enabled.
func (c Config) HasSink(name string) bool {
	for _, sink := range c.Notify.Sinks {
		if sink == name {
			return true
		}
	}
	return false
}

func (c *Config) normalize() {
	defaults := Default()

	c.Paths.RunsDir = filepath.Clean(strings.TrimSpace(c.Paths.RunsDir))
	if c.Paths.RunsDir == "." || c.Paths.RunsDir == "" {
		c.Paths.RunsDir = defaults.Paths.RunsDir
	}

	c.Filter.IgnoredKeys = cleanList(c.Filter.IgnoredKeys, false)

	c.Input.Source = strings.ToLower(strings.TrimSpace(c.Input.Source))
	if c.Input.Source == "" {
		c.Input.Source = defaults.Input.Source
	}
	c.Input.Path = strings.TrimSpace(c.Input.Path)
	c.Input.Apps = cleanList(c.Input.Apps, true)

	c.Notify.Sinks = cleanList(c.Notify.Sinks, true)
	if c.Notify.ConnectTimeout <= 0 {
		c.Notify.ConnectTimeout = defaults.Notify.ConnectTimeout
	}

	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.File = strings.TrimSpace(c.Logging.File)
}

// cleanList trims entries, drops blanks and duplicates, and optionally lowercases.
// Key codes are case sensitive, so callers pass lower=false for them.
func cleanList(values []string, lower bool) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if lower {
			trimmed = strings.ToLower(trimmed)
		}
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}
