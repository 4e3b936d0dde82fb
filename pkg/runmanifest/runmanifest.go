// Package runmanifest lays out a filtering session on disk and records what
// happened in it.
package runmanifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/offlinefirst/bouncekeys/pkg/config"
)

// SchemaVersion captures the manifest version for compatibility checks.
const SchemaVersion = 1

// Layout represents the absolute filesystem locations for a run.
type Layout struct {
	Root           string
	ManifestPath   string
	SessionLogPath string
	EventsDir      string
	BlockedPath    string
}

// Paths holds the relative locations stored in the manifest for portability.
type Paths struct {
	Root       string `json:"root"`
	Manifest   string `json:"manifest"`
	SessionLog string `json:"session_log"`
	Events     string `json:"events"`
	Blocked    string `json:"blocked"`
}

// FilterSettings records the debounce configuration the run started with.
type FilterSettings struct {
	BounceWindow    string   `json:"bounce_window"`
	BounceWindowMS  int64    `json:"bounce_window_ms"`
	RepeatOnly      bool     `json:"repeat_only"`
	IgnoredKeys     []string `json:"ignored_keys,omitempty"`
	EmitBlockEvents bool     `json:"emit_block_events"`
	PerTarget       bool     `json:"per_target"`
}

// InputSettings records where events came from.
type InputSettings struct {
	Source string   `json:"source"`
	Path   string   `json:"path,omitempty"`
	Apps   []string `json:"apps,omitempty"`
	Sinks  []string `json:"sinks,omitempty"`
}

// Status summarises the lifecycle of a filtering run.
type Status struct {
	State       string                    `json:"state"`
	Summary     string                    `json:"summary,omitempty"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	EndedAt     *time.Time                `json:"ended_at,omitempty"`
	Termination string                    `json:"termination,omitempty"`
	Controller  []ControllerTimelineEntry `json:"controller_timeline,omitempty"`
	Source      *SourceStatus             `json:"source,omitempty"`
	Counts      *Counts                   `json:"counts,omitempty"`
}

// ControllerTimelineEntry records controller state transitions for diagnostics.
type ControllerTimelineEntry struct {
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SourceStatus captures availability details for the event source.
type SourceStatus struct {
	Provider   string `json:"provider"`
	Available  bool   `json:"available"`
	Permission string `json:"permission,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Counts tallies what the filter did over the run.
type Counts struct {
	Events      int `json:"events"`
	Suppressed  int `json:"suppressed"`
	Passthrough int `json:"passthrough"`
	Keys        int `json:"keys"`
	Reloads     int `json:"reloads"`
}

// Run states recorded in manifests.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
	StateFailed    = "failed"
)

// Manifest is the durable metadata describing a filtering run.
type Manifest struct {
	SchemaVersion int            `json:"schema_version"`
	RunID         string         `json:"run_id"`
	SessionID     string         `json:"session_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Hostname      string         `json:"hostname"`
	AppVersion    string         `json:"app_version"`
	ConfigSource  string         `json:"config_source"`
	Filter        FilterSettings `json:"filter"`
	Input         InputSettings  `json:"input"`
	Paths         Paths          `json:"paths"`
	Status        Status         `json:"status"`
}

// Options captures the knobs for creating a new manifest.
type Options struct {
	RunID      string
	SessionID  string
	CreatedAt  time.Time
	Hostname   string
	AppVersion string
	Config     config.Config
	Layout     Layout
}

// New constructs a manifest using the supplied options.
func New(opts Options) Manifest {
	return Manifest{
		SchemaVersion: SchemaVersion,
		RunID:         opts.RunID,
		SessionID:     opts.SessionID,
		CreatedAt:     opts.CreatedAt.UTC(),
		Hostname:      opts.Hostname,
		AppVersion:    opts.AppVersion,
		ConfigSource:  opts.Config.Source,
		Filter:        FilterSettingsFrom(opts.Config.Filter),
		Input: InputSettings{
			Source: opts.Config.Input.Source,
			Path:   opts.Config.Input.Path,
			Apps:   opts.Config.Input.Apps,
			Sinks:  opts.Config.Notify.Sinks,
		},
		Paths:  opts.Layout.RelativePaths(),
		Status: Status{State: StatePending},
	}
}

// FilterSettingsFrom converts filter configuration into its manifest form.
func FilterSettingsFrom(cfg config.FilterConfig) FilterSettings {
	return FilterSettings{
		BounceWindow:    cfg.BounceWindow.String(),
		BounceWindowMS:  cfg.BounceWindow.Milliseconds(),
		RepeatOnly:      cfg.RepeatOnly,
		IgnoredKeys:     cfg.IgnoredKeys,
		EmitBlockEvents: cfg.EmitBlockEvents,
		PerTarget:       cfg.PerTarget,
	}
}

// BuildLayout creates an absolute filesystem layout for a run.
func BuildLayout(runsDir, runID string) Layout {
	root := filepath.Join(runsDir, runID)
	events := filepath.Join(root, "events")
	return Layout{
		Root:           root,
		ManifestPath:   filepath.Join(root, "manifest.json"),
		SessionLogPath: filepath.Join(root, "session.log"),
		EventsDir:      events,
		BlockedPath:    filepath.Join(events, "blocked.jsonl"),
	}
}

// RelativePaths exposes the manifest-friendly relative paths for the layout.
func (l Layout) RelativePaths() Paths {
	rel := func(path string) string {
		out, err := filepath.Rel(l.Root, path)
		if err != nil {
			return filepath.Base(path)
		}
		return filepath.ToSlash(out)
	}
	return Paths{
		Root:       ".",
		Manifest:   rel(l.ManifestPath),
		SessionLog: rel(l.SessionLogPath),
		Events:     rel(l.EventsDir),
		Blocked:    rel(l.BlockedPath),
	}
}

// EnsureFilesystem prepares the directory tree for a run layout.
func EnsureFilesystem(layout Layout) error {
	if err := os.MkdirAll(layout.Root, 0o755); err != nil {
		return fmt.Errorf("create run root: %w", err)
	}
	if err := os.MkdirAll(layout.EventsDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", layout.EventsDir, err)
	}

	file, err := os.OpenFile(layout.SessionLogPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("initialise session log: %w", err)
	}
	defer file.Close()

	return nil
}

// Save writes the manifest JSON to disk with indentation for readability.
func Save(man Manifest, path string) error {
	data, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Load reads a manifest JSON file from disk.
func Load(path string) (Manifest, error) {
	var man Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return man, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &man); err != nil {
		return man, fmt.Errorf("decode manifest: %w", err)
	}
	return man, nil
}

// ResolveRunID chooses a run identifier derived from the timestamp and avoids collisions.
func ResolveRunID(runsDir string, now time.Time) (string, error) {
	if strings.TrimSpace(runsDir) == "" {
		return "", errors.New("runs directory must not be empty")
	}

	base := now.UTC().Format("20060102_150405")
	candidate := base
	for suffix := 1; ; suffix++ {
		_, err := os.Stat(filepath.Join(runsDir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("inspect runs directory: %w", err)
		}
		candidate = fmt.Sprintf("%s_%02d", base, suffix)
	}
}
