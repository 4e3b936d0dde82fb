// Package permissions reports the macOS privacy approvals a filtering event
// tap depends on. Real TCC state cannot be read without prompting, so probes
// combine platform defaults with BOUNCEKEYS_* environment overrides.
package permissions

import (
	"os"
	"runtime"
	"strings"
)

// Status enumerates coarse permission results for macOS-style prompts.
type Status string

const (
	// StatusUnknown indicates no explicit signal about permission state.
	StatusUnknown Status = "unknown"
	// StatusGranted signals that permission was previously granted.
	StatusGranted Status = "granted"
	// StatusDenied indicates the user has explicitly denied access.
	StatusDenied Status = "denied"
	// StatusPromptRequired means the platform will prompt at runtime.
	StatusPromptRequired Status = "prompt"
	// StatusUnavailable reports that the capability is not supported.
	StatusUnavailable Status = "unavailable"
)

// Environment variables that override probe results.
const (
	EnvAccessibility   = "BOUNCEKEYS_ACCESSIBILITY"
	EnvInputMonitoring = "BOUNCEKEYS_INPUT_MONITORING"
)

// ProbeResult represents the coarse state for a permission surface.
type ProbeResult struct {
	Name     string
	Status   Status
	Message  string
	Guidance string
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// DefaultLookupEnv is the standard environment resolver.
func DefaultLookupEnv(key string) (string, bool) {
	return lookupEnv(key)
}

var lookupEnv = os.LookupEnv

// ProbeAccessibility reports whether the process may install an event tap
// that modifies or drops keyboard events.
func ProbeAccessibility(lookup LookupEnvFunc) ProbeResult {
	return probe(lookup, "accessibility", EnvAccessibility, "accessibility trust required to drop key events")
}

// ProbeInputMonitoring reports whether the process may observe keystrokes
// delivered to other applications.
func ProbeInputMonitoring(lookup LookupEnvFunc) ProbeResult {
	return probe(lookup, "input monitoring", EnvInputMonitoring, "input monitoring will prompt when the tap starts")
}

// ProbeAll runs every probe the key filter depends on, in a stable order.
func ProbeAll(lookup LookupEnvFunc) []ProbeResult {
	return []ProbeResult{
		ProbeAccessibility(lookup),
		ProbeInputMonitoring(lookup),
	}
}

func probe(lookup LookupEnvFunc, name, envKey, darwinMessage string) ProbeResult {
	if lookup == nil {
		lookup = lookupEnv
	}
	if value, ok := lookup(envKey); ok {
		res := interpretPermissionFlag(name, value)
		res.Name = name
		return res
	}
	if runtime.GOOS == "darwin" {
		return ProbeResult{
			Name:     name,
			Status:   StatusPromptRequired,
			Message:  darwinMessage,
			Guidance: "System Settings > Privacy & Security > " + titleCase(name),
		}
	}
	return ProbeResult{Name: name, Status: StatusUnavailable, Message: name + " prompts unavailable on " + runtime.GOOS}
}

func interpretPermissionFlag(name, value string) ProbeResult {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "granted", "allow", "allowed", "yes", "true":
		return ProbeResult{Status: StatusGranted, Message: name + " permission pre-authorised via env override"}
	case "denied", "no", "false", "blocked":
		return ProbeResult{Status: StatusDenied, Message: name + " permission denied via env override", Guidance: "use 'tccutil reset' or update BOUNCEKEYS_* env to re-test"}
	case "prompt", "ask":
		return ProbeResult{Status: StatusPromptRequired, Message: name + " permission will prompt at runtime"}
	case "unavailable", "unsupported":
		return ProbeResult{Status: StatusUnavailable, Message: name + " permission unavailable on this platform"}
	default:
		return ProbeResult{Status: StatusUnknown, Message: name + " permission state unknown"}
	}
}

func titleCase(name string) string {
	words := strings.Fields(name)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// StatusString returns the string representation for manifest integration.
func (p ProbeResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}

// Blocking reports whether the result rules out running the filtering tap.
func (p ProbeResult) Blocking() bool {
	return p.Status == StatusDenied
}
