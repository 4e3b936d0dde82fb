package events

import (
	"runtime"

	"github.com/offlinefirst/bouncekeys/pkg/permissions"
)

// Environment summarises event tap backend support.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

// Providers reported by DetectEnvironment.
const (
	ProviderQuartz    = "quartz_event_tap"
	ProviderSynthetic = "synthetic"
)

// DetectEnvironment reports whether the default source can filter live keys.
func DetectEnvironment() Environment {
	return detectEnvironment(runtime.GOOS, permissions.DefaultLookupEnv)
}

func detectEnvironment(goos string, lookup permissions.LookupEnvFunc) Environment {
	accessibility := permissions.ProbeAccessibility(lookup)
	env := Environment{
		Provider:   ProviderSynthetic,
		Permission: accessibility.StatusString(),
		Message:    accessibility.Message,
		Guidance:   accessibility.Guidance,
		Available:  true,
	}

	if goos == "darwin" {
		env.Provider = ProviderQuartz
		env.Available = !accessibility.Blocking()
		if !env.Available && env.Message == "" {
			env.Message = "accessibility permission missing"
		}
	} else {
		env.Permission = "not_applicable"
		env.Message = "synthetic key timeline; live filtering requires macOS"
		env.Guidance = ""
	}

	if !env.Available {
		env.Provider = ProviderSynthetic
	}
	return env
}
