package events

import (
	"testing"

	"github.com/offlinefirst/bouncekeys/pkg/permissions"
)

func TestDetectEnvironmentSetsFields(t *testing.T) {
	env := DetectEnvironment()
	if env.Provider == "" {
		t.Fatalf("expected provider")
	}
	if env.Permission == "" {
		t.Fatalf("expected permission status")
	}
	if env.Message == "" {
		t.Fatalf("expected message")
	}
}

func TestDetectEnvironmentDarwinDenied(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == permissions.EnvAccessibility {
			return "denied", true
		}
		return "", false
	}
	env := detectEnvironment("darwin", lookup)
	if env.Available {
		t.Fatalf("expected tap to be unavailable when accessibility is denied")
	}
	if env.Provider != ProviderSynthetic {
		t.Fatalf("expected synthetic fallback, got %q", env.Provider)
	}
	if env.Permission != "denied" {
		t.Fatalf("unexpected permission %q", env.Permission)
	}
}

func TestDetectEnvironmentDarwinGranted(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key == permissions.EnvAccessibility {
			return "granted", true
		}
		return "", false
	}
	env := detectEnvironment("darwin", lookup)
	if !env.Available || env.Provider != ProviderQuartz {
		t.Fatalf("expected quartz provider, got %+v", env)
	}
}

func TestDetectEnvironmentOtherPlatforms(t *testing.T) {
	env := detectEnvironment("linux", func(string) (string, bool) { return "", false })
	if env.Provider != ProviderSynthetic || env.Permission != "not_applicable" {
		t.Fatalf("unexpected environment: %+v", env)
	}
}
