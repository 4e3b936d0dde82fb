package events

import "strings"

// Scope limits debouncing to key presses from an allow-list of applications.
// The zero value covers all events.
type Scope struct {
	apps        map[string]struct{}
	dropUnknown bool
}

// NewScope constructs an allow-list scope. When dropUnknown is set, presses
// that carry no application are left out of the scope and pass through.
func NewScope(apps []string, dropUnknown bool) Scope {
	scope := Scope{
		apps:        make(map[string]struct{}, len(apps)),
		dropUnknown: dropUnknown,
	}

	for _, app := range apps {
		trimmed := strings.TrimSpace(app)
		if trimmed == "" {
			continue
		}
		scope.apps[strings.ToLower(trimmed)] = struct{}{}
	}

	return scope
}

// Covers reports whether the event should go through the gate.
func (s Scope) Covers(event Event) bool {
	if len(s.apps) == 0 {
		return true
	}

	app := strings.ToLower(strings.TrimSpace(event.App()))
	if app == "" {
		app = strings.ToLower(strings.TrimSpace(event.Target))
	}
	if app == "" {
		return !s.dropUnknown
	}

	_, ok := s.apps[app]
	return ok
}
