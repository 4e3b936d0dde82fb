package bounce

import "fmt"

// Set keeps an independent Filter per target, created on first use from
// shared options. Filters in a set never share timing memory.
type Set struct {
	opts    Options
	filters map[string]*Filter
}

// NewSet validates opts once so that lazily created filters cannot fail.
func NewSet(opts Options) (*Set, error) {
	if _, err := New(opts); err != nil {
		return nil, err
	}
	return &Set{opts: opts, filters: make(map[string]*Filter)}, nil
}

// Process routes press to the filter owning press.Target. A press without a
// code is rejected before any filter is created.
func (s *Set) Process(press KeyPress) (Decision, error) {
	if press.Code == "" {
		return Allow, fmt.Errorf("%w: missing key code", ErrInvalidSignal)
	}
	filter, ok := s.filters[press.Target]
	if !ok {
		var err error
		filter, err = New(s.opts)
		if err != nil {
			return Allow, fmt.Errorf("create filter for target %q: %w", press.Target, err)
		}
		s.filters[press.Target] = filter
	}
	return filter.Process(press)
}

// Len reports how many targets have a filter.
func (s *Set) Len() int {
	return len(s.filters)
}

// Processor is satisfied by Filter and Set.
type Processor interface {
	Process(press KeyPress) (Decision, error)
}

var (
	_ Processor = (*Filter)(nil)
	_ Processor = (*Set)(nil)
)
