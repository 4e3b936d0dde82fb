package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
	"github.com/offlinefirst/bouncekeys/pkg/config"
	"github.com/offlinefirst/bouncekeys/pkg/events"
	"github.com/offlinefirst/bouncekeys/pkg/metrics"
)

func keyPress(offset time.Duration, code, target string) *events.Event {
	return &events.Event{
		Timestamp: base.Add(offset),
		Category:  events.CategoryKeyboard,
		Action:    events.ActionPress,
		Code:      code,
		Target:    target,
	}
}

func counterValue(t *testing.T, recorder *metrics.Recorder, name string) float64 {
	t.Helper()
	families, err := recorder.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestGateSuppressesBounce(t *testing.T) {
	recorder := metrics.New()
	gate, err := NewGate(config.FilterConfig{BounceWindow: 50 * time.Millisecond}, GateDeps{Metrics: recorder})
	require.NoError(t, err)

	first := keyPress(0, "KeyA", "editor")
	second := keyPress(20*time.Millisecond, "KeyA", "editor")
	third := keyPress(200*time.Millisecond, "KeyA", "editor")
	for _, ev := range []*events.Event{first, second, third} {
		require.NoError(t, gate.Handle(ev))
	}

	assert.False(t, first.DefaultPrevented())
	assert.True(t, second.DefaultPrevented())
	assert.False(t, third.DefaultPrevented())
	assert.Equal(t, 3.0, counterValue(t, recorder, "bouncekeys_presses_total"))
	assert.Equal(t, 1.0, counterValue(t, recorder, "bouncekeys_suppressed_total"))
}

func TestGateRejectsNonKeyPress(t *testing.T) {
	recorder := metrics.New()
	gate, err := NewGate(config.FilterConfig{BounceWindow: 50 * time.Millisecond}, GateDeps{Metrics: recorder})
	require.NoError(t, err)

	err = gate.Handle(&events.Event{Timestamp: base, Category: events.CategoryMouse, Action: "left-down"})
	require.True(t, errors.Is(err, bounce.ErrInvalidSignal))

	assert.Equal(t, 1.0, counterValue(t, recorder, "bouncekeys_invalid_signals_total"))
}

func TestGateFiltersUnidentifiedKeys(t *testing.T) {
	recorder := metrics.New()
	gate, err := NewGate(config.FilterConfig{BounceWindow: 50 * time.Millisecond}, GateDeps{Metrics: recorder})
	require.NoError(t, err)

	first := keyPress(0, "", "editor")
	second := keyPress(10*time.Millisecond, "", "editor")
	require.NoError(t, gate.Handle(first))
	require.NoError(t, gate.Handle(second))

	assert.False(t, first.DefaultPrevented())
	assert.True(t, second.DefaultPrevented())
	assert.Equal(t, 0.0, counterValue(t, recorder, "bouncekeys_invalid_signals_total"))
	assert.Equal(t, 1.0, counterValue(t, recorder, "bouncekeys_suppressed_total"))
}

func TestGatePassesThroughWhilePaused(t *testing.T) {
	paused := true
	gate, err := NewGate(config.FilterConfig{BounceWindow: 50 * time.Millisecond}, GateDeps{
		Paused: func() bool { return paused },
	})
	require.NoError(t, err)

	require.NoError(t, gate.Handle(keyPress(0, "KeyA", "")))
	bounced := keyPress(10*time.Millisecond, "KeyA", "")
	require.NoError(t, gate.Handle(bounced))
	assert.False(t, bounced.DefaultPrevented())

	paused = false
	require.NoError(t, gate.Handle(keyPress(100*time.Millisecond, "KeyA", "")))
	bounced = keyPress(110*time.Millisecond, "KeyA", "")
	require.NoError(t, gate.Handle(bounced))
	assert.True(t, bounced.DefaultPrevented())
}

func TestGatePerTargetFilters(t *testing.T) {
	gate, err := NewGate(config.FilterConfig{BounceWindow: 50 * time.Millisecond, PerTarget: true}, GateDeps{})
	require.NoError(t, err)

	require.NoError(t, gate.Handle(keyPress(0, "KeyA", "editor")))
	other := keyPress(10*time.Millisecond, "KeyA", "terminal")
	require.NoError(t, gate.Handle(other))
	assert.False(t, other.DefaultPrevented(), "targets must not share timing memory")

	same := keyPress(20*time.Millisecond, "KeyA", "editor")
	require.NoError(t, gate.Handle(same))
	assert.True(t, same.DefaultPrevented())
}

func TestGateNotifiesBlockedPresses(t *testing.T) {
	var got []string
	notifier := bounce.NotifierFunc(func(target string, event bounce.BlockedEvent) {
		got = append(got, target+"/"+event.Code)
	})
	gate, err := NewGate(config.FilterConfig{BounceWindow: 50 * time.Millisecond, EmitBlockEvents: true}, GateDeps{Notifier: notifier})
	require.NoError(t, err)

	require.NoError(t, gate.Handle(keyPress(0, "KeyQ", "editor")))
	require.NoError(t, gate.Handle(keyPress(5*time.Millisecond, "KeyQ", "editor")))
	assert.Equal(t, []string{"editor/KeyQ"}, got)
}

func TestGateReload(t *testing.T) {
	recorder := metrics.New()
	gate, err := NewGate(config.FilterConfig{BounceWindow: 50 * time.Millisecond}, GateDeps{Metrics: recorder})
	require.NoError(t, err)

	require.NoError(t, gate.Handle(keyPress(0, "KeyA", "")))
	require.Error(t, gate.Reload(config.FilterConfig{BounceWindow: -time.Millisecond}))
	assert.Equal(t, 0, gate.Reloads())

	require.NoError(t, gate.Reload(config.FilterConfig{BounceWindow: 10 * time.Millisecond}))
	assert.Equal(t, 1, gate.Reloads())
	assert.Equal(t, 1.0, counterValue(t, recorder, "bouncekeys_filter_reloads_total"))

	fresh := keyPress(5*time.Millisecond, "KeyA", "")
	require.NoError(t, gate.Handle(fresh))
	assert.False(t, fresh.DefaultPrevented(), "a reloaded filter starts without memory")

	bounced := keyPress(12*time.Millisecond, "KeyA", "")
	require.NoError(t, gate.Handle(bounced))
	assert.True(t, bounced.DefaultPrevented())
}

func TestWatchReloadsAppliesUpdates(t *testing.T) {
	gate, err := NewGate(config.FilterConfig{BounceWindow: 50 * time.Millisecond}, GateDeps{})
	require.NoError(t, err)

	updates := make(chan config.Config, 2)
	good := config.Default()
	good.Filter.BounceWindow = 30 * time.Millisecond
	bad := config.Default()
	bad.Filter.BounceWindow = -time.Second
	updates <- bad
	updates <- good
	close(updates)

	var records []string
	watchReloads(context.Background(), updates, gate, zap.NewNop(), func(format string, args ...any) {
		records = append(records, fmt.Sprintf(format, args...))
	})

	assert.Equal(t, 1, gate.Reloads())
	require.Len(t, records, 1)
	assert.Contains(t, records[0], "bounce_window=30ms")
}
