package bounce

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetKeepsTargetsIndependent(t *testing.T) {
	set, err := NewSet(Options{BounceWindow: time.Second})
	require.NoError(t, err)

	steps := []struct {
		press KeyPress
		want  Decision
	}{
		{KeyPress{Code: "KeyA", At: 0, Target: "mail"}, Allow},
		{KeyPress{Code: "KeyA", At: time.Millisecond, Target: "docs"}, Allow},
		{KeyPress{Code: "KeyA", At: 2 * time.Millisecond, Target: "mail"}, Suppress},
		{KeyPress{Code: "KeyA", At: 3 * time.Millisecond, Target: "docs"}, Suppress},
	}
	for i, step := range steps {
		got, err := set.Process(step.press)
		require.NoError(t, err)
		assert.Equalf(t, step.want, got, "step %d", i)
	}
	assert.Equal(t, 2, set.Len())
}

func TestNewSetValidatesOptions(t *testing.T) {
	_, err := NewSet(Options{BounceWindow: -1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestSetPropagatesInvalidSignal(t *testing.T) {
	set, err := NewSet(Options{BounceWindow: time.Second})
	require.NoError(t, err)

	_, err = set.Process(KeyPress{Target: "mail"})
	assert.True(t, errors.Is(err, ErrInvalidSignal))
	assert.Equal(t, 0, set.Len())
}
