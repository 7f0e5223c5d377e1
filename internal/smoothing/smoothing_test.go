package smoothing

import (
	"testing"

	"github.com/banshee-data/rehab.report/internal/pose"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEMA(t *testing.T) {
	t.Parallel()

	t.Run("missing sample carries previous forward", func(t *testing.T) {
		t.Parallel()
		prev := pose.Measured(42)
		assert.Equal(t, prev, EMA(pose.Unavailable, prev, 0.7))
	})

	t.Run("first observation passes through", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, pose.Measured(17), EMA(pose.Measured(17), pose.Unavailable, 0.7))
	})

	t.Run("alpha one returns newest", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, pose.Measured(90), EMA(pose.Measured(90), pose.Measured(10), 1.0))
	})

	t.Run("weighted blend", func(t *testing.T) {
		t.Parallel()
		got := EMA(pose.Measured(100), pose.Measured(0), 0.6)
		require.True(t, got.Valid)
		assert.InDelta(t, 60.0, got.Value, 1e-9)
	})

	t.Run("both missing stays missing", func(t *testing.T) {
		t.Parallel()
		assert.False(t, EMA(pose.Unavailable, pose.Unavailable, 0.7).Valid)
	})
}

func TestSmoother(t *testing.T) {
	t.Parallel()

	s := NewSmoother(0.5)
	assert.False(t, s.Last("left").Valid)

	got := s.Update("left", pose.Measured(80))
	assert.Equal(t, pose.Measured(80), got)

	got = s.Update("left", pose.Measured(100))
	assert.InDelta(t, 90.0, got.Value, 1e-9)

	// Gap: value is carried, not zeroed.
	got = s.Update("left", pose.Unavailable)
	assert.InDelta(t, 90.0, got.Value, 1e-9)

	// Keys are independent.
	got = s.Update("right", pose.Measured(10))
	assert.InDelta(t, 10.0, got.Value, 1e-9)
	assert.InDelta(t, 90.0, s.Last("left").Value, 1e-9)

	assert.Equal(t, []string{"left", "right"}, s.Keys())
	snap := s.Snapshot()
	snap["left"] = -1
	assert.InDelta(t, 90.0, s.Last("left").Value, 1e-9, "snapshot must be a copy")

	s.Reset()
	assert.Empty(t, s.Snapshot())
}

func TestNewSmootherAlphaFallback(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultAlpha, NewSmoother(0).Alpha)
	assert.Equal(t, DefaultAlpha, NewSmoother(1.5).Alpha)
	assert.Equal(t, 1.0, NewSmoother(1).Alpha)
}
