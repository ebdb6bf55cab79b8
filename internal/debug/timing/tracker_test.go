package timing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartEndTiming(t *testing.T) {
	tracker := NewTracker()

	ctx := tracker.StartTiming(context.Background(), "segment")
	time.Sleep(2 * time.Millisecond)
	d := tracker.EndTiming(ctx)

	assert.GreaterOrEqual(t, d, 2*time.Millisecond)
	require.Len(t, tracker.GetTimings("segment"), 1)
	assert.Equal(t, d, tracker.GetAverageTime("segment"))
	assert.Contains(t, tracker.Fields(), "segment_ms")
}

func TestEndTimingWithoutStart(t *testing.T) {
	tracker := NewTracker()
	assert.Zero(t, tracker.EndTiming(context.Background()))
	assert.Empty(t, tracker.GetAllTimings())
}

func TestTimePropagatesError(t *testing.T) {
	tracker := NewTracker()
	boom := errors.New("boom")

	err := tracker.Time(context.Background(), "refine", func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, tracker.GetTimings("refine"), 1)
}

func TestReset(t *testing.T) {
	tracker := NewTracker()
	tracker.EndTiming(tracker.StartTiming(context.Background(), "a"))
	tracker.EndTiming(tracker.StartTiming(context.Background(), "b"))

	require.Len(t, tracker.GetAllTimings(), 2)

	tracker.Reset()
	assert.Nil(t, tracker.GetTimings("a"))
	assert.Empty(t, tracker.GetAllTimings())
	assert.Empty(t, tracker.Fields())
}
