package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"terrain-classifier/internal/opencv/memory"
	"terrain-classifier/internal/opencv/safe"
)

type incrementStep struct {
	name    string
	enabled bool
	fail    bool
	calls   int
}

func (s *incrementStep) Name() string { return s.name }

func (s *incrementStep) ShouldExecute(*safe.Mat) bool { return s.enabled }

func (s *incrementStep) Apply(_ context.Context, input *safe.Mat) (*safe.Mat, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("boom")
	}
	out, err := input.Clone()
	if err != nil {
		return nil, err
	}
	v, _ := out.GetUCharAt(0, 0)
	_ = out.SetUCharAt(0, 0, v+1)
	return out, nil
}

func newInput(t *testing.T, tracker safe.MemoryTracker) *safe.Mat {
	t.Helper()
	m, err := safe.NewMatWithTracker(1, 1, gocv.MatTypeCV8UC1, tracker, "input")
	require.NoError(t, err)
	require.NoError(t, m.SetUCharAt(0, 0, 0))
	return m
}

func TestExecuteRunsEnabledStepsInOrder(t *testing.T) {
	tracker := memory.NewTracker(nil)
	input := newInput(t, tracker)
	defer input.Close()

	a := &incrementStep{name: "a", enabled: true}
	b := &incrementStep{name: "b", enabled: false}
	c := &incrementStep{name: "c", enabled: true}
	pc := NewProcessingChain(a, b, c)

	out, err := pc.Execute(context.Background(), input)
	require.NoError(t, err)

	v, _ := out.GetUCharAt(0, 0)
	assert.Equal(t, uint8(2), v)
	assert.Equal(t, 1, a.calls)
	assert.Zero(t, b.calls)
	assert.Equal(t, []string{"a", "b", "c"}, pc.GetStepNames())

	out.Close()
	assert.Equal(t, int64(1), tracker.Stats().ActiveMats, "only the caller-owned input stays alive")
}

func TestExecuteWithoutStepsClones(t *testing.T) {
	input := newInput(t, nil)
	defer input.Close()

	out, err := NewProcessingChain().Execute(context.Background(), input)
	require.NoError(t, err)
	defer out.Close()

	assert.NotEqual(t, input.ID(), out.ID())
}

func TestExecuteStepFailureReleasesIntermediates(t *testing.T) {
	tracker := memory.NewTracker(nil)
	input := newInput(t, tracker)
	defer input.Close()

	pc := NewProcessingChain(&incrementStep{name: "ok", enabled: true})
	pc.AddStep(&incrementStep{name: "broken", enabled: true, fail: true})
	assert.Equal(t, 2, pc.StepCount())

	_, err := pc.Execute(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step broken failed")
	assert.Equal(t, int64(1), tracker.Stats().ActiveMats)
}

func TestExecuteHonoursCancellation(t *testing.T) {
	input := newInput(t, nil)
	defer input.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProcessingChain(&incrementStep{name: "a", enabled: true}).Execute(ctx, input)
	assert.ErrorIs(t, err, context.Canceled)
}
