package timing

import (
	"context"
	"sync"
	"time"
)

type timingKey struct{}

type TimingInfo struct {
	Operation string
	StartTime time.Time
}

// Tracker collects stage durations for one unit of work. Operations may repeat; each run is
// kept in order.
type Tracker struct {
	timings map[string][]time.Duration
	order   []string
	created time.Time
	mu      sync.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{
		timings: make(map[string][]time.Duration),
		created: time.Now(),
	}
}

// StartTiming returns a child of ctx that carries the operation start time.
func (tt *Tracker) StartTiming(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, timingKey{}, TimingInfo{
		Operation: operation,
		StartTime: time.Now(),
	})
}

// EndTiming records the operation started on ctx and returns its duration. A ctx that did
// not come from StartTiming records nothing.
func (tt *Tracker) EndTiming(ctx context.Context) time.Duration {
	timingInfo, ok := ctx.Value(timingKey{}).(TimingInfo)
	if !ok {
		return 0
	}

	duration := time.Since(timingInfo.StartTime)

	tt.mu.Lock()
	defer tt.mu.Unlock()

	if _, seen := tt.timings[timingInfo.Operation]; !seen {
		tt.order = append(tt.order, timingInfo.Operation)
	}
	tt.timings[timingInfo.Operation] = append(tt.timings[timingInfo.Operation], duration)

	return duration
}

// Time runs fn as operation.
func (tt *Tracker) Time(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	stageCtx := tt.StartTiming(ctx, operation)
	defer tt.EndTiming(stageCtx)
	return fn(stageCtx)
}

func (tt *Tracker) GetTimings(operation string) []time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	timings := tt.timings[operation]
	if timings == nil {
		return nil
	}

	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

func (tt *Tracker) GetAllTimings() map[string][]time.Duration {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	result := make(map[string][]time.Duration)
	for operation, timings := range tt.timings {
		result[operation] = make([]time.Duration, len(timings))
		copy(result[operation], timings)
	}
	return result
}

func (tt *Tracker) GetAverageTime(operation string) time.Duration {
	timings := tt.GetTimings(operation)
	if len(timings) == 0 {
		return 0
	}

	var total time.Duration
	for _, duration := range timings {
		total += duration
	}

	return total / time.Duration(len(timings))
}

// Elapsed is the wall time since the tracker was created.
func (tt *Tracker) Elapsed() time.Duration {
	return time.Since(tt.created)
}

// Fields renders the recorded stages in milliseconds for structured logs.
func (tt *Tracker) Fields() map[string]interface{} {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	fields := make(map[string]interface{}, len(tt.order))
	for _, operation := range tt.order {
		var total time.Duration
		for _, d := range tt.timings[operation] {
			total += d
		}
		fields[operation+"_ms"] = float64(total.Microseconds()) / 1000
	}
	return fields
}

// Reset drops every recorded operation.
func (tt *Tracker) Reset() {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	tt.timings = make(map[string][]time.Duration)
	tt.order = nil
}
