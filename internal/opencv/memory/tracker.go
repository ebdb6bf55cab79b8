package memory

import (
	"sync"

	"terrain-classifier/internal/logger"
)

// Tracker records live OpenCV Mats so a classification call can prove it released
// everything it allocated.
type Tracker struct {
	mu          sync.Mutex
	allocations map[uint64]AllocationRecord
	stats       Stats
	logger      logger.Logger
}

type AllocationRecord struct {
	Tag  string
	Size int64
}

type Stats struct {
	Allocations   int64
	Deallocations int64
	ActiveMats    int64
	ActiveBytes   int64
	PeakBytes     int64
}

func NewTracker(log logger.Logger) *Tracker {
	if log == nil {
		log = logger.Nop()
	}
	return &Tracker{
		allocations: make(map[uint64]AllocationRecord),
		logger:      log,
	}
}

func (t *Tracker) TrackAllocation(id uint64, size int64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.allocations[id] = AllocationRecord{Tag: tag, Size: size}
	t.stats.Allocations++
	t.stats.ActiveMats++
	t.stats.ActiveBytes += size
	if t.stats.ActiveBytes > t.stats.PeakBytes {
		t.stats.PeakBytes = t.stats.ActiveBytes
	}
}

func (t *Tracker) TrackDeallocation(id uint64, tag string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, exists := t.allocations[id]
	if !exists {
		t.logger.Warning("MemoryTracker", "release of untracked Mat", map[string]interface{}{
			"tag": tag,
			"id":  id,
		})
		return
	}

	delete(t.allocations, id)
	t.stats.Deallocations++
	t.stats.ActiveMats--
	t.stats.ActiveBytes -= record.Size
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Leaked lists the tags of Mats that are still alive.
func (t *Tracker) Leaked() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	tags := make([]string, 0, len(t.allocations))
	for _, record := range t.allocations {
		tags = append(tags, record.Tag)
	}
	return tags
}
