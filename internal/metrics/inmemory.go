package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ResolveCacheHits       uint64
	ResolveCacheMisses     uint64
	ResolveDurationCount   uint64
	ResolveDurationTotalNs int64
	ResolveOutcomes        map[string]uint64
	LinksCreated           uint64
	LinksUpdated           uint64
	LinksDeleted           uint64
	ClicksPublished        map[string]uint64
	ClicksProcessed        map[string]uint64
	RecorderQueueDepth     int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	resolveCacheHits       uint64
	resolveCacheMisses     uint64
	resolveDurationCount   uint64
	resolveDurationTotalNs int64
	linksCreated           uint64
	linksUpdated           uint64
	linksDeleted           uint64
	recorderQueueDepth     int64

	mu              sync.Mutex
	resolveOutcomes map[string]uint64
	clicksPublished map[string]uint64
	clicksProcessed map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		resolveOutcomes: make(map[string]uint64),
		clicksPublished: make(map[string]uint64),
		clicksProcessed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	outcomes := copyMap(m.resolveOutcomes)
	published := copyMap(m.clicksPublished)
	processed := copyMap(m.clicksProcessed)
	m.mu.Unlock()

	return Snapshot{
		ResolveCacheHits:       atomic.LoadUint64(&m.resolveCacheHits),
		ResolveCacheMisses:     atomic.LoadUint64(&m.resolveCacheMisses),
		ResolveDurationCount:   atomic.LoadUint64(&m.resolveDurationCount),
		ResolveDurationTotalNs: atomic.LoadInt64(&m.resolveDurationTotalNs),
		ResolveOutcomes:        outcomes,
		LinksCreated:           atomic.LoadUint64(&m.linksCreated),
		LinksUpdated:           atomic.LoadUint64(&m.linksUpdated),
		LinksDeleted:           atomic.LoadUint64(&m.linksDeleted),
		ClicksPublished:        published,
		ClicksProcessed:        processed,
		RecorderQueueDepth:     atomic.LoadInt64(&m.recorderQueueDepth),
	}
}

// IncResolveCacheHit increments the cache hit counter.
func (m *InMemoryRecorder) IncResolveCacheHit() {
	atomic.AddUint64(&m.resolveCacheHits, 1)
}

// IncResolveCacheMiss increments the cache miss counter.
func (m *InMemoryRecorder) IncResolveCacheMiss() {
	atomic.AddUint64(&m.resolveCacheMisses, 1)
}

// ObserveResolveDuration records resolution duration.
func (m *InMemoryRecorder) ObserveResolveDuration(duration time.Duration) {
	atomic.AddUint64(&m.resolveDurationCount, 1)
	atomic.AddInt64(&m.resolveDurationTotalNs, duration.Nanoseconds())
}

// IncResolveOutcome counts a resolution outcome.
func (m *InMemoryRecorder) IncResolveOutcome(outcome string) {
	m.mu.Lock()
	m.resolveOutcomes[outcome]++
	m.mu.Unlock()
}

// IncLinkCreated increments the link created counter.
func (m *InMemoryRecorder) IncLinkCreated() {
	atomic.AddUint64(&m.linksCreated, 1)
}

// IncLinkUpdated increments the link updated counter.
func (m *InMemoryRecorder) IncLinkUpdated() {
	atomic.AddUint64(&m.linksUpdated, 1)
}

// IncLinkDeleted increments the link deleted counter.
func (m *InMemoryRecorder) IncLinkDeleted() {
	atomic.AddUint64(&m.linksDeleted, 1)
}

// IncClickPublished counts a publish attempt by status.
func (m *InMemoryRecorder) IncClickPublished(status string) {
	m.mu.Lock()
	m.clicksPublished[status]++
	m.mu.Unlock()
}

// IncClickProcessed counts a processed event by status.
func (m *InMemoryRecorder) IncClickProcessed(status string) {
	m.mu.Lock()
	m.clicksProcessed[status]++
	m.mu.Unlock()
}

// ObserveRecorderBatchSize is recorded only in aggregate counters.
func (m *InMemoryRecorder) ObserveRecorderBatchSize(size int) {}

// ObserveRecorderBatchDuration is recorded only in aggregate counters.
func (m *InMemoryRecorder) ObserveRecorderBatchDuration(duration time.Duration) {}

// SetRecorderQueueDepth records the current queue depth.
func (m *InMemoryRecorder) SetRecorderQueueDepth(depth int64) {
	atomic.StoreInt64(&m.recorderQueueDepth, depth)
}

// ObserveRecorderIngestLag is recorded only in aggregate counters.
func (m *InMemoryRecorder) ObserveRecorderIngestLag(lag time.Duration) {}

func copyMap(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
