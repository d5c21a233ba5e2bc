package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncResolveCacheHit is a no-op.
func (n *NoopRecorder) IncResolveCacheHit() {}

// IncResolveCacheMiss is a no-op.
func (n *NoopRecorder) IncResolveCacheMiss() {}

// ObserveResolveDuration is a no-op.
func (n *NoopRecorder) ObserveResolveDuration(duration time.Duration) {}

// IncResolveOutcome is a no-op.
func (n *NoopRecorder) IncResolveOutcome(outcome string) {}

// IncLinkCreated is a no-op.
func (n *NoopRecorder) IncLinkCreated() {}

// IncLinkUpdated is a no-op.
func (n *NoopRecorder) IncLinkUpdated() {}

// IncLinkDeleted is a no-op.
func (n *NoopRecorder) IncLinkDeleted() {}

// IncClickPublished is a no-op.
func (n *NoopRecorder) IncClickPublished(status string) {}

// IncClickProcessed is a no-op.
func (n *NoopRecorder) IncClickProcessed(status string) {}

// ObserveRecorderBatchSize is a no-op.
func (n *NoopRecorder) ObserveRecorderBatchSize(size int) {}

// ObserveRecorderBatchDuration is a no-op.
func (n *NoopRecorder) ObserveRecorderBatchDuration(duration time.Duration) {}

// SetRecorderQueueDepth is a no-op.
func (n *NoopRecorder) SetRecorderQueueDepth(depth int64) {}

// ObserveRecorderIngestLag is a no-op.
func (n *NoopRecorder) ObserveRecorderIngestLag(lag time.Duration) {}
