// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the service.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Resolver metrics
	IncResolveCacheHit()
	IncResolveCacheMiss()
	ObserveResolveDuration(duration time.Duration)
	IncResolveOutcome(outcome string) // "resolved", "not_found", "expired", "inactive", "unavailable"

	// Link management metrics
	IncLinkCreated()
	IncLinkUpdated()
	IncLinkDeleted()

	// Click recorder pipeline metrics
	IncClickPublished(status string) // status: "success" or "dropped"
	IncClickProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveRecorderBatchSize(size int)
	ObserveRecorderBatchDuration(duration time.Duration)
	SetRecorderQueueDepth(depth int64)
	ObserveRecorderIngestLag(lag time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
