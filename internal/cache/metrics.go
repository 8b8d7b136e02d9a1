package cache

import "sync/atomic"

// storeMetricsState tracks basic degradation counters for cache reads
// and writes.
type storeMetricsState struct {
	storageErrors    atomic.Int64
	malformedRecords atomic.Int64
	staleRecords     atomic.Int64
	expiredRecords   atomic.Int64
}

var storeMetrics storeMetricsState

func (m *storeMetricsState) incDegraded(c cause) int64 {
	if m == nil {
		return 0
	}
	switch c {
	case causeStorageUnavailable:
		return m.storageErrors.Add(1)
	case causeMalformedRecord:
		return m.malformedRecords.Add(1)
	case causeStaleRecord:
		return m.staleRecords.Add(1)
	}
	return 0
}

func (m *storeMetricsState) incExpired() int64 {
	if m == nil {
		return 0
	}
	return m.expiredRecords.Add(1)
}

// MetricsSnapshot reports the package counters for export.
func MetricsSnapshot() (storageErrors, malformed, stale, expired int64) {
	return storeMetrics.storageErrors.Load(),
		storeMetrics.malformedRecords.Load(),
		storeMetrics.staleRecords.Load(),
		storeMetrics.expiredRecords.Load()
}
