package rowstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    upsertCounter     prometheus.Counter
//	    snapshotHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordUpsert(duration time.Duration, err error) {
//	    p.upsertCounter.Inc()
//	}
type MetricsCollector interface {
	// RecordUpsert is called after each upsert.
	RecordUpsert(duration time.Duration, err error)

	// RecordDelete is called after each delete.
	RecordDelete(duration time.Duration, err error)

	// RecordGet is called after each lookup; found reports a hit.
	RecordGet(found bool, duration time.Duration)

	// RecordExpire is called after each TTL sweep with the number of rows
	// it removed.
	RecordExpire(expired int, duration time.Duration)

	// RecordSnapshot is called after each snapshot attempt.
	RecordSnapshot(rows, size int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsert(time.Duration, error)             {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)             {}
func (NoopMetricsCollector) RecordGet(bool, time.Duration)                 {}
func (NoopMetricsCollector) RecordExpire(int, time.Duration)               {}
func (NoopMetricsCollector) RecordSnapshot(int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UpsertCount      atomic.Int64
	UpsertErrors     atomic.Int64
	UpsertTotalNanos atomic.Int64
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	GetCount         atomic.Int64
	GetMisses        atomic.Int64
	ExpireSweeps     atomic.Int64
	ExpiredRows      atomic.Int64
	SnapshotCount    atomic.Int64
	SnapshotErrors   atomic.Int64
	SnapshotRows     atomic.Int64
	SnapshotBytes    atomic.Int64
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(found bool, _ time.Duration) {
	b.GetCount.Add(1)
	if !found {
		b.GetMisses.Add(1)
	}
}

// RecordExpire implements MetricsCollector.
func (b *BasicMetricsCollector) RecordExpire(expired int, _ time.Duration) {
	b.ExpireSweeps.Add(1)
	b.ExpiredRows.Add(int64(expired))
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(rows, size int, _ time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
		return
	}
	b.SnapshotRows.Add(int64(rows))
	b.SnapshotBytes.Add(int64(size))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpsertCount:    b.UpsertCount.Load(),
		UpsertErrors:   b.UpsertErrors.Load(),
		UpsertAvgNanos: b.getAvgUpsertNanos(),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		GetCount:       b.GetCount.Load(),
		GetMisses:      b.GetMisses.Load(),
		ExpireSweeps:   b.ExpireSweeps.Load(),
		ExpiredRows:    b.ExpiredRows.Load(),
		SnapshotCount:  b.SnapshotCount.Load(),
		SnapshotErrors: b.SnapshotErrors.Load(),
		SnapshotRows:   b.SnapshotRows.Load(),
		SnapshotBytes:  b.SnapshotBytes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgUpsertNanos() int64 {
	count := b.UpsertCount.Load()
	if count == 0 {
		return 0
	}
	return b.UpsertTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpsertCount    int64
	UpsertErrors   int64
	UpsertAvgNanos int64
	DeleteCount    int64
	DeleteErrors   int64
	GetCount       int64
	GetMisses      int64
	ExpireSweeps   int64
	ExpiredRows    int64
	SnapshotCount  int64
	SnapshotErrors int64
	SnapshotRows   int64
	SnapshotBytes  int64
}
