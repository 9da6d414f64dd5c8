package vecdir

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
//	    loadHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordLoad(bytes int, duration time.Duration, err error) {
//	    p.loadHistogram.Observe(duration.Seconds())
//	}
type MetricsCollector interface {
	// RecordCreate is called after each CreateCollection.
	// bytes is the size of the written blob.
	RecordCreate(bytes int, duration time.Duration, err error)

	// RecordLoad is called after each GetCollection.
	// bytes is the size of the read blob.
	RecordLoad(bytes int, duration time.Duration, err error)

	// RecordSave is called after each SaveCollection.
	RecordSave(bytes int, duration time.Duration, err error)

	// RecordDelete is called after each DeleteCollection.
	RecordDelete(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordSave(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount    atomic.Int64
	CreateErrors   atomic.Int64
	LoadCount      atomic.Int64
	LoadErrors     atomic.Int64
	LoadTotalNanos atomic.Int64
	BytesRead      atomic.Int64
	SaveCount      atomic.Int64
	SaveErrors     atomic.Int64
	SaveTotalNanos atomic.Int64
	BytesWritten   atomic.Int64
	DeleteCount    atomic.Int64
	DeleteErrors   atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(bytes int, duration time.Duration, err error) {
	b.CreateCount.Add(1)
	if err != nil {
		b.CreateErrors.Add(1)
		return
	}
	b.BytesWritten.Add(int64(bytes))
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(bytes int, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.BytesRead.Add(int64(bytes))
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(bytes int, duration time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SaveErrors.Add(1)
		return
	}
	b.BytesWritten.Add(int64(bytes))
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:  b.CreateCount.Load(),
		CreateErrors: b.CreateErrors.Load(),
		LoadCount:    b.LoadCount.Load(),
		LoadErrors:   b.LoadErrors.Load(),
		LoadAvgNanos: avg(b.LoadTotalNanos.Load(), b.LoadCount.Load()),
		BytesRead:    b.BytesRead.Load(),
		SaveCount:    b.SaveCount.Load(),
		SaveErrors:   b.SaveErrors.Load(),
		SaveAvgNanos: avg(b.SaveTotalNanos.Load(), b.SaveCount.Load()),
		BytesWritten: b.BytesWritten.Load(),
		DeleteCount:  b.DeleteCount.Load(),
		DeleteErrors: b.DeleteErrors.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount  int64
	CreateErrors int64
	LoadCount    int64
	LoadErrors   int64
	LoadAvgNanos int64
	BytesRead    int64
	SaveCount    int64
	SaveErrors   int64
	SaveAvgNanos int64
	BytesWritten int64
	DeleteCount  int64
	DeleteErrors int64
}
