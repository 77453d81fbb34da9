package monitoring

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Collector counts serving activity. All methods are safe for concurrent use.
type Collector struct {
	requests           atomic.Int64
	predictions        atomic.Int64
	validationFailures atomic.Int64
	unavailable        atomic.Int64
	errors             atomic.Int64
	latencyNanos       atomic.Int64

	startTime time.Time
}

// Stats is a point-in-time view of a Collector.
type Stats struct {
	Requests           int64   `json:"requests"`
	Predictions        int64   `json:"predictions"`
	ValidationFailures int64   `json:"validation_failures"`
	Unavailable        int64   `json:"unavailable"`
	Errors             int64   `json:"errors"`
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	UptimeSeconds      float64 `json:"uptime_seconds"`
	Goroutines         int     `json:"goroutines"`
	HeapAllocBytes     uint64  `json:"heap_alloc_bytes"`
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordPrediction records a successful request that produced n predictions.
func (c *Collector) RecordPrediction(n int, elapsed time.Duration) {
	c.requests.Add(1)
	c.predictions.Add(int64(n))
	c.latencyNanos.Add(int64(elapsed))
}

func (c *Collector) RecordValidationFailure() {
	c.requests.Add(1)
	c.validationFailures.Add(1)
}

func (c *Collector) RecordUnavailable() {
	c.requests.Add(1)
	c.unavailable.Add(1)
}

func (c *Collector) RecordError() {
	c.requests.Add(1)
	c.errors.Add(1)
}

func (c *Collector) Snapshot() Stats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := Stats{
		Requests:           c.requests.Load(),
		Predictions:        c.predictions.Load(),
		ValidationFailures: c.validationFailures.Load(),
		Unavailable:        c.unavailable.Load(),
		Errors:             c.errors.Load(),
		UptimeSeconds:      time.Since(c.startTime).Seconds(),
		Goroutines:         runtime.NumGoroutine(),
		HeapAllocBytes:     mem.HeapAlloc,
	}
	served := s.Requests - s.ValidationFailures - s.Unavailable - s.Errors
	if served > 0 {
		s.AvgLatencyMs = float64(c.latencyNanos.Load()) / float64(served) / float64(time.Millisecond)
	}
	return s
}
