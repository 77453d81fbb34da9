package monitoring

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()
	c.RecordPrediction(3, 2*time.Millisecond)
	c.RecordPrediction(1, 4*time.Millisecond)
	c.RecordValidationFailure()
	c.RecordUnavailable()
	c.RecordError()

	s := c.Snapshot()
	assert.Equal(t, int64(5), s.Requests)
	assert.Equal(t, int64(4), s.Predictions)
	assert.Equal(t, int64(1), s.ValidationFailures)
	assert.Equal(t, int64(1), s.Unavailable)
	assert.Equal(t, int64(1), s.Errors)
	assert.InDelta(t, 3.0, s.AvgLatencyMs, 1e-9)
	assert.Greater(t, s.Goroutines, 0)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordPrediction(2, time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), c.Snapshot().Predictions)
}
