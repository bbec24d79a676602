package metrics

import (
	"sync"
	"time"

	"github.com/willibrandon/copgy/internal/engine"
)

// CopyStat is the outcome of one copy stage.
type CopyStat struct {
	Step     int
	Table    string
	Bytes    int64
	Rows     int64
	Duration time.Duration
	// PeakRate is the highest bytes per second seen between two progress
	// samples, or the average rate when there were none.
	PeakRate float64
}

// Rate returns the average bytes per second of the copy.
func (s CopyStat) Rate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Bytes) / s.Duration.Seconds()
}

// Collector accumulates per-step statistics from engine events.
// It is thread-safe.
type Collector struct {
	mu       sync.RWMutex
	copies   []CopyStat
	commands int
	failed   int // step index, -1 when no step failed

	// samples of the copy in flight
	samples []DataPoint
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{failed: -1}
}

// Observe implements engine.Observer.
func (c *Collector) Observe(e engine.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case engine.EventCopyStarted:
		c.samples = append(c.samples[:0], DataPoint{Timestamp: e.Time})
	case engine.EventCopyProgress:
		dp := DataPoint{Timestamp: e.Time, Bytes: e.Bytes}
		if dp.IsValid() {
			c.samples = append(c.samples, dp)
		}
	case engine.EventCopyFinished:
		stat := CopyStat{
			Step:     e.Step,
			Table:    e.Table,
			Bytes:    e.Bytes,
			Rows:     e.Rows,
			Duration: e.Duration,
		}
		stat.PeakRate = peakRate(c.samples)
		if stat.PeakRate == 0 {
			stat.PeakRate = stat.Rate()
		}
		c.copies = append(c.copies, stat)
		c.samples = c.samples[:0]
	case engine.EventExecuteStarted:
		c.commands++
	case engine.EventStepFailed:
		c.failed = e.Step
	}
}

func peakRate(samples []DataPoint) float64 {
	var peak float64
	for i := 1; i < len(samples); i++ {
		if r := rate(samples[i-1], samples[i]); r > peak {
			peak = r
		}
	}
	return peak
}

// Copies returns the finished copies in run order.
func (c *Collector) Copies() []CopyStat {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]CopyStat, len(c.copies))
	copy(out, c.copies)
	return out
}

// Commands returns how many commands were started.
func (c *Collector) Commands() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.commands
}

// FailedStep returns the index of the failed step and true, if any failed.
func (c *Collector) FailedStep() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.failed, c.failed >= 0
}

// Totals sums bytes, rows and time over all finished copies.
func (c *Collector) Totals() (bytes, rows int64, d time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, s := range c.copies {
		bytes += s.Bytes
		rows += s.Rows
		d += s.Duration
	}
	return bytes, rows, d
}
