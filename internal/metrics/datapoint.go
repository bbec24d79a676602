package metrics

import (
	"math"
	"time"
)

// DataPoint is one cumulative byte count observed during a copy.
type DataPoint struct {
	Timestamp time.Time
	Bytes     int64
}

// IsValid returns true if the data point has a timestamp and a
// non-negative count.
func (dp DataPoint) IsValid() bool {
	return !dp.Timestamp.IsZero() && dp.Bytes >= 0
}

// rate returns the bytes per second between two points, or 0 when the
// interval is empty.
func rate(from, to DataPoint) float64 {
	secs := to.Timestamp.Sub(from.Timestamp).Seconds()
	if secs <= 0 {
		return 0
	}
	r := float64(to.Bytes-from.Bytes) / secs
	if math.IsInf(r, 0) || math.IsNaN(r) || r < 0 {
		return 0
	}
	return r
}
