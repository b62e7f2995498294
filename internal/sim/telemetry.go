package sim

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// TelemetryWindow is how many recent batch timings the summary covers.
const TelemetryWindow = 128

// Telemetry keeps a rolling window of batch durations.
type Telemetry struct {
	mu      sync.Mutex
	samples [TelemetryWindow]float64 // seconds
	next    int
	filled  int
	total   uint64
	last    time.Duration
}

// TelemetrySummary is the aggregate the overlay and /api/telemetry show.
type TelemetrySummary struct {
	Batches uint64        `json:"batches"` // all time
	Window  int           `json:"window"`  // samples summarised below
	Last    time.Duration `json:"lastNs"`
	Mean    time.Duration `json:"meanNs"`
	StdDev  time.Duration `json:"stdDevNs"`
	P50     time.Duration `json:"p50Ns"`
	P95     time.Duration `json:"p95Ns"`
	Min     time.Duration `json:"minNs"`
	Max     time.Duration `json:"maxNs"`
}

// Record adds one batch duration.
func (t *Telemetry) Record(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = d.Seconds()
	t.next = (t.next + 1) % TelemetryWindow
	if t.filled < TelemetryWindow {
		t.filled++
	}
	t.total++
	t.last = d
}

// Summary computes statistics over the current window.
func (t *Telemetry) Summary() TelemetrySummary {
	t.mu.Lock()
	xs := make([]float64, t.filled)
	copy(xs, t.samples[:t.filled])
	sum := TelemetrySummary{Batches: t.total, Window: t.filled, Last: t.last}
	t.mu.Unlock()

	if len(xs) == 0 {
		return sum
	}

	sort.Float64s(xs)
	sum.Mean = seconds(stat.Mean(xs, nil))
	if len(xs) > 1 {
		sum.StdDev = seconds(stat.StdDev(xs, nil))
	}
	sum.P50 = seconds(stat.Quantile(0.5, stat.Empirical, xs, nil))
	sum.P95 = seconds(stat.Quantile(0.95, stat.Empirical, xs, nil))
	sum.Min = seconds(xs[0])
	sum.Max = seconds(xs[len(xs)-1])
	return sum
}

// Reset drops all samples.
func (t *Telemetry) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next, t.filled, t.total, t.last = 0, 0, 0, 0
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
