// Package stats maintains rolling throughput statistics for an event
// stream session: totals, per-second event and frame rates, and a
// fixed-capacity history of recent rates for overlays and charts.
package stats

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/eventcam/internal/monitoring"
)

// HistoryCapacity bounds the rolling per-second rate history. The
// oldest sample is evicted on overflow.
const HistoryCapacity = 100

// Snapshot is a read-only copy of the aggregator state.
type Snapshot struct {
	TotalFrames         int64
	TotalEvents         int64
	CurrentSecondEvents int64
	EventsPerSecond     float64
	FramesPerSecond     float64
	History             []float64 // recent events/sec samples, oldest first
	StartTime           time.Time
}

// Aggregator tracks stream statistics with thread-safe operations. The
// session loop calls Update; the monitor HTTP server reads Snapshot
// from its own goroutine.
type Aggregator struct {
	mu  sync.Mutex
	now func() time.Time

	totalFrames  int64
	totalEvents  int64
	secondEvents int64
	secondFrames int64

	eventsPerSec float64
	framesPerSec float64
	history      []float64

	startTime    time.Time
	lastBoundary time.Time
}

// New creates an Aggregator using the wall clock.
func New() *Aggregator {
	return NewWithClock(time.Now)
}

// NewWithClock creates an Aggregator with an injectable clock for tests.
func NewWithClock(now func() time.Time) *Aggregator {
	t := now()
	return &Aggregator{
		now:          now,
		startTime:    t,
		lastBoundary: t,
		history:      make([]float64, 0, HistoryCapacity),
	}
}

// Update records one processed frame and its event count. On crossing a
// one-second wall-clock boundary it folds the per-second counters into
// the rate fields and history.
func (a *Aggregator) Update(eventCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalFrames++
	a.totalEvents += int64(eventCount)
	a.secondEvents += int64(eventCount)
	a.secondFrames++

	now := a.now()
	elapsed := now.Sub(a.lastBoundary)
	if elapsed >= time.Second {
		a.eventsPerSec = float64(a.secondEvents) / elapsed.Seconds()
		a.framesPerSec = float64(a.secondFrames) / elapsed.Seconds()
		if len(a.history) == HistoryCapacity {
			copy(a.history, a.history[1:])
			a.history = a.history[:HistoryCapacity-1]
		}
		a.history = append(a.history, a.eventsPerSec)
		a.secondEvents = 0
		a.secondFrames = 0
		a.lastBoundary = now
	}
}

// Snapshot returns a copy of the current totals, rates and history. It
// never blocks beyond the internal mutex.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	hist := make([]float64, len(a.history))
	copy(hist, a.history)
	return Snapshot{
		TotalFrames:         a.totalFrames,
		TotalEvents:         a.totalEvents,
		CurrentSecondEvents: a.secondEvents,
		EventsPerSecond:     a.eventsPerSec,
		FramesPerSecond:     a.framesPerSec,
		History:             hist,
		StartTime:           a.startTime,
	}
}

// Reset zeroes all counters, rates and history. The boundary timestamp
// restarts from the current clock reading.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalFrames = 0
	a.totalEvents = 0
	a.secondEvents = 0
	a.secondFrames = 0
	a.eventsPerSec = 0
	a.framesPerSec = 0
	a.history = a.history[:0]

	t := a.now()
	a.startTime = t
	a.lastBoundary = t
}

// LogStats emits a one-line throughput summary through the package
// logger. Quiet streams (no frames yet) log nothing.
func (a *Aggregator) LogStats() {
	s := a.Snapshot()
	if s.TotalFrames == 0 {
		return
	}
	monitoring.Logf("Stream stats: %.1f fps, %s events/sec, %s frames, %s events total",
		s.FramesPerSecond,
		FormatCount(int64(s.EventsPerSecond)),
		FormatCount(s.TotalFrames),
		FormatCount(s.TotalEvents))
}

// FormatCount renders large counts with K/M suffixes for log lines and
// overlays.
func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
