package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to, making boundary crossings
// deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1000, 0)} }

func newTestAggregator(c *fakeClock) *Aggregator { return NewWithClock(c.now) }

func TestUpdateAccumulatesTotals(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := newTestAggregator(clk)

	a.Update(10)
	a.Update(5)

	s := a.Snapshot()
	assert.Equal(t, int64(2), s.TotalFrames)
	assert.Equal(t, int64(15), s.TotalEvents)
	assert.Equal(t, int64(15), s.CurrentSecondEvents)
	assert.Zero(t, s.EventsPerSecond)
	assert.Empty(t, s.History)
}

func TestSecondBoundaryComputesRates(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := newTestAggregator(clk)

	for i := 0; i < 9; i++ {
		a.Update(100)
	}
	clk.advance(time.Second)
	a.Update(100) // crosses the boundary

	s := a.Snapshot()
	assert.InDelta(t, 1000.0, s.EventsPerSecond, 0.01)
	assert.InDelta(t, 10.0, s.FramesPerSecond, 0.01)
	assert.Equal(t, int64(0), s.CurrentSecondEvents)
	require.Len(t, s.History, 1)
	assert.InDelta(t, 1000.0, s.History[0], 0.01)
}

func TestBoundaryUsesActualElapsedTime(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := newTestAggregator(clk)

	// Two seconds elapse before the crossing is observed: the rate must
	// be divided by the real elapsed time, not assumed to be 1s.
	clk.advance(2 * time.Second)
	a.Update(600)

	s := a.Snapshot()
	assert.InDelta(t, 300.0, s.EventsPerSecond, 0.01)
}

func TestHistoryEvictsOldest(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := newTestAggregator(clk)

	for i := 0; i < HistoryCapacity+10; i++ {
		clk.advance(time.Second)
		a.Update((i + 1) * 10)
	}

	s := a.Snapshot()
	require.Len(t, s.History, HistoryCapacity)
	// The first ten samples are gone; the newest sample is last.
	assert.InDelta(t, 110.0, s.History[0], 0.01)
	assert.InDelta(t, float64((HistoryCapacity+10)*10), s.History[len(s.History)-1], 0.01)
}

func TestResetRestoresFreshState(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := newTestAggregator(clk)

	clk.advance(time.Second)
	a.Update(100)
	a.Update(50)

	a.Reset()
	s := a.Snapshot()
	assert.Zero(t, s.TotalFrames)
	assert.Zero(t, s.TotalEvents)
	assert.Zero(t, s.CurrentSecondEvents)
	assert.Zero(t, s.EventsPerSecond)
	assert.Zero(t, s.FramesPerSecond)
	assert.Empty(t, s.History)
	assert.Equal(t, clk.now(), s.StartTime)

	// Reset is idempotent.
	a.Reset()
	assert.Equal(t, s, a.Snapshot())
}

func TestSnapshotCopiesHistory(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	a := newTestAggregator(clk)

	clk.advance(time.Second)
	a.Update(100)

	s1 := a.Snapshot()
	require.Len(t, s1.History, 1)
	s1.History[0] = -1

	s2 := a.Snapshot()
	assert.InDelta(t, 100.0, s2.History[0], 0.01)
}

func TestFormatCount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "1.5K", FormatCount(1500))
	assert.Equal(t, "2.35M", FormatCount(2_350_000))
}
