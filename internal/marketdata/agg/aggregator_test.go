package agg

import (
	"testing"
	"time"
)

// fixedClock steps a fake wall clock through the test.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func (c *fixedClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestAggregator(start time.Time) (*Aggregator, *fixedClock) {
	clk := &fixedClock{t: start}
	a := New()
	a.now = clk.now
	return a, clk
}

func TestAggregator_BasicBar(t *testing.T) {
	start := time.Date(2026, 8, 24, 10, 15, 0, 0, time.UTC)
	a, clk := newTestAggregator(start)

	// Three prints inside one minute
	a.Ingest("NSE:SBIN-EQ", 2005, 100_000)
	clk.advance(10 * time.Second)
	a.Ingest("NSE:SBIN-EQ", 2008, 140_000)
	clk.advance(10 * time.Second)
	tick, closed := a.Ingest("NSE:SBIN-EQ", 1995, 180_000)
	if closed != nil {
		t.Fatalf("bar closed mid-minute: %+v", closed)
	}
	if tick.Symbol != "NSE:SBIN-EQ" || tick.LTP != 1995 {
		t.Errorf("tick = %+v", tick)
	}

	// First print of the next minute closes the bar
	clk.advance(41 * time.Second)
	_, closed = a.Ingest("NSE:SBIN-EQ", 1998, 200_000)
	if closed == nil {
		t.Fatal("expected closed bar on minute rollover")
	}
	if closed.Open != 2005 || closed.High != 2008 || closed.Low != 1995 || closed.Close != 1995 {
		t.Errorf("ohlc = %v %v %v %v", closed.Open, closed.High, closed.Low, closed.Close)
	}
	if closed.Volume != 100_000 {
		t.Errorf("volume = %d, want day-volume delta 100000", closed.Volume)
	}
	if got := closed.TS.Unix(); got != start.Unix()/60*60 {
		t.Errorf("bar ts = %d, want minute start %d", got, start.Unix()/60*60)
	}
}

func TestAggregator_OnePerSymbolMinute(t *testing.T) {
	start := time.Date(2026, 8, 24, 10, 15, 0, 0, time.UTC)
	a, clk := newTestAggregator(start)

	closedCount := 0
	for i := 0; i <= 120; i++ {
		_, closed := a.Ingest("NSE:SBIN-EQ", 2000+float64(i%5), int64(1000*i))
		if closed != nil {
			closedCount++
		}
		clk.advance(time.Second)
	}

	// Prints from 10:15:00 through 10:17:00 cross exactly two minute
	// boundaries, so exactly two bars close.
	if closedCount != 2 {
		t.Errorf("closed %d bars, want 2", closedCount)
	}
}

func TestAggregator_SymbolsIndependent(t *testing.T) {
	start := time.Date(2026, 8, 24, 10, 15, 30, 0, time.UTC)
	a, clk := newTestAggregator(start)

	a.Ingest("NSE:SBIN-EQ", 800, 10)
	a.Ingest("NSE:INFY-EQ", 1500, 20)

	clk.advance(time.Minute)
	_, closedSBIN := a.Ingest("NSE:SBIN-EQ", 801, 15)
	if closedSBIN == nil || closedSBIN.Symbol != "NSE:SBIN-EQ" {
		t.Fatalf("expected SBIN bar, got %+v", closedSBIN)
	}
	// INFY has not printed in the new minute yet; its bar is still forming.
	if a.Forming() != 2 {
		t.Errorf("forming = %d, want 2", a.Forming())
	}

	_, closedINFY := a.Ingest("NSE:INFY-EQ", 1501, 25)
	if closedINFY == nil || closedINFY.Symbol != "NSE:INFY-EQ" {
		t.Fatalf("expected INFY bar, got %+v", closedINFY)
	}
}

func TestAggregator_VolumeClampedAtZero(t *testing.T) {
	start := time.Date(2026, 8, 24, 10, 15, 0, 0, time.UTC)
	a, clk := newTestAggregator(start)

	// Day-volume counter resets downward mid-minute (feed glitch).
	a.Ingest("NSE:SBIN-EQ", 2005, 500_000)
	clk.advance(time.Minute)
	_, closed := a.Ingest("NSE:SBIN-EQ", 2006, 400_000)
	if closed == nil {
		t.Fatal("expected closed bar")
	}
	if closed.Volume != 0 {
		t.Errorf("volume = %d, want clamp to 0", closed.Volume)
	}
}

func TestAggregator_NoTimerFlush(t *testing.T) {
	start := time.Date(2026, 8, 24, 10, 15, 0, 0, time.UTC)
	a, clk := newTestAggregator(start)

	a.Ingest("NSE:SBIN-EQ", 2005, 100)

	// Minutes pass with no prints; the bar must stay forming. The next print
	// then closes the ORIGINAL minute's bar, not an intermediate one.
	clk.advance(5 * time.Minute)
	_, closed := a.Ingest("NSE:SBIN-EQ", 2010, 200)
	if closed == nil {
		t.Fatal("expected closed bar")
	}
	if got := closed.TS.Unix(); got != start.Unix() {
		t.Errorf("bar ts = %d, want original minute %d", got, start.Unix())
	}
	if closed.Open != 2005 || closed.Close != 2005 {
		t.Errorf("bar = %+v, want single-print bar", closed)
	}
}
