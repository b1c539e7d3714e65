// Package agg builds one-minute OHLCV bars from the broker's LTP feed.
package agg

import (
	"sync"
	"time"

	"breakdown-systemv1/internal/markethours"
	"breakdown-systemv1/internal/model"
)

// minuteState is the forming bar for one symbol.
type minuteState struct {
	minute      int64 // floor(wallclock/60) of this bucket
	open        float64
	high        float64
	low         float64
	close       float64
	startDayVol int64 // cumulative day volume at the first tick of the minute
}

// Aggregator turns a serial stream of (symbol, ltp, dayVolume) prints into
// minute bars. A bar closes only when a later-minute tick arrives for the
// same symbol; there is no timer flush, so a symbol that stops ticking
// leaves its last bar forming. Minute classification uses the local wall
// clock, never broker timestamps, keeping all symbols on one clock.
type Aggregator struct {
	mu     sync.Mutex
	states map[string]*minuteState

	now func() time.Time // overridable in tests
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{
		states: make(map[string]*minuteState),
		now:    time.Now,
	}
}

// Ingest incorporates one feed print. It always returns the tick record to
// publish, plus the bar that a minute rollover just closed, or nil.
//
// Volume is the delta of the broker's cumulative day volume across the
// minute, clamped at zero for the opening minute where the start-of-minute
// snapshot is missing or resets.
func (a *Aggregator) Ingest(symbol string, ltp float64, dayVolume int64) (model.Tick, *model.Candle) {
	now := a.now()
	minute := now.Unix() / 60
	tick := model.Tick{Symbol: symbol, LTP: ltp, TS: now}

	a.mu.Lock()
	defer a.mu.Unlock()

	state, ok := a.states[symbol]
	if !ok {
		a.states[symbol] = newState(minute, ltp, dayVolume)
		return tick, nil
	}

	if minute > state.minute {
		closed := a.finalize(symbol, state, dayVolume)
		a.states[symbol] = newState(minute, ltp, dayVolume)
		return tick, closed
	}

	// Same minute (or a backwards clock step): fold into the forming bar.
	if ltp > state.high {
		state.high = ltp
	}
	if ltp < state.low {
		state.low = ltp
	}
	state.close = ltp
	return tick, nil
}

func newState(minute int64, ltp float64, dayVolume int64) *minuteState {
	return &minuteState{
		minute:      minute,
		open:        ltp,
		high:        ltp,
		low:         ltp,
		close:       ltp,
		startDayVol: dayVolume,
	}
}

func (a *Aggregator) finalize(symbol string, state *minuteState, dayVolume int64) *model.Candle {
	vol := dayVolume - state.startDayVol
	if vol < 0 {
		vol = 0
	}
	return &model.Candle{
		Symbol: symbol,
		Open:   state.open,
		High:   state.high,
		Low:    state.low,
		Close:  state.close,
		Volume: vol,
		TS:     time.Unix(state.minute*60, 0).In(markethours.IST),
	}
}

// Forming returns how many symbols currently have an open bar.
func (a *Aggregator) Forming() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.states)
}
