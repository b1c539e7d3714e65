// Package strategy implements the intraday cash breakdown short.
//
// A one-minute bar that opens above the previous day's low and closes below
// it arms a short setup: entry just under the bar's low, stop just over its
// high, target at a fixed risk multiple below entry. Execution happens on
// ticks; this package only makes the pure decisions.
package strategy

import (
	"errors"
	"math"

	"breakdown-systemv1/internal/model"
)

// Entry and stop sit a couple of basis points beyond the trigger bar so a
// bare retest does not fill or stop the trade.
const (
	entryPad = 0.9998
	stopPad  = 1.0002
)

// ErrInvalidRisk rejects bars whose geometry yields a non-positive risk
// (degenerate or inverted bar), refusing the setup before any write.
var ErrInvalidRisk = errors.New("strategy: non-positive risk per share")

// Plan is the computed order plan for one armed setup.
type Plan struct {
	EntryLevel  float64
	StopLoss    float64
	TargetPrice float64
	Quantity    int
	RiskPerUnit float64
}

// IsBreakdown reports the pattern geometry: the bar opened above the
// previous day low and closed below it.
func IsBreakdown(c model.Candle, prevDayLow float64) bool {
	return c.Open > prevDayLow && c.Close < prevDayLow
}

// MeetsTurnover applies the liquidity floor: traded value of the bar must
// exceed the configured threshold (rupees).
func MeetsTurnover(c model.Candle, threshold int64) bool {
	return c.Turnover() > float64(threshold)
}

// BuildPlan computes the order plan from the trigger bar and risk settings.
//
// Quantity sizes the position so a full stop-out loses about the configured
// risk amount, floored at one share so thin-priced symbols still trade.
func BuildPlan(c model.Candle, cfg model.Settings) (Plan, error) {
	entry := c.Low * entryPad
	stop := c.High * stopPad
	risk := stop - entry
	if risk <= 0 {
		return Plan{}, ErrInvalidRisk
	}

	qty := int(math.Floor(cfg.RiskPerTradeAmount / risk))
	if qty < 1 {
		qty = 1
	}

	return Plan{
		EntryLevel:  entry,
		StopLoss:    stop,
		TargetPrice: entry - risk*cfg.RiskRewardRatio,
		Quantity:    qty,
		RiskPerUnit: risk,
	}, nil
}

// EntryTriggered reports whether ltp has reached the short entry.
func EntryTriggered(t *model.Trade, ltp float64) bool {
	return ltp <= t.EntryLevel
}

// ExitCheck returns the exit reason when ltp breaches the stop or target of
// an open short. Stop wins when a print somehow satisfies both.
func ExitCheck(t *model.Trade, ltp float64) (string, bool) {
	switch {
	case ltp >= t.StopLoss:
		return model.ReasonStopLoss, true
	case ltp <= t.TargetPrice:
		return model.ReasonTarget, true
	default:
		return "", false
	}
}

// BreakevenStop returns the new stop when unrealized profit has reached the
// trigger multiple of the initial risk. The reference entry is the actual
// fill when known, else the planned level; once latched the caller must not
// call this again (IsBreakevenMoved guards it).
func BreakevenStop(t *model.Trade, ltp, triggerR float64) (float64, bool) {
	if t.IsBreakevenMoved {
		return 0, false
	}
	entry := t.EntryReference()
	risk := t.StopLoss - entry
	if risk <= 0 {
		return 0, false
	}
	if entry-ltp >= risk*triggerR {
		return entry, true
	}
	return 0, false
}

// ShortPnL is realized profit for a short of qty shares.
func ShortPnL(entry, exit float64, qty int) float64 {
	return (entry - exit) * float64(qty)
}
