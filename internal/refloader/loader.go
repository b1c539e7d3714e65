// Package refloader fetches each symbol's last completed daily bar from the
// broker history API and publishes it to the reference hash the algo worker
// reads at startup. It is a run-to-completion job, scheduled premarket.
package refloader

import (
	"context"
	"fmt"
	"log"
	"time"

	"breakdown-systemv1/internal/markethours"
	"breakdown-systemv1/internal/model"
	"breakdown-systemv1/pkg/fyers"
)

// HistoryAPI is the slice of the broker client the loader needs.
type HistoryAPI interface {
	History(ctx context.Context, req fyers.HistoryRequest) (*fyers.HistoryResponse, error)
}

// RefWriter caches one symbol's completed daily bar.
type RefWriter interface {
	SetPrevDayOHLC(ctx context.Context, symbol string, d model.DayOHLC) error
}

// Loader walks the symbol universe once. CallGap paces history calls to
// respect the broker rate limit.
type Loader struct {
	api     HistoryAPI
	store   RefWriter
	symbols []string

	lookbackDays int
	callGap      time.Duration

	now func() time.Time
}

// New builds a Loader. lookbackDays should span the longest run of holidays
// the exchange produces so at least one completed session is in range.
func New(api HistoryAPI, store RefWriter, symbols []string, lookbackDays int, callGap time.Duration) *Loader {
	if lookbackDays < 2 {
		lookbackDays = 2
	}
	return &Loader{
		api:          api,
		store:        store,
		symbols:      symbols,
		lookbackDays: lookbackDays,
		callGap:      callGap,
		now:          time.Now,
	}
}

// PreviousCompleted picks the last fully completed session from bars. When
// the final bar belongs to today (an in-progress session delivered intraday)
// the one before it is used instead.
func PreviousCompleted(bars []fyers.HistoryBar, now time.Time) (model.DayOHLC, bool) {
	if len(bars) == 0 {
		return model.DayOHLC{}, false
	}

	last := bars[len(bars)-1]
	if markethours.TradingDate(time.Unix(last.TS, 0)) == markethours.TradingDate(now) {
		if len(bars) < 2 {
			return model.DayOHLC{}, false
		}
		last = bars[len(bars)-2]
	}

	return model.DayOHLC{
		TS:     last.TS,
		Open:   last.Open,
		High:   last.High,
		Low:    last.Low,
		Close:  last.Close,
		Volume: last.Volume,
	}, true
}

// Run fetches and caches the reference bar for every symbol. Per-symbol
// failures are logged and skipped; the worker refuses to trade symbols with
// no cached reference, so a partial load degrades safely. An error is
// returned only when not a single symbol loaded.
func (l *Loader) Run(ctx context.Context) error {
	now := l.now()
	ist := now.In(markethours.IST)
	rangeTo := ist.Format("2006-01-02")
	rangeFrom := ist.AddDate(0, 0, -l.lookbackDays).Format("2006-01-02")

	log.Printf("[ohlcloader] loading daily bars %s..%s for %d symbols", rangeFrom, rangeTo, len(l.symbols))

	loaded := 0
	for i, symbol := range l.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && l.callGap > 0 {
			time.Sleep(l.callGap)
		}

		resp, err := l.api.History(ctx, fyers.HistoryRequest{
			Symbol:     symbol,
			Resolution: "D",
			RangeFrom:  rangeFrom,
			RangeTo:    rangeTo,
		})
		if err != nil {
			log.Printf("[ohlcloader] %s: history: %v", symbol, err)
			continue
		}

		bar, ok := PreviousCompleted(resp.Bars(), now)
		if !ok {
			log.Printf("[ohlcloader] %s: no completed session in range", symbol)
			continue
		}

		if err := l.store.SetPrevDayOHLC(ctx, symbol, bar); err != nil {
			log.Printf("[ohlcloader] %s: cache: %v", symbol, err)
			continue
		}

		log.Printf("[ohlcloader] %s: %s O=%.2f H=%.2f L=%.2f C=%.2f V=%d",
			symbol, markethours.TradingDate(time.Unix(bar.TS, 0)),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		loaded++
	}

	log.Printf("[ohlcloader] cached %d/%d symbols", loaded, len(l.symbols))
	if loaded == 0 && len(l.symbols) > 0 {
		return fmt.Errorf("refloader: loaded 0 of %d symbols", len(l.symbols))
	}
	return nil
}
