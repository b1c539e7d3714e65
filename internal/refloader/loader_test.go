package refloader

import (
	"context"
	"errors"
	"testing"
	"time"

	"breakdown-systemv1/internal/markethours"
	"breakdown-systemv1/internal/model"
	"breakdown-systemv1/pkg/fyers"
)

var loaderNow = time.Date(2026, 2, 26, 8, 45, 0, 0, markethours.IST)

func istBar(day int, o, h, l, c float64, v int64) fyers.HistoryBar {
	ts := time.Date(2026, 2, day, 9, 15, 0, 0, markethours.IST).Unix()
	return fyers.HistoryBar{TS: ts, Open: o, High: h, Low: l, Close: c, Volume: v}
}

func row(b fyers.HistoryBar) []float64 {
	return []float64{float64(b.TS), b.Open, b.High, b.Low, b.Close, float64(b.Volume)}
}

func TestPreviousCompletedUsesLastClosedSession(t *testing.T) {
	bars := []fyers.HistoryBar{
		istBar(24, 2010, 2030, 1995, 2005, 900_000),
		istBar(25, 2005, 2020, 2000, 2004, 800_000),
	}
	d, ok := PreviousCompleted(bars, loaderNow)
	if !ok {
		t.Fatal("no bar selected")
	}
	if d.Low != 2000 || d.Close != 2004 {
		t.Errorf("picked L=%.2f C=%.2f, want the Feb 25 session", d.Low, d.Close)
	}
}

func TestPreviousCompletedSkipsInProgressToday(t *testing.T) {
	// Run intraday: the API already returns a partial bar for today.
	bars := []fyers.HistoryBar{
		istBar(25, 2005, 2020, 2000, 2004, 800_000),
		istBar(26, 2004, 2012, 2001, 2008, 150_000),
	}
	d, ok := PreviousCompleted(bars, loaderNow)
	if !ok {
		t.Fatal("no bar selected")
	}
	if d.Low != 2000 {
		t.Errorf("picked L=%.2f, want the completed Feb 25 session", d.Low)
	}
}

func TestPreviousCompletedOnlyTodayBar(t *testing.T) {
	bars := []fyers.HistoryBar{istBar(26, 2004, 2012, 2001, 2008, 150_000)}
	if _, ok := PreviousCompleted(bars, loaderNow); ok {
		t.Error("selected an in-progress session as reference")
	}
}

func TestPreviousCompletedEmpty(t *testing.T) {
	if _, ok := PreviousCompleted(nil, loaderNow); ok {
		t.Error("selected a bar from no data")
	}
}

// fakeHistory serves canned responses per symbol.
type fakeHistory struct {
	resp  map[string]*fyers.HistoryResponse
	err   map[string]error
	calls []string
}

func (f *fakeHistory) History(_ context.Context, req fyers.HistoryRequest) (*fyers.HistoryResponse, error) {
	f.calls = append(f.calls, req.Symbol)
	if err := f.err[req.Symbol]; err != nil {
		return nil, err
	}
	return f.resp[req.Symbol], nil
}

type fakeRefStore struct {
	cached map[string]model.DayOHLC
}

func (f *fakeRefStore) SetPrevDayOHLC(_ context.Context, symbol string, d model.DayOHLC) error {
	if f.cached == nil {
		f.cached = map[string]model.DayOHLC{}
	}
	f.cached[symbol] = d
	return nil
}

func TestRunCachesCompletedBars(t *testing.T) {
	api := &fakeHistory{
		resp: map[string]*fyers.HistoryResponse{
			"NSE:SBIN-EQ": {S: "ok", Candles: [][]float64{
				row(istBar(24, 810, 815, 800, 805, 2_000_000)),
				row(istBar(25, 805, 812, 798, 803, 1_800_000)),
			}},
			"NSE:RELIANCE-EQ": {S: "ok", Candles: [][]float64{
				row(istBar(25, 2005, 2020, 2000, 2004, 800_000)),
			}},
		},
		err: map[string]error{
			"NSE:HDFCBANK-EQ": errors.New("rate limited"),
		},
	}
	store := &fakeRefStore{}
	l := New(api, store, []string{"NSE:SBIN-EQ", "NSE:RELIANCE-EQ", "NSE:HDFCBANK-EQ"}, 5, 0)
	l.now = func() time.Time { return loaderNow }

	if err := l.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(api.calls) != 3 {
		t.Errorf("history calls = %v, want all three symbols", api.calls)
	}
	if len(store.cached) != 2 {
		t.Fatalf("cached = %d symbols, want 2 (one failed)", len(store.cached))
	}
	if store.cached["NSE:SBIN-EQ"].Low != 798 {
		t.Errorf("SBIN low = %.2f, want the Feb 25 session", store.cached["NSE:SBIN-EQ"].Low)
	}
	if store.cached["NSE:RELIANCE-EQ"].Close != 2004 {
		t.Errorf("RELIANCE close = %.2f", store.cached["NSE:RELIANCE-EQ"].Close)
	}
}

func TestRunFailsWhenNothingLoads(t *testing.T) {
	api := &fakeHistory{err: map[string]error{
		"NSE:SBIN-EQ": errors.New("token expired"),
	}}
	l := New(api, &fakeRefStore{}, []string{"NSE:SBIN-EQ"}, 5, 0)
	l.now = func() time.Time { return loaderNow }

	if err := l.Run(context.Background()); err == nil {
		t.Fatal("want error when zero symbols load")
	}
}
