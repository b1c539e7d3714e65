package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"breakdown-systemv1/internal/metrics"
	"breakdown-systemv1/internal/model"
)

const testSymbol = "NSE:RELIANCE-EQ"

// fakeMutator mirrors the SQL mutator's transitions onto a plain struct.
type fakeMutator struct{ t *model.Trade }

func (m *fakeMutator) MarkPendingEntry(_ context.Context, orderID string) error {
	m.t.Status = model.StatusPendingEntry
	m.t.EntryOrderID = orderID
	return nil
}

func (m *fakeMutator) MarkExpired(_ context.Context, reason string) error {
	m.t.Status = model.StatusExpired
	m.t.ExitReason = reason
	return nil
}

func (m *fakeMutator) MarkFailed(_ context.Context) error {
	m.t.Status = model.StatusFailed
	return nil
}

func (m *fakeMutator) MarkPendingExit(_ context.Context, orderID, reason string) error {
	m.t.Status = model.StatusPendingExit
	m.t.ExitOrderID = orderID
	m.t.ExitReason = reason
	return nil
}

func (m *fakeMutator) MoveStopToBreakeven(_ context.Context, newStop float64) error {
	m.t.StopLoss = newStop
	m.t.IsBreakevenMoved = true
	return nil
}

func (m *fakeMutator) MarkOpen(_ context.Context, fillPrice float64) error {
	m.t.Status = model.StatusOpen
	m.t.ActualEntryPrice = fillPrice
	return nil
}

func (m *fakeMutator) MarkClosed(_ context.Context, fillPrice, pnl float64) error {
	m.t.Status = model.StatusClosed
	m.t.ActualExitPrice = fillPrice
	m.t.PnL = pnl
	return nil
}

func (m *fakeMutator) RevertExit(_ context.Context, reason string) error {
	m.t.Status = model.StatusOpen
	m.t.ExitOrderID = ""
	m.t.ExitReason = reason
	return nil
}

// fakeStore is an in-memory TradeStore. WithLockedTrade runs fn against a
// copy and writes it back only on success, matching transaction rollback.
type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	trades map[int64]*model.Trade

	countToday int
	countErr   error
	insertErr  error
	listErr    error

	lockHeld map[int64]bool                // rows locked by another worker
	staleIDs map[model.TradeStatus][]int64 // overrides the status scan
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		trades:   map[int64]*model.Trade{},
		lockHeld: map[int64]bool{},
	}
}

func (s *fakeStore) add(t *model.Trade) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	s.trades[t.ID] = t
	return t.ID
}

func (s *fakeStore) InsertPendingTrade(_ context.Context, t *model.Trade) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	t.Status = model.StatusPending
	return s.add(t), nil
}

func (s *fakeStore) TradeIDsBySymbolStatus(_ context.Context, symbol string, status model.TradeStatus) ([]int64, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if ids, ok := s.staleIDs[status]; ok {
		return ids, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id := int64(1); id <= s.nextID; id++ {
		if t, ok := s.trades[id]; ok && t.Symbol == symbol && t.Status == status {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) CountActiveToday(_ context.Context, _ string, _ time.Time) (int, error) {
	return s.countToday, s.countErr
}

func (s *fakeStore) WithLockedTrade(ctx context.Context, id int64, fn model.TradeFunc) error {
	s.mu.Lock()
	if s.lockHeld[id] {
		s.mu.Unlock()
		return nil
	}
	t, ok := s.trades[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	work := *t
	if err := fn(ctx, &work, &fakeMutator{t: &work}); err != nil {
		return err
	}
	s.mu.Lock()
	*t = work
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) WithTradeByEntryOrder(ctx context.Context, orderID string, fn model.TradeFunc) (bool, error) {
	return s.withByOrder(ctx, orderID, false, fn)
}

func (s *fakeStore) WithTradeByExitOrder(ctx context.Context, orderID string, fn model.TradeFunc) (bool, error) {
	return s.withByOrder(ctx, orderID, true, fn)
}

func (s *fakeStore) withByOrder(ctx context.Context, orderID string, exit bool, fn model.TradeFunc) (bool, error) {
	s.mu.Lock()
	var match *model.Trade
	for id := int64(1); id <= s.nextID; id++ {
		t, ok := s.trades[id]
		if !ok {
			continue
		}
		if (exit && t.ExitOrderID == orderID) || (!exit && t.EntryOrderID == orderID) {
			match = t
			break
		}
	}
	s.mu.Unlock()
	if match == nil {
		return false, nil
	}

	work := *match
	if err := fn(ctx, &work, &fakeMutator{t: &work}); err != nil {
		return true, err
	}
	s.mu.Lock()
	*match = work
	s.mu.Unlock()
	return true, nil
}

// fakeGate scripts the cap verdict and records invocations.
type fakeGate struct {
	verdict    model.LimitVerdict
	reserveErr error

	reserveCalls []string
	rolledBack   []string
}

func (g *fakeGate) Reserve(_ context.Context, symbol string, _, _ int) (model.LimitVerdict, error) {
	if g.reserveErr != nil {
		return 0, g.reserveErr
	}
	g.reserveCalls = append(g.reserveCalls, symbol)
	if g.verdict == 0 {
		return model.LimitAllowed, nil
	}
	return g.verdict, nil
}

func (g *fakeGate) Rollback(_ context.Context, symbol string) error {
	g.rolledBack = append(g.rolledBack, symbol)
	return nil
}

type placedOrder struct {
	symbol string
	qty    int
	side   int
}

// fakeBroker returns sequential order ids, or err when scripted to fail.
type fakeBroker struct {
	err    error
	nextID int
	calls  []placedOrder
}

func (b *fakeBroker) PlaceMarketOrder(_ context.Context, symbol string, qty, side int) (string, error) {
	b.calls = append(b.calls, placedOrder{symbol, qty, side})
	if b.err != nil {
		return "", b.err
	}
	b.nextID++
	return fmt.Sprintf("ORD-%03d", b.nextID), nil
}

// newTestService wires a Service against the fakes with default settings
// (10/day, 2/symbol, 500 risk, 2.5 RR, 1.25R break-even, 1cr turnover) and
// a previous-day low of 2000 for the test symbol.
func newTestService(st *fakeStore, gate *fakeGate, broker *fakeBroker) *Service {
	svc := New(model.DefaultSettings(),
		map[string]model.DayOHLC{testSymbol: {Open: 2010, High: 2020, Low: 2000, Close: 2004}},
		Deps{
			Store:   st,
			Gate:    gate,
			Broker:  broker,
			Metrics: metrics.NewMetricsWith(prometheus.NewRegistry()),
			Trades:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
	svc.now = func() time.Time { return time.Date(2026, 2, 26, 11, 0, 0, 0, time.UTC) }
	return svc
}

// breakdownBar is the canonical trigger: opens above the 2000 reference low,
// closes below it, with ~19.98cr turnover.
func breakdownBar() model.Candle {
	return model.Candle{
		Symbol: testSymbol,
		Open:   2005,
		High:   2008,
		Low:    1995,
		Close:  1998,
		Volume: 100_000,
		TS:     time.Date(2026, 2, 26, 10, 30, 0, 0, time.UTC),
	}
}

func seedPending(st *fakeStore) *model.Trade {
	t := &model.Trade{
		Symbol:      testSymbol,
		Status:      model.StatusPending,
		EntryLevel:  1994.601,
		StopLoss:    2008.4016,
		TargetPrice: 1960.0995,
		Quantity:    36,
	}
	st.add(t)
	return t
}

func seedOpen(st *fakeStore) *model.Trade {
	t := &model.Trade{
		Symbol:           testSymbol,
		Status:           model.StatusOpen,
		EntryLevel:       1994.601,
		StopLoss:         2008.4016,
		TargetPrice:      1960.0995,
		Quantity:         36,
		EntryOrderID:     "ORD-ENTRY",
		ActualEntryPrice: 1994.55,
	}
	st.add(t)
	return t
}

func tickAt(ltp float64) model.Tick {
	return model.Tick{Symbol: testSymbol, LTP: ltp, TS: time.Date(2026, 2, 26, 10, 31, 2, 0, time.UTC)}
}
