package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"breakdown-systemv1/internal/model"
)

// fakePublisher records publishes and fails while down is set.
type fakePublisher struct {
	mu      sync.Mutex
	down    bool
	ticks   []model.Tick
	candles []model.Candle
}

func (f *fakePublisher) publishTick(ctx context.Context, tk model.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.ticks = append(f.ticks, tk)
	return nil
}

func (f *fakePublisher) publishCandle(ctx context.Context, c model.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errors.New("connection refused")
	}
	f.candles = append(f.candles, c)
	return nil
}

func (f *fakePublisher) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *fakePublisher) candleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.candles)
}

func newTestBufferedWriter(f *fakePublisher, cb *CircuitBreaker) *BufferedWriter {
	bw := &BufferedWriter{
		cb:            cb,
		ctx:           context.Background(),
		publishTick:   f.publishTick,
		publishCandle: f.publishCandle,
		buffer:        make([]pendingWrite, 0, 16),
		maxBuf:        100,
	}
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}
	return bw
}

func TestBufferedWriter_BuffersCandlesWhileDown(t *testing.T) {
	f := &fakePublisher{}
	cb := NewCircuitBreaker(2, time.Hour)
	bw := newTestBufferedWriter(f, cb)

	f.setDown(true)
	for i := 0; i < 5; i++ {
		bw.WriteCandle(model.Candle{Symbol: "NSE:SBIN-EQ", Close: 800})
	}

	// First two failures trip the breaker; every attempt was buffered.
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected Open, got %v", cb.CurrentState())
	}
	if got := bw.PendingCount(); got != 5 {
		t.Errorf("expected 5 buffered candles, got %d", got)
	}
	if f.candleCount() != 0 {
		t.Errorf("expected no delivered candles, got %d", f.candleCount())
	}
}

func TestBufferedWriter_FlushOnRecovery(t *testing.T) {
	f := &fakePublisher{}
	cb := NewCircuitBreaker(1, 10*time.Millisecond)
	bw := newTestBufferedWriter(f, cb)

	f.setDown(true)
	bw.WriteCandle(model.Candle{Symbol: "NSE:SBIN-EQ", Close: 800})
	bw.WriteCandle(model.Candle{Symbol: "NSE:INFY-EQ", Close: 1500})

	f.setDown(false)
	time.Sleep(20 * time.Millisecond)

	// Probe write closes the circuit, which triggers the async flush.
	if err := bw.WriteCandle(model.Candle{Symbol: "NSE:TCS-EQ", Close: 4100}); err != nil {
		t.Fatalf("probe write: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for f.candleCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.candleCount() != 3 {
		t.Fatalf("expected 3 delivered candles after flush, got %d", f.candleCount())
	}
	if bw.PendingCount() != 0 {
		t.Errorf("expected empty buffer after flush, got %d", bw.PendingCount())
	}
}

func TestBufferedWriter_TicksNotBufferedWhileClosed(t *testing.T) {
	f := &fakePublisher{}
	cb := NewCircuitBreaker(10, time.Hour)
	bw := newTestBufferedWriter(f, cb)

	f.setDown(true)
	if err := bw.WriteTick(model.Tick{Symbol: "NSE:SBIN-EQ", LTP: 800}); err == nil {
		t.Fatal("expected error while closed and down")
	}
	if bw.PendingCount() != 0 {
		t.Errorf("closed-circuit tick failures should not buffer, got %d", bw.PendingCount())
	}
}

func TestBufferedWriter_DropsOldestWhenFull(t *testing.T) {
	f := &fakePublisher{}
	cb := NewCircuitBreaker(1, time.Hour)
	bw := newTestBufferedWriter(f, cb)
	bw.maxBuf = 3

	f.setDown(true)
	for i := 0; i < 5; i++ {
		bw.WriteCandle(model.Candle{Symbol: "NSE:SBIN-EQ", Close: float64(800 + i)})
	}

	if got := bw.PendingCount(); got != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", got)
	}
	bw.mu.Lock()
	first := bw.buffer[0].candle.Close
	bw.mu.Unlock()
	if first != 802 {
		t.Errorf("expected oldest surviving close 802, got %v", first)
	}
}
