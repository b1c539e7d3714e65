package redis

import (
	"context"
	"log"
	"sync"

	"breakdown-systemv1/internal/model"
)

// pendingWrite is one publish held back while Redis was unreachable.
type pendingWrite struct {
	kind   string // "tick" or "candle"
	tick   model.Tick
	candle model.Candle
}

// BufferedWriter wraps a Writer with a circuit breaker. While the circuit is
// open, candle publishes are buffered locally and flushed once Redis comes
// back; each buffered candle is a bar the worker would otherwise never see.
// Ticks are buffered only in open state; a stale LTP print is superseded by
// the next one, so a long tick backlog is never replayed.
type BufferedWriter struct {
	cb  *CircuitBreaker
	ctx context.Context

	publishTick   func(context.Context, model.Tick) error
	publishCandle func(context.Context, model.Candle) error

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	// OnBuffer is called when a write is buffered; OnFlush after a replay.
	OnBuffer func()
	OnFlush  func(count int)
}

// NewBufferedWriter wires the breaker's close transition to a buffer flush.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		cb:            cb,
		ctx:           ctx,
		publishTick:   w.PublishTick,
		publishCandle: w.PublishCandle,
		buffer:        make([]pendingWrite, 0, 256),
		maxBuf:        maxBufferSize,
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

// WriteTick publishes a tick through the breaker. Open-circuit ticks are
// buffered; a failed write while the circuit is closed is simply dropped
// (the error still feeds the breaker's failure count).
func (bw *BufferedWriter) WriteTick(t model.Tick) error {
	err := bw.cb.Execute(func() error {
		return bw.publishTick(bw.ctx, t)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite(pendingWrite{kind: "tick", tick: t})
		return nil
	}
	return err
}

// WriteCandle publishes a closed bar through the breaker. Candles are
// buffered on any failure, not just open circuit: a lost bar is a lost
// trading signal.
func (bw *BufferedWriter) WriteCandle(c model.Candle) error {
	err := bw.cb.Execute(func() error {
		return bw.publishCandle(bw.ctx, c)
	})
	if err != nil {
		bw.bufferWrite(pendingWrite{kind: "candle", candle: c})
		if err == ErrCircuitOpen {
			return nil
		}
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(pw pendingWrite) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Full buffer drops the oldest entry first.
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pw)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays buffered writes directly through the writer, oldest first.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.kind {
		case "tick":
			if bw.publishTick(bw.ctx, pw.tick) == nil {
				flushed++
			}
		case "candle":
			if bw.publishCandle(bw.ctx, pw.candle) == nil {
				flushed++
			}
		}
	}

	log.Printf("[buffered-writer] flushed %d of %d buffered writes", flushed, len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of writes waiting for a flush.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
