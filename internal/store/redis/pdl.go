package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"breakdown-systemv1/internal/model"
)

// PrevDayOHLC loads the whole previous-day reference cache at once. Symbols
// with malformed entries are skipped rather than failing the load; the
// strategy treats a missing symbol as "no reference data, no trade".
func (r *Reader) PrevDayOHLC(ctx context.Context) (map[string]model.DayOHLC, error) {
	fields, err := r.client.HGetAll(ctx, PrevDayKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", PrevDayKey, err)
	}

	out := make(map[string]model.DayOHLC, len(fields))
	for symbol, raw := range fields {
		var d model.DayOHLC
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			log.Printf("[redis-reader] bad %s entry for %s: %v", PrevDayKey, symbol, err)
			continue
		}
		out[symbol] = d
	}
	return out, nil
}

// SetPrevDayOHLC caches one symbol's completed daily bar. The loader is the
// single writer of this hash; readers only ever HGETALL it.
func (w *Writer) SetPrevDayOHLC(ctx context.Context, symbol string, d model.DayOHLC) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal day ohlc: %w", err)
	}
	if err := w.client.HSet(ctx, PrevDayKey, symbol, string(raw)).Err(); err != nil {
		return fmt.Errorf("hset %s %s: %w", PrevDayKey, symbol, err)
	}
	return nil
}
