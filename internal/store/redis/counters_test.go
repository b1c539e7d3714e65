package redis

import (
	"testing"
	"time"
)

func TestTradeCountersKeys(t *testing.T) {
	tc := &TradeCounters{
		now: func() time.Time {
			// 2026-08-24 10:15 IST
			return time.Date(2026, 8, 24, 10, 15, 0, 0, time.FixedZone("IST", 5*3600+1800))
		},
	}

	global, sym := tc.keys("NSE:SBIN-EQ")
	if global != "daily_count:2026-08-24" {
		t.Errorf("global key = %q", global)
	}
	if sym != "symbol_count:2026-08-24:NSE:SBIN-EQ" {
		t.Errorf("symbol key = %q", sym)
	}
}

func TestTradeCountersKeysUseIST(t *testing.T) {
	// 20:00 UTC is 01:30 IST the NEXT day; the counter date must roll with
	// the trading timezone, not the host clock's.
	tc := &TradeCounters{
		now: func() time.Time {
			return time.Date(2026, 8, 24, 20, 0, 0, 0, time.UTC)
		},
	}

	global, _ := tc.keys("NSE:SBIN-EQ")
	if global != "daily_count:2026-08-25" {
		t.Errorf("global key = %q, want next IST date", global)
	}
}
