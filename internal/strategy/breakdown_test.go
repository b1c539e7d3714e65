package strategy

import (
	"math"
	"testing"

	"breakdown-systemv1/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestIsBreakdown(t *testing.T) {
	pdl := 2000.0
	cases := []struct {
		name string
		c    model.Candle
		want bool
	}{
		{"opens above closes below", model.Candle{Open: 2005, Close: 1998}, true},
		{"opens below", model.Candle{Open: 1999, Close: 1990}, false},
		{"closes above", model.Candle{Open: 2005, Close: 2001}, false},
		{"opens at pdl", model.Candle{Open: 2000, Close: 1998}, false},
		{"closes at pdl", model.Candle{Open: 2005, Close: 2000}, false},
	}
	for _, tc := range cases {
		if got := IsBreakdown(tc.c, pdl); got != tc.want {
			t.Errorf("%s: IsBreakdown = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMeetsTurnover(t *testing.T) {
	full := model.Candle{Close: 1998, Volume: 100_000} // 199,800,000
	thin := model.Candle{Close: 1998, Volume: 1000}    // 1,998,000
	if !MeetsTurnover(full, 10_000_000) {
		t.Error("199.8M turnover should pass the 1cr floor")
	}
	if MeetsTurnover(thin, 10_000_000) {
		t.Error("1.998M turnover should fail the 1cr floor")
	}
}

func TestBuildPlan(t *testing.T) {
	c := model.Candle{Open: 2005, High: 2008, Low: 1995, Close: 1998, Volume: 100_000}
	cfg := model.Settings{RiskPerTradeAmount: 500, RiskRewardRatio: 2.5}

	p, err := BuildPlan(c, cfg)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !almostEqual(p.EntryLevel, 1994.601) {
		t.Errorf("entry = %.6f, want 1994.601", p.EntryLevel)
	}
	if !almostEqual(p.StopLoss, 2008.4016) {
		t.Errorf("stop = %.6f, want 2008.4016", p.StopLoss)
	}
	if !almostEqual(p.RiskPerUnit, 13.8006) {
		t.Errorf("risk = %.6f, want 13.8006", p.RiskPerUnit)
	}
	if p.Quantity != 36 {
		t.Errorf("quantity = %d, want 36", p.Quantity)
	}
	if !almostEqual(p.TargetPrice, 1960.0995) {
		t.Errorf("target = %.6f, want 1960.0995", p.TargetPrice)
	}
}

func TestBuildPlanQuantityFloor(t *testing.T) {
	// Risk per share exceeds the per-trade risk amount: still trade one share.
	c := model.Candle{High: 4100, Low: 3000}
	cfg := model.Settings{RiskPerTradeAmount: 500, RiskRewardRatio: 2.5}

	p, err := BuildPlan(c, cfg)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if p.Quantity != 1 {
		t.Errorf("quantity = %d, want floor of 1", p.Quantity)
	}
}

func TestBuildPlanInvalidRisk(t *testing.T) {
	// Degenerate bar: padded entry sits above the padded stop.
	c := model.Candle{High: 1000, Low: 1000.5}
	cfg := model.Settings{RiskPerTradeAmount: 500, RiskRewardRatio: 2.5}

	if _, err := BuildPlan(c, cfg); err != ErrInvalidRisk {
		t.Errorf("err = %v, want ErrInvalidRisk", err)
	}
}

func TestEntryTriggered(t *testing.T) {
	trade := &model.Trade{EntryLevel: 1994.601}
	if EntryTriggered(trade, 1994.61) {
		t.Error("ltp above entry must not trigger")
	}
	if !EntryTriggered(trade, 1994.601) {
		t.Error("ltp at entry must trigger")
	}
	if !EntryTriggered(trade, 1990) {
		t.Error("ltp below entry must trigger")
	}
}

func TestExitCheck(t *testing.T) {
	trade := &model.Trade{StopLoss: 2008.4016, TargetPrice: 1960.0995}

	if reason, ok := ExitCheck(trade, 2000); ok {
		t.Errorf("mid-range ltp exited with %q", reason)
	}
	if reason, ok := ExitCheck(trade, 2008.41); !ok || reason != model.ReasonStopLoss {
		t.Errorf("stop breach = (%q, %v)", reason, ok)
	}
	if reason, ok := ExitCheck(trade, 1960); !ok || reason != model.ReasonTarget {
		t.Errorf("target breach = (%q, %v)", reason, ok)
	}
}

func TestBreakevenTrail(t *testing.T) {
	trade := &model.Trade{
		ActualEntryPrice: 1000,
		StopLoss:         1010,
		TargetPrice:      975,
	}

	// 12.4 points of profit is under the 12.5 trigger.
	if _, ok := BreakevenStop(trade, 987.6, 1.25); ok {
		t.Error("moved break-even below trigger profit")
	}

	// Exactly 12.5 = 10 * 1.25 triggers the move to entry.
	newStop, ok := BreakevenStop(trade, 987.5, 1.25)
	if !ok || !almostEqual(newStop, 1000) {
		t.Fatalf("BreakevenStop = (%v, %v), want (1000, true)", newStop, ok)
	}
	trade.StopLoss = newStop
	trade.IsBreakevenMoved = true

	// Latched: never computed again.
	if _, ok := BreakevenStop(trade, 980, 1.25); ok {
		t.Error("break-even recomputed after latch")
	}

	// The pullback through the relocated stop exits at Stop Loss.
	if reason, ok := ExitCheck(trade, 1000.5); !ok || reason != model.ReasonStopLoss {
		t.Errorf("post-move exit = (%q, %v)", reason, ok)
	}
}

func TestBreakevenUsesPlannedEntryWhenNoFill(t *testing.T) {
	trade := &model.Trade{
		EntryLevel: 1000, // no actual fill recorded
		StopLoss:   1010,
	}
	newStop, ok := BreakevenStop(trade, 987.5, 1.25)
	if !ok || !almostEqual(newStop, 1000) {
		t.Errorf("BreakevenStop = (%v, %v), want planned entry", newStop, ok)
	}
}

func TestShortPnL(t *testing.T) {
	if got := ShortPnL(1000, 975, 10); !almostEqual(got, 250) {
		t.Errorf("winning short pnl = %v, want 250", got)
	}
	if got := ShortPnL(1000, 1010, 10); !almostEqual(got, -100) {
		t.Errorf("losing short pnl = %v, want -100", got)
	}
}
