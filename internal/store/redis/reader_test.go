package redis

import (
	"testing"
	"time"
)

func TestParseCandle(t *testing.T) {
	values := map[string]interface{}{
		"data": `{"symbol":"NSE:SBIN-EQ","open":2005,"high":2008,"low":1995,"close":1998,"volume":100000,"ts":"2026-08-24T10:15:00"}`,
	}
	c, err := parseCandle(values)
	if err != nil {
		t.Fatalf("parseCandle: %v", err)
	}
	if c.Symbol != "NSE:SBIN-EQ" {
		t.Errorf("symbol = %q", c.Symbol)
	}
	if c.Open != 2005 || c.High != 2008 || c.Low != 1995 || c.Close != 1998 {
		t.Errorf("ohlc = %v %v %v %v", c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume != 100000 {
		t.Errorf("volume = %d", c.Volume)
	}
	// Naive timestamps read as IST
	if got := c.TS.Format("15:04"); got != "10:15" {
		t.Errorf("ts local time = %s", got)
	}
}

func TestParseCandleOffsetTimestamp(t *testing.T) {
	values := map[string]interface{}{
		"data": `{"symbol":"NSE:INFY-EQ","open":1,"high":2,"low":0.5,"close":1.5,"volume":10,"ts":"2026-08-24T10:15:00+05:30"}`,
	}
	c, err := parseCandle(values)
	if err != nil {
		t.Fatalf("parseCandle: %v", err)
	}
	want := time.Date(2026, 8, 24, 10, 15, 0, 0, time.FixedZone("IST", 5*3600+1800))
	if !c.TS.Equal(want) {
		t.Errorf("ts = %v, want %v", c.TS, want)
	}
}

func TestParseCandleMalformed(t *testing.T) {
	cases := []map[string]interface{}{
		{},                              // no data field
		{"data": 42},                    // wrong type
		{"data": `{"symbol":`},          // truncated JSON
		{"data": `{"open":1,"ts":"x"}`}, // bad timestamp, no symbol
	}
	for i, values := range cases {
		if _, err := parseCandle(values); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestParseTick(t *testing.T) {
	values := map[string]interface{}{
		"symbol": "NSE:SBIN-EQ",
		"ltp":    "1997.55",
		"ts":     "1787892300.25",
	}
	tk, err := parseTick(values)
	if err != nil {
		t.Fatalf("parseTick: %v", err)
	}
	if tk.Symbol != "NSE:SBIN-EQ" || tk.LTP != 1997.55 {
		t.Errorf("tick = %+v", tk)
	}
	if tk.TS.Unix() != 1787892300 {
		t.Errorf("ts sec = %d", tk.TS.Unix())
	}
}

func TestParseTickMalformed(t *testing.T) {
	cases := []map[string]interface{}{
		{"ltp": "1.5", "ts": "1"},                            // missing symbol
		{"symbol": "NSE:SBIN-EQ", "ltp": "abc", "ts": "1"},   // bad ltp
		{"symbol": "NSE:SBIN-EQ", "ltp": "1.5", "ts": "now"}, // bad ts
	}
	for i, values := range cases {
		if _, err := parseTick(values); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
