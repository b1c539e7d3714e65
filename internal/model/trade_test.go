package model

import "testing"

func TestTerminalStatuses(t *testing.T) {
	terminal := []TradeStatus{StatusClosed, StatusFailed, StatusExpired}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	live := []TradeStatus{StatusPending, StatusPendingEntry, StatusOpen, StatusPendingExit}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s should allow further transitions", s)
		}
	}
}

func TestEntryReferencePrefersFill(t *testing.T) {
	tr := &Trade{EntryLevel: 1994.601}
	if got := tr.EntryReference(); got != 1994.601 {
		t.Fatalf("unfilled trade should reference the plan, got %v", got)
	}

	tr.ActualEntryPrice = 1994.55
	if got := tr.EntryReference(); got != 1994.55 {
		t.Fatalf("filled trade should reference the fill, got %v", got)
	}
}

func TestSocketTokenColonRule(t *testing.T) {
	bare := Credentials{AppID: "APP-100", AccessToken: "tok123"}
	if got := bare.SocketToken(); got != "APP-100:tok123" {
		t.Errorf("bare token should be prefixed, got %q", got)
	}

	full := Credentials{AppID: "APP-100", AccessToken: "OTHER-APP:tok456"}
	if got := full.SocketToken(); got != "OTHER-APP:tok456" {
		t.Errorf("prefixed token must pass through verbatim, got %q", got)
	}
}
