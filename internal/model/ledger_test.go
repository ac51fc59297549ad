package model

import (
	"testing"
	"time"
)

func TestSentRecordLiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 14 * 24 * time.Hour

	tests := []struct {
		name     string
		lastSeen time.Time
		want     bool
	}{
		{"two days ago", now.Add(-48 * time.Hour), true},
		{"exactly at ttl", now.Add(-ttl), true},
		{"just past ttl", now.Add(-ttl - time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := SentRecord{LastSeenAt: tt.lastSeen}
			if got := r.LiveAt(now, ttl); got != tt.want {
				t.Errorf("LiveAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAlertFrequencyMinInterval(t *testing.T) {
	if AlertDaily.MinInterval() != 24*time.Hour {
		t.Error("daily should be 24h")
	}
	if AlertWeekly.MinInterval() != 168*time.Hour {
		t.Error("weekly should be 168h")
	}
	if AlertAlways.MinInterval() != 0 || AlertFrequency("").MinInterval() != 0 {
		t.Error("always and empty should not gate")
	}
}

func TestParseSourceState(t *testing.T) {
	st, err := ParseSourceState(" Active ")
	if err != nil || st != SourceActive {
		t.Fatalf("got %q, %v", st, err)
	}
	if _, err := ParseSourceState("retired"); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestConfigHashStable(t *testing.T) {
	a := SourceConfig{ID: "a", Provider: "greenhouse", Params: map[string]any{"board_token": "acme", "x": 1}}
	b := SourceConfig{ID: "b", Provider: "greenhouse", Params: map[string]any{"x": 1, "board_token": "acme"}}
	if a.ConfigHash() != b.ConfigHash() {
		t.Error("equal params should hash equally regardless of id or key order")
	}
	b.Params["board_token"] = "other"
	if a.ConfigHash() == b.ConfigHash() {
		t.Error("changed params should change the hash")
	}
}
