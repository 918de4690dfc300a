package playback

import (
	"testing"
	"time"
)

func TestShouldTakeOver(t *testing.T) {
	now := time.Now()
	timeout := 30 * time.Second

	tests := []struct {
		name          string
		lastHeartbeat time.Time
		want          bool
	}{
		{"zero heartbeat", time.Time{}, true},
		{"fresh heartbeat", now.Add(-5 * time.Second), false},
		{"exactly at timeout", now.Add(-30 * time.Second), true},
		{"stale heartbeat", now.Add(-2 * time.Minute), true},
		{"future heartbeat", now.Add(10 * time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldTakeOver(now, tt.lastHeartbeat, timeout); got != tt.want {
				t.Errorf("ShouldTakeOver(%v) = %v, want %v", tt.lastHeartbeat, got, tt.want)
			}
		})
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Now()
	timeout := 30 * time.Second
	fresh := now.Add(-5 * time.Second)
	stale := now.Add(-time.Minute)

	tests := []struct {
		name          string
		owner         string
		lastHeartbeat time.Time
		claimant      string
		want          Phase
	}{
		{"no owner", "", time.Time{}, "a", Unclaimed},
		{"own fresh claim", "a", fresh, "a", Controlled},
		{"other fresh claim", "b", fresh, "a", Contested},
		{"other stale claim", "b", stale, "a", Unclaimed},
		{"own stale claim", "a", stale, "a", Unclaimed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.owner, tt.lastHeartbeat, tt.claimant, now, timeout); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPhaseString(t *testing.T) {
	if Unclaimed.String() != "unclaimed" || Controlled.String() != "controlled" || Contested.String() != "contested" {
		t.Error("phase strings do not match")
	}
	if Phase(99).String() != "unknown" {
		t.Error("out-of-range phase should stringify as unknown")
	}
}
