package server

import (
	"testing"
	"time"
)

func TestShouldRestart(t *testing.T) {
	p := restartPolicy{maxAttempts: 3}

	tests := []struct {
		count int
		want  bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{3, false},
		{10, false},
	}
	for _, tt := range tests {
		if got := p.shouldRestart(tt.count); got != tt.want {
			t.Errorf("shouldRestart(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}

	disabled := restartPolicy{maxAttempts: 0}
	if disabled.shouldRestart(0) {
		t.Error("shouldRestart with maxAttempts=0 should be false")
	}
}

func TestBackoffDuration(t *testing.T) {
	p := restartPolicy{
		maxAttempts:    5,
		initialBackoff: 5 * time.Second,
		maxBackoff:     300 * time.Second,
	}

	tests := []struct {
		count int
		want  time.Duration
	}{
		{0, 5 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 40 * time.Second},
		{6, 300 * time.Second},  // 320s capped
		{20, 300 * time.Second}, // deep into the cap
	}
	for _, tt := range tests {
		if got := p.backoffDuration(tt.count); got != tt.want {
			t.Errorf("backoffDuration(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestBackoffDurationBadInputs(t *testing.T) {
	p := restartPolicy{initialBackoff: 0, maxBackoff: time.Minute}
	if got := p.backoffDuration(-1); got != time.Second {
		t.Errorf("backoffDuration(-1) = %v, want 1s", got)
	}

	// Huge counts must not overflow into a negative duration.
	if got := p.backoffDuration(1000); got != time.Minute {
		t.Errorf("backoffDuration(1000) = %v, want the cap", got)
	}
}
