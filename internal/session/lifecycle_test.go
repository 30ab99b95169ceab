package session

import (
	"errors"
	"strings"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusRecording, StatusPaused, true},
		{StatusRecording, StatusStopped, true},
		{StatusPaused, StatusRecording, true},
		{StatusPaused, StatusStopped, true},
		{StatusStopped, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},

		// No skipping ahead.
		{StatusRecording, StatusProcessing, false},
		{StatusRecording, StatusCompleted, false},
		{StatusPaused, StatusProcessing, false},

		// No going back.
		{StatusStopped, StatusRecording, false},
		{StatusStopped, StatusPaused, false},
		{StatusProcessing, StatusRecording, false},
		{StatusCompleted, StatusProcessing, false},

		// Re-applying the current status is not a transition.
		{StatusRecording, StatusRecording, false},
		{StatusPaused, StatusPaused, false},
		{StatusStopped, StatusStopped, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidateTransitionError(t *testing.T) {
	err := ValidateTransition(StatusStopped, StatusRecording)
	if err == nil {
		t.Fatal("expected error for stopped -> recording")
	}
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("error %v should wrap ErrInvalidState", err)
	}
	if got := err.Error(); !strings.Contains(got, "stopped -> recording") {
		t.Errorf("error %q should name both statuses", got)
	}
}

func TestAllowedFrom(t *testing.T) {
	from := AllowedFrom(StatusStopped)
	if len(from) != 2 {
		t.Fatalf("AllowedFrom(stopped) = %v, want recording and paused", from)
	}
	seen := map[Status]bool{}
	for _, s := range from {
		seen[s] = true
	}
	if !seen[StatusRecording] || !seen[StatusPaused] {
		t.Errorf("AllowedFrom(stopped) = %v", from)
	}

	if from := AllowedFrom(StatusRecording); len(from) != 1 || from[0] != StatusPaused {
		t.Errorf("AllowedFrom(recording) = %v, want [paused]", from)
	}
}

func TestCanUpload(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusRecording, true},
		{StatusPaused, true},
		{StatusStopped, false},
		{StatusProcessing, false},
		{StatusCompleted, false},
	}
	for _, tt := range tests {
		if got := CanUpload(tt.status); got != tt.want {
			t.Errorf("CanUpload(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	if Terminal(StatusRecording) || Terminal(StatusStopped) || Terminal(StatusProcessing) {
		t.Error("non-terminal status reported terminal")
	}
	if !Terminal(StatusCompleted) {
		t.Error("completed should be terminal")
	}
}
