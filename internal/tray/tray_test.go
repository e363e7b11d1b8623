package tray

import (
	"testing"
	"time"
)

func TestGestureLabel(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		name    string
		gesture string
		at      time.Time
		want    string
	}{
		{"none", "", time.Time{}, "Last gesture: none"},
		{"no time", "snap", time.Time{}, "Last gesture: snap"},
		{"recent", "peace", now.Add(-3 * time.Second), "Last gesture: peace (3s ago)"},
		{"future", "snap", now.Add(time.Minute), "Last gesture: snap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gestureLabel(tt.gesture, tt.at, now); got != tt.want {
				t.Errorf("gestureLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLabels(t *testing.T) {
	if got := personLabel(""); got != "Person: nobody" {
		t.Errorf("personLabel(\"\") = %q", got)
	}
	if got := personLabel("Ada"); got != "Person: Ada" {
		t.Errorf("personLabel(Ada) = %q", got)
	}
	if toggleLabel(true) == toggleLabel(false) {
		t.Error("toggle labels should differ")
	}
}

func TestTray_CallbacksBeforeRun(t *testing.T) {
	tr := New(nil, 0, nil)
	if !tr.IsEnabled() {
		t.Fatal("tray should start enabled")
	}
	var quit bool
	tr.OnQuit(func() { quit = true })
	tr.call(&tr.onQuit, false)
	if !quit {
		t.Error("quit callback was not run")
	}
	tr.call(&tr.onReset, false)
}
