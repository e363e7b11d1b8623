package transcript

import (
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock { return &clock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)} }

func TestBuffer_AddAndLatest(t *testing.T) {
	b := NewBuffer(10)
	if b.Latest() != "" {
		t.Error("empty buffer should have no latest text")
	}
	if _, ok := b.Add("   "); ok {
		t.Error("blank text should be ignored")
	}

	b.Add("hello")
	seg, ok := b.Add(" send five sui ")
	if !ok || seg.Seq != 2 || seg.Text != "send five sui" {
		t.Errorf("Add() = %+v, %v", seg, ok)
	}
	if got := b.Latest(); got != "send five sui" {
		t.Errorf("Latest() = %q", got)
	}
}

func TestBuffer_Evicts(t *testing.T) {
	b := NewBuffer(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.Add(s)
	}
	segs := b.Segments()
	if len(segs) != 3 || segs[0].Text != "c" || segs[0].Seq != 3 {
		t.Errorf("Segments() = %+v", segs)
	}
}

func TestBuffer_Recent(t *testing.T) {
	c := newClock()
	b := NewBuffer(10)
	b.now = c.now

	b.Add("old")
	c.advance(20 * time.Second)
	b.Add("newer")
	c.advance(5 * time.Second)
	b.Add("newest")

	if got := b.Recent(15 * time.Second); got != "newer newest" {
		t.Errorf("Recent(15s) = %q", got)
	}
	if got := b.Recent(time.Second); got != "newest" {
		t.Errorf("Recent(1s) = %q", got)
	}
}

func TestBuffer_Unprocessed(t *testing.T) {
	b := NewBuffer(3)
	b.Add("one")
	b.Add("two")

	if got := b.Unprocessed(); len(got) != 2 {
		t.Fatalf("first Unprocessed() = %+v", got)
	}
	if got := b.Unprocessed(); len(got) != 0 {
		t.Errorf("second Unprocessed() = %+v, want none", got)
	}

	// Wrap the ring past the read position.
	for _, s := range []string{"three", "four", "five", "six"} {
		b.Add(s)
	}
	got := b.Unprocessed()
	if len(got) != 3 || got[0].Text != "four" || got[2].Text != "six" {
		t.Errorf("Unprocessed() after wrap = %+v", got)
	}

	b.Clear()
	b.Add("seven")
	if got := b.Unprocessed(); len(got) != 1 || got[0].Text != "seven" {
		t.Errorf("Unprocessed() after Clear = %+v", got)
	}
}

func TestKeyword_Detect(t *testing.T) {
	c := newClock()
	k := NewKeyword("Workflow", 10*time.Second, 5*time.Second)
	k.now = c.now

	if k.Detect("nothing to see") {
		t.Error("Detect() without keyword = true")
	}
	if !k.Detect("okay WORKFLOW email Sam") {
		t.Error("Detect() should match case-insensitively")
	}
	c.advance(2 * time.Second)
	if k.Detect("workflow again") {
		t.Error("Detect() during cooldown = true")
	}
	c.advance(3 * time.Second)
	if !k.Detect("workflow again") {
		t.Error("Detect() after cooldown = false")
	}
}

func TestKeyword_Command(t *testing.T) {
	k := NewKeyword("workflow", 10*time.Second, 5*time.Second)

	tests := []struct {
		text   string
		want   string
		wantOK bool
	}{
		{"Workflow send the deck to Priya", "send the deck to Priya", true},
		{"um so workflow   schedule lunch ", "schedule lunch", true},
		{"workflow", "", false},
		{"no trigger here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := k.Command(tt.text)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Command(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
