package gesture

import (
	"testing"
	"time"

	"github.com/ayusman/facegift/internal/hands"
)

// fakeClock is advanced by hand.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// scripted returns a predicate that answers from a shared switch.
func scripted(on *bool) Predicate {
	return func(hands.Pixels) (bool, float64) {
		if *on {
			return true, 0.8
		}
		return false, 0
	}
}

func TestMachine_HoldLifecycle(t *testing.T) {
	clock := newClock()
	on := false
	m := NewMachine(TypeSnap, scripted(&on), 1, 2*time.Second, nil)
	m.now = clock.Now

	var p hands.Pixels

	if held, _, _ := m.Update("Right_0", p); held {
		t.Fatal("idle hand should not be held")
	}

	on = true
	held, conf, dur := m.Update("Right_0", p)
	if !held || conf != 0.8 || dur != 0 {
		t.Fatalf("entry: held=%v conf=%v dur=%v", held, conf, dur)
	}
	state, _ := m.State("Right_0")
	if !state.Active || !state.StartTime.Equal(clock.Now()) || state.PaymentTriggered {
		t.Errorf("entry state = %+v", state)
	}

	clock.Advance(1200 * time.Millisecond)
	if _, _, dur := m.Update("Right_0", p); dur != 1200*time.Millisecond {
		t.Errorf("hold duration = %v, want 1.2s", dur)
	}

	clock.Advance(time.Second)
	m.Update("Right_0", p)
	state, _ = m.State("Right_0")
	if !state.LastPrintTime.Equal(clock.Now()) {
		t.Error("progress should be logged after the log interval")
	}

	if !m.Latch("Right_0") {
		t.Error("first Latch() should succeed")
	}
	if m.Latch("Right_0") {
		t.Error("second Latch() in the same hold should fail")
	}

	on = false
	if held, _, _ := m.Update("Right_0", p); held {
		t.Error("released hand should not be held")
	}
	state, _ = m.State("Right_0")
	if state.Active || state.PaymentTriggered {
		t.Errorf("release should reset state, got %+v", state)
	}
	if m.Latch("Right_0") {
		t.Error("Latch() on an idle hand should fail")
	}
}

func TestMachine_StabilityWindow(t *testing.T) {
	on := true
	m := NewMachine(TypePeace, scripted(&on), 3, time.Second, nil)
	var p hands.Pixels

	for i := 1; i <= 2; i++ {
		if held, _, _ := m.Update("Left_0", p); held {
			t.Errorf("frame %d: should not be held before 3 frames", i)
		}
	}

	on = false
	m.Update("Left_0", p)
	on = true

	for i := 1; i <= 2; i++ {
		if held, _, _ := m.Update("Left_0", p); held {
			t.Errorf("frame %d after reset: should not be held", i)
		}
	}
	if held, _, _ := m.Update("Left_0", p); !held {
		t.Error("third consecutive frame should be held")
	}
}

func TestMachine_PerHandState(t *testing.T) {
	on := true
	m := NewMachine(TypeSnap, scripted(&on), 1, time.Second, nil)
	var p hands.Pixels

	m.Update("Right_0", p)
	m.Update("Left_1", p)
	if got := m.Active(); len(got) != 2 || got[0] != "Left_1" {
		t.Errorf("Active() = %v", got)
	}

	m.Release(map[string]bool{"Right_0": true})
	if got := m.Active(); len(got) != 1 || got[0] != "Right_0" {
		t.Errorf("after Release, Active() = %v", got)
	}

	m.Reset()
	if len(m.Active()) != 0 {
		t.Error("Reset() should forget every hand")
	}
}
