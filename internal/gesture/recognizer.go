package gesture

import (
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/hands"
)

// Event reports a gesture held by one hand in one frame.
type Event struct {
	Type         Type            `json:"type"`
	BBox         image.Rectangle `json:"-"`
	Confidence   float64         `json:"confidence"`
	Hand         string          `json:"hand"`
	Key          string          `json:"key"`
	HoldDuration time.Duration   `json:"hold_duration"`
	Timestamp    time.Time       `json:"timestamp"`
	// Fire is set on the one frame where the hold crossed its threshold
	// and the trigger accepted it.
	Fire bool `json:"fire"`
}

// Box returns the hand box as x, y, width, height.
func (e Event) Box() (x, y, w, h int) {
	return e.BBox.Min.X, e.BBox.Min.Y, e.BBox.Dx(), e.BBox.Dy()
}

// Trigger fires once per hold after the hold threshold, and no more often
// than the cooldown across holds.
type Trigger struct {
	hold     time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lastFired time.Time
}

// NewTrigger returns a trigger for holds of at least hold.
func NewTrigger(hold, cooldown time.Duration) *Trigger {
	return &Trigger{hold: hold, cooldown: cooldown, now: time.Now}
}

// Check fires for key when its hold has lasted long enough, the hold has
// not fired yet, and the cooldown has passed.
func (t *Trigger) Check(m *Machine, key string, held time.Duration) bool {
	if held < t.hold {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.lastFired.IsZero() && t.now().Sub(t.lastFired) < t.cooldown {
		return false
	}
	if !m.Latch(key) {
		return false
	}
	t.lastFired = t.now()
	return true
}

// CooldownRemaining returns how long until the trigger can fire again.
func (t *Trigger) CooldownRemaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastFired.IsZero() {
		return 0
	}
	if left := t.cooldown - t.now().Sub(t.lastFired); left > 0 {
		return left
	}
	return 0
}

// Config sets hold thresholds and rate limits.
type Config struct {
	SnapHold          time.Duration
	PeaceHold         time.Duration
	SnapCooldown      time.Duration
	PeaceCooldown     time.Duration
	LogInterval       time.Duration
	PeaceStableFrames int
	BoxPadding        int
}

// DefaultConfig returns the gesture defaults.
func DefaultConfig() Config {
	return Config{
		SnapHold:          1500 * time.Millisecond,
		PeaceHold:         time.Second,
		SnapCooldown:      10 * time.Second,
		PeaceCooldown:     5 * time.Second,
		LogInterval:       2 * time.Second,
		PeaceStableFrames: 3,
		BoxPadding:        20,
	}
}

type tracked struct {
	machine *Machine
	trigger *Trigger
}

// Recognizer runs the snap and peace machines over every hand in a frame.
type Recognizer struct {
	config   Config
	gestures []tracked
	now      func() time.Time
}

// NewRecognizer builds the snap and peace machines.
func NewRecognizer(config Config, log *zap.SugaredLogger) *Recognizer {
	return &Recognizer{
		config: config,
		gestures: []tracked{
			{NewMachine(TypeSnap, Snap, 1, config.LogInterval, log), NewTrigger(config.SnapHold, config.SnapCooldown)},
			{NewMachine(TypePeace, Peace, config.PeaceStableFrames, config.LogInterval, log), NewTrigger(config.PeaceHold, config.PeaceCooldown)},
		},
		now: time.Now,
	}
}

// Process evaluates every hand found in a width x height frame and returns
// an event per held gesture.
func (r *Recognizer) Process(found []hands.HandLandmarks, width, height int) []Event {
	seen := make(map[string]bool, len(found))
	var events []Event

	for idx, hand := range found {
		key := hand.Key(idx)
		seen[key] = true
		px := hand.ToPixels(width, height)

		for _, g := range r.gestures {
			held, conf, dur := g.machine.Update(key, px)
			if !held {
				continue
			}
			events = append(events, Event{
				Type:         g.machine.Gesture(),
				BBox:         hand.BBox(width, height, r.config.BoxPadding),
				Confidence:   conf,
				Hand:         hand.Handedness,
				Key:          key,
				HoldDuration: dur,
				Timestamp:    r.now(),
				Fire:         g.trigger.Check(g.machine, key, dur),
			})
		}
	}

	for _, g := range r.gestures {
		g.machine.Release(seen)
	}
	return events
}

// ReleaseAll ends every hold, as if every hand had left the frame.
func (r *Recognizer) ReleaseAll() {
	for _, g := range r.gestures {
		g.machine.Release(nil)
	}
}

// Machine returns the machine for gesture, or nil.
func (r *Recognizer) Machine(gesture Type) *Machine {
	for _, g := range r.gestures {
		if g.machine.Gesture() == gesture {
			return g.machine
		}
	}
	return nil
}

// Cooldown returns the time until gesture can fire again.
func (r *Recognizer) Cooldown(gesture Type) time.Duration {
	for _, g := range r.gestures {
		if g.machine.Gesture() == gesture {
			return g.trigger.CooldownRemaining()
		}
	}
	return 0
}

// Reset forgets all hand state.
func (r *Recognizer) Reset() {
	for _, g := range r.gestures {
		g.machine.Reset()
	}
}
