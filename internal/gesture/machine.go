package gesture

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/hands"
	"github.com/ayusman/facegift/internal/logging"
)

// HandState is the hold state of one gesture for one hand.
type HandState struct {
	Active           bool
	StartTime        time.Time
	LastPrintTime    time.Time
	PaymentTriggered bool
}

// Machine tracks how long each hand has held one gesture. Hands are keyed
// by HandLandmarks.Key.
type Machine struct {
	gesture     Type
	predicate   Predicate
	stable      int
	logInterval time.Duration
	log         *zap.SugaredLogger
	now         func() time.Time

	mu     sync.Mutex
	states map[string]*HandState
	streak map[string]int
}

// NewMachine returns a machine that activates after stable consecutive
// matching frames and logs hold progress at most every logInterval.
func NewMachine(gesture Type, predicate Predicate, stable int, logInterval time.Duration, log *zap.SugaredLogger) *Machine {
	if stable < 1 {
		stable = 1
	}
	return &Machine{
		gesture:     gesture,
		predicate:   predicate,
		stable:      stable,
		logInterval: logInterval,
		log:         logging.OrNop(log),
		now:         time.Now,
		states:      make(map[string]*HandState),
		streak:      make(map[string]int),
	}
}

// Gesture returns the pose this machine tracks.
func (m *Machine) Gesture() Type {
	return m.gesture
}

// Update evaluates one frame of hand key. It reports whether the gesture
// is held, the frame's confidence, and how long it has been held.
func (m *Machine) Update(key string, p hands.Pixels) (bool, float64, time.Duration) {
	ok, conf := m.predicate(p)

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.state(key)
	now := m.now()

	if !ok {
		m.streak[key] = 0
		if state.Active {
			m.log.Infof("%s released on %s after %.1fs", m.gesture, key, now.Sub(state.StartTime).Seconds())
			state.Active = false
			state.PaymentTriggered = false
		}
		return false, 0, 0
	}

	m.streak[key]++
	if m.streak[key] < m.stable {
		return false, conf, 0
	}

	if !state.Active {
		state.Active = true
		state.StartTime = now
		state.LastPrintTime = now
		state.PaymentTriggered = false
		m.log.Infof("%s detected on %s, confidence %.2f", m.gesture, key, conf)
	} else if now.Sub(state.LastPrintTime) > m.logInterval {
		state.LastPrintTime = now
		m.log.Infof("%s held on %s for %.1fs, confidence %.2f", m.gesture, key, now.Sub(state.StartTime).Seconds(), conf)
	}

	return true, conf, now.Sub(state.StartTime)
}

// Release deactivates every hand not in seen. A hand that leaves the frame
// ends its hold.
func (m *Machine) Release(seen map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, state := range m.states {
		if seen[key] {
			continue
		}
		m.streak[key] = 0
		state.Active = false
		state.PaymentTriggered = false
	}
}

// Latch marks the current hold of key as acted on. It returns false if the
// hand is not holding or the hold was already latched.
func (m *Machine) Latch(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[key]
	if !ok || !state.Active || state.PaymentTriggered {
		return false
	}
	state.PaymentTriggered = true
	return true
}

// State returns a copy of the state of key.
func (m *Machine) State(key string) (HandState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[key]
	if !ok {
		return HandState{}, false
	}
	return *state, true
}

// Active returns the keys currently holding the gesture, sorted.
func (m *Machine) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key, state := range m.states {
		if state.Active {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Reset forgets every hand.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*HandState)
	m.streak = make(map[string]int)
}

func (m *Machine) state(key string) *HandState {
	state, ok := m.states[key]
	if !ok {
		state = &HandState{}
		m.states[key] = state
	}
	return state
}
