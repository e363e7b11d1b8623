package capture

import (
	"sync"
	"time"
)

// Pacer switches the frame loop between an idle and an active rate.
// Motion switches to active at once; the rate drops back to idle once no
// motion has been seen for the idle timeout.
type Pacer struct {
	idleFPS     int
	activeFPS   int
	idleTimeout time.Duration

	mu         sync.Mutex
	active     bool
	lastMotion time.Time
}

// NewPacer returns a pacer that starts idle.
func NewPacer(idleFPS, activeFPS int, idleTimeout time.Duration) *Pacer {
	if idleFPS <= 0 {
		idleFPS = DefaultFPS
	}
	if activeFPS < idleFPS {
		activeFPS = idleFPS
	}
	return &Pacer{idleFPS: idleFPS, activeFPS: activeFPS, idleTimeout: idleTimeout}
}

// Observe records whether the frame at now had motion. It returns the
// frame rate to run at and whether it changed.
func (p *Pacer) Observe(motion bool, now time.Time) (fps int, changed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case motion:
		p.lastMotion = now
		if !p.active {
			p.active = true
			changed = true
		}
	case p.active && now.Sub(p.lastMotion) > p.idleTimeout:
		p.active = false
		changed = true
	}
	return p.fps(), changed
}

// Active reports whether the pacer is in active mode.
func (p *Pacer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// FPS returns the current rate.
func (p *Pacer) FPS() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fps()
}

// Interval returns the frame period at the current rate.
func (p *Pacer) Interval() time.Duration {
	return time.Second / time.Duration(p.FPS())
}

func (p *Pacer) fps() int {
	if p.active {
		return p.activeFPS
	}
	return p.idleFPS
}
