package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// Replay serves a fixed list of frames, for tests and demos without a
// camera.
type Replay struct {
	loop bool

	mu     sync.Mutex
	frames []*gocv.Mat
	next   int
	open   bool
	fps    int
}

// NewReplay plays frames in order, restarting at the end when loop is set.
// Frames stay owned by the caller.
func NewReplay(frames []*gocv.Mat, loop bool) *Replay {
	return &Replay{frames: frames, loop: loop, fps: DefaultFPS}
}

func (r *Replay) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = true
	r.next = 0
	return nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open = false
	return nil
}

// ReadFrame returns a clone of the next frame.
func (r *Replay) ReadFrame() (*gocv.Mat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.open {
		return nil, ErrNotOpen
	}
	if r.next >= len(r.frames) {
		if !r.loop || len(r.frames) == 0 {
			return nil, ErrEndOfStream
		}
		r.next = 0
	}
	frame := r.frames[r.next].Clone()
	r.next++
	return &frame, nil
}

func (r *Replay) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	r.mu.Lock()
	r.fps = fps
	r.mu.Unlock()
}

func (r *Replay) FPS() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fps
}

func (r *Replay) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// Played returns how many frames have been read since Open.
func (r *Replay) Played() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}
