package app

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facegift/internal/capture"
	"github.com/ayusman/facegift/internal/face"
	"github.com/ayusman/facegift/internal/gesture"
)

// faceEvent is broadcast for every face in a processed frame.
type faceEvent struct {
	PersonID   string        `json:"person_id,omitempty"`
	Name       string        `json:"name"`
	Confidence float64       `json:"confidence"`
	Recognized bool          `json:"recognized"`
	New        bool          `json:"new,omitempty"`
	Pending    bool          `json:"pending,omitempty"`
	Location   face.Location `json:"location"`
}

// runPipeline reads frames at the pacer's rate until ctx ends or a finite
// source runs dry.
//
// Per frame:
//  1. Motion decides between the idle and active rate
//  2. Faces are detected, recognized or tracked, and logged
//  3. In active mode, hands are checked for held gestures
//  4. Fired gestures become background jobs
//  5. The frame is published for streaming
func (a *App) runPipeline(ctx context.Context) {
	ticker := time.NewTicker(a.pacer.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := a.c.Source.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			a.log.Info("capture source ended")
			return
		}
		if err != nil {
			a.log.Warnf("read frame: %v", err)
			continue
		}

		if fps, changed := a.processFrame(frame, time.Now()); changed {
			a.c.Source.SetFPS(fps)
			ticker.Reset(time.Second / time.Duration(fps))
		}
		frame.Close()
	}
}

// processFrame runs one pipeline step. It returns the frame rate to run at
// and whether it changed.
func (a *App) processFrame(frame *gocv.Mat, now time.Time) (int, bool) {
	moved, percent := a.motion.Detect(frame)
	fps, changed := a.pacer.Observe(moved, now)
	if changed {
		a.log.Debugf("switched to %d fps (active=%v, %.2f%% changed)", fps, a.pacer.Active(), percent)
	}

	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	handsRan := false
	if a.IsEnabled() {
		a.processFaces(*frame, seq)
		if a.pacer.Active() {
			a.processHands(frame)
			handsRan = true
		}
	}
	// Hands nobody is looking at are not holding anything.
	if !handsRan {
		a.gesture.ReleaseAll()
	}

	if a.c.Frames != nil {
		if err := a.c.Frames.PublishMat(*frame); err != nil {
			a.log.Debugf("publish frame: %v", err)
		}
	}
	return fps, changed
}

func (a *App) processFaces(frame gocv.Mat, seq uint64) []faceEvent {
	results, ran, err := a.c.Faces.Process(frame)
	if err != nil {
		a.log.Warnf("face detection: %v", err)
		return nil
	}

	out := make([]faceEvent, 0, len(results))
	var focus *Person
	for _, r := range results {
		ev := faceEvent{Name: r.Name, Confidence: r.Confidence, Recognized: r.Recognized, Location: r.Location}
		if ran {
			a.observeFace(frame, seq, r, &ev)
		}
		out = append(out, ev)

		if area := r.Location.Area(); focus == nil || area > focus.area {
			focus = &Person{ID: ev.PersonID, Name: ev.Name, Recognized: ev.Recognized, area: area}
		}
	}

	if ran {
		a.flushPending()
		a.mu.Lock()
		a.focused = focus
		a.mu.Unlock()
		for _, ev := range out {
			a.publish("face", ev)
		}
	}
	return out
}

// observeFace logs a recognized face, or assigns an unknown one its
// tracked identity.
func (a *App) observeFace(frame gocv.Mat, seq uint64, r face.Result, ev *faceEvent) {
	if r.Recognized {
		if a.c.Events != nil {
			if _, err := a.c.Events.Recognition(r.Name, r.Confidence, r.Location); err != nil {
				a.log.Warnf("log recognition: %v", err)
			}
		}
		return
	}

	var id string
	var isNew bool
	if a.c.Tracker.Gated() {
		obs, err := a.c.Tracker.Observe(frame, seq, r.Encoding, r.Location)
		if err != nil {
			a.log.Warnf("track face: %v", err)
		}
		id, isNew, ev.Pending = obs.ID, obs.New, obs.Pending()
	} else {
		var err error
		id, isNew, err = a.c.Tracker.Track(frame, r.Encoding, r.Location)
		if err != nil {
			a.log.Warnf("track face: %v", err)
		}
	}
	if id == "" {
		return
	}

	ev.PersonID, ev.New = id, isNew
	if info, ok := a.personInfo(id); ok && info.FullName != "" {
		ev.Name = info.FullName
	}
	if a.c.Events != nil {
		if _, err := a.c.Events.Unknown(id, r.Location); err != nil {
			a.log.Warnf("log detection: %v", err)
		}
	}
	if isNew {
		a.lookup(id)
	}
}

// flushPending commits quality-gated collections that stopped receiving
// frames.
func (a *App) flushPending() {
	ids, err := a.c.Tracker.FlushExpired()
	if err != nil {
		a.log.Warnf("commit pending faces: %v", err)
	}
	for _, id := range ids {
		a.lookup(id)
	}
}

// lookup starts a person-info search for a newly tracked face.
func (a *App) lookup(id string) {
	if a.c.People == nil {
		return
	}
	path, err := a.c.Tracker.ImageFile(id)
	if err != nil {
		a.log.Warnf("lookup %s: %v", id, err)
		return
	}
	a.c.People.Get(id, filepath.Base(path))
}

func (a *App) processHands(frame *gocv.Mat) []gesture.Event {
	if a.c.Hands == nil {
		return nil
	}
	found, err := a.c.Hands.Detect(frame)
	if err != nil {
		a.log.Warnf("hand detection: %v", err)
		return nil
	}

	events := a.gesture.Process(found, frame.Cols(), frame.Rows())
	for _, ev := range events {
		if !ev.Fire {
			continue
		}
		a.mu.Lock()
		a.lastGesture, a.gestureAt = string(ev.Type), ev.Timestamp
		a.mu.Unlock()
		a.publish("gesture", ev)
		a.onGesture(ev)
	}
	return events
}
