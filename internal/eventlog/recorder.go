// Package eventlog records face detections and recognitions with
// per-person rate limiting, and exports the log.
package eventlog

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/face"
	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/store"
)

// UnknownName labels faces that matched nobody.
const UnknownName = "Unknown"

// DefaultInterval is the minimum gap between two events with the same
// name and recognition flag.
const DefaultInterval = time.Second

// EventStore persists events. *store.EventRepository implements it.
type EventStore interface {
	Create(e *store.Event) error
	List(f store.EventFilter) ([]*store.Event, error)
	Stats() (store.EventStats, error)
}

// Entry is one observation to log.
type Entry struct {
	Name       string
	PersonID   string
	Confidence float64
	Recognized bool
	Location   face.Location
}

// Recorder writes entries to the store, dropping repeats that arrive
// within the interval.
type Recorder struct {
	store    EventStore
	interval time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time
}

// NewRecorder returns a recorder. interval <= 0 uses DefaultInterval.
func NewRecorder(s EventStore, interval time.Duration, log *zap.SugaredLogger) *Recorder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Recorder{
		store:    s,
		interval: interval,
		log:      logging.OrNop(log),
		now:      time.Now,
		recent:   make(map[string]time.Time),
	}
}

func dedupeKey(e Entry) string {
	return fmt.Sprintf("%s_%t", e.Name, e.Recognized)
}

// Record logs e unless an event with the same key was logged less than
// the interval ago. It reports whether the event was written.
func (r *Recorder) Record(e Entry) (bool, error) {
	if e.Name == "" {
		e.Name = UnknownName
	}
	key := dedupeKey(e)
	now := r.now()

	r.mu.Lock()
	if last, ok := r.recent[key]; ok && now.Sub(last) < r.interval {
		r.mu.Unlock()
		return false, nil
	}
	r.recent[key] = now
	r.mu.Unlock()

	typ := store.EventDetection
	if e.Recognized {
		typ = store.EventRecognition
	}
	ev := &store.Event{
		Timestamp:  now,
		Type:       typ,
		Name:       e.Name,
		PersonID:   e.PersonID,
		Confidence: e.Confidence,
		Recognized: e.Recognized,
		Top:        e.Location.Top,
		Right:      e.Location.Right,
		Bottom:     e.Location.Bottom,
		Left:       e.Location.Left,
	}
	if err := r.store.Create(ev); err != nil {
		return false, fmt.Errorf("record event: %w", err)
	}

	if e.Recognized {
		r.log.Infof("recognized %s (confidence %.2f)", e.Name, e.Confidence)
	} else {
		r.log.Debugf("detected %s", e.Name)
	}
	return true, nil
}

// Recognition logs a match against a known person.
func (r *Recorder) Recognition(name string, confidence float64, loc face.Location) (bool, error) {
	return r.Record(Entry{Name: name, Confidence: confidence, Recognized: true, Location: loc})
}

// Unknown logs a face that matched nobody.
func (r *Recorder) Unknown(personID string, loc face.Location) (bool, error) {
	return r.Record(Entry{Name: UnknownName, PersonID: personID, Location: loc})
}

// Stats summarizes the stored log.
func (r *Recorder) Stats() (store.EventStats, error) {
	return r.store.Stats()
}

// List returns stored events, newest first.
func (r *Recorder) List(f store.EventFilter) ([]*store.Event, error) {
	return r.store.List(f)
}

// Forget drops dedupe state older than the interval.
func (r *Recorder) Forget() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, t := range r.recent {
		if now.Sub(t) >= r.interval {
			delete(r.recent, k)
		}
	}
}
