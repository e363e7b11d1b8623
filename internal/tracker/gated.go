package tracker

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/ayusman/facegift/internal/face"
	"github.com/ayusman/facegift/internal/quality"
)

// ErrNotGated is returned by Observe on a tracker built without
// QualityGated.
var ErrNotGated = errors.New("tracker is not quality gated")

// Observation is the outcome of Observe.
type Observation struct {
	// ID is set once the detection belongs to a committed identity.
	ID  string
	New bool
	// PendingKey names the collection a buffered detection joined.
	PendingKey string
	Collected  int
	Needed     int
}

// Pending reports whether the detection is still being buffered.
func (o Observation) Pending() bool {
	return o.ID == "" && o.PendingKey != ""
}

// Gated reports whether new faces go through Observe rather than Track.
func (t *Tracker) Gated() bool {
	return t.collector != nil
}

// Observe is the quality-gated form of Track. Unmatched detections are
// buffered for several frames and the sharpest crop is committed once the
// collection is full. seq identifies the frame so that two faces in one
// frame never join the same collection.
func (t *Tracker) Observe(frame gocv.Mat, seq uint64, enc face.Encoding, loc face.Location) (Observation, error) {
	if t.collector == nil {
		return Observation{}, ErrNotGated
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.match(enc); ok {
		return Observation{ID: id}, t.reobserve(id)
	}

	key, ok := t.collector.MatchPending(enc, t.config.DuplicateThreshold, seq)
	if !ok {
		key = enc.Hash()
		if !t.collector.Start(key, enc) {
			// Identical encoding already claimed in this frame.
			n, total := t.collector.Progress(key)
			return Observation{PendingKey: key, Collected: n, Needed: total}, nil
		}
		t.log.Debugf("collecting frames for new face %s", key)
	}

	crop, err := face.Crop(frame, loc, t.config.CropPadding)
	if err != nil {
		return Observation{}, err
	}

	complete, err := t.collector.Add(key, seq, quality.Sample{Crop: crop, Encoding: enc, Location: loc})
	if err != nil {
		crop.Close()
		return Observation{}, err
	}

	n, total := t.collector.Progress(key)
	obs := Observation{PendingKey: key, Collected: n, Needed: total}
	if !complete {
		return obs, nil
	}

	id, err := t.commitBest(key)
	obs.ID, obs.New = id, id != ""
	return obs, err
}

// FlushExpired commits every collection that has not received a frame
// within PendingTimeout, using whatever frames it holds. It returns the
// ids minted.
func (t *Tracker) FlushExpired() ([]string, error) {
	if t.collector == nil {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []string
	var errs []error
	for _, key := range t.collector.Expired(t.config.PendingTimeout) {
		id, err := t.commitBest(key)
		if id != "" {
			ids = append(ids, id)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return ids, errors.Join(errs...)
}

// PendingCount returns the number of open collections.
func (t *Tracker) PendingCount() int {
	if t.collector == nil {
		return 0
	}
	return len(t.collector.Pending())
}

func (t *Tracker) commitBest(key string) (string, error) {
	best, ok := t.collector.Best(key)
	if !ok {
		return "", nil
	}
	defer best.Crop.Close()

	t.log.Debugf("committing %s with sharpness %.1f (%s)", key, best.Sharpness, quality.Rating(best.Sharpness))
	if t.config.MinSharpness > 0 && !quality.IsSharp(best.Sharpness, t.config.MinSharpness) {
		t.log.Warnf("best crop for %s is blurry (%.1f < %.1f)", key, best.Sharpness, t.config.MinSharpness)
	}
	return t.commit(best.Crop, best.Encoding)
}
