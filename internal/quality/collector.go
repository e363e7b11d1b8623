package quality

import (
	"errors"
	"sort"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facegift/internal/face"
)

// ErrNoCollection is returned when adding to a key that is not collecting.
var ErrNoCollection = errors.New("no pending collection")

// Sample is one buffered observation of a pending face.
type Sample struct {
	Crop      gocv.Mat
	Encoding  face.Encoding
	Location  face.Location
	Sharpness float64
}

// Scorer rates a crop; Sharpness is the default.
type Scorer func(gocv.Mat) (float64, error)

type collection struct {
	first     face.Encoding
	samples   []Sample
	updated   time.Time
	lastFrame uint64
}

// Collector buffers up to N frames per pending face and hands back the
// sharpest one. Collections are keyed by a caller-chosen pending hash.
type Collector struct {
	frames int
	score  Scorer
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]*collection
}

// NewCollector returns a collector that completes after frames samples.
func NewCollector(frames int) *Collector {
	if frames < 1 {
		frames = 1
	}
	return &Collector{
		frames:  frames,
		score:   Sharpness,
		now:     time.Now,
		pending: make(map[string]*collection),
	}
}

// SetScorer replaces the crop scorer.
func (c *Collector) SetScorer(s Scorer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.score = s
}

// Frames returns the number of samples that completes a collection.
func (c *Collector) Frames() int {
	return c.frames
}

// Start opens a collection for key whose identity is anchored on first.
// It returns false if key is already collecting.
func (c *Collector) Start(key string, first face.Encoding) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pending[key]; ok {
		return false
	}
	c.pending[key] = &collection{first: first.Clone(), updated: c.now()}
	return true
}

// Add buffers a sample seen in frame seq. The collector takes ownership of
// s.Crop on success. It reports whether the collection is now complete.
func (c *Collector) Add(key string, seq uint64, s Sample) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := c.pending[key]
	if !ok {
		return false, ErrNoCollection
	}

	score, err := c.score(s.Crop)
	if err != nil {
		score = 0
	}
	s.Sharpness = score
	s.Encoding = s.Encoding.Clone()

	col.samples = append(col.samples, s)
	col.updated = c.now()
	col.lastFrame = seq

	return len(col.samples) >= c.frames, nil
}

// MatchPending finds the collection whose first encoding is nearest to enc
// within threshold, skipping collections that already took a sample in
// frame seq. Two faces in one frame therefore never share a collection.
func (c *Collector) MatchPending(enc face.Encoding, threshold float64, seq uint64) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bestKey, bestDist := "", threshold
	found := false
	for key, col := range c.pending {
		if len(col.samples) > 0 && col.lastFrame == seq {
			continue
		}
		d := face.Distance(enc, col.first)
		if d <= bestDist && (!found || d < bestDist || key < bestKey) {
			bestKey, bestDist, found = key, d, true
		}
	}
	return bestKey, found
}

// Best removes the collection and returns its sharpest sample. The caller
// owns the returned crop; the other crops are released.
func (c *Collector) Best(key string) (Sample, bool) {
	c.mu.Lock()
	col, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if !ok || len(col.samples) == 0 {
		return Sample{}, false
	}

	scores := make([]float64, len(col.samples))
	for i, s := range col.samples {
		scores[i] = s.Sharpness
	}
	best, _ := SelectBest(scores)

	for i := range col.samples {
		if i != best {
			col.samples[i].Crop.Close()
		}
	}
	return col.samples[best], true
}

// Collecting reports whether key has an open collection.
func (c *Collector) Collecting(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[key]
	return ok
}

// Progress returns how many samples key holds and how many complete it.
func (c *Collector) Progress(key string) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	col, ok := c.pending[key]
	if !ok {
		return 0, c.frames
	}
	return len(col.samples), c.frames
}

// Pending returns the open keys, sorted.
func (c *Collector) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.pending))
	for k := range c.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Expired returns the keys not updated within timeout, sorted.
func (c *Collector) Expired(timeout time.Duration) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var keys []string
	for k, col := range c.pending {
		if now.Sub(col.updated) > timeout {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Discard drops a collection and releases its crops.
func (c *Collector) Discard(key string) {
	c.mu.Lock()
	col, ok := c.pending[key]
	delete(c.pending, key)
	c.mu.Unlock()

	if ok {
		for _, s := range col.samples {
			s.Crop.Close()
		}
	}
}

// Close discards every collection.
func (c *Collector) Close() {
	for _, k := range c.Pending() {
		c.Discard(k)
	}
}
