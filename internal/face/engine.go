package face

import (
	"image"
	"sync"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/facegift/internal/logging"
)

// UnknownName labels faces that match no known person.
const UnknownName = "Unknown"

// Result is one face found in a processed frame.
type Result struct {
	Location   Location `json:"location"`
	Encoding   Encoding `json:"-"`
	Name       string   `json:"name"`
	Confidence float64  `json:"confidence"`
	Recognized bool     `json:"recognized"`
}

// KnownFace is a labelled reference encoding.
type KnownFace struct {
	Name     string
	Encoding Encoding
}

// KnownSource supplies reference faces for recognition.
type KnownSource interface {
	Known() []KnownFace
}

// EngineConfig controls detection cadence and recognition strictness.
type EngineConfig struct {
	DetectionScale float64
	ProcessEveryN  int
	MaxFaces       int
	Tolerance      float64
}

// DefaultEngineConfig returns the shipped defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DetectionScale: 0.25,
		ProcessEveryN:  2,
		MaxFaces:       10,
		Tolerance:      0.6,
	}
}

// Engine detects and recognizes faces, reusing the previous results on
// frames it skips.
type Engine struct {
	detector Detector
	encoder  Encoder
	known    KnownSource
	config   EngineConfig
	log      *zap.SugaredLogger

	mu         sync.Mutex
	frameCount int
	last       []Result
}

// NewEngine creates an Engine. known may be nil when no reference faces exist.
func NewEngine(d Detector, e Encoder, known KnownSource, config EngineConfig, log *zap.SugaredLogger) *Engine {
	if config.ProcessEveryN < 1 {
		config.ProcessEveryN = 1
	}
	if config.DetectionScale <= 0 || config.DetectionScale > 1 {
		config.DetectionScale = 1
	}
	return &Engine{
		detector: d,
		encoder:  e,
		known:    known,
		config:   config,
		log:      logging.OrNop(log),
	}
}

// Process returns the faces in frame. Only every Nth call runs detection;
// other calls return the cached results. The second return value reports
// whether this call ran detection.
func (e *Engine) Process(frame gocv.Mat) ([]Result, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.frameCount++
	if e.frameCount%e.config.ProcessEveryN != 0 {
		return cloneResults(e.last), false, nil
	}

	locs, err := e.detect(frame)
	if err != nil {
		return nil, true, err
	}

	if len(locs) > e.config.MaxFaces {
		locs = locs[:e.config.MaxFaces]
	}

	results := make([]Result, 0, len(locs))
	for _, loc := range locs {
		region := frame.Region(loc.Rect())
		enc, err := e.encoder.Encode(region)
		region.Close()
		if err != nil {
			e.log.Warnf("encode face at %+v: %v", loc, err)
			continue
		}

		name, confidence, ok := e.recognize(enc)
		results = append(results, Result{
			Location:   loc,
			Encoding:   enc,
			Name:       name,
			Confidence: confidence,
			Recognized: ok,
		})
	}

	e.last = results
	return cloneResults(results), true, nil
}

// detect runs the detector on a downscaled copy and maps boxes back.
func (e *Engine) detect(frame gocv.Mat) ([]Location, error) {
	scale := e.config.DetectionScale
	if scale == 1 {
		return e.detector.Detect(frame)
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(frame, &small, image.Point{}, scale, scale, gocv.InterpolationLinear)

	locs, err := e.detector.Detect(small)
	if err != nil {
		return nil, err
	}

	w, h := frame.Cols(), frame.Rows()
	out := make([]Location, 0, len(locs))
	for _, l := range locs {
		scaled := l.Scale(1 / scale).Clamp(w, h)
		if scaled.Width() > 0 && scaled.Height() > 0 {
			out = append(out, scaled)
		}
	}
	return out, nil
}

// Recognize matches enc against the known faces.
func (e *Engine) Recognize(enc Encoding) (name string, confidence float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recognize(enc)
}

func (e *Engine) recognize(enc Encoding) (string, float64, bool) {
	if e.known == nil {
		return UnknownName, 0, false
	}
	known := e.known.Known()
	if len(known) == 0 {
		return UnknownName, 0, false
	}

	encs := make([]Encoding, len(known))
	for i, k := range known {
		encs[i] = k.Encoding
	}

	idx, dist := Nearest(enc, encs)
	confidence := 1 - dist
	if dist <= e.config.Tolerance {
		return known[idx].Name, confidence, true
	}
	return UnknownName, confidence, false
}

// Reset clears the frame counter and cached results.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frameCount = 0
	e.last = nil
}

// Close releases the detector and encoder.
func (e *Engine) Close() error {
	derr := e.detector.Close()
	if err := e.encoder.Close(); err != nil {
		return err
	}
	return derr
}

func cloneResults(in []Result) []Result {
	if in == nil {
		return nil
	}
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = r
		out[i].Encoding = r.Encoding.Clone()
	}
	return out
}
