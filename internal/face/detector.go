package face

import (
	"errors"
	"fmt"
	"os"
	"sync"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"
)

// Detector finds faces in a frame.
type Detector interface {
	Detect(frame gocv.Mat) ([]Location, error)
	Close() error
}

// PigoParams holds pigo cascade parameters.
type PigoParams struct {
	MinSize          int
	MaxSize          int
	ShiftFactor      float64
	ScaleFactor      float64
	QualityThreshold float32
	IoUThreshold     float64
}

// DefaultPigoParams returns parameters tuned for a downscaled 640x480 stream.
func DefaultPigoParams() PigoParams {
	return PigoParams{
		MinSize:          20,
		MaxSize:          1000,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		QualityThreshold: 5.0,
		IoUThreshold:     0.2,
	}
}

// PigoDetector runs the pigo pixel-intensity cascade.
type PigoDetector struct {
	classifier *pigo.Pigo
	params     PigoParams
	mu         sync.Mutex
}

// NewPigoDetector loads the cascade file at cascadePath.
func NewPigoDetector(cascadePath string, params PigoParams) (*PigoDetector, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("read pigo cascade: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack pigo cascade: %w", err)
	}

	return &PigoDetector{classifier: classifier, params: params}, nil
}

// Detect returns face boxes sorted by the cascade's clustering order.
func (d *PigoDetector) Detect(frame gocv.Mat) ([]Location, error) {
	if frame.Empty() {
		return nil, errors.New("empty frame")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	rows, cols := gray.Rows(), gray.Cols()
	cParams := pigo.CascadeParams{
		MinSize:     d.params.MinSize,
		MaxSize:     d.params.MaxSize,
		ShiftFactor: d.params.ShiftFactor,
		ScaleFactor: d.params.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: gray.ToBytes(),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	d.mu.Lock()
	dets := d.classifier.RunCascade(cParams, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.params.IoUThreshold)
	d.mu.Unlock()

	locs := make([]Location, 0, len(dets))
	for _, det := range dets {
		if det.Q <= d.params.QualityThreshold {
			continue
		}
		x := det.Col - det.Scale/2
		y := det.Row - det.Scale/2
		loc := Location{Top: y, Right: x + det.Scale, Bottom: y + det.Scale, Left: x}
		locs = append(locs, loc.Clamp(cols, rows))
	}
	return locs, nil
}

// Close is a no-op; the cascade is plain Go memory.
func (d *PigoDetector) Close() error {
	return nil
}

// MockDetector returns preset locations.
type MockDetector struct {
	mu    sync.Mutex
	locs  []Location
	err   error
	calls int
}

func NewMockDetector(locs ...Location) *MockDetector {
	return &MockDetector{locs: locs}
}

func (m *MockDetector) SetLocations(locs ...Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs = locs
}

func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockDetector) Detect(frame gocv.Mat) ([]Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([]Location, len(m.locs))
	copy(out, m.locs)
	return out, nil
}

func (m *MockDetector) Close() error { return nil }
