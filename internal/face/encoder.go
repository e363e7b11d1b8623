package face

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Encoder turns a cropped face into an Encoding.
type Encoder interface {
	Encode(face gocv.Mat) (Encoding, error)
	Close() error
}

// ModelConfig describes the input a DNN face encoder expects.
type ModelConfig struct {
	InputSize   image.Point
	ScaleFactor float64
	Mean        gocv.Scalar
	SwapRB      bool
}

// OpenFaceModel is the nn4.small2.v1 configuration (96x96 in, 128-d out).
var OpenFaceModel = ModelConfig{
	InputSize:   image.Pt(96, 96),
	ScaleFactor: 1.0 / 255.0,
	Mean:        gocv.NewScalar(0, 0, 0, 0),
	SwapRB:      true,
}

// DNNEncoder runs an OpenCV DNN embedding model.
type DNNEncoder struct {
	net   gocv.Net
	model ModelConfig
	mu    sync.Mutex
}

// NewDNNEncoder loads the model at modelPath.
func NewDNNEncoder(modelPath string, model ModelConfig) (*DNNEncoder, error) {
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("load face encoder model %s", modelPath)
	}
	return &DNNEncoder{net: net, model: model}, nil
}

// Encode returns the L2-normalized embedding of face.
func (e *DNNEncoder) Encode(face gocv.Mat) (Encoding, error) {
	if face.Empty() {
		return nil, errors.New("input image is empty")
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(face, &resized, e.model.InputSize, 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, e.model.ScaleFactor, e.model.InputSize, e.model.Mean, e.model.SwapRB, false)
	defer blob.Close()

	e.mu.Lock()
	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	e.mu.Unlock()
	defer output.Close()

	raw := make([]float32, output.Total())
	for i := range raw {
		raw[i] = output.GetFloatAt(0, i)
	}
	return Normalize(raw), nil
}

func (e *DNNEncoder) Close() error {
	return e.net.Close()
}

// FileEncoder re-encodes stored face crops. The whole image is treated as
// the face unless a detector is set, in which case the first detection is used.
type FileEncoder struct {
	Encoder  Encoder
	Detector Detector
}

// EncodeFile loads path and encodes the face in it.
func (f *FileEncoder) EncodeFile(path string) (Encoding, error) {
	img, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	if f.Detector == nil {
		return f.Encoder.Encode(img)
	}

	locs, err := f.Detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("detect face in %s: %w", path, err)
	}
	if len(locs) == 0 {
		return nil, fmt.Errorf("no face found in %s", path)
	}

	region := img.Region(locs[0].Rect())
	defer region.Close()
	return f.Encoder.Encode(region)
}

// MockEncoder returns encodings from a queue, or a fixed one when the queue is empty.
type MockEncoder struct {
	mu    sync.Mutex
	queue []Encoding
	fixed Encoding
	err   error
}

func NewMockEncoder(fixed Encoding) *MockEncoder {
	return &MockEncoder{fixed: fixed}
}

// Push queues encodings returned by subsequent Encode calls, in order.
func (m *MockEncoder) Push(encs ...Encoding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, encs...)
}

func (m *MockEncoder) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockEncoder) Encode(face gocv.Mat) (Encoding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if len(m.queue) > 0 {
		enc := m.queue[0]
		m.queue = m.queue[1:]
		return enc.Clone(), nil
	}
	return m.fixed.Clone(), nil
}

func (m *MockEncoder) Close() error { return nil }
