package hands

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands ...HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Fixture landmarks are laid out for a frame of this size.
const (
	FixtureWidth  = 640
	FixtureHeight = 480
)

func fromPixels(label string, px [NumLandmarks][2]float64) HandLandmarks {
	lm := HandLandmarks{Handedness: label, Score: 0.95}
	for i, p := range px {
		lm.Points[i] = Point3D{X: p[0] / FixtureWidth, Y: p[1] / FixtureHeight}
	}
	return lm
}

// SnapLandmarks returns a right hand holding the post-snap pose: thumb tip
// crossed over the index tip, middle finger curled away.
func SnapLandmarks() HandLandmarks {
	return fromPixels("Right", [NumLandmarks][2]float64{
		Wrist:    {250, 380},
		ThumbCMC: {270, 340}, ThumbMCP: {290, 290}, ThumbIP: {300, 240}, ThumbTip: {300, 200},
		IndexMCP: {250, 260}, IndexPIP: {270, 240}, IndexDIP: {290, 222}, IndexTip: {310, 210},
		MiddleMCP: {270, 270}, MiddlePIP: {290, 290}, MiddleDIP: {285, 310}, MiddleTip: {275, 315},
		RingMCP: {285, 285}, RingPIP: {305, 300}, RingDIP: {315, 315}, RingTip: {318, 325},
		PinkyMCP: {295, 305}, PinkyPIP: {312, 318}, PinkyDIP: {320, 330}, PinkyTip: {322, 338},
	})
}

// PeaceLandmarks returns a right hand showing a V: index and middle
// extended and spread, ring and pinky curled under the thumb.
func PeaceLandmarks() HandLandmarks {
	return fromPixels("Right", [NumLandmarks][2]float64{
		Wrist:    {320, 400},
		ThumbCMC: {290, 380}, ThumbMCP: {280, 350}, ThumbIP: {300, 320}, ThumbTip: {330, 310},
		IndexMCP: {290, 305}, IndexPIP: {280, 250}, IndexDIP: {274, 215}, IndexTip: {268, 180},
		MiddleMCP: {320, 300}, MiddlePIP: {330, 240}, MiddleDIP: {336, 205}, MiddleTip: {342, 170},
		RingMCP: {345, 310}, RingPIP: {355, 280}, RingDIP: {345, 300}, RingTip: {340, 315},
		PinkyMCP: {368, 322}, PinkyPIP: {375, 300}, PinkyDIP: {368, 315}, PinkyTip: {362, 325},
	})
}

// OpenPalmLandmarks returns a preset HandLandmarks representing an open palm gesture.
// All fingers are extended outward.
func OpenPalmLandmarks() HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Left",
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
	landmarks.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
	landmarks.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}

	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68}
	landmarks.Points[IndexPIP] = Point3D{X: 0.57, Y: 0.55}
	landmarks.Points[IndexDIP] = Point3D{X: 0.58, Y: 0.45}
	landmarks.Points[IndexTip] = Point3D{X: 0.58, Y: 0.35}

	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.66}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.52}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.50, Y: 0.40}
	landmarks.Points[MiddleTip] = Point3D{X: 0.50, Y: 0.28}

	landmarks.Points[RingMCP] = Point3D{X: 0.45, Y: 0.68}
	landmarks.Points[RingPIP] = Point3D{X: 0.43, Y: 0.55}
	landmarks.Points[RingDIP] = Point3D{X: 0.42, Y: 0.45}
	landmarks.Points[RingTip] = Point3D{X: 0.42, Y: 0.35}

	landmarks.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.70}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.37, Y: 0.60}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.35, Y: 0.50}
	landmarks.Points[PinkyTip] = Point3D{X: 0.34, Y: 0.42}

	return landmarks
}
