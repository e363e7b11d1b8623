// Package hands finds hand landmarks in camera frames.
package hands

import (
	"fmt"
	"image"
	"math"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a landmark in MediaPipe's normalised image space: x and y in
// [0, 1] of the frame width and height, z relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Key identifies the hand at position idx in a frame's results, e.g.
// "Right_0". Gesture state is tracked per key.
func (h HandLandmarks) Key(idx int) string {
	return fmt.Sprintf("%s_%d", h.Handedness, idx)
}

// ToPixels projects the landmarks onto a width x height frame.
func (h HandLandmarks) ToPixels(width, height int) Pixels {
	var p Pixels
	for i, pt := range h.Points {
		p[i] = Point2D{X: pt.X * float64(width), Y: pt.Y * float64(height)}
	}
	return p
}

// BBox returns the landmark bounding box on a width x height frame, grown
// by padding and clamped to the frame.
func (h HandLandmarks) BBox(width, height, padding int) image.Rectangle {
	p := h.ToPixels(width, height)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, pt := range p {
		minX = math.Min(minX, pt.X)
		minY = math.Min(minY, pt.Y)
		maxX = math.Max(maxX, pt.X)
		maxY = math.Max(maxY, pt.Y)
	}

	r := image.Rect(int(minX)-padding, int(minY)-padding, int(maxX)+padding, int(maxY)+padding)
	return r.Intersect(image.Rect(0, 0, width, height))
}

// Point2D is a landmark in pixel space.
type Point2D struct {
	X float64
	Y float64
}

// Sub returns p - q.
func (p Point2D) Sub(q Point2D) Point2D {
	return Point2D{X: p.X - q.X, Y: p.Y - q.Y}
}

// Norm returns the vector length.
func (p Point2D) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// Dist returns the Euclidean distance between two points.
func Dist(a, b Point2D) float64 {
	return a.Sub(b).Norm()
}

// Angle returns the angle in degrees between vectors u and v. The cosine
// is clipped to [-1, 1]; the epsilon keeps zero-length vectors finite.
func Angle(u, v Point2D) float64 {
	cos := (u.X*v.X + u.Y*v.Y) / (u.Norm()*v.Norm() + 1e-6)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// Pixels holds the 21 landmarks of one hand in pixel coordinates.
type Pixels [NumLandmarks]Point2D

// PalmSize is the wrist to middle-finger MCP distance.
func (p Pixels) PalmSize() float64 {
	return Dist(p[Wrist], p[MiddleMCP])
}

// Normalize translates the wrist to the origin and scales so the palm size
// is 1.0. A degenerate palm is only translated.
func (p Pixels) Normalize() Pixels {
	var n Pixels
	wrist := p[Wrist]
	for i := range p {
		n[i] = p[i].Sub(wrist)
	}

	scale := p.PalmSize()
	if scale < 1e-10 {
		return n
	}
	for i := range n {
		n[i].X /= scale
		n[i].Y /= scale
	}
	return n
}
