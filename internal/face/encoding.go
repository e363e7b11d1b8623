// Package face detects, encodes and recognizes faces in video frames.
package face

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"image"
	"math"
)

// Encoding is a fixed-length face feature vector.
type Encoding []float64

// Clone returns a copy that shares no memory with e.
func (e Encoding) Clone() Encoding {
	if e == nil {
		return nil
	}
	out := make(Encoding, len(e))
	copy(out, e)
	return out
}

// Hash returns the first 16 hex characters of the SHA-256 digest of the
// encoding's little-endian float64 bytes.
func (e Encoding) Hash() string {
	buf := make([]byte, 8*len(e))
	for i, v := range e {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])[:16]
}

// Distance returns the Euclidean distance between a and b.
// Encodings of different length are infinitely far apart.
func Distance(a, b Encoding) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Nearest returns the index and distance of the candidate closest to enc,
// or -1 and +Inf when there are no candidates.
func Nearest(enc Encoding, candidates []Encoding) (int, float64) {
	best, bestDist := -1, math.Inf(1)
	for i, c := range candidates {
		if d := Distance(enc, c); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best, bestDist
}

// Normalize scales v to unit L2 norm.
func Normalize(v []float32) Encoding {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	out := make(Encoding, len(v))
	for i, x := range v {
		if norm > 0 {
			out[i] = float64(x) / norm
		} else {
			out[i] = float64(x)
		}
	}
	return out
}

// Location is a face bounding box in pixel coordinates.
type Location struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// LocationFromRect converts an image.Rectangle.
func LocationFromRect(r image.Rectangle) Location {
	return Location{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Rect converts the location to an image.Rectangle.
func (l Location) Rect() image.Rectangle {
	return image.Rect(l.Left, l.Top, l.Right, l.Bottom)
}

func (l Location) Width() int  { return l.Right - l.Left }
func (l Location) Height() int { return l.Bottom - l.Top }
func (l Location) Area() int   { return l.Width() * l.Height() }

// Scale multiplies every coordinate by f.
func (l Location) Scale(f float64) Location {
	return Location{
		Top:    int(float64(l.Top) * f),
		Right:  int(float64(l.Right) * f),
		Bottom: int(float64(l.Bottom) * f),
		Left:   int(float64(l.Left) * f),
	}
}

// Pad grows the box by p pixels on every side and clamps it to a w x h frame.
func (l Location) Pad(p, w, h int) image.Rectangle {
	return image.Rect(
		max(0, l.Left-p),
		max(0, l.Top-p),
		min(w, l.Right+p),
		min(h, l.Bottom+p),
	)
}

// Clamp restricts the box to a w x h frame.
func (l Location) Clamp(w, h int) Location {
	return LocationFromRect(l.Pad(0, w, h))
}
