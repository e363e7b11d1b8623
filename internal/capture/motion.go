package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	blurKernel    = 21
	diffThreshold = 25
)

// Motion compares each frame with the one before it. A frame counts as
// motion when more than threshold percent of its pixels changed.
type Motion struct {
	mu        sync.Mutex
	threshold float64
	prev      gocv.Mat
	primed    bool
}

// NewMotion returns a detector with threshold in percent.
func NewMotion(threshold float64) *Motion {
	return &Motion{threshold: threshold, prev: gocv.NewMat()}
}

// Detect reports whether frame moved relative to the previous one, and
// the changed-pixel percentage. The first frame only primes the detector.
func (m *Motion) Detect(frame *gocv.Mat) (bool, float64) {
	if frame == nil || frame.Empty() {
		return false, 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, &gray, image.Pt(blurKernel, blurKernel), 0, 0, gocv.BorderDefault)

	// A resolution change invalidates the baseline.
	if !m.primed || m.prev.Rows() != gray.Rows() || m.prev.Cols() != gray.Cols() {
		gray.CopyTo(&m.prev)
		m.primed = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, m.prev, &diff)
	gocv.Threshold(diff, &diff, diffThreshold, 255, gocv.ThresholdBinary)

	percent := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100
	gray.CopyTo(&m.prev)
	return percent > m.threshold, percent
}

// SetThreshold changes the threshold. Non-positive values are ignored.
func (m *Motion) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	m.threshold = threshold
	m.mu.Unlock()
}

// Reset drops the baseline frame.
func (m *Motion) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.primed = false
}

// Close frees the baseline.
func (m *Motion) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev.Close()
	m.prev = gocv.NewMat()
	m.primed = false
}
