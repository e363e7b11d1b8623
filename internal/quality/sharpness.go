// Package quality scores face crops by sharpness and picks the best of a burst.
package quality

import (
	"errors"

	"gocv.io/x/gocv"
)

// Sharpness presets, as Laplacian variance.
const (
	ThresholdStrict   = 150.0
	ThresholdBalanced = 100.0
	ThresholdLenient  = 50.0
)

// Sharpness returns the variance of the Laplacian of img in grayscale.
// Higher is sharper.
func Sharpness(img gocv.Mat) (float64, error) {
	if img.Empty() {
		return 0, errors.New("empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() > 1 {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	} else {
		img.CopyTo(&gray)
	}

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd, nil
}

// IsSharp reports whether score meets threshold.
func IsSharp(score, threshold float64) bool {
	return score >= threshold
}

// Rating maps a score to a human label.
func Rating(score float64) string {
	switch {
	case score >= 200:
		return "Excellent"
	case score >= 150:
		return "Very Good"
	case score >= 100:
		return "Good"
	case score >= 50:
		return "Fair"
	default:
		return "Poor"
	}
}

// Compare returns 0 when a is at least as sharp as b, otherwise 1.
func Compare(a, b float64) int {
	if a >= b {
		return 0
	}
	return 1
}

// SelectBest returns the index and score of the highest score,
// or (-1, 0) for an empty slice.
func SelectBest(scores []float64) (int, float64) {
	if len(scores) == 0 {
		return -1, 0
	}
	best := 0
	for i, s := range scores[1:] {
		if s > scores[best] {
			best = i + 1
		}
	}
	return best, scores[best]
}

// SelectBestImage scores every image and returns the sharpest.
// Images that fail to score are treated as 0.
func SelectBestImage(imgs []gocv.Mat) (int, float64) {
	scores := make([]float64, len(imgs))
	for i, img := range imgs {
		s, err := Sharpness(img)
		if err == nil {
			scores[i] = s
		}
	}
	return SelectBest(scores)
}
