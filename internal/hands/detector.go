package hands

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector finds hands in a frame.
type Detector interface {
	// Detect returns the hands found in frame, or an empty slice.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ScriptPath and PythonPath override discovery of the landmark service.
	ScriptPath string
	PythonPath string

	// IdleTimeout stops the service after this long without frames.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.7,
		MinTrackingConf: 0.7,
		IdleTimeout:     30 * time.Second,
	}
}
