// Package capture reads video frames and paces the frame loop by motion.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480
	DefaultFPS    = 5
)

var (
	// ErrNotOpen is returned when reading from a closed source.
	ErrNotOpen = errors.New("capture source is not open")
	// ErrEndOfStream is returned when a finite source has no more frames.
	ErrEndOfStream = errors.New("end of stream")
)

// Source produces frames. The caller closes each returned Mat.
type Source interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Config selects and sizes the capture device.
type Config struct {
	// Device is a camera index such as "0", or a file path or stream URL.
	Device string
	Width  int
	Height int
	FPS    int
}

// DefaultConfig opens the first camera at 640x480.
func DefaultConfig() Config {
	return Config{Device: "0", Width: DefaultWidth, Height: DefaultHeight, FPS: DefaultFPS}
}

// deviceArg turns "0" into a camera index and leaves anything else as a
// path or URL for OpenCV.
func deviceArg(device string) any {
	if device == "" {
		return 0
	}
	if n, err := strconv.Atoi(device); err == nil {
		return n
	}
	return device
}

// Camera reads from an OpenCV video capture.
type Camera struct {
	config Config

	mu      sync.Mutex
	capture *gocv.VideoCapture
	fps     int
}

// NewCamera returns a closed camera.
func NewCamera(config Config) *Camera {
	def := DefaultConfig()
	if config.Width <= 0 {
		config.Width = def.Width
	}
	if config.Height <= 0 {
		config.Height = def.Height
	}
	if config.FPS <= 0 {
		config.FPS = def.FPS
	}
	return &Camera{config: config, fps: config.FPS}
}

// Open starts capture.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	vc, err := gocv.OpenVideoCapture(deviceArg(c.config.Device))
	if err != nil {
		return fmt.Errorf("open capture %q: %w", c.config.Device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.config.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.config.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(c.fps))

	c.capture = vc
	return nil
}

// Close releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame grabs the next frame.
func (c *Camera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		if _, isIndex := deviceArg(c.config.Device).(int); !isIndex {
			return nil, ErrEndOfStream
		}
		return nil, errors.New("failed to read frame")
	}
	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}
	return &mat, nil
}

// SetFPS asks the device for a new frame rate. Non-positive values are
// ignored.
func (c *Camera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the requested frame rate.
func (c *Camera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

// IsOpen reports whether capture is running.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}
