// Package fixtures builds synthetic frames for pipeline tests, so no
// binary images need to be checked in.
package fixtures

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Frame size the hand landmark fixtures are laid out for.
const (
	Width  = 640
	Height = 480
)

// Solid returns a w x h BGR frame filled with gray level v.
func Solid(w, h int, v uint8) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(v), float64(v), float64(v), 0), h, w, gocv.MatTypeCV8UC3)
}

// Checker returns a frame with a black and white checkerboard of the given
// cell size. Its sharp edges score high on the Laplacian.
func Checker(w, h, cell int) gocv.Mat {
	m := Solid(w, h, 0)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < h; y += cell {
		for x := 0; x < w; x += cell {
			if (x/cell+y/cell)%2 == 0 {
				gocv.Rectangle(&m, image.Rect(x, y, x+cell, y+cell), white, -1)
			}
		}
	}
	return m
}

// MotionPair returns two frames different enough that alternating them
// always reads as motion.
func MotionPair() (gocv.Mat, gocv.Mat) {
	return Solid(Width, Height, 0), Solid(Width, Height, 255)
}

// Sequence returns n frames alternating between the two frames of
// MotionPair. Close them with CloseAll.
func Sequence(n int) []*gocv.Mat {
	out := make([]*gocv.Mat, n)
	for i := range out {
		v := uint8(0)
		if i%2 == 1 {
			v = 255
		}
		m := Solid(Width, Height, v)
		out[i] = &m
	}
	return out
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// WriteJPEG saves m to path.
func WriteJPEG(path string, m gocv.Mat) error {
	if ok := gocv.IMWrite(path, m); !ok {
		return fmt.Errorf("write %s", path)
	}
	return nil
}
