package face

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// SupportedImageFormats lists the extensions accepted for known-face photos.
var SupportedImageFormats = []string{".jpg", ".jpeg", ".png", ".gif"}

// IsSupportedImage reports whether filename has a supported extension.
func IsSupportedImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range SupportedImageFormats {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadImage reads a color image from disk.
func LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.Mat{}, fmt.Errorf("failed to load image: %s", path)
	}
	return img, nil
}

// SaveImage writes img to path, creating parent directories.
func SaveImage(path string, img gocv.Mat) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create image directory: %w", err)
	}
	if ok := gocv.IMWrite(path, img); !ok {
		return fmt.Errorf("failed to write image: %s", path)
	}
	return nil
}

// Crop copies the face at loc out of frame, grown by padding pixels and
// clamped to the frame. The caller owns the returned Mat.
func Crop(frame gocv.Mat, loc Location, padding int) (gocv.Mat, error) {
	r := loc.Pad(padding, frame.Cols(), frame.Rows())
	if r.Empty() {
		return gocv.Mat{}, fmt.Errorf("face %v lies outside the %dx%d frame", loc, frame.Cols(), frame.Rows())
	}

	region := frame.Region(r)
	defer region.Close()
	return region.Clone(), nil
}
