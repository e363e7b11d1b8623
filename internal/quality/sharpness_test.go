package quality

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

func TestRating(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{250, "Excellent"},
		{200, "Excellent"},
		{199.9, "Very Good"},
		{150, "Very Good"},
		{100, "Good"},
		{50, "Fair"},
		{49.9, "Poor"},
		{0, "Poor"},
	}

	for _, tt := range tests {
		if got := Rating(tt.score); got != tt.want {
			t.Errorf("Rating(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestIsSharp(t *testing.T) {
	if !IsSharp(ThresholdBalanced, ThresholdBalanced) {
		t.Error("score equal to threshold should be sharp")
	}
	if IsSharp(ThresholdLenient-1, ThresholdLenient) {
		t.Error("score below threshold should not be sharp")
	}
}

func TestCompare(t *testing.T) {
	if Compare(10, 10) != 0 || Compare(11, 10) != 0 {
		t.Error("first should win when at least as sharp")
	}
	if Compare(9, 10) != 1 {
		t.Error("second should win when sharper")
	}
}

func TestSelectBest(t *testing.T) {
	idx, score := SelectBest([]float64{10, 80, 30, 80})
	if idx != 1 || score != 80 {
		t.Errorf("SelectBest() = (%d, %v), want (1, 80)", idx, score)
	}

	idx, score = SelectBest(nil)
	if idx != -1 || score != 0 {
		t.Errorf("SelectBest(nil) = (%d, %v), want (-1, 0)", idx, score)
	}
}

func TestSharpness(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	flat := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer flat.Close()

	edges := gocv.NewMatWithSize(100, 100, gocv.MatTypeCV8UC3)
	defer edges.Close()
	for x := 0; x < 100; x += 10 {
		gocv.Line(&edges, image.Pt(x, 0), image.Pt(x, 99), color.RGBA{255, 255, 255, 0}, 2)
	}

	flatScore, err := Sharpness(flat)
	if err != nil {
		t.Fatalf("Sharpness() failed: %v", err)
	}
	if flatScore != 0 {
		t.Errorf("flat image should score 0, got %v", flatScore)
	}

	edgeScore, err := Sharpness(edges)
	if err != nil {
		t.Fatalf("Sharpness() failed: %v", err)
	}
	if edgeScore <= flatScore {
		t.Errorf("striped image (%v) should be sharper than flat (%v)", edgeScore, flatScore)
	}

	idx, _ := SelectBestImage([]gocv.Mat{flat, edges})
	if idx != 1 {
		t.Errorf("SelectBestImage() = %d, want 1", idx)
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := Sharpness(empty); err == nil {
		t.Error("empty image should return an error")
	}
}
