package gesture

import (
	"math"
	"testing"

	"github.com/ayusman/facegift/internal/hands"
)

func fixturePixels(h hands.HandLandmarks) hands.Pixels {
	return h.ToPixels(hands.FixtureWidth, hands.FixtureHeight)
}

func TestSnap(t *testing.T) {
	tests := []struct {
		name string
		hand hands.HandLandmarks
		want bool
	}{
		{"snap pose", hands.SnapLandmarks(), true},
		{"peace sign", hands.PeaceLandmarks(), false},
		{"open palm", hands.OpenPalmLandmarks(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, conf := Snap(fixturePixels(tt.hand))
			if got != tt.want {
				t.Errorf("Snap() = %v, want %v (metrics %+v)", got, tt.want, MeasureSnap(fixturePixels(tt.hand)))
			}
			if !got && conf != 0 {
				t.Errorf("confidence should be 0 without a match, got %f", conf)
			}
		})
	}
}

func TestSnap_Confidence(t *testing.T) {
	p := fixturePixels(hands.SnapLandmarks())
	m := MeasureSnap(p)

	if math.Abs(m.ThumbIndex-math.Sqrt2*10) > 1e-6 {
		t.Errorf("ThumbIndex = %f, want %f", m.ThumbIndex, math.Sqrt2*10)
	}
	if m.Angle < 49 || m.Angle > 51 {
		t.Errorf("Angle = %f, want about 50", m.Angle)
	}

	_, conf := Snap(p)
	want := ((1 - m.ThumbIndex/40) + (1 - math.Abs(m.Angle-50)/40)) / 2
	if math.Abs(conf-want) > 1e-9 {
		t.Errorf("confidence = %f, want %f", conf, want)
	}
}

func TestSnap_Boundaries(t *testing.T) {
	base := fixturePixels(hands.SnapLandmarks())

	t.Run("tips too far apart", func(t *testing.T) {
		p := base
		p[hands.ThumbTip] = hands.Point2D{X: p[hands.IndexTip].X - 45, Y: p[hands.IndexTip].Y}
		p[hands.ThumbIP] = hands.Point2D{X: p[hands.ThumbTip].X, Y: p[hands.ThumbTip].Y + 40}
		if ok, _ := Snap(p); ok {
			t.Error("tips 45px apart should not match")
		}
	})

	t.Run("middle finger touching index", func(t *testing.T) {
		p := base
		p[hands.MiddleTip] = hands.Point2D{X: p[hands.IndexTip].X + 5, Y: p[hands.IndexTip].Y + 5}
		if ok, _ := Snap(p); ok {
			t.Error("middle tip near index tip should not match")
		}
	})

	t.Run("parallel fingers", func(t *testing.T) {
		p := base
		dir := p[hands.IndexTip].Sub(p[hands.IndexMCP])
		p[hands.ThumbIP] = hands.Point2D{X: p[hands.ThumbTip].X - dir.X, Y: p[hands.ThumbTip].Y - dir.Y}
		if ok, _ := Snap(p); ok {
			t.Error("angle near 0 should not match")
		}
	})
}

func TestPeace(t *testing.T) {
	tests := []struct {
		name string
		hand hands.HandLandmarks
		want bool
	}{
		{"peace sign", hands.PeaceLandmarks(), true},
		{"snap pose", hands.SnapLandmarks(), false},
		{"open palm", hands.OpenPalmLandmarks(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, conf := Peace(fixturePixels(tt.hand))
			if got != tt.want {
				t.Errorf("Peace() = %v, want %v (score %.1f)", got, tt.want, PeaceScore(fixturePixels(tt.hand)))
			}
			if conf < 0 || conf > 1 {
				t.Errorf("confidence %f out of range", conf)
			}
		})
	}
}

func TestPeaceScore(t *testing.T) {
	p := fixturePixels(hands.PeaceLandmarks())
	if got := PeaceScore(p); got != 10 {
		t.Errorf("PeaceScore(peace) = %.1f, want 10", got)
	}

	// Uncurling the ring finger costs exactly its weight.
	p[hands.RingTip] = hands.Point2D{X: p[hands.RingMCP].X, Y: p[hands.RingMCP].Y - 150}
	if got := PeaceScore(p); got > 9 {
		t.Errorf("PeaceScore with ring extended = %.1f, want at most 9", got)
	}

	var total float64
	for _, c := range peaceCriteria {
		total += c.weight
	}
	if len(peaceCriteria) != 10 || total != 10 {
		t.Errorf("peace criteria: %d with total weight %.1f, want 10 and 10", len(peaceCriteria), total)
	}
}
