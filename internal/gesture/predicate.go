// Package gesture recognises held hand poses and decides when a hold has
// lasted long enough to act on.
package gesture

import (
	"math"

	"github.com/ayusman/facegift/internal/hands"
)

// Type names a recognised pose.
type Type string

const (
	TypeSnap  Type = "snap"
	TypePeace Type = "peace"
)

// Predicate reports whether one frame's hand shows a pose, with a
// confidence in [0, 1].
type Predicate func(p hands.Pixels) (bool, float64)

// Snap thresholds, in pixels and degrees.
const (
	snapMaxTouch    = 40.0
	snapMinAngle    = 20.0
	snapMaxAngle    = 90.0
	snapIdealAngle  = 50.0
	snapMinSeparate = 20.0
)

// SnapMetrics are the measurements the snap predicate is built on.
type SnapMetrics struct {
	ThumbIndex  float64 // thumb tip to index tip
	Angle       float64 // between index and thumb directions
	IndexMiddle float64 // index tip to middle tip
}

// MeasureSnap computes the snap measurements for a hand.
func MeasureSnap(p hands.Pixels) SnapMetrics {
	return SnapMetrics{
		ThumbIndex:  hands.Dist(p[hands.ThumbTip], p[hands.IndexTip]),
		Angle:       hands.Angle(p[hands.IndexTip].Sub(p[hands.IndexMCP]), p[hands.ThumbTip].Sub(p[hands.ThumbIP])),
		IndexMiddle: hands.Dist(p[hands.IndexTip], p[hands.MiddleTip]),
	}
}

// Snap matches the pose held right after a snap: thumb and index tips
// touching at a crossing angle with the middle finger pulled away.
func Snap(p hands.Pixels) (bool, float64) {
	m := MeasureSnap(p)
	ok := m.ThumbIndex < snapMaxTouch &&
		m.Angle > snapMinAngle && m.Angle < snapMaxAngle &&
		m.IndexMiddle > snapMinSeparate
	if !ok {
		return false, 0
	}

	distScore := math.Max(0, 1-m.ThumbIndex/snapMaxTouch)
	angleScore := clamp01(1 - math.Abs(m.Angle-snapIdealAngle)/40)
	return true, (distScore + angleScore) / 2
}

// Peace scoring. Distances are in palm units.
const (
	peacePass      = 8.0
	peaceMaxScore  = 10.0
	fingerMinReach = 0.6
	curledMaxReach = 0.6
	straightRatio  = 0.9
	minSpread      = 0.25
	minVAngle      = 10.0
	maxVAngle      = 70.0
	thumbTuck      = 0.9
)

type criterion struct {
	weight float64
	test   func(n hands.Pixels) bool
}

var peaceCriteria = []criterion{
	{1.5, func(n hands.Pixels) bool { return extended(n, hands.IndexMCP, hands.IndexPIP, hands.IndexTip) }},
	{1.5, func(n hands.Pixels) bool { return extended(n, hands.MiddleMCP, hands.MiddlePIP, hands.MiddleTip) }},
	{0.5, func(n hands.Pixels) bool { return straight(n, hands.IndexMCP, hands.IndexPIP, hands.IndexTip) }},
	{0.5, func(n hands.Pixels) bool { return straight(n, hands.MiddleMCP, hands.MiddlePIP, hands.MiddleTip) }},
	{1, func(n hands.Pixels) bool { return curled(n, hands.RingMCP, hands.RingTip) }},
	{1, func(n hands.Pixels) bool { return curled(n, hands.PinkyMCP, hands.PinkyTip) }},
	{1, func(n hands.Pixels) bool { return hands.Dist(n[hands.IndexTip], n[hands.MiddleTip]) > minSpread }},
	{1, func(n hands.Pixels) bool {
		a := hands.Angle(n[hands.IndexTip].Sub(n[hands.IndexMCP]), n[hands.MiddleTip].Sub(n[hands.MiddleMCP]))
		return a > minVAngle && a < maxVAngle
	}},
	{1, func(n hands.Pixels) bool {
		raised := math.Max(n[hands.IndexTip].Y, n[hands.MiddleTip].Y)
		return raised < math.Min(n[hands.RingTip].Y, n[hands.PinkyTip].Y)
	}},
	{1, func(n hands.Pixels) bool { return hands.Dist(n[hands.ThumbTip], n[hands.MiddleMCP]) < thumbTuck }},
}

// PeaceScore returns the weighted count of peace-sign criteria the hand
// meets, out of 10.
func PeaceScore(p hands.Pixels) float64 {
	n := p.Normalize()
	var score float64
	for _, c := range peaceCriteria {
		if c.test(n) {
			score += c.weight
		}
	}
	return score
}

// Peace matches a V sign in a single frame. Holding it steady across
// frames is the machine's job.
func Peace(p hands.Pixels) (bool, float64) {
	score := PeaceScore(p)
	return score >= peacePass, score / peaceMaxScore
}

// extended: the tip is farther from the wrist than the PIP joint and well
// clear of the knuckle. n is wrist-origin.
func extended(n hands.Pixels, mcp, pip, tip int) bool {
	return n[tip].Norm() > n[pip].Norm() && hands.Dist(n[mcp], n[tip]) > fingerMinReach
}

func straight(n hands.Pixels, mcp, pip, tip int) bool {
	joints := hands.Dist(n[mcp], n[pip]) + hands.Dist(n[pip], n[tip])
	return hands.Dist(n[mcp], n[tip]) > straightRatio*joints
}

func curled(n hands.Pixels, mcp, tip int) bool {
	return hands.Dist(n[mcp], n[tip]) < curledMaxReach
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
