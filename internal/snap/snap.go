// Package snap computes snapped positions and active alignment guides for
// drag interactions. The engine is pure geometry: Apply has no side effects
// and is called once per pointer-move frame.
package snap

import (
	geom "github.com/peterstace/simplefeatures/geom"
)

// DefaultTolerance is the snap distance in canvas pixels.
const DefaultTolerance = 8.0

// Axis identifies which coordinate a candidate line constrains.
type Axis int

const (
	// AxisVertical lines have a fixed x position and snap horizontal movement.
	AxisVertical Axis = iota
	// AxisHorizontal lines have a fixed y position and snap vertical movement.
	AxisHorizontal
)

func (a Axis) String() string {
	if a == AxisVertical {
		return "vertical"
	}
	return "horizontal"
}

// Source records where a candidate line came from. Scan order during matching
// is canvas, then objects, then guides.
type Source int

const (
	SourceCanvas Source = iota
	SourceObject
	SourceGuide
)

func (s Source) String() string {
	switch s {
	case SourceCanvas:
		return "canvas"
	case SourceObject:
		return "object"
	default:
		return "guide"
	}
}

// Candidate is a coordinate line a dragged object's edge may align to.
type Candidate struct {
	Axis     Axis
	Position float64
	Source   Source
	ObjectID string // set for SourceObject candidates
}

// Guide is a user-placed alignment line.
type Guide struct {
	Axis     Axis
	Position float64
}

// Result is the outcome of one Apply call. Guides holds at most one active
// candidate per axis.
type Result struct {
	X        float64
	Y        float64
	SnappedX bool
	SnappedY bool
	Guides   []Candidate
}

// Position returns the snapped position as a geometry point.
func (r Result) Position() geom.XY {
	return geom.XY{X: r.X, Y: r.Y}
}

// Engine holds precomputed candidate sets. Rebuild whenever the scene or the
// user guides change; Apply is re-entrant and does not mutate the engine.
type Engine struct {
	tolerance  float64
	vertical   []Candidate
	horizontal []Candidate
}

// NewEngine creates an engine with the given tolerance. tolerance <= 0
// selects DefaultTolerance.
func NewEngine(tolerance float64) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Engine{tolerance: tolerance}
}

// Tolerance returns the snap distance in pixels.
func (e *Engine) Tolerance() float64 { return e.tolerance }

// Candidates returns the current candidate sets, vertical then horizontal.
func (e *Engine) Candidates() (vertical, horizontal []Candidate) {
	return e.vertical, e.horizontal
}

// Apply snaps the target position of a moving object with the given size.
// The output is the original position shifted by exactly the delta needed to
// align the matched edge; an unmatched axis passes through unchanged.
func (e *Engine) Apply(targetX, targetY, width, height float64) Result {
	target := geom.XY{X: targetX, Y: targetY}
	size := geom.XY{X: width, Y: height}
	center := target.Add(size.Scale(0.5))
	far := target.Add(size)

	res := Result{X: target.X, Y: target.Y}
	var shift geom.XY

	// Vertical candidates against the object's left, centerX and right edges.
	if m, ok := bestMatch(e.vertical, e.tolerance, target.X, center.X, far.X); ok {
		shift.X = m.delta
		res.SnappedX = true
		res.Guides = append(res.Guides, m.candidate)
	}

	// Horizontal candidates against top, centerY and bottom edges.
	if m, ok := bestMatch(e.horizontal, e.tolerance, target.Y, center.Y, far.Y); ok {
		shift.Y = m.delta
		res.SnappedY = true
		res.Guides = append(res.Guides, m.candidate)
	}

	snapped := target.Add(shift)
	res.X, res.Y = snapped.X, snapped.Y
	return res
}

type match struct {
	candidate Candidate
	delta     float64
	dist      float64
}

// bestMatch scans candidates in order against the three edges and keeps the
// strictly-closest match within tolerance. First found wins at equal minimal
// distance, which makes the canvas/object/guide scan order authoritative.
func bestMatch(candidates []Candidate, tolerance float64, edges ...float64) (match, bool) {
	best := match{dist: tolerance + 1}
	found := false
	for _, c := range candidates {
		for _, edge := range edges {
			dist := c.Position - edge
			if dist < 0 {
				dist = -dist
			}
			if dist <= tolerance && dist < best.dist {
				best = match{candidate: c, delta: c.Position - edge, dist: dist}
				found = true
			}
		}
	}
	return best, found
}
