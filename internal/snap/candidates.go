package snap

import (
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/nacalab/editcore/pkg/object"
)

// Rebuild recomputes the candidate sets from the canvas bounds, the scene
// objects and the user guides. Objects listed in exclude (the current drag
// selection) produce no candidates; an object must not snap to itself.
// Locked and invisible objects are skipped as well.
func (e *Engine) Rebuild(canvasWidth, canvasHeight float64, objects []object.GameObject, exclude map[string]bool, guides []Guide) {
	vertical := make([]Candidate, 0, 6+len(objects)*3+len(guides))
	horizontal := make([]Candidate, 0, 6+len(objects)*3+len(guides))

	// Canvas edges and centers first, so they win ties against everything else.
	extent := geom.XY{X: canvasWidth, Y: canvasHeight}
	mid := extent.Scale(0.5)
	vertical = append(vertical,
		Candidate{Axis: AxisVertical, Position: 0, Source: SourceCanvas},
		Candidate{Axis: AxisVertical, Position: mid.X, Source: SourceCanvas},
		Candidate{Axis: AxisVertical, Position: extent.X, Source: SourceCanvas},
	)
	horizontal = append(horizontal,
		Candidate{Axis: AxisHorizontal, Position: 0, Source: SourceCanvas},
		Candidate{Axis: AxisHorizontal, Position: mid.Y, Source: SourceCanvas},
		Candidate{Axis: AxisHorizontal, Position: extent.Y, Source: SourceCanvas},
	)

	for _, o := range objects {
		if exclude[o.ID] || o.Locked || !o.Visible {
			continue
		}
		minX, minY, maxX, maxY := o.EffectiveBounds()
		lo := geom.XY{X: minX, Y: minY}
		hi := geom.XY{X: maxX, Y: maxY}
		center := lo.Add(hi).Scale(0.5)
		vertical = append(vertical,
			Candidate{Axis: AxisVertical, Position: lo.X, Source: SourceObject, ObjectID: o.ID},
			Candidate{Axis: AxisVertical, Position: center.X, Source: SourceObject, ObjectID: o.ID},
			Candidate{Axis: AxisVertical, Position: hi.X, Source: SourceObject, ObjectID: o.ID},
		)
		horizontal = append(horizontal,
			Candidate{Axis: AxisHorizontal, Position: lo.Y, Source: SourceObject, ObjectID: o.ID},
			Candidate{Axis: AxisHorizontal, Position: center.Y, Source: SourceObject, ObjectID: o.ID},
			Candidate{Axis: AxisHorizontal, Position: hi.Y, Source: SourceObject, ObjectID: o.ID},
		)
	}

	for _, g := range guides {
		c := Candidate{Axis: g.Axis, Position: g.Position, Source: SourceGuide}
		if g.Axis == AxisVertical {
			vertical = append(vertical, c)
		} else {
			horizontal = append(horizontal, c)
		}
	}

	e.vertical = vertical
	e.horizontal = horizontal
}
