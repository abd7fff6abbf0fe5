// pkg/object/object.go
package object

// GameObject represents a positioned, styleable entity on an editing screen.
// ID is assigned by the editor frontend and is stable for the object's lifetime.
type GameObject struct {
	ID       string
	ScreenID string

	// Geometry
	X        float64
	Y        float64
	Width    float64
	Height   float64
	Rotation float64
	ScaleX   float64
	ScaleY   float64

	// Visual
	Opacity float64
	Visible bool
	ZIndex  int
	Locked  bool

	// Classification / metadata
	Name     string
	Type     string
	Classes  []string
	Tags     []string
	CustomID string
	DataKey  string
	MediaURL string
	AudioURL string
	Metadata map[string]any
}

// Fields is a partial field map for a GameObject, keyed by the frontend's
// lowercase property names (x, y, width, height, rotation, scalex, scaley,
// opacity, visible, zindex, locked, name, ...). It is the unit of exchange
// for scene updates and autosave PATCH bodies.
type Fields map[string]any

// Update pairs an object id with a partial field map to apply to it.
type Update struct {
	ID     string
	Fields Fields
}

// Clone returns a deep copy of the object. Slices and the metadata map are
// copied so history snapshots are not aliased to the live object.
func (o GameObject) Clone() GameObject {
	c := o
	if o.Classes != nil {
		c.Classes = append([]string(nil), o.Classes...)
	}
	if o.Tags != nil {
		c.Tags = append([]string(nil), o.Tags...)
	}
	if o.Metadata != nil {
		c.Metadata = make(map[string]any, len(o.Metadata))
		for k, v := range o.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// EffectiveBounds returns the object's axis-aligned bounds with scale applied.
// A zero scale means unset and counts as 1, the same default Serialize uses.
// Negative scale flips the object across its origin, so the returned bounds
// are sign-corrected to keep Min <= Max on both axes.
func (o GameObject) EffectiveBounds() (minX, minY, maxX, maxY float64) {
	sx, sy := o.ScaleX, o.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	w := o.Width * sx
	h := o.Height * sy

	minX, maxX = o.X, o.X+w
	if w < 0 {
		minX, maxX = maxX, minX
	}
	minY, maxY = o.Y, o.Y+h
	if h < 0 {
		minY, maxY = maxY, minY
	}
	return minX, minY, maxX, maxY
}
