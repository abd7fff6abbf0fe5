// pkg/object/serialized.go
package object

// Serialized is a flattened, fully-defaulted projection of a GameObject used
// for checkpoint snapshots. Every field always carries a concrete value so a
// snapshot taken from a partially-initialized object restores cleanly.
type Serialized struct {
	ID       string  `json:"id"`
	ScreenID string  `json:"screenId"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation float64 `json:"rotation"`
	ScaleX   float64 `json:"scaleX"`
	ScaleY   float64 `json:"scaleY"`
	Opacity  float64 `json:"opacity"`
	Visible  bool    `json:"visible"`
	ZIndex   int     `json:"zIndex"`
	Locked   bool    `json:"locked"`
	CustomID string  `json:"customId"`
	DataKey  string  `json:"dataKey"`
}

// Serialize flattens an object into its checkpoint projection. A zero scale
// is treated as unset and defaults to 1; everything else is taken as-is.
func Serialize(o GameObject) Serialized {
	s := Serialized{
		ID:       o.ID,
		ScreenID: o.ScreenID,
		Name:     o.Name,
		Type:     o.Type,
		X:        o.X,
		Y:        o.Y,
		Width:    o.Width,
		Height:   o.Height,
		Rotation: o.Rotation,
		ScaleX:   o.ScaleX,
		ScaleY:   o.ScaleY,
		Opacity:  o.Opacity,
		Visible:  o.Visible,
		ZIndex:   o.ZIndex,
		Locked:   o.Locked,
		CustomID: o.CustomID,
		DataKey:  o.DataKey,
	}
	if s.ScaleX == 0 {
		s.ScaleX = 1
	}
	if s.ScaleY == 0 {
		s.ScaleY = 1
	}
	return s
}

// RestoreFields builds the partial update applied when restoring a checkpoint.
// Only transform, visibility, lock and z-order fields are restored —
// classification fields (name, type, classes, tags, ...) are deliberately
// left alone.
func (s Serialized) RestoreFields() Fields {
	return Fields{
		"x":        s.X,
		"y":        s.Y,
		"width":    s.Width,
		"height":   s.Height,
		"rotation": s.Rotation,
		"scalex":   s.ScaleX,
		"scaley":   s.ScaleY,
		"opacity":  s.Opacity,
		"visible":  s.Visible,
		"zindex":   s.ZIndex,
		"locked":   s.Locked,
	}
}
