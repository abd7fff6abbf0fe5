package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClone_DeepCopiesSlicesAndMetadata(t *testing.T) {
	o := GameObject{
		ID:       "a",
		Classes:  []string{"hero"},
		Tags:     []string{"t1", "t2"},
		Metadata: map[string]any{"k": "v"},
	}

	c := o.Clone()
	c.Classes[0] = "villain"
	c.Tags[1] = "t9"
	c.Metadata["k"] = "changed"

	assert.Equal(t, "hero", o.Classes[0])
	assert.Equal(t, "t2", o.Tags[1])
	assert.Equal(t, "v", o.Metadata["k"])
}

func TestClone_NilSlicesStayNil(t *testing.T) {
	c := GameObject{ID: "a"}.Clone()
	assert.Nil(t, c.Classes)
	assert.Nil(t, c.Tags)
	assert.Nil(t, c.Metadata)
}

func TestEffectiveBounds(t *testing.T) {
	tests := []struct {
		name                   string
		o                      GameObject
		minX, minY, maxX, maxY float64
	}{
		{
			name: "unit scale",
			o:    GameObject{X: 10, Y: 20, Width: 100, Height: 50, ScaleX: 1, ScaleY: 1},
			minX: 10, minY: 20, maxX: 110, maxY: 70,
		},
		{
			name: "zero scale counts as unit",
			o:    GameObject{X: 10, Y: 20, Width: 100, Height: 50},
			minX: 10, minY: 20, maxX: 110, maxY: 70,
		},
		{
			name: "scaled up",
			o:    GameObject{X: 0, Y: 0, Width: 100, Height: 50, ScaleX: 2, ScaleY: 3},
			minX: 0, minY: 0, maxX: 200, maxY: 150,
		},
		{
			name: "negative scale flips across origin",
			o:    GameObject{X: 100, Y: 100, Width: 40, Height: 40, ScaleX: -1, ScaleY: 1},
			minX: 60, minY: 100, maxX: 100, maxY: 140,
		},
		{
			name: "both axes flipped",
			o:    GameObject{X: 50, Y: 50, Width: 10, Height: 20, ScaleX: -2, ScaleY: -1},
			minX: 30, minY: 30, maxX: 50, maxY: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minX, minY, maxX, maxY := tt.o.EffectiveBounds()
			assert.Equal(t, tt.minX, minX)
			assert.Equal(t, tt.minY, minY)
			assert.Equal(t, tt.maxX, maxX)
			assert.Equal(t, tt.maxY, maxY)
		})
	}
}

func TestSerialize_DefaultsZeroScaleToOne(t *testing.T) {
	s := Serialize(GameObject{ID: "a", Width: 100})
	assert.Equal(t, 1.0, s.ScaleX)
	assert.Equal(t, 1.0, s.ScaleY)

	s = Serialize(GameObject{ID: "a", ScaleX: 0.5, ScaleY: 2})
	assert.Equal(t, 0.5, s.ScaleX)
	assert.Equal(t, 2.0, s.ScaleY)
}

func TestRestoreFields_OmitsClassificationFields(t *testing.T) {
	s := Serialize(GameObject{
		ID: "a", X: 1, Y: 2, Width: 3, Height: 4,
		Rotation: 5, Opacity: 0.5, Visible: true, ZIndex: 9, Locked: true,
		Name: "hero", Type: "image", DataKey: "k", CustomID: "c",
	})

	fields := s.RestoreFields()

	for _, key := range []string{"x", "y", "width", "height", "rotation", "scalex", "scaley", "opacity", "visible", "zindex", "locked"} {
		assert.Contains(t, fields, key)
	}
	for _, key := range []string{"name", "type", "datakey", "customid", "id", "screenid"} {
		assert.NotContains(t, fields, key)
	}
	assert.Equal(t, 1.0, fields["x"])
	assert.Equal(t, true, fields["visible"])
	assert.Equal(t, 9, fields["zindex"])
}
