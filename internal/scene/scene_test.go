package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacalab/editcore/pkg/object"
)

func TestCollection_PutGetRemove(t *testing.T) {
	c := NewCollection()

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put(object.GameObject{ID: "a", X: 10})
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10.0, got.X)
	assert.Equal(t, 1, c.Len())

	c.Remove("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCollection_Screen(t *testing.T) {
	c := NewCollection()

	id, w, h := c.Screen()
	assert.Empty(t, id)
	assert.Zero(t, w)
	assert.Zero(t, h)

	c.SetScreen("screen-1", 1920, 1080)
	id, w, h = c.Screen()
	assert.Equal(t, "screen-1", id)
	assert.Equal(t, 1920.0, w)
	assert.Equal(t, 1080.0, h)
}

func TestCollection_AllOrderedByID(t *testing.T) {
	c := NewCollection()
	c.Put(object.GameObject{ID: "c"})
	c.Put(object.GameObject{ID: "a"})
	c.Put(object.GameObject{ID: "b"})

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)
	assert.Equal(t, "c", all[2].ID)
}

func TestCollection_Reset(t *testing.T) {
	c := NewCollection()
	c.Put(object.GameObject{ID: "a"})
	c.Reset()
	assert.Equal(t, 0, c.Len())
}

func TestApplyUpdates_TypedFields(t *testing.T) {
	c := NewCollection()
	c.Put(object.GameObject{ID: "a"})

	c.ApplyUpdates([]object.Update{{ID: "a", Fields: object.Fields{
		"x":        12.5,
		"y":        7,
		"width":    "300",
		"rotation": 45.0,
		"visible":  true,
		"zindex":   3,
		"locked":   "true",
		"name":     "hero",
		"classes":  []string{"big", "red"},
	}}})

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 12.5, got.X)
	assert.Equal(t, 7.0, got.Y)
	assert.Equal(t, 300.0, got.Width, "string numbers coerce")
	assert.Equal(t, 45.0, got.Rotation)
	assert.True(t, got.Visible)
	assert.Equal(t, 3, got.ZIndex)
	assert.True(t, got.Locked)
	assert.Equal(t, "hero", got.Name)
	assert.Equal(t, []string{"big", "red"}, got.Classes)
}

func TestApplyUpdates_UnknownKeysLandInMetadata(t *testing.T) {
	c := NewCollection()
	c.Put(object.GameObject{ID: "a"})

	c.ApplyUpdates([]object.Update{{ID: "a", Fields: object.Fields{
		"customprop": "v1",
	}}})

	got, _ := c.Get("a")
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "v1", got.Metadata["customprop"])
}

func TestApplyUpdates_SkipsMissingIDs(t *testing.T) {
	c := NewCollection()
	c.Put(object.GameObject{ID: "a", X: 1})

	c.ApplyUpdates([]object.Update{
		{ID: "ghost", Fields: object.Fields{"x": 99.0}},
		{ID: "a", Fields: object.Fields{"x": 2.0}},
	})

	assert.Equal(t, 1, c.Len(), "updates never create objects")
	got, _ := c.Get("a")
	assert.Equal(t, 2.0, got.X)
}

func TestApplyUpdates_Batch(t *testing.T) {
	c := NewCollection()
	c.Put(object.GameObject{ID: "a"})
	c.Put(object.GameObject{ID: "b"})

	c.ApplyUpdates([]object.Update{
		{ID: "a", Fields: object.Fields{"x": 1.0}},
		{ID: "b", Fields: object.Fields{"x": 2.0}},
	})

	a, _ := c.Get("a")
	b, _ := c.Get("b")
	assert.Equal(t, 1.0, a.X)
	assert.Equal(t, 2.0, b.X)
}
