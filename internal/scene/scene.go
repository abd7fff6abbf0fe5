package scene

import (
	"sort"
	"sync"

	"github.com/spf13/cast"

	"github.com/nacalab/editcore/pkg/object"
)

// Collection holds the live objects of the editing session keyed by id.
// Mutation latency matters here — every pointer-move and every undo goes
// through this map, so lookups must not touch persistence.
type Collection struct {
	m       sync.Mutex
	objects map[string]object.GameObject

	screenID     string
	screenWidth  float64
	screenHeight float64
}

func NewCollection() *Collection {
	return &Collection{
		objects: make(map[string]object.GameObject),
	}
}

// SetScreen sets the active editing screen and its canvas bounds.
func (c *Collection) SetScreen(id string, width, height float64) {
	c.m.Lock()
	defer c.m.Unlock()
	c.screenID = id
	c.screenWidth = width
	c.screenHeight = height
}

// Screen returns the active screen id and canvas bounds.
func (c *Collection) Screen() (id string, width, height float64) {
	c.m.Lock()
	defer c.m.Unlock()
	return c.screenID, c.screenWidth, c.screenHeight
}

func (c *Collection) Get(id string) (object.GameObject, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	o, ok := c.objects[id]
	return o, ok
}

func (c *Collection) Put(o object.GameObject) {
	c.m.Lock()
	defer c.m.Unlock()
	c.objects[o.ID] = o
}

func (c *Collection) Remove(id string) {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.objects, id)
}

func (c *Collection) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.objects)
}

func (c *Collection) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.objects = make(map[string]object.GameObject)
}

// All returns a copy of every object, ordered by id for deterministic
// iteration.
func (c *Collection) All() []object.GameObject {
	c.m.Lock()
	defer c.m.Unlock()
	out := make([]object.GameObject, 0, len(c.objects))
	for _, o := range c.objects {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyUpdates applies a batch of partial updates in one pass. Updates for
// ids not present in the collection are skipped silently — restoration never
// re-creates objects.
func (c *Collection) ApplyUpdates(updates []object.Update) {
	c.m.Lock()
	defer c.m.Unlock()
	for _, u := range updates {
		o, ok := c.objects[u.ID]
		if !ok {
			continue
		}
		applyFields(&o, u.Fields)
		c.objects[u.ID] = o
	}
}

// applyFields mutates a single object from a partial field map. Keys are the
// frontend's lowercase property names; unknown keys land in Metadata.
func applyFields(o *object.GameObject, fields object.Fields) {
	for k, v := range fields {
		switch k {
		case "x":
			o.X = cast.ToFloat64(v)
		case "y":
			o.Y = cast.ToFloat64(v)
		case "width":
			o.Width = cast.ToFloat64(v)
		case "height":
			o.Height = cast.ToFloat64(v)
		case "rotation":
			o.Rotation = cast.ToFloat64(v)
		case "scalex":
			o.ScaleX = cast.ToFloat64(v)
		case "scaley":
			o.ScaleY = cast.ToFloat64(v)
		case "opacity":
			o.Opacity = cast.ToFloat64(v)
		case "visible":
			o.Visible = cast.ToBool(v)
		case "zindex":
			o.ZIndex = cast.ToInt(v)
		case "locked":
			o.Locked = cast.ToBool(v)
		case "name":
			o.Name = cast.ToString(v)
		case "type":
			o.Type = cast.ToString(v)
		case "customid":
			o.CustomID = cast.ToString(v)
		case "datakey":
			o.DataKey = cast.ToString(v)
		case "mediaurl":
			o.MediaURL = cast.ToString(v)
		case "audiourl":
			o.AudioURL = cast.ToString(v)
		case "classes":
			o.Classes = cast.ToStringSlice(v)
		case "tags":
			o.Tags = cast.ToStringSlice(v)
		default:
			if o.Metadata == nil {
				o.Metadata = make(map[string]any)
			}
			o.Metadata[k] = v
		}
	}
}
