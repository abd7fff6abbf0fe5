// Package history implements the undo/redo engine of the editing session.
// Entries are semantic edit records over the scene's object collection; the
// engine holds no reference to persistence and only mutates the scene through
// the injected interface.
package history

import (
	"strings"
	"sync"
	"time"

	"github.com/nacalab/editcore/pkg/object"
)

// DefaultMaxDepth bounds the past stack. Oldest entries are evicted first.
const DefaultMaxDepth = 100

// ActionType classifies an undoable edit for UI labels.
type ActionType string

const (
	ActionMove       ActionType = "move"
	ActionRotate     ActionType = "rotate"
	ActionScale      ActionType = "scale"
	ActionOpacity    ActionType = "opacity"
	ActionVisibility ActionType = "visibility"
	ActionResize     ActionType = "resize"
	ActionProperty   ActionType = "property"
	ActionCreate     ActionType = "create"
	ActionDelete     ActionType = "delete"
	ActionZOrder     ActionType = "z-order"
	ActionAlign      ActionType = "align"
)

// ClassifyProperty maps a raw property name to an action type. The table must
// stay in sync with the frontend's undo labels.
func ClassifyProperty(name string) ActionType {
	switch strings.ToLower(name) {
	case "rotation":
		return ActionRotate
	case "scalex", "scaley", "scale":
		return ActionScale
	case "opacity":
		return ActionOpacity
	case "visible":
		return ActionVisibility
	case "width", "height":
		return ActionResize
	case "x", "y":
		return ActionMove
	default:
		return ActionProperty
	}
}

// Snapshot is a tagged existence variant of an object's state at one side of
// an edit. Absent means the object did not exist at that point, so restoring
// it removes the object from the live collection rather than zeroing fields.
type Snapshot struct {
	Exists bool
	Object object.GameObject
}

// Exists captures a deep copy of a live object.
func Exists(o object.GameObject) Snapshot {
	return Snapshot{Exists: true, Object: o.Clone()}
}

// Absent marks that the object with the given id did not exist.
func Absent(id string) Snapshot {
	return Snapshot{Object: object.GameObject{ID: id}}
}

// Entry is one undoable unit. After and Before are same-length, index-aligned
// by object id.
type Entry struct {
	Action    ActionType
	After     []Snapshot
	Before    []Snapshot
	Details   string
	Timestamp time.Time
}

// Scene is the slice of the object collection the engine needs for restores.
type Scene interface {
	Put(o object.GameObject)
	Remove(id string)
}

// Engine maintains the past and future stacks.
type Engine struct {
	mu       sync.Mutex
	past     []Entry
	future   []Entry
	maxDepth int
	scene    Scene
}

// New creates an engine over the given scene. maxDepth <= 0 selects
// DefaultMaxDepth.
func New(scene Scene, maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{scene: scene, maxDepth: maxDepth}
}

// PushEntry records an edit. Any redo lineage is invalidated. Continuous
// interactions (drags) are expected to coalesce in the caller and push one
// entry on release.
func (e *Engine) PushEntry(action ActionType, after, before []Snapshot, details string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.future = e.future[:0]
	e.past = append(e.past, Entry{
		Action:    action,
		After:     after,
		Before:    before,
		Details:   details,
		Timestamp: time.Now(),
	})
	if len(e.past) > e.maxDepth {
		e.past = e.past[len(e.past)-e.maxDepth:]
	}
}

// Undo restores the most recent entry's before-state. No-op on an empty
// stack; returns whether an entry was applied.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	if len(e.past) == 0 {
		e.mu.Unlock()
		return false
	}
	entry := e.past[len(e.past)-1]
	e.past = e.past[:len(e.past)-1]
	e.future = append(e.future, entry)
	e.mu.Unlock()

	e.apply(entry.Before)
	return true
}

// Redo re-applies the most recently undone entry's after-state.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	if len(e.future) == 0 {
		e.mu.Unlock()
		return false
	}
	entry := e.future[len(e.future)-1]
	e.future = e.future[:len(e.future)-1]
	e.past = append(e.past, entry)
	e.mu.Unlock()

	e.apply(entry.After)
	return true
}

func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.past) > 0
}

func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.future) > 0
}

// Depth returns the sizes of the past and future stacks.
func (e *Engine) Depth() (past, future int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.past), len(e.future)
}

// Peek returns the entry Undo would apply next, if any.
func (e *Engine) Peek() (Entry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.past) == 0 {
		return Entry{}, false
	}
	return e.past[len(e.past)-1], true
}

func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.past = e.past[:0]
	e.future = e.future[:0]
}

// apply reconciles snapshots into the live collection by id. Objects present
// in the collection but absent from the snapshot list are untouched.
func (e *Engine) apply(snaps []Snapshot) {
	for _, s := range snaps {
		if s.Exists {
			e.scene.Put(s.Object.Clone())
		} else {
			e.scene.Remove(s.Object.ID)
		}
	}
}
