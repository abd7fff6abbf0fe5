// Package session wires the editing-session components together and exposes
// the operations the frontend dispatches against: object mutations, undo and
// redo, drag snapping, checkpoints and save control. All collaborators are
// injected so tests can substitute fakes for the network and the clock.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nacalab/editcore/internal/autosave"
	"github.com/nacalab/editcore/internal/checkpoint"
	"github.com/nacalab/editcore/internal/clock"
	"github.com/nacalab/editcore/internal/devsync"
	"github.com/nacalab/editcore/internal/dispatcher"
	"github.com/nacalab/editcore/internal/history"
	"github.com/nacalab/editcore/internal/netmon"
	"github.com/nacalab/editcore/internal/offline"
	"github.com/nacalab/editcore/internal/scene"
	"github.com/nacalab/editcore/internal/snap"
	"github.com/nacalab/editcore/internal/telemetry"
	"github.com/nacalab/editcore/pkg/object"
)

// Event names the frontend dispatches.
const (
	EventObjectUpdated     = "object_updated"
	EventObjectCreated     = "object_created"
	EventObjectDeleted     = "object_deleted"
	EventUndo              = "undo"
	EventRedo              = "redo"
	EventCheckpointSave    = "checkpoint_save"
	EventCheckpointRestore = "checkpoint_restore"
	EventSaveNow           = "save_now"
	EventQueueFlush        = "queue_flush"
)

// UpdatePayload carries one partial object mutation.
type UpdatePayload struct {
	ID     string
	Fields object.Fields
}

// CheckpointPayload names a checkpoint operation target.
type CheckpointPayload struct {
	ID   string
	Name string
}

// Dependencies holds all collaborators of the session service.
type Dependencies struct {
	Scene       *scene.Collection
	History     *history.Engine
	Snap        *snap.Engine
	Autosave    *autosave.Coordinator
	Offline     *offline.Queue
	Checkpoints *checkpoint.Store
	Dispatcher  *dispatcher.Dispatcher
	Monitor     netmon.Monitor
	Scheduler   clock.Scheduler
	DevSync     *devsync.Notifier  // optional
	Telemetry   *telemetry.Manager // optional
	Logger      *slog.Logger
}

// Service is the editing-session facade.
type Service struct {
	deps Dependencies
	log  *slog.Logger

	mu      sync.Mutex
	draftID string
	guides  []snap.Guide

	unsubAutosave func()
}

// NewService creates the session service.
func NewService(deps Dependencies) *Service {
	if deps.Scheduler == nil {
		deps.Scheduler = clock.NewReal()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps, log: deps.Logger}
}

// Start registers the dispatcher handlers and forwards autosave transitions
// to dev-sync.
func (s *Service) Start() {
	d := s.deps.Dispatcher
	d.Register(EventObjectUpdated, s.handleObjectUpdated, dispatcher.Logged())
	d.Register(EventObjectCreated, s.handleObjectCreated, dispatcher.Logged())
	d.Register(EventObjectDeleted, s.handleObjectDeleted, dispatcher.Logged())
	d.Register(EventUndo, s.handleUndo)
	d.Register(EventRedo, s.handleRedo)
	d.Register(EventCheckpointSave, s.handleCheckpointSave, dispatcher.Logged())
	d.Register(EventCheckpointRestore, s.handleCheckpointRestore, dispatcher.Logged())
	d.Register(EventSaveNow, s.handleSaveNow)
	d.Register(EventQueueFlush, s.handleQueueFlush, dispatcher.Buffered(1))

	s.unsubAutosave = s.deps.Autosave.OnStatusChange(func(status autosave.Status, msg string) {
		if s.deps.DevSync == nil {
			return
		}
		screenID, _, _ := s.deps.Scene.Screen()
		_ = s.deps.DevSync.AutosaveStatus(screenID, string(status))
	})

	if s.deps.Telemetry != nil {
		s.deps.Autosave.OnSaveComplete(func(latency time.Duration, attempts int, ok bool) {
			screenID, _, _ := s.deps.Scene.Screen()
			bucket, point := telemetry.AutosavePoint(screenID, latency, attempts-1, ok, s.deps.Scheduler.Now())
			if err := s.deps.Telemetry.WritePoint(context.Background(), bucket, point); err != nil {
				s.log.Warn("autosave telemetry write failed", "error", err)
			}
		})
	}
}

// Close flushes outstanding work and detaches listeners. The dispatcher and
// the offline queue are owned by the caller and closed separately.
func (s *Service) Close() {
	s.deps.Autosave.ForceSave()
	if s.unsubAutosave != nil {
		s.unsubAutosave()
	}
}

// LoadScreen replaces the live scene with the given screen's objects and
// resets the undo stacks. The draft id scopes all subsequent autosaves.
func (s *Service) LoadScreen(screenID, draftID string, width, height float64, objects []object.GameObject) {
	s.mu.Lock()
	s.draftID = draftID
	s.mu.Unlock()

	s.deps.Scene.Reset()
	s.deps.Scene.SetScreen(screenID, width, height)
	for _, o := range objects {
		s.deps.Scene.Put(o.Clone())
	}
	s.deps.History.Clear()
	s.rebuildSnap(nil)

	if s.deps.DevSync != nil {
		_ = s.deps.DevSync.ScreenUpdated(screenID, s.deps.Scene.Len())
	}
	s.log.Info("screen loaded", "screenId", screenID, "objects", len(objects))
}

// DraftID returns the active draft id.
func (s *Service) DraftID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draftID
}

// SetGuides replaces the user alignment guides and rebuilds snap candidates.
func (s *Service) SetGuides(guides []snap.Guide) {
	s.mu.Lock()
	s.guides = append([]snap.Guide(nil), guides...)
	s.mu.Unlock()
	s.rebuildSnap(nil)
}

// BeginDrag rebuilds snap candidates with the dragged selection excluded, so
// the selection cannot snap to itself.
func (s *Service) BeginDrag(ids ...string) {
	exclude := make(map[string]bool, len(ids))
	for _, id := range ids {
		exclude[id] = true
	}
	s.rebuildSnap(exclude)
}

// EndDrag restores the full candidate set.
func (s *Service) EndDrag() {
	s.rebuildSnap(nil)
}

// SnapMove snaps a drag frame's target position. Pure; called per
// pointer-move without touching the scene.
func (s *Service) SnapMove(targetX, targetY, width, height float64) snap.Result {
	return s.deps.Snap.Apply(targetX, targetY, width, height)
}

func (s *Service) rebuildSnap(exclude map[string]bool) {
	_, w, h := s.deps.Scene.Screen()
	s.mu.Lock()
	guides := s.guides
	s.mu.Unlock()
	s.deps.Snap.Rebuild(w, h, s.deps.Scene.All(), exclude, guides)
}

// UpdateObject applies a partial mutation to a live object, records it on the
// undo stack and schedules an autosave.
func (s *Service) UpdateObject(id string, fields object.Fields) error {
	before, ok := s.deps.Scene.Get(id)
	if !ok {
		return fmt.Errorf("object %s not found", id)
	}
	beforeSnap := history.Exists(before)

	s.deps.Scene.ApplyUpdates([]object.Update{{ID: id, Fields: fields}})
	after, _ := s.deps.Scene.Get(id)

	s.deps.History.PushEntry(
		classifyFields(fields),
		[]history.Snapshot{history.Exists(after)},
		[]history.Snapshot{beforeSnap},
		id,
	)

	s.deps.Autosave.QueueSave(s.DraftID(), fields)
	s.rebuildSnap(nil)
	s.notifyUpserted(after)
	return nil
}

// CreateObject adds an object to the scene as an undoable edit.
func (s *Service) CreateObject(o object.GameObject) error {
	if o.ID == "" {
		return fmt.Errorf("object id is required")
	}
	if _, exists := s.deps.Scene.Get(o.ID); exists {
		return fmt.Errorf("object %s already exists", o.ID)
	}

	s.deps.Scene.Put(o.Clone())

	s.deps.History.PushEntry(
		history.ActionCreate,
		[]history.Snapshot{history.Exists(o)},
		[]history.Snapshot{history.Absent(o.ID)},
		o.ID,
	)

	ser := object.Serialize(o)
	s.deps.Autosave.QueueSave(s.DraftID(), ser.RestoreFields())
	s.rebuildSnap(nil)
	s.notifyUpserted(o)
	return nil
}

// DeleteObject removes an object from the scene as an undoable edit.
func (s *Service) DeleteObject(id string) error {
	before, ok := s.deps.Scene.Get(id)
	if !ok {
		return fmt.Errorf("object %s not found", id)
	}

	s.deps.Scene.Remove(id)

	s.deps.History.PushEntry(
		history.ActionDelete,
		[]history.Snapshot{history.Absent(id)},
		[]history.Snapshot{history.Exists(before)},
		id,
	)

	s.deps.Autosave.QueueSave(s.DraftID(), object.Fields{"deleted": []string{id}})
	s.rebuildSnap(nil)
	if s.deps.DevSync != nil {
		screenID, _, _ := s.deps.Scene.Screen()
		_ = s.deps.DevSync.ObjectRemoved(screenID, id)
	}
	return nil
}

// Undo reverts the latest edit and queues an autosave for the restored
// state. Returns false on an empty stack.
func (s *Service) Undo() bool {
	entry, ok := s.deps.History.Peek()
	if !ok {
		return false
	}
	if !s.deps.History.Undo() {
		return false
	}
	s.afterHistory("undo", entry, entry.Before)
	return true
}

// Redo re-applies the most recently undone edit.
func (s *Service) Redo() bool {
	if !s.deps.History.Redo() {
		return false
	}
	// The redone entry is back on top of the past stack.
	entry, _ := s.deps.History.Peek()
	s.afterHistory("redo", entry, entry.After)
	return true
}

// afterHistory syncs restored state outward after an applied undo/redo step.
// All touched objects travel in one queued change, keyed by object id, so the
// debounce replace semantics cannot drop part of a multi-object step.
func (s *Service) afterHistory(direction string, entry history.Entry, applied []history.Snapshot) {
	restored := make(map[string]object.Fields, len(applied))
	var deleted []string
	for _, sn := range applied {
		if !sn.Exists {
			deleted = append(deleted, sn.Object.ID)
			continue
		}
		ser := object.Serialize(sn.Object)
		restored[sn.Object.ID] = ser.RestoreFields()
	}

	fields := object.Fields{}
	if len(restored) > 0 {
		fields["objects"] = restored
	}
	if len(deleted) > 0 {
		fields["deleted"] = deleted
	}
	if len(fields) > 0 {
		s.deps.Autosave.QueueSave(s.DraftID(), fields)
	}
	s.rebuildSnap(nil)

	if s.deps.DevSync != nil {
		objectID := ""
		if len(applied) > 0 {
			objectID = applied[0].Object.ID
		}
		_ = s.deps.DevSync.HistoryApplied(direction, string(entry.Action), objectID)
	}
}

// CanUndo reports whether an undo step is available.
func (s *Service) CanUndo() bool { return s.deps.History.CanUndo() }

// CanRedo reports whether a redo step is available.
func (s *Service) CanRedo() bool { return s.deps.History.CanRedo() }

// SaveCheckpoint snapshots the active screen under the given name.
func (s *Service) SaveCheckpoint(name string) (*checkpoint.Checkpoint, error) {
	cp, err := s.deps.Checkpoints.Save(name)
	if err != nil || cp == nil {
		return cp, err
	}
	if s.deps.DevSync != nil {
		_ = s.deps.DevSync.CheckpointCreated(cp.ID, cp.Name, cp.ScreenID, cp.TakenAt)
	}
	s.log.Info("checkpoint saved", "checkpointId", cp.ID, "name", cp.Name)
	return cp, nil
}

// RestoreCheckpoint applies a stored checkpoint to the live scene and queues
// one batched autosave covering every restored object.
func (s *Service) RestoreCheckpoint(id string) error {
	if err := s.deps.Checkpoints.Restore(id); err != nil {
		return err
	}

	restored := make(map[string]object.Fields, s.deps.Scene.Len())
	for _, o := range s.deps.Scene.All() {
		ser := object.Serialize(o)
		restored[o.ID] = ser.RestoreFields()
	}
	if len(restored) > 0 {
		s.deps.Autosave.QueueSave(s.DraftID(), object.Fields{"objects": restored})
	}
	s.rebuildSnap(nil)

	if s.deps.DevSync != nil {
		screenID, _, _ := s.deps.Scene.Screen()
		_ = s.deps.DevSync.CheckpointRestored(id, "", screenID, s.deps.Scheduler.Now())
	}
	s.log.Info("checkpoint restored", "checkpointId", id)
	return nil
}

// Sample reports the session health counters for the status monitor.
func (s *Service) Sample() telemetry.SessionSample {
	screenID, _, _ := s.deps.Scene.Screen()
	past, future := s.deps.History.Depth()
	status, _ := s.deps.Autosave.Status()
	return telemetry.SessionSample{
		Time:          s.deps.Scheduler.Now(),
		ScreenID:      screenID,
		ObjectCount:   s.deps.Scene.Len(),
		HistoryDepth:  past,
		RedoDepth:     future,
		QueueDepth:    s.deps.Offline.Len(),
		AutosaveState: string(status),
	}
}

func (s *Service) notifyUpserted(o object.GameObject) {
	if s.deps.DevSync == nil {
		return
	}
	screenID, _, _ := s.deps.Scene.Screen()
	ser := object.Serialize(o)
	_ = s.deps.DevSync.ObjectUpserted(screenID, &ser)
}

func (s *Service) handleObjectUpdated(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(UpdatePayload)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload %T", e.Name, e.Payload)
	}
	return nil, s.UpdateObject(p.ID, p.Fields)
}

func (s *Service) handleObjectCreated(e dispatcher.Event) (any, error) {
	o, ok := e.Payload.(object.GameObject)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload %T", e.Name, e.Payload)
	}
	return nil, s.CreateObject(o)
}

func (s *Service) handleObjectDeleted(e dispatcher.Event) (any, error) {
	id, ok := e.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload %T", e.Name, e.Payload)
	}
	return nil, s.DeleteObject(id)
}

func (s *Service) handleUndo(e dispatcher.Event) (any, error) {
	return s.Undo(), nil
}

func (s *Service) handleRedo(e dispatcher.Event) (any, error) {
	return s.Redo(), nil
}

func (s *Service) handleCheckpointSave(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(CheckpointPayload)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload %T", e.Name, e.Payload)
	}
	return s.SaveCheckpoint(p.Name)
}

func (s *Service) handleCheckpointRestore(e dispatcher.Event) (any, error) {
	p, ok := e.Payload.(CheckpointPayload)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected payload %T", e.Name, e.Payload)
	}
	return nil, s.RestoreCheckpoint(p.ID)
}

func (s *Service) handleSaveNow(e dispatcher.Event) (any, error) {
	s.deps.Autosave.ForceSave()
	return nil, nil
}

func (s *Service) handleQueueFlush(e dispatcher.Event) (any, error) {
	return nil, s.deps.Offline.Flush(context.Background())
}

// classifyFields maps a partial update's key set to an action type. A single
// key follows the property table; multi-key updates classify by the common
// interaction they represent.
func classifyFields(fields object.Fields) history.ActionType {
	if len(fields) == 1 {
		for k := range fields {
			return history.ClassifyProperty(k)
		}
	}

	allIn := func(allowed ...string) bool {
		for k := range fields {
			found := false
			for _, a := range allowed {
				if k == a {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return len(fields) > 0
	}

	switch {
	case allIn("x", "y"):
		return history.ActionMove
	case allIn("width", "height", "x", "y"):
		return history.ActionResize
	case allIn("scalex", "scaley", "scale"):
		return history.ActionScale
	default:
		return history.ActionProperty
	}
}
