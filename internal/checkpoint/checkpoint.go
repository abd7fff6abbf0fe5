// Package checkpoint implements named, user-triggered full-scene snapshots
// persisted in the durable local store. Checkpoints are coarse-grained
// recovery points, independent of the undo stack.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nacalab/editcore/internal/clock"
	"github.com/nacalab/editcore/internal/model"
	"github.com/nacalab/editcore/pkg/object"
)

// MaxCheckpoints caps retained checkpoints globally across all screens.
// Oldest is evicted first.
const MaxCheckpoints = 20

// Checkpoint is the runtime view of one stored snapshot.
type Checkpoint struct {
	ID       string
	Name     string
	ScreenID string
	TakenAt  time.Time
	Snapshot []object.Serialized
}

// Scene is the slice of the live collection the store reads and restores.
type Scene interface {
	Screen() (id string, width, height float64)
	All() []object.GameObject
	Get(id string) (object.GameObject, bool)
	ApplyUpdates([]object.Update)
}

// Persister is the durable-store slice checkpoints write through to.
type Persister interface {
	SaveCheckpoint(model.Checkpoint) error
	LoadCheckpoints() ([]model.Checkpoint, error)
	DeleteCheckpoint(checkpointID string) error
	RenameCheckpoint(checkpointID, name string) error
	TrimCheckpoints(max int) error
	ClearCheckpoints() error
}

// Store is the version checkpoint store.
type Store struct {
	scene   Scene
	persist Persister
	sched   clock.Scheduler
	log     *slog.Logger
}

func New(scene Scene, persist Persister, sched clock.Scheduler, log *slog.Logger) *Store {
	if sched == nil {
		sched = clock.NewReal()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{scene: scene, persist: persist, sched: sched, log: log}
}

// Save snapshots every object on the active screen under the given name.
// Returns nil (no checkpoint, no error) when there is no active screen or the
// scene is empty. Past the global cap the oldest checkpoint is evicted,
// regardless of which screen it belongs to.
func (s *Store) Save(name string) (*Checkpoint, error) {
	screenID, _, _ := s.scene.Screen()
	if screenID == "" {
		return nil, nil
	}
	objects := s.scene.All()
	if len(objects) == 0 {
		return nil, nil
	}

	snapshot := make([]object.Serialized, len(objects))
	for i, o := range objects {
		snapshot[i] = object.Serialize(o)
	}

	cp := Checkpoint{
		ID:       uuid.NewString(),
		Name:     name,
		ScreenID: screenID,
		TakenAt:  s.sched.Now(),
		Snapshot: snapshot,
	}

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("marshaling checkpoint snapshot: %w", err)
	}
	if err := s.persist.SaveCheckpoint(model.Checkpoint{
		CheckpointID: cp.ID,
		Name:         cp.Name,
		ScreenID:     cp.ScreenID,
		TakenAt:      cp.TakenAt,
		Snapshot:     raw,
	}); err != nil {
		return nil, err
	}
	if err := s.persist.TrimCheckpoints(MaxCheckpoints); err != nil {
		return nil, err
	}
	return &cp, nil
}

// All returns every stored checkpoint, newest first. Rows with corrupt
// snapshots are logged and skipped.
func (s *Store) All() ([]Checkpoint, error) {
	records, err := s.persist.LoadCheckpoints()
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(records))
	for _, rec := range records {
		var snapshot []object.Serialized
		if err := json.Unmarshal(rec.Snapshot, &snapshot); err != nil {
			s.log.Warn("skipping checkpoint with corrupt snapshot",
				"checkpointId", rec.CheckpointID, "error", err)
			continue
		}
		out = append(out, Checkpoint{
			ID:       rec.CheckpointID,
			Name:     rec.Name,
			ScreenID: rec.ScreenID,
			TakenAt:  rec.TakenAt,
			Snapshot: snapshot,
		})
	}
	return out, nil
}

// ForScreen returns the checkpoints of the active screen, newest first.
func (s *Store) ForScreen() ([]Checkpoint, error) {
	screenID, _, _ := s.scene.Screen()
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(all))
	for _, cp := range all {
		if cp.ScreenID == screenID {
			out = append(out, cp)
		}
	}
	return out, nil
}

// Restore applies a checkpoint's transform/visibility/lock/z-order fields to
// every snapshotted object whose id is still live, in one batch. Objects no
// longer present are skipped — restore never re-creates. Idempotent.
func (s *Store) Restore(id string) error {
	all, err := s.All()
	if err != nil {
		return err
	}
	for _, cp := range all {
		if cp.ID != id {
			continue
		}
		updates := make([]object.Update, 0, len(cp.Snapshot))
		for _, ser := range cp.Snapshot {
			if _, ok := s.scene.Get(ser.ID); !ok {
				continue
			}
			updates = append(updates, object.Update{ID: ser.ID, Fields: ser.RestoreFields()})
		}
		s.scene.ApplyUpdates(updates)
		return nil
	}
	return fmt.Errorf("checkpoint %s not found", id)
}

// Delete removes one checkpoint.
func (s *Store) Delete(id string) error {
	return s.persist.DeleteCheckpoint(id)
}

// Rename updates a checkpoint's display name.
func (s *Store) Rename(id, name string) error {
	return s.persist.RenameCheckpoint(id, name)
}

// Clear removes every checkpoint on every screen.
func (s *Store) Clear() error {
	return s.persist.ClearCheckpoints()
}
