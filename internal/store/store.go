// Package store is the durable local persistence layer for the editing
// session: offline request queue, version checkpoints and keyed settings
// blobs. Every mutation is written through immediately so state survives an
// editor reload mid-session.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nacalab/editcore/internal/model"
)

// Store wraps the gorm connection with the editing session's access patterns.
// Single-writer: all mutation happens on the session goroutine.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

func New(db *gorm.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

////////////////////////
// OFFLINE QUEUE
////////////////////////

// SaveQueue rewrites the entire persisted queue. The queue is small (tens of
// requests at worst) and FIFO order is load-bearing, so a full rewrite on
// every mutation is simpler than diffing and keeps Position authoritative.
func (s *Store) SaveQueue(items []model.QueuedRequest) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Unscoped().Delete(&model.QueuedRequest{}).Error; err != nil {
			return fmt.Errorf("clearing queue table: %w", err)
		}
		for i := range items {
			items[i].ID = 0
			items[i].Position = i
			if err := tx.Create(&items[i]).Error; err != nil {
				return fmt.Errorf("persisting queued request %s: %w", items[i].RequestID, err)
			}
		}
		return nil
	})
}

// LoadQueue returns the persisted queue in FIFO order.
func (s *Store) LoadQueue() ([]model.QueuedRequest, error) {
	var items []model.QueuedRequest
	if err := s.db.Order("position asc").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("loading offline queue: %w", err)
	}
	return items, nil
}

////////////////////////
// CHECKPOINTS
////////////////////////

// SaveCheckpoint persists one checkpoint row.
func (s *Store) SaveCheckpoint(cp model.Checkpoint) error {
	if err := s.db.Create(&cp).Error; err != nil {
		return fmt.Errorf("persisting checkpoint %s: %w", cp.CheckpointID, err)
	}
	return nil
}

// LoadCheckpoints returns all checkpoints, newest first.
func (s *Store) LoadCheckpoints() ([]model.Checkpoint, error) {
	var cps []model.Checkpoint
	if err := s.db.Order("taken_at desc, id desc").Find(&cps).Error; err != nil {
		return nil, fmt.Errorf("loading checkpoints: %w", err)
	}
	return cps, nil
}

// DeleteCheckpoint removes a checkpoint by its public id.
func (s *Store) DeleteCheckpoint(checkpointID string) error {
	if err := s.db.Unscoped().
		Where("checkpoint_id = ?", checkpointID).
		Delete(&model.Checkpoint{}).Error; err != nil {
		return fmt.Errorf("deleting checkpoint %s: %w", checkpointID, err)
	}
	return nil
}

// RenameCheckpoint updates a checkpoint's display name.
func (s *Store) RenameCheckpoint(checkpointID, name string) error {
	res := s.db.Model(&model.Checkpoint{}).
		Where("checkpoint_id = ?", checkpointID).
		Update("name", name)
	if res.Error != nil {
		return fmt.Errorf("renaming checkpoint %s: %w", checkpointID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("renaming checkpoint %s: not found", checkpointID)
	}
	return nil
}

// TrimCheckpoints deletes the globally-oldest checkpoints until at most max
// remain. The cap is global, not per-screen.
func (s *Store) TrimCheckpoints(max int) error {
	var count int64
	if err := s.db.Model(&model.Checkpoint{}).Count(&count).Error; err != nil {
		return fmt.Errorf("counting checkpoints: %w", err)
	}
	excess := int(count) - max
	if excess <= 0 {
		return nil
	}
	var oldest []model.Checkpoint
	if err := s.db.Order("taken_at asc, id asc").Limit(excess).Find(&oldest).Error; err != nil {
		return fmt.Errorf("finding oldest checkpoints: %w", err)
	}
	for _, cp := range oldest {
		if err := s.DeleteCheckpoint(cp.CheckpointID); err != nil {
			return err
		}
	}
	return nil
}

// ClearCheckpoints removes every checkpoint.
func (s *Store) ClearCheckpoints() error {
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).
		Unscoped().Delete(&model.Checkpoint{}).Error; err != nil {
		return fmt.Errorf("clearing checkpoints: %w", err)
	}
	return nil
}

////////////////////////
// SETTINGS
////////////////////////

// PutSetting stores a keyed JSON blob, last write wins.
func (s *Store) PutSetting(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshaling setting %s: %w", key, err)
	}
	setting := model.Setting{Key: key, Value: raw}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error; err != nil {
		return fmt.Errorf("persisting setting %s: %w", key, err)
	}
	return nil
}

// GetSetting unmarshals a stored blob into out. Returns false when the key is
// absent. A corrupt blob is logged and treated as absent rather than
// propagated — the caller falls back to defaults.
func (s *Store) GetSetting(key string, out any) (bool, error) {
	var setting model.Setting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading setting %s: %w", key, err)
	}
	if err := json.Unmarshal(setting.Value, out); err != nil {
		s.log.Warn("corrupt setting blob, using defaults", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}
