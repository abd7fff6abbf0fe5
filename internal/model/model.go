package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent
// tables in the durable local store schema.
var DatabaseModels = []interface{}{
	&QueuedRequest{},
	&Checkpoint{},
	&Setting{},
}

// QueuedRequest is one not-yet-acknowledged mutating HTTP call held by the
// offline queue. Position preserves FIFO order across full-queue rewrites.
type QueuedRequest struct {
	gorm.Model
	RequestID  string         `json:"requestId" gorm:"size:64;uniqueIndex"`
	URL        string         `json:"url" gorm:"size:1024"`
	Method     string         `json:"method" gorm:"size:16"`
	Headers    datatypes.JSON `json:"headers"`
	Body       datatypes.JSON `json:"body"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	RetryCount int            `json:"retryCount"`
	Position   int            `json:"position" gorm:"index"`
}

// Checkpoint is a named full-scene snapshot for manual recovery, distinct
// from undo history. Snapshot holds the serialized object list as JSON.
type Checkpoint struct {
	gorm.Model
	CheckpointID string         `json:"checkpointId" gorm:"size:64;uniqueIndex"`
	Name         string         `json:"name" gorm:"size:255"`
	ScreenID     string         `json:"screenId" gorm:"size:64;index"`
	TakenAt      time.Time      `json:"takenAt" gorm:"index"`
	Snapshot     datatypes.JSON `json:"snapshot"`
}

// Setting is an independently-keyed JSON blob (design tokens, user settings).
// Last write wins.
type Setting struct {
	gorm.Model
	Key   string         `json:"key" gorm:"size:127;uniqueIndex"`
	Value datatypes.JSON `json:"value"`
}
