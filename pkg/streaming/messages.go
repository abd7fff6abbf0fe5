package streaming

import (
	"encoding/json"
	"time"

	"github.com/nacalab/editcore/pkg/object"
)

// Message type constants matching the dev-sync protocol.
const (
	TypeJoinSession        = "join_session"
	TypeLeaveSession       = "leave_session"
	TypeObjectUpserted     = "object_upserted"
	TypeObjectRemoved      = "object_removed"
	TypeScreenUpdated      = "screen_updated"
	TypeCheckpointCreated  = "checkpoint_created"
	TypeCheckpointRestored = "checkpoint_restored"
	TypeHistoryApplied     = "history_applied"
	TypeAutosaveStatus     = "autosave_status"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// JoinSessionPayload identifies the editing session to the sync server.
type JoinSessionPayload struct {
	ScreenID    string `json:"screenId"`
	CommunityID string `json:"communityId"`
	SessionID   string `json:"sessionId"`
}

// ObjectPayload carries the flattened state of one object.
type ObjectPayload struct {
	ScreenID string             `json:"screenId"`
	Object   *object.Serialized `json:"object"`
}

// ObjectRemovedPayload names a deleted object.
type ObjectRemovedPayload struct {
	ScreenID string `json:"screenId"`
	ObjectID string `json:"objectId"`
}

// ScreenUpdatedPayload announces screen-level changes.
type ScreenUpdatedPayload struct {
	ScreenID string `json:"screenId"`
	Objects  int    `json:"objects"`
}

// CheckpointPayload describes a checkpoint event.
type CheckpointPayload struct {
	CheckpointID string    `json:"checkpointId"`
	Name         string    `json:"name"`
	ScreenID     string    `json:"screenId"`
	TakenAt      time.Time `json:"takenAt"`
}

// HistoryPayload announces an applied undo or redo step.
type HistoryPayload struct {
	Direction  string `json:"direction"` // "undo" or "redo"
	ActionType string `json:"actionType"`
	ObjectID   string `json:"objectId"`
}

// AutosaveStatusPayload reports the autosave state machine transition.
type AutosaveStatusPayload struct {
	ScreenID string `json:"screenId"`
	Status   string `json:"status"`
}
