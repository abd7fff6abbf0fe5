// Package devsync mirrors editing-session events to a developer sync
// server over WebSocket. All notifications except session join/leave
// are fire-and-forget so the editing loop never blocks on the network.
package devsync

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nacalab/editcore/pkg/object"
	"github.com/nacalab/editcore/pkg/streaming"
)

// Config holds dev-sync connection configuration.
type Config struct {
	URL    string
	Secret string
}

// Notifier streams session events to the dev-sync server.
type Notifier struct {
	conn *connection
	cfg  Config
}

// New creates a new dev-sync notifier.
func New(cfg Config, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Start connects to the dev-sync server.
func (n *Notifier) Start() error {
	return n.conn.dial(n.cfg.URL, n.cfg.Secret)
}

// Close disconnects from the dev-sync server.
func (n *Notifier) Close() error {
	return n.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (n *Notifier) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	n.conn.send(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (n *Notifier) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return n.conn.sendAndWait(data, msgType, ackTimeout)
}

// JoinSession announces the session to the server and waits for ack.
func (n *Notifier) JoinSession(p streaming.JoinSessionPayload) error {
	data, err := marshalEnvelope(streaming.TypeJoinSession, p)
	if err != nil {
		return err
	}

	// Cache for reconnect replay.
	n.conn.mu.Lock()
	n.conn.cachedJoinMsg = data
	n.conn.mu.Unlock()

	return n.conn.sendAndWait(data, streaming.TypeJoinSession, ackTimeout)
}

// LeaveSession sends leave_session and waits for server ack.
func (n *Notifier) LeaveSession() error {
	err := n.sendEnvelopeAndWait(streaming.TypeLeaveSession, nil)

	// Clear cached state regardless of error.
	n.conn.mu.Lock()
	n.conn.cachedJoinMsg = nil
	n.conn.mu.Unlock()

	return err
}

// ObjectUpserted notifies that an object was created or updated.
func (n *Notifier) ObjectUpserted(screenID string, s *object.Serialized) error {
	return n.sendEnvelope(streaming.TypeObjectUpserted, streaming.ObjectPayload{
		ScreenID: screenID,
		Object:   s,
	})
}

// ObjectRemoved notifies that an object was deleted.
func (n *Notifier) ObjectRemoved(screenID, objectID string) error {
	return n.sendEnvelope(streaming.TypeObjectRemoved, streaming.ObjectRemovedPayload{
		ScreenID: screenID,
		ObjectID: objectID,
	})
}

// ScreenUpdated notifies a screen-level change.
func (n *Notifier) ScreenUpdated(screenID string, objects int) error {
	return n.sendEnvelope(streaming.TypeScreenUpdated, streaming.ScreenUpdatedPayload{
		ScreenID: screenID,
		Objects:  objects,
	})
}

// CheckpointCreated notifies that a checkpoint was taken.
func (n *Notifier) CheckpointCreated(id, name, screenID string, takenAt time.Time) error {
	return n.sendEnvelope(streaming.TypeCheckpointCreated, streaming.CheckpointPayload{
		CheckpointID: id,
		Name:         name,
		ScreenID:     screenID,
		TakenAt:      takenAt,
	})
}

// CheckpointRestored notifies that a checkpoint was applied to the scene.
func (n *Notifier) CheckpointRestored(id, name, screenID string, takenAt time.Time) error {
	return n.sendEnvelope(streaming.TypeCheckpointRestored, streaming.CheckpointPayload{
		CheckpointID: id,
		Name:         name,
		ScreenID:     screenID,
		TakenAt:      takenAt,
	})
}

// HistoryApplied notifies an undo or redo step.
func (n *Notifier) HistoryApplied(direction, actionType, objectID string) error {
	return n.sendEnvelope(streaming.TypeHistoryApplied, streaming.HistoryPayload{
		Direction:  direction,
		ActionType: actionType,
		ObjectID:   objectID,
	})
}

// AutosaveStatus notifies an autosave state transition.
func (n *Notifier) AutosaveStatus(screenID, status string) error {
	return n.sendEnvelope(streaming.TypeAutosaveStatus, streaming.AutosaveStatusPayload{
		ScreenID: screenID,
		Status:   status,
	})
}
