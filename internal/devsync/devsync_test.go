package devsync

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacalab/editcore/pkg/object"
	"github.com/nacalab/editcore/pkg/streaming"
)

// testServer creates an httptest server that upgrades to WebSocket,
// records received messages, and sends acks for join_session/leave_session.
func testServer(t *testing.T) (*httptest.Server, *messageLog) {
	t.Helper()
	ml := &messageLog{}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			ml.add(env)

			// Ack join_session and leave_session.
			if env.Type == streaming.TypeJoinSession || env.Type == streaming.TypeLeaveSession {
				ack := streaming.AckMessage{Type: "ack", For: env.Type}
				data, _ := json.Marshal(ack)
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))

	return srv, ml
}

type messageLog struct {
	mu       sync.Mutex
	messages []streaming.Envelope
}

func (m *messageLog) add(env streaming.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, env)
}

func (m *messageLog) all() []streaming.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]streaming.Envelope, len(m.messages))
	copy(cp, m.messages)
	return cp
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestJoinAndLeaveSession(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	n := New(Config{URL: wsURL(srv), Secret: "test"}, nil)
	require.NoError(t, n.Start())
	defer n.Close()

	require.NoError(t, n.JoinSession(streaming.JoinSessionPayload{
		ScreenID:    "screen-1",
		CommunityID: "acme",
		SessionID:   "sess-1",
	}))

	require.NoError(t, n.LeaveSession())

	msgs := ml.all()
	require.GreaterOrEqual(t, len(msgs), 2)
	assert.Equal(t, streaming.TypeJoinSession, msgs[0].Type)
	assert.Equal(t, streaming.TypeLeaveSession, msgs[len(msgs)-1].Type)
}

func TestFireAndForgetNotifications(t *testing.T) {
	srv, ml := testServer(t)
	defer srv.Close()

	n := New(Config{URL: wsURL(srv), Secret: "s"}, nil)
	require.NoError(t, n.Start())
	defer n.Close()

	require.NoError(t, n.JoinSession(streaming.JoinSessionPayload{ScreenID: "screen-1"}))

	serialized := object.Serialize(object.GameObject{ID: "obj-1", X: 10, Y: 20})
	require.NoError(t, n.ObjectUpserted("screen-1", &serialized))
	require.NoError(t, n.ObjectRemoved("screen-1", "obj-2"))
	require.NoError(t, n.ScreenUpdated("screen-1", 5))
	require.NoError(t, n.CheckpointCreated("cp-1", "before cleanup", "screen-1", time.Now()))
	require.NoError(t, n.HistoryApplied("undo", "move", "obj-1"))
	require.NoError(t, n.AutosaveStatus("screen-1", "saved"))

	require.NoError(t, n.LeaveSession())

	// Give a moment for all messages to arrive at server.
	time.Sleep(50 * time.Millisecond)

	msgs := ml.all()

	types := make(map[string]int)
	for _, m := range msgs {
		types[m.Type]++
	}

	assert.Equal(t, 1, types[streaming.TypeJoinSession])
	assert.Equal(t, 1, types[streaming.TypeLeaveSession])
	assert.Equal(t, 1, types[streaming.TypeObjectUpserted])
	assert.Equal(t, 1, types[streaming.TypeObjectRemoved])
	assert.Equal(t, 1, types[streaming.TypeScreenUpdated])
	assert.Equal(t, 1, types[streaming.TypeCheckpointCreated])
	assert.Equal(t, 1, types[streaming.TypeHistoryApplied])
	assert.Equal(t, 1, types[streaming.TypeAutosaveStatus])
}

func TestJoinSessionTimeoutWithoutAck(t *testing.T) {
	// Server that never acks.
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	n := New(Config{URL: wsURL(srv), Secret: "s"}, nil)
	require.NoError(t, n.Start())
	defer n.Close()

	data, err := marshalEnvelope(streaming.TypeJoinSession, streaming.JoinSessionPayload{ScreenID: "s1"})
	require.NoError(t, err)

	err = n.conn.sendAndWait(data, streaming.TypeJoinSession, 100*time.Millisecond)
	assert.Error(t, err)
}

func TestEnvelopeSerialization(t *testing.T) {
	payload := streaming.ObjectRemovedPayload{ScreenID: "screen-1", ObjectID: "obj-9"}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	env := streaming.Envelope{Type: streaming.TypeObjectRemoved, Payload: raw}
	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded streaming.Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, streaming.TypeObjectRemoved, decoded.Type)

	var dp streaming.ObjectRemovedPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &dp))
	assert.Equal(t, "screen-1", dp.ScreenID)
	assert.Equal(t, "obj-9", dp.ObjectID)
}
