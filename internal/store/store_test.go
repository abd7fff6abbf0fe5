package store

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nacalab/editcore/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(model.DatabaseModels...))
	return New(db, nil)
}

func queuedReq(id, url string, pos int) model.QueuedRequest {
	return model.QueuedRequest{
		RequestID:  id,
		URL:        url,
		Method:     "PATCH",
		Body:       []byte(`{"x":1}`),
		EnqueuedAt: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(pos) * time.Second),
	}
}

func TestSaveLoadQueue_PreservesFIFOOrder(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveQueue([]model.QueuedRequest{
		queuedReq("r1", "http://api/drafts/1", 0),
		queuedReq("r2", "http://api/drafts/2", 1),
		queuedReq("r3", "http://api/drafts/3", 2),
	}))

	got, err := s.LoadQueue()
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "r1", got[0].RequestID)
	assert.Equal(t, "r2", got[1].RequestID)
	assert.Equal(t, "r3", got[2].RequestID)
	assert.Equal(t, []byte(`{"x":1}`), []byte(got[0].Body))
}

func TestSaveQueue_RewritesWholeTable(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SaveQueue([]model.QueuedRequest{
		queuedReq("r1", "http://api/drafts/1", 0),
		queuedReq("r2", "http://api/drafts/2", 1),
	}))
	// The next write reflects a removal; the dropped row must not come back.
	require.NoError(t, s.SaveQueue([]model.QueuedRequest{
		queuedReq("r2", "http://api/drafts/2", 0),
	}))

	got, err := s.LoadQueue()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].RequestID)
}

func TestSaveQueue_EmptyClearsTable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveQueue([]model.QueuedRequest{queuedReq("r1", "http://api/drafts/1", 0)}))
	require.NoError(t, s.SaveQueue(nil))

	got, err := s.LoadQueue()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func checkpointRec(id, name, screenID string, takenAt time.Time) model.Checkpoint {
	return model.Checkpoint{
		CheckpointID: id,
		Name:         name,
		ScreenID:     screenID,
		TakenAt:      takenAt,
		Snapshot:     []byte(`[]`),
	}
}

func TestCheckpoints_SaveLoadNewestFirst(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveCheckpoint(checkpointRec("c1", "first", "screen-1", base)))
	require.NoError(t, s.SaveCheckpoint(checkpointRec("c2", "second", "screen-1", base.Add(time.Minute))))

	got, err := s.LoadCheckpoints()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c2", got[0].CheckpointID)
	assert.Equal(t, "c1", got[1].CheckpointID)
}

func TestDeleteCheckpoint(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveCheckpoint(checkpointRec("c1", "one", "screen-1", base)))

	require.NoError(t, s.DeleteCheckpoint("c1"))
	got, err := s.LoadCheckpoints()
	require.NoError(t, err)
	assert.Empty(t, got)

	// Deleting an unknown id is a no-op.
	assert.NoError(t, s.DeleteCheckpoint("ghost"))
}

func TestRenameCheckpoint(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveCheckpoint(checkpointRec("c1", "old", "screen-1", base)))

	require.NoError(t, s.RenameCheckpoint("c1", "new"))
	got, err := s.LoadCheckpoints()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Name)

	err = s.RenameCheckpoint("ghost", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestTrimCheckpoints_DeletesGloballyOldest(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		screen := "screen-1"
		if i%2 == 1 {
			screen = "screen-2"
		}
		require.NoError(t, s.SaveCheckpoint(checkpointRec(
			string(rune('a'+i)), "cp", screen, base.Add(time.Duration(i)*time.Minute))))
	}

	require.NoError(t, s.TrimCheckpoints(3))

	got, err := s.LoadCheckpoints()
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest first: e, d, c survive regardless of screen.
	assert.Equal(t, "e", got[0].CheckpointID)
	assert.Equal(t, "d", got[1].CheckpointID)
	assert.Equal(t, "c", got[2].CheckpointID)
}

func TestTrimCheckpoints_NoopUnderCap(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveCheckpoint(checkpointRec("c1", "one", "screen-1", base)))

	require.NoError(t, s.TrimCheckpoints(20))
	got, err := s.LoadCheckpoints()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestClearCheckpoints(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveCheckpoint(checkpointRec("c1", "one", "screen-1", base)))
	require.NoError(t, s.SaveCheckpoint(checkpointRec("c2", "two", "screen-2", base)))

	require.NoError(t, s.ClearCheckpoints())
	got, err := s.LoadCheckpoints()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSettings_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	type prefs struct {
		SnapTolerance int  `json:"snapTolerance"`
		ShowGuides    bool `json:"showGuides"`
	}

	require.NoError(t, s.PutSetting("editor.prefs", prefs{SnapTolerance: 8, ShowGuides: true}))

	var got prefs
	found, err := s.GetSetting("editor.prefs", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, prefs{SnapTolerance: 8, ShowGuides: true}, got)
}

func TestSettings_LastWriteWins(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.PutSetting("k", map[string]any{"v": 1}))
	require.NoError(t, s.PutSetting("k", map[string]any{"v": 2}))

	var got map[string]any
	found, err := s.GetSetting("k", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float64(2), got["v"])
}

func TestSettings_MissingKey(t *testing.T) {
	s := newTestStore(t)
	var out map[string]any
	found, err := s.GetSetting("missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
