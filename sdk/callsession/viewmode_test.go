package callsession

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewModeText(t *testing.T) {
	for _, mode := range []ViewMode{ViewEmbedded, ViewFullscreen, ViewPip, ViewMinimized} {
		text, err := mode.MarshalText()
		require.NoError(t, err)

		var back ViewMode
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, mode, back)
	}

	_, err := ParseViewMode("theater")
	assert.Error(t, err)
	_, err = ViewMode(7).MarshalText()
	assert.Error(t, err)
	assert.False(t, ViewMode(-1).Valid())
}

func TestSnapshotWireShape(t *testing.T) {
	data, err := json.Marshal(&Snapshot{RoomName: "r", JoinURL: "u", DisplayName: "Ann", StartedAt: 5, ViewMode: ViewMinimized})
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomName":"r","joinUrl":"u","displayName":"Ann","startedAt":5,"viewMode":"minimized","isHost":false,"participants":null}`, string(data))

	var snap Snapshot
	assert.Error(t, json.Unmarshal([]byte(`{"roomName":"r","viewMode":"huge"}`), &snap))
}

func TestFileSnapshotStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileSnapshotStore(path)

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, store.Save(ctx, &Snapshot{RoomName: "r1", ViewMode: ViewPip}))
	require.NoError(t, store.Save(ctx, &Snapshot{RoomName: "r2", ViewMode: ViewFullscreen}))
	snap, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r2", snap.RoomName)
	assert.Equal(t, ViewFullscreen, snap.ViewMode)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	snap, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptSnapshot)
}
