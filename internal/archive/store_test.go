package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrail/internal/input"
	"keytrail/internal/recorder"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keytrail-test.db")
	store, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store, path
}

func stoppedHistory(t *testing.T, moves ...recorder.Move) *recorder.History {
	t.Helper()
	h := recorder.NewHistory(nil)
	h.Start()
	for _, m := range moves {
		require.NoError(t, h.Add(m))
	}
	h.Stop()
	return h
}

func TestOpenRunsMigrations(t *testing.T) {
	store, path := openTestStore(t)

	_, err := os.Stat(path)
	require.NoError(t, err)

	for _, table := range []string{"_meta", "sessions", "moves"} {
		var count int
		err := store.conn.QueryRow(`SELECT count(1) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}

	var version string
	require.NoError(t, store.conn.QueryRow(`SELECT value FROM _meta WHERE key = 'schema_version'`).Scan(&version))
	assert.Equal(t, "2", version)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	first, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestSaveAndLoadSession(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	moves := []recorder.Move{
		recorder.Click{At: t0, X: 5, Y: 6, Button: input.ButtonRight, Pressed: true},
		recorder.Scroll{At: t0.Add(time.Millisecond), X: 5, Y: 6, DX: 1, DY: 0},
		recorder.Motion{At: t0.Add(2 * time.Millisecond), X: 7, Y: 8},
		recorder.KeyDown{At: t0.Add(3 * time.Millisecond), Code: "z"},
		recorder.KeyUp{At: t0.Add(4 * time.Millisecond), Name: "enter"},
		recorder.KeyDown{At: t0.Add(5 * time.Millisecond)},
	}
	h := stoppedHistory(t, moves...)

	sess, err := store.SaveSession(ctx, h, "demo")
	require.NoError(t, err)
	assert.Equal(t, h.ID(), sess.ID)
	assert.Equal(t, 6, sess.MoveCount)

	got, err := store.GetSession(ctx, h.ID())
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Label)
	assert.Equal(t, h.Info().StartedAt.Truncate(0), got.StartedAt)

	loaded, err := store.LoadMoves(ctx, h.ID())
	require.NoError(t, err)
	assert.Equal(t, moves, loaded)
}

func TestSaveSessionReplacesEarlierSave(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	h := stoppedHistory(t, recorder.Motion{At: t0, X: 1, Y: 1})
	_, err := store.SaveSession(ctx, h, "")
	require.NoError(t, err)

	h.Start()
	require.NoError(t, h.Add(recorder.Motion{At: t0.Add(time.Second), X: 2, Y: 2}))
	h.Stop()
	_, err = store.SaveSession(ctx, h, "second")
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].MoveCount)
	assert.Equal(t, "second", sessions[0].Label)

	loaded, err := store.LoadMoves(ctx, h.ID())
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestSaveSessionRejectsActiveRecording(t *testing.T) {
	store, _ := openTestStore(t)
	h := recorder.NewHistory(nil)
	h.Start()

	_, err := store.SaveSession(context.Background(), h, "")
	assert.ErrorIs(t, err, recorder.ErrRecordingActive)
}

func TestListAndDeleteSessions(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	empty, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	a := stoppedHistory(t, recorder.Motion{At: t0})
	b := stoppedHistory(t)
	_, err = store.SaveSession(ctx, a, "a")
	require.NoError(t, err)
	_, err = store.SaveSession(ctx, b, "b")
	require.NoError(t, err)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	require.NoError(t, store.DeleteSession(ctx, a.ID()))
	assert.ErrorIs(t, store.DeleteSession(ctx, a.ID()), ErrNotFound)

	_, err = store.GetSession(ctx, a.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.LoadMoves(ctx, a.ID())
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int
	require.NoError(t, store.conn.QueryRow(`SELECT count(1) FROM moves WHERE session_id = ?`, a.ID()).Scan(&orphans))
	assert.Zero(t, orphans)

	loaded, err := store.LoadMoves(ctx, b.ID())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
