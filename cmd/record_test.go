package main

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrail/internal/archive"
	"keytrail/internal/config"
	"keytrail/internal/export"
	"keytrail/internal/input"
	"keytrail/internal/keys"
	"keytrail/internal/logging"
	"keytrail/internal/recorder"
)

func TestRecordScriptedSession(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Recording.Source = config.SourceSynthetic

	src := input.NewScripted(input.DemoScript(time.Millisecond))
	rec, err := newRecorder(cfg, src, logging.Discard())
	require.NoError(t, err)

	store, err := archive.Open(context.Background(), filepath.Join(dir, "sessions.db"), nil)
	require.NoError(t, err)
	defer store.Close()

	out := filepath.Join(dir, "out", "session.json")
	path, err := record(context.Background(), rec, src, recordOptions{
		Duration: 10 * time.Second,
		Out:      out,
		Format:   export.JSON,
		Store:    store,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	assert.Equal(t, out, path)

	moves, err := export.ReadJSONFile(out)
	require.NoError(t, err)
	require.NotEmpty(t, moves)
	for _, r := range recorder.ToRecords(moves) {
		if r.KeyName != nil {
			assert.NotEqual(t, "esc", *r.KeyName)
		}
	}
	assert.Equal(t, 12, rec.GetHistory().Count(recorder.KeyPress)+rec.GetHistory().Count(recorder.KeyReleased))

	sessions, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, len(moves), sessions[0].MoveCount)
}

func TestRecordStopsOnContext(t *testing.T) {
	src := input.NewSynthetic()
	rec, err := newRecorder(config.DefaultConfig(), src, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !src.Subscribed() {
			time.Sleep(time.Millisecond)
		}
		src.Scroll(1, 1, 0, 2)
		cancel()
	}()

	out := filepath.Join(t.TempDir(), "session.csv")
	_, err = record(ctx, rec, src, recordOptions{Out: out, Format: export.CSV, Logger: logging.Discard()})
	require.NoError(t, err)
	assert.Equal(t, recorder.Stopped, rec.State())

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "MOUSE_SCROLL", rows[1][0])
}

func TestRecordExportsAfterUnsubscribeFailure(t *testing.T) {
	src := input.NewSynthetic()
	src.FailUnsubscribe(errors.New("hook thread gone"))
	rec, err := newRecorder(config.DefaultConfig(), src, logging.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for !src.Subscribed() {
			time.Sleep(time.Millisecond)
		}
		src.Click(3, 4, input.ButtonLeft, true)
		cancel()
	}()

	out := filepath.Join(t.TempDir(), "session.json")
	path, err := record(ctx, rec, src, recordOptions{Out: out, Format: export.JSON, Logger: logging.Discard()})
	var subErr *recorder.SubscriptionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "unsubscribe", subErr.Op)
	assert.Equal(t, out, path)

	moves, err := export.ReadJSONFile(out)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, recorder.MouseClick, moves[0].Type())
}

func TestRecordStopsOnHotkey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Recording.StopHotkey = "ctrl+q"
	src := input.NewSynthetic()
	rec, err := newRecorder(cfg, src, logging.Discard())
	require.NoError(t, err)

	go func() {
		for !src.Subscribed() {
			time.Sleep(time.Millisecond)
		}
		src.KeyPress(keys.Key{Name: "ctrl_l"})
		src.KeyPress(keys.Key{Char: 'q'})
	}()

	begin := time.Now()
	out := filepath.Join(t.TempDir(), "session.json")
	_, err = record(context.Background(), rec, src, recordOptions{
		Duration: 10 * time.Second,
		Out:      out,
		Format:   export.JSON,
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 5*time.Second)
	assert.Equal(t, recorder.Stopped, rec.State())
	assert.Equal(t, 2, rec.GetHistory().Count(recorder.KeyPress))
}

func TestApplyFlagsValidates(t *testing.T) {
	cfg := config.DefaultConfig()
	*source = "camera"
	defer func() { *source = "" }()
	assert.Error(t, applyFlags(cfg))
}
