package tray

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keytrail/internal/archive"
	"keytrail/internal/export"
	"keytrail/internal/input"
	"keytrail/internal/keys"
	"keytrail/internal/recorder"
)

func newTestMenu(t *testing.T, store *archive.Store) (*Menu, *Tray, *input.Synthetic, string) {
	t.Helper()
	src := input.NewSynthetic()
	rec, err := recorder.New(recorder.Options{Source: src})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	dir := t.TempDir()
	tr := New("keytrail")
	m := NewMenu(tr, MenuOptions{
		Recorder:  rec,
		Store:     store,
		ExportDir: func() string { return dir },
	})
	return m, tr, src, dir
}

func TestMenuItems(t *testing.T) {
	_, tr, _, _ := newTestMenu(t, nil)

	var titles []string
	for _, item := range tr.items {
		if item == nil {
			titles = append(titles, "-")
			continue
		}
		titles = append(titles, item.Title)
	}
	assert.Equal(t, []string{"Start recording", "Clear history", "-", "Export JSON", "Export CSV", "-", "Quit"}, titles)
}

func TestMenuToggleUpdatesTitle(t *testing.T) {
	m, tr, src, _ := newTestMenu(t, nil)

	m.Toggle()
	assert.True(t, m.opts.Recorder.Recording())
	assert.Equal(t, "Stop recording", tr.items[m.toggle].Title)

	src.Move(1, 2)
	m.Toggle()
	assert.False(t, m.opts.Recorder.Recording())
	assert.Equal(t, "Start recording", tr.items[m.toggle].Title)
	assert.Equal(t, 1, m.opts.Recorder.GetHistory().Len())

	m.Clear()
	assert.Zero(t, m.opts.Recorder.GetHistory().Len())
}

func TestMenuExport(t *testing.T) {
	m, _, src, dir := newTestMenu(t, nil)

	m.Toggle()
	src.Click(5, 5, input.ButtonRight, true)
	m.Toggle()

	path, err := m.Export(export.JSON)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".json"))

	moves, err := export.ReadJSONFile(path)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, recorder.MouseClick, moves[0].Type())

	path, err = m.Export(export.CSV)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".csv"))
}

func TestMenuArchive(t *testing.T) {
	store, err := archive.Open(context.Background(), filepath.Join(t.TempDir(), "a.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m, tr, src, _ := newTestMenu(t, store)
	assert.Len(t, tr.items, 8)

	m.Toggle()
	_, err = m.Archive(context.Background())
	assert.ErrorIs(t, err, recorder.ErrRecordingActive)

	src.KeyPress(keys.Key{Char: 'q'})
	m.Toggle()

	sess, err := m.Archive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, m.opts.Recorder.GetHistory().ID(), sess.ID)
}

func TestMenuArchiveDisabled(t *testing.T) {
	m, _, _, _ := newTestMenu(t, nil)
	_, err := m.Archive(context.Background())
	assert.Error(t, err)
}

type fakeAutostart struct {
	enabled bool
	err     error
}

func (f *fakeAutostart) IsEnabled() bool { return f.enabled }

func (f *fakeAutostart) Set(enabled bool) error {
	if f.err != nil {
		return f.err
	}
	f.enabled = enabled
	return nil
}

func TestMenuAutostart(t *testing.T) {
	rec, err := recorder.New(recorder.Options{Source: input.NewSynthetic()})
	require.NoError(t, err)

	auto := &fakeAutostart{enabled: true}
	tr := New("keytrail")
	m := NewMenu(tr, MenuOptions{Recorder: rec, Autostart: auto})

	item := tr.items[m.autostart]
	assert.Equal(t, "Start at login", item.Title)
	assert.True(t, item.Checkbox)
	assert.True(t, item.Checked)

	m.ToggleAutostart()
	assert.False(t, auto.enabled)
	assert.False(t, item.Checked)

	auto.err = errors.New("read-only home")
	m.ToggleAutostart()
	assert.False(t, item.Checked)
}
