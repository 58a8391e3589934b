package tray

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"keytrail/internal/archive"
	"keytrail/internal/export"
	"keytrail/internal/recorder"
	"keytrail/internal/ui"
)

// MenuOptions wires the recorder menu.
type MenuOptions struct {
	Recorder  *recorder.Recorder
	Store     *archive.Store // nil hides "Archive session"
	ExportDir func() string
	ViewerURL func() string // nil hides "Open viewer"
	Autostart Autostart     // nil hides "Start at login"
	Logger    *slog.Logger
	OnQuit    func()
}

// Autostart toggles starting on login.
type Autostart interface {
	IsEnabled() bool
	Set(enabled bool) error
}

// Menu drives a Recorder from tray items.
type Menu struct {
	opts      MenuOptions
	logger    *slog.Logger
	tray      *Tray
	toggle    int
	autostart int
}

// NewMenu adds the recorder items to t.
func NewMenu(t *Tray, opts MenuOptions) *Menu {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Menu{opts: opts, logger: logger, tray: t}

	m.toggle = t.AddMenuItem(toggleTitle(false), m.Toggle)
	t.AddMenuItem("Clear history", m.Clear)
	t.AddSeparator()
	t.AddMenuItem("Export JSON", func() { m.exportLogged(export.JSON) })
	t.AddMenuItem("Export CSV", func() { m.exportLogged(export.CSV) })
	if opts.Store != nil {
		t.AddMenuItem("Archive session", func() { m.archiveLogged() })
	}
	t.AddSeparator()
	if opts.Autostart != nil {
		m.autostart = t.AddCheckboxItem("Start at login", opts.Autostart.IsEnabled(), m.ToggleAutostart)
	}
	if opts.ViewerURL != nil {
		t.AddMenuItem("Open viewer", func() {
			if err := ui.OpenBrowser(opts.ViewerURL()); err != nil {
				logger.Warn("tray: open viewer failed", "error", err)
			}
		})
	}
	t.AddMenuItem("Quit", func() {
		if opts.OnQuit != nil {
			opts.OnQuit()
		}
	})

	opts.Recorder.OnState(m.onState)
	return m
}

func toggleTitle(recording bool) string {
	if recording {
		return "Stop recording"
	}
	return "Start recording"
}

func (m *Menu) onState(info recorder.Info) {
	recording := info.State == recorder.Recording
	m.tray.SetItemTitle(m.toggle, toggleTitle(recording))
	m.tray.SetItemChecked(m.toggle, recording)
	m.tray.SetTooltip(fmt.Sprintf("keytrail - %s (%d moves)", info.State, info.Moves))
}

// Toggle starts or stops recording.
func (m *Menu) Toggle() {
	rec := m.opts.Recorder
	var err error
	if rec.Recording() {
		err = rec.StopRecording()
	} else {
		err = rec.StartRecording()
	}
	if err != nil {
		m.logger.Error("tray: toggle recording failed", "error", err)
	}
}

// ToggleAutostart flips the login registration.
func (m *Menu) ToggleAutostart() {
	want := !m.opts.Autostart.IsEnabled()
	if err := m.opts.Autostart.Set(want); err != nil {
		m.logger.Error("tray: autostart change failed", "error", err)
	}
	m.tray.SetItemChecked(m.autostart, m.opts.Autostart.IsEnabled())
}

// Clear discards the current history.
func (m *Menu) Clear() {
	if err := m.opts.Recorder.CleanHistory(); err != nil {
		m.logger.Warn("tray: clear history failed", "error", err)
	}
}

// Export writes the current history into the export directory and returns the
// file path.
func (m *Menu) Export(f export.Format) (string, error) {
	h := m.opts.Recorder.GetHistory()
	dir := "."
	if m.opts.ExportDir != nil {
		dir = m.opts.ExportDir()
	}
	name := fmt.Sprintf("keytrail-%s-%s%s", time.Now().Format("20060102-150405"), h.ID()[:8], f.Ext())
	path := filepath.Join(dir, name)
	if err := export.ExportFile(path, h, string(f), m.logger); err != nil {
		return "", err
	}
	return path, nil
}

func (m *Menu) exportLogged(f export.Format) {
	if _, err := m.Export(f); err != nil {
		m.logger.Error("tray: export failed", "format", f, "error", err)
	}
}

// Archive saves the current history to the session store.
func (m *Menu) Archive(ctx context.Context) (*archive.Session, error) {
	if m.opts.Store == nil {
		return nil, fmt.Errorf("archive disabled")
	}
	return m.opts.Store.SaveSession(ctx, m.opts.Recorder.GetHistory(), "")
}

func (m *Menu) archiveLogged() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := m.Archive(ctx); err != nil {
		m.logger.Error("tray: archive failed", "error", err)
	}
}
