package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"keytrail/internal/archive"
	"keytrail/internal/config"
	"keytrail/internal/export"
	"keytrail/internal/input"
	"keytrail/internal/recorder"
)

type recordOptions struct {
	Duration time.Duration
	Out      string
	Format   export.Format
	Store    *archive.Store
	Logger   *slog.Logger
}

func runRecord(cfg *config.Config, logger *slog.Logger) error {
	f, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		return err
	}

	src := newSource(cfg)
	rec, err := newRecorder(cfg, src, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openArchive(ctx, cfg, logger)
	if err != nil {
		logger.Warn("session archive unavailable", "error", err)
		store = nil
	}
	if store != nil {
		defer store.Close()
	}

	out := *outPath
	if out == "" {
		out = filepath.Join(exportDir(cfg), "keytrail-"+time.Now().Format("20060102-150405")+f.Ext())
	}

	path, err := record(ctx, rec, src, recordOptions{
		Duration: *duration,
		Out:      out,
		Format:   f,
		Store:    store,
		Logger:   logger,
	})
	if path != "" {
		fmt.Println(path)
	}
	return err
}

// record runs one session until ctx ends, the duration elapses, the stop chord
// is pressed or a scripted source runs out, then exports it and optionally
// archives it. A failed unsubscribe is returned after the export, with the
// path of the written file.
func record(ctx context.Context, rec *recorder.Recorder, src input.EventSource, opts recordOptions) (string, error) {
	stopped := make(chan struct{}, 1)
	rec.OnState(func(info recorder.Info) {
		if info.State != recorder.Stopped {
			return
		}
		select {
		case stopped <- struct{}{}:
		default:
		}
	})

	if err := rec.StartRecording(); err != nil {
		return "", err
	}
	opts.Logger.Info("recording, press Ctrl+C to stop", "duration", opts.Duration)

	var finished <-chan struct{}
	if s, ok := src.(*input.Scripted); ok {
		finished = s.Done()
	}
	var timeout <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
	case <-timeout:
	case <-finished:
	case <-stopped:
		opts.Logger.Info("recording stopped by hotkey")
	}

	stopErr := rec.StopRecording()
	if stopErr != nil {
		opts.Logger.Warn("history kept after unsubscribe failure", "error", stopErr)
	}

	h := rec.GetHistory()
	if err := export.ExportFile(opts.Out, h, string(opts.Format), opts.Logger); err != nil {
		return "", errors.Join(stopErr, err)
	}

	if opts.Store != nil {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := opts.Store.SaveSession(saveCtx, h, ""); err != nil {
			opts.Logger.Warn("archive session failed", "id", h.ID(), "error", err)
		}
	}
	return opts.Out, stopErr
}
