// keytrail - records mouse and keyboard activity into an exportable history
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"keytrail/internal/api"
	"keytrail/internal/archive"
	"keytrail/internal/autostart"
	"keytrail/internal/config"
	"keytrail/internal/input"
	"keytrail/internal/logging"
	"keytrail/internal/recorder"
	"keytrail/internal/tray"
	"keytrail/internal/ui"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Config file (.json, .yaml or .yml)")
	showVer    = flag.Bool("version", false, "Show version")
	recordMode = flag.Bool("record", false, "Record without tray or API until interrupted, then export")
	duration   = flag.Duration("duration", 0, "Stop -record after this long")
	outPath    = flag.String("out", "", "Export file for -record")
	format     = flag.String("format", "", "Export format: json or csv")
	source     = flag.String("source", "", "Event source: hook or synthetic")
	noTray     = flag.Bool("no-tray", false, "Run the service without a tray icon")
)

// demoStepInterval paces the synthetic source.
const demoStepInterval = 50 * time.Millisecond

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("keytrail version %s\n", version)
		return
	}

	cfgMgr, err := openConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize config: %v\n", err)
		os.Exit(1)
	}
	loadErr := cfgMgr.Load()

	cfg := cfgMgr.Get()
	var level slog.LevelVar
	logger, err := logging.New(logging.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		LevelVar: &level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	cfgMgr.SetLogger(logger.With("component", "config"))
	if loadErr != nil {
		logger.Warn("failed to load config, using defaults", "error", loadErr)
	}

	if err := applyFlags(cfg); err != nil {
		logger.Error("invalid flags", "error", err)
		os.Exit(2)
	}

	if *recordMode {
		if err := runRecord(cfg, logger); err != nil {
			logger.Error("recording failed", "error", err)
			os.Exit(1)
		}
		return
	}

	runService(cfgMgr, cfg, &level, logger)
}

func openConfig(path string) (*config.Manager, error) {
	if path != "" {
		return config.NewManagerAt(path, nil), nil
	}
	return config.NewManager(nil)
}

// applyFlags overrides cfg for this run only; nothing is persisted.
func applyFlags(cfg *config.Config) error {
	if *source != "" {
		cfg.Recording.Source = *source
	}
	if *format != "" {
		cfg.Export.Format = *format
	}
	return cfg.Validate()
}

// newSource returns nil for the hook so the recorder creates it lazily.
func newSource(cfg *config.Config) input.EventSource {
	if cfg.Recording.Source == config.SourceSynthetic {
		return input.NewScripted(input.DemoScript(demoStepInterval))
	}
	return nil
}

func newRecorder(cfg *config.Config, src input.EventSource, logger *slog.Logger) (*recorder.Recorder, error) {
	exitKey, err := cfg.Recording.ExitKeyValue()
	if err != nil {
		return nil, err
	}
	if runtime.GOOS == "windows" && src == nil {
		logger.Info("input capture uses low-level hooks, some elevated windows only report input when keytrail runs as Administrator")
	}
	return recorder.New(recorder.Options{
		Source:     src,
		Interval:   cfg.Recording.PoolingInterval(),
		ExitKey:    exitKey,
		StopChord:  cfg.Recording.StopHotkey,
		BufferSize: cfg.Recording.BufferSize,
		Logger:     logger.With("component", "recorder"),
	})
}

func openArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*archive.Store, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	path := cfg.Archive.Path
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "sessions.db")
	}
	return archive.Open(ctx, path, logger.With("component", "archive"))
}

func exportDir(cfg *config.Config) string {
	if cfg.Export.Dir != "" {
		return cfg.Export.Dir
	}
	if dir, err := config.Dir(); err == nil {
		return filepath.Join(dir, "exports")
	}
	return "."
}

func runService(cfgMgr *config.Manager, cfg *config.Config, level *slog.LevelVar, logger *slog.Logger) {
	logger.Info("keytrail service starting", "version", version, "source", cfg.Recording.Source)

	rec, err := newRecorder(cfg, newSource(cfg), logger)
	if err != nil {
		logger.Error("failed to create recorder", "error", err)
		os.Exit(1)
	}

	store, err := openArchive(context.Background(), cfg, logger)
	if err != nil {
		logger.Warn("session archive unavailable", "error", err)
		store = nil
	}
	var saver *archive.AutoSaver
	if store != nil {
		saver = archive.AutoSave(rec, store)
	}

	cfgMgr.RegisterChangeCallback(func() {
		newCfg := cfgMgr.Get()
		if lvl, err := logging.ParseLevel(newCfg.Logging.Level); err == nil {
			level.Set(lvl)
		}
		logger.Info("configuration changed, recording settings apply after restart")
	})

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(rec, cfgMgr, store, logger.With("component", "api"))
		go func() {
			if err := apiServer.Start(cfg.API.Port); err != nil {
				logger.Error("API server error", "error", err)
			}
		}()
	}

	shutdown := func() {
		logger.Info("shutting down")
		if apiServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := apiServer.Shutdown(ctx); err != nil {
				logger.Warn("API shutdown failed", "error", err)
			}
			cancel()
		}
		if err := rec.Close(); err != nil {
			logger.Warn("stop recording failed", "error", err)
		}
		if saver != nil {
			saver.Wait()
		}
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Warn("close archive failed", "error", err)
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !cfg.General.ShowTray || *noTray {
		logger.Info("keytrail running, press Ctrl+C to stop")
		<-sigCh
		shutdown()
		return
	}

	t := tray.New("keytrail - idle")
	menu := tray.MenuOptions{
		Recorder:  rec,
		Store:     store,
		ExportDir: func() string { return exportDir(cfgMgr.Get()) },
		Logger:    logger.With("component", "tray"),
		OnQuit:    t.Stop,
	}
	if apiServer != nil {
		menu.ViewerURL = func() string {
			return ui.URL(cfg.API.Port, cfgMgr.Get().API.Token)
		}
	}
	if entry, err := autostart.Default(); err == nil {
		menu.Autostart = entry
	}
	tray.NewMenu(t, menu)

	go func() {
		<-sigCh
		t.Stop()
	}()

	logger.Info("keytrail running in the system tray")
	t.Run()
	shutdown()
}
