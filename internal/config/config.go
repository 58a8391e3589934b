// Package config provides configuration management for keytrail.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"keytrail/internal/export"
	"keytrail/internal/keys"
	"keytrail/internal/logging"
)

// Config represents the application configuration
type Config struct {
	Recording RecordingConfig `json:"recording" yaml:"recording"`
	Export    ExportConfig    `json:"export" yaml:"export"`
	Archive   ArchiveConfig   `json:"archive" yaml:"archive"`
	API       APIConfig       `json:"api" yaml:"api"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	General   GeneralConfig   `json:"general" yaml:"general"`
}

// RecordingConfig controls how input is captured
type RecordingConfig struct {
	// PoolingIntervalMS is the minimum spacing between recorded pointer motions
	PoolingIntervalMS int `json:"pooling_interval_ms" yaml:"pooling_interval_ms"`

	// ExitKey is never recorded (e.g. "esc")
	ExitKey string `json:"exit_key" yaml:"exit_key"`

	// StopHotkey optionally stops recording (e.g. "Ctrl+Shift+F12")
	StopHotkey string `json:"stop_hotkey,omitempty" yaml:"stop_hotkey,omitempty"`

	// BufferSize is the capacity of the per-session event queue
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// Source selects the event source: "hook" or "synthetic"
	Source string `json:"source" yaml:"source"`
}

// ExportConfig contains defaults for exported files
type ExportConfig struct {
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Format string `json:"format" yaml:"format"`
}

// ArchiveConfig controls the sqlite session archive
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// APIConfig controls the local control API
type APIConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Port is the port for the API server (default: 18181)
	Port int `json:"port" yaml:"port"`

	// Token is an optional bearer token for API requests
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// LoggingConfig selects log level and output format
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	// ShowTray shows the system tray menu in service mode
	ShowTray bool `json:"show_tray" yaml:"show_tray"`
}

// Event sources
const (
	SourceHook      = "hook"
	SourceSynthetic = "synthetic"
)

// DefaultConfig returns a new Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			PoolingIntervalMS: 30,
			ExitKey:           "esc",
			BufferSize:        1024,
			Source:            SourceHook,
		},
		Export: ExportConfig{
			Format: string(export.JSON),
		},
		Archive: ArchiveConfig{
			Enabled: true,
		},
		API: APIConfig{
			Enabled: true,
			Port:    18181,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		General: GeneralConfig{
			ShowTray: true,
		},
	}
}

// PoolingInterval returns the motion throttle as a duration.
func (r RecordingConfig) PoolingInterval() time.Duration {
	return time.Duration(r.PoolingIntervalMS) * time.Millisecond
}

// ExitKeyValue parses ExitKey.
func (r RecordingConfig) ExitKeyValue() (keys.Key, error) {
	return keys.Parse(r.ExitKey)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Recording.PoolingIntervalMS < 0 {
		errs = append(errs, fmt.Errorf("recording.pooling_interval_ms must not be negative"))
	}
	if _, err := c.Recording.ExitKeyValue(); err != nil {
		errs = append(errs, fmt.Errorf("recording.exit_key: %w", err))
	}
	if c.Recording.StopHotkey != "" {
		if _, err := keys.ParseChord(c.Recording.StopHotkey); err != nil {
			errs = append(errs, fmt.Errorf("recording.stop_hotkey: %w", err))
		}
	}
	if c.Recording.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("recording.buffer_size must be at least 1"))
	}
	switch c.Recording.Source {
	case SourceHook, SourceSynthetic:
	default:
		errs = append(errs, fmt.Errorf("recording.source must be %q or %q", SourceHook, SourceSynthetic))
	}
	if _, err := export.ParseFormat(c.Export.Format); err != nil {
		errs = append(errs, fmt.Errorf("export.format: %w", err))
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port must be between 1 and 65535"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("logging.format must be %q or %q", logging.FormatText, logging.FormatJSON))
	}
	return errors.Join(errs...)
}

func (c *Config) clone() *Config {
	cp := *c
	return &cp
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.Mutex
	configPath string
	config     *Config
	onChanged  func()
	logger     *slog.Logger
}

// NewManager creates a configuration manager using the per-user config
// directory.
func NewManager(logger *slog.Logger) (*Manager, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(filepath.Join(dir, "config.json"), logger), nil
}

// NewManagerAt creates a configuration manager for an explicit file. Paths
// ending in .yaml or .yml are read and written as YAML, everything else as
// JSON.
func NewManagerAt(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		configPath: path,
		config:     DefaultConfig(),
		logger:     logger,
	}
}

// Dir returns the per-user keytrail directory, creating it if needed.
func Dir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "keytrail")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		configDir = filepath.Join(appData, "keytrail")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, ".config", "keytrail")
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", err
	}
	return configDir, nil
}

// SetLogger replaces the logger, typically once the configured one is built.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}

// Path returns the config file path.
func (m *Manager) Path() string {
	return m.configPath
}

func (m *Manager) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(m.configPath))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the configuration from disk. A missing file keeps the defaults.
func (m *Manager) Load() error {
	m.mu.Lock()

	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}

	cfg := DefaultConfig()
	if m.isYAML() {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("parse %s: %w", m.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}
	m.config = cfg
	cb := m.onChanged
	logger := m.logger
	m.mu.Unlock()

	logger.Info("config loaded", "path", m.configPath)
	if cb != nil {
		cb()
	}
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		data []byte
		err  error
	)
	if m.isYAML() {
		data, err = yaml.Marshal(m.config)
	} else {
		data, err = json.MarshalIndent(m.config, "", "  ")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return err
	}
	m.logger.Info("saving configuration", "path", m.configPath, "bytes", len(data))
	return os.WriteFile(m.configPath, data, 0644)
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config.clone()
}

// Set validates and replaces the configuration
func (m *Manager) Set(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.config = config.clone()
	cb := m.onChanged
	m.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

// RegisterChangeCallback registers a function to be called when config changes
func (m *Manager) RegisterChangeCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChanged = fn
}
