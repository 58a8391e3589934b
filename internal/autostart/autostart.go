// Package autostart registers keytrail to start on login.
package autostart

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

const label = "com.keytrail.agent"

const macLaunchAgentPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>`

const xdgDesktopEntry = `[Desktop Entry]
Type=Application
Name=keytrail
Exec="{{.ExecutablePath}}"
X-GNOME-Autostart-enabled=true
NoDisplay=true
`

const windowsStartupScript = `@echo off
start "" "{{.ExecutablePath}}"
`

// Entry describes one autostart registration.
type Entry struct {
	goos    string
	home    string
	appData string
	exec    string
}

// Default returns the entry for the running executable and user.
func Default() (*Entry, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Entry{
		goos:    runtime.GOOS,
		home:    home,
		appData: os.Getenv("APPDATA"),
		exec:    execPath,
	}, nil
}

// Path returns the file that registers the entry.
func (e *Entry) Path() (string, error) {
	switch e.goos {
	case "darwin":
		return filepath.Join(e.home, "Library", "LaunchAgents", label+".plist"), nil
	case "windows":
		appData := e.appData
		if appData == "" {
			appData = filepath.Join(e.home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Microsoft", "Windows", "Start Menu", "Programs", "Startup", "keytrail.cmd"), nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return filepath.Join(e.home, ".config", "autostart", "keytrail.desktop"), nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", e.goos)
	}
}

func (e *Entry) template() string {
	switch e.goos {
	case "darwin":
		return macLaunchAgentPlist
	case "windows":
		return windowsStartupScript
	default:
		return xdgDesktopEntry
	}
}

// Enable enables auto-start on login
func (e *Entry) Enable() error {
	path, err := e.Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpl, err := template.New("autostart").Parse(e.template())
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return tmpl.Execute(f, struct{ Label, ExecutablePath string }{label, e.exec})
}

// Disable disables auto-start on login
func (e *Entry) Disable() error {
	path, err := e.Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsEnabled checks if auto-start is enabled
func (e *Entry) IsEnabled() bool {
	path, err := e.Path()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Set enables or disables the entry.
func (e *Entry) Set(enabled bool) error {
	if enabled {
		return e.Enable()
	}
	return e.Disable()
}
