// Package paths resolves where blockshift keeps its configuration, its
// default SQLite database, plan files and snapshots.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name used under the platform config and data
// roots.
const AppName = "blockshift"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "BLOCKSHIFT_CONFIG_DIR"
	EnvDataDir   = "BLOCKSHIFT_DATA_DIR"
)

// File and directory names inside the resolved directories.
const (
	ConfigFile   = "config.yaml"
	DatabaseFile = "blockshift.sqlite3"
	PlansDir     = "plans"
	SnapshotsDir = "snapshots"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	goos          string
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	goos:          runtime.GOOS,
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdg returns $env/blockshift when set, else ~/fallback/blockshift. Outside
// Linux it returns os.UserConfigDir()/blockshift.
func xdg(env string, fallback ...string) (string, error) {
	if platformDir.goos != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Join(v, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/blockshift (fallback ~/.config/blockshift)
// macOS:   ~/Library/Application Support/blockshift
// Windows: %APPDATA%/blockshift
func DefaultConfigDir() (string, error) {
	return xdg("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/blockshift (fallback ~/.local/share/blockshift)
// macOS and Windows: same as the config directory.
func DefaultDataDir() (string, error) {
	return xdg("XDG_DATA_HOME", ".local", "share")
}

// resolve applies flag > env > def, making explicit paths absolute.
func resolve(flag, env string, def func() (string, error)) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Abs(v)
	}
	return def()
}

// ResolveConfigDir returns the configuration directory: flag, then
// BLOCKSHIFT_CONFIG_DIR, then the platform default.
func ResolveConfigDir(flag string) (string, error) {
	return resolve(flag, EnvConfigDir, DefaultConfigDir)
}

// ResolveDataDir returns the data directory: flag, then
// BLOCKSHIFT_DATA_DIR, then the platform default.
func ResolveDataDir(flag string) (string, error) {
	return resolve(flag, EnvDataDir, DefaultDataDir)
}

// Layout is the set of resolved locations for one invocation.
type Layout struct {
	ConfigDir string
	DataDir   string
}

// Resolve resolves both directories from their flags.
func Resolve(configFlag, dataFlag string) (Layout, error) {
	cfg, err := ResolveConfigDir(configFlag)
	if err != nil {
		return Layout{}, err
	}
	data, err := ResolveDataDir(dataFlag)
	if err != nil {
		return Layout{}, err
	}
	return Layout{ConfigDir: cfg, DataDir: data}, nil
}

// ConfigFile is the path of config.yaml.
func (l Layout) ConfigFile() string { return filepath.Join(l.ConfigDir, ConfigFile) }

// Database is the default SQLite database path.
func (l Layout) Database() string { return filepath.Join(l.DataDir, DatabaseFile) }

// Plans is the default plan directory.
func (l Layout) Plans() string { return filepath.Join(l.ConfigDir, PlansDir) }

// Snapshots is the default snapshot directory.
func (l Layout) Snapshots() string { return filepath.Join(l.DataDir, SnapshotsDir) }
