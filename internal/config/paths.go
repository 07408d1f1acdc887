package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "dotphrase"

// xdgDir returns $env/dotphrase, or ~/fallback/dotphrase when env is unset.
func xdgDir(env string, fallback ...string) string {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		base = filepath.Join(append([]string{home}, fallback...)...)
	}
	return filepath.Join(base, appName)
}

// ConfigDir returns $XDG_CONFIG_HOME/dotphrase.
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/dotphrase.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// StateDir returns $XDG_STATE_HOME/dotphrase.
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns $XDG_RUNTIME_DIR/dotphrase, falling back to a
// per-user directory under the system temp dir.
func RuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d", appName, os.Getuid()))
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// LockPath returns the single-instance lock file used by listening sessions.
func LockPath() string {
	return filepath.Join(RuntimeDir(), "session.lock")
}

// SupportedConfigFormats returns the supported configuration file extensions.
func SupportedConfigFormats() []string {
	return []string{".toml", ".json", ".yaml", ".yml"}
}

// FindConfigFile returns the first existing config file in ConfigDir, or
// the default TOML path if none exists.
func FindConfigFile() string {
	dir := ConfigDir()
	for _, ext := range SupportedConfigFormats() {
		path := filepath.Join(dir, "config"+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ConfigPath()
}
