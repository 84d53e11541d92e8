// Package paths provides XDG-compliant path resolution for cellkernel.
//
// Resolution order:
// 1. CELLKERNEL_HOME (portable root) → $CELLKERNEL_HOME/{config,state,cache,run}
// 2. XDG env vars → $XDG_*_HOME/cellkernel
// 3. Platform defaults → ~/.config/cellkernel, ~/.local/state/cellkernel, etc.
package paths

import (
	"os"
	"path/filepath"
)

const (
	appName = "cellkernel"
	homeEnv = "CELLKERNEL_HOME"
)

// base resolves one XDG base directory.
func base(homeSub, xdgEnv string, fallback ...string) string {
	if home := os.Getenv(homeEnv); home != "" {
		return filepath.Join(home, homeSub)
	}
	if dir := os.Getenv(xdgEnv); dir != "" {
		return dir
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(append([]string{homeDir}, fallback...)...)
	}
	return ""
}

func appDir(b string) string {
	if b == "" {
		return ""
	}
	return filepath.Join(b, appName)
}

// ConfigDir returns the configuration directory.
// Used for the global cellkernel.yml.
func ConfigDir() string {
	return appDir(base("config", "XDG_CONFIG_HOME", ".config"))
}

// StateDir returns the state directory.
// Used for the pid file and logs.
func StateDir() string {
	return appDir(base("state", "XDG_STATE_HOME", ".local", "state"))
}

// CacheDir returns the cache directory.
func CacheDir() string {
	return appDir(base("cache", "XDG_CACHE_HOME", ".cache"))
}

// RuntimeDir returns the runtime directory.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv(homeEnv); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, appName)
	}
	return StateDir()
}

// LogDir returns the directory holding component log files.
func LogDir() string {
	state := StateDir()
	if state == "" {
		return ""
	}
	return filepath.Join(state, "logs")
}

// PidFilePath returns the path to the kernel PID file.
func PidFilePath() string {
	return filepath.Join(RuntimeDir(), appName+".pid")
}

// EnsureDirs creates all cellkernel directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		ConfigDir(),
		StateDir(),
		CacheDir(),
		RuntimeDir(),
		LogDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
