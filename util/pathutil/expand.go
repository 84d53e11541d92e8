// Package pathutil expands and compares the file paths that appear in
// cellkernel configuration.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Expand expands the home directory (~) and environment variables in a
// path. It returns an absolute path.
func Expand(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}

	path = os.ExpandEnv(path)
	return filepath.Abs(path)
}

// ExpandOptional is Expand for settings where empty means unset.
func ExpandOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	return Expand(path)
}

// SamePath reports whether a and b name the same file once expanded and
// symlinks are resolved. Case is folded on darwin and windows.
func SamePath(a, b string) bool {
	ka, err := lookupKey(a)
	if err != nil {
		return false
	}
	kb, err := lookupKey(b)
	if err != nil {
		return false
	}
	return ka == kb
}

// lookupKey resolves path for comparison. Paths that do not exist yet keep
// their expanded form.
func lookupKey(path string) (string, error) {
	abs, err := Expand(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if runtime.GOOS == "darwin" || runtime.GOOS == "windows" {
		abs = strings.ToLower(abs)
	}
	return abs, nil
}
