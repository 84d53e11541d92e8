// Package pidfile records the running kernel's PID and listen addresses so
// a second instance refuses to start and clients can find the first.
package pidfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/pkg/process"
)

// Record is the content of the PID file.
type Record struct {
	PID        int       `json:"pid"`
	Address    string    `json:"address"`
	NulAddress string    `json:"nul_address,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Acquire writes rec (with the current PID) to path. It returns a
// DAEMON_RUNNING error if another live instance owns the file; a stale file
// is replaced.
func Acquire(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Filesystem("mkdir", filepath.Dir(path), err)
	}

	if existing, err := Read(path); err == nil {
		if process.Alive(existing.PID) && existing.PID != os.Getpid() {
			return errors.DaemonRunning(existing.PID).WithDetail("address", existing.Address)
		}
		_ = os.Remove(path)
	}

	rec.PID = os.Getpid()
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode pid file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Filesystem("write", path, err)
	}
	return nil
}

// Release removes the PID file.
func Release(path string) error {
	return os.Remove(path)
}

// Read returns the record stored at path.
func Read(path string) (*Record, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(content, &rec); err != nil {
		return nil, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	return &rec, nil
}

// IsRunning checks if the kernel described by the pidfile is active. The
// record is returned whenever the file could be read.
func IsRunning(path string) (bool, *Record, error) {
	rec, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return process.Alive(rec.PID), rec, nil
}
