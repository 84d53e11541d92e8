package pidfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/cellkernel/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRecord(t *testing.T, path string, rec Record) {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestAcquireAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "cellkernel.pid")

	require.NoError(t, Acquire(path, Record{Address: "127.0.0.1:8787"}))

	running, rec, err := IsRunning(path)
	require.NoError(t, err)
	assert.True(t, running)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "127.0.0.1:8787", rec.Address)
	assert.False(t, rec.StartedAt.IsZero())

	require.NoError(t, Release(path))
	running, rec, err = IsRunning(path)
	require.NoError(t, err)
	assert.False(t, running)
	assert.Nil(t, rec)
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellkernel.pid")
	writeRecord(t, path, Record{PID: 1, Address: "127.0.0.1:9999"})

	err := Acquire(path, Record{Address: "127.0.0.1:8787"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDaemonRunning))
}

func TestAcquireReplacesStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellkernel.pid")
	writeRecord(t, path, Record{PID: 0x7ffffff0, Address: "127.0.0.1:9999"})

	require.NoError(t, Acquire(path, Record{Address: "127.0.0.1:8787"}))
	rec, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rec.PID)
	assert.Equal(t, "127.0.0.1:8787", rec.Address)
}

func TestReadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cellkernel.pid")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0644))

	_, err := Read(path)
	assert.Error(t, err)
}
