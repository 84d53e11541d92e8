package notebook

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grovetools/cellkernel/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNotebook(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scratch.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeNotebook(t, `
active: 2
cells:
  - fragment: 1
    index: 0
    contents: "use std::fmt;"
  - fragment: 2
    index: 1
    contents: |
      println!("hi");
`)

	nb, err := LoadFile(path)
	require.NoError(t, err)

	abs, _ := filepath.Abs(path)
	assert.Equal(t, abs, nb.Filename)
	assert.Equal(t, filepath.Dir(abs), nb.Workspace)
	assert.Equal(t, "println!(\"hi\");\n", nb.ActiveCell().Contents)
	require.Len(t, nb.Others(), 1)
	assert.Equal(t, 1, nb.Others()[0].Fragment)
}

func TestLoadFileKeepsExplicitSession(t *testing.T) {
	path := writeNotebook(t, `
filename: /work/nb.ipynb
workspace: /work
active: 1
cells:
  - fragment: 1
    index: 0
    contents: "1"
`)

	nb, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/work/nb.ipynb", nb.Filename)
	assert.Equal(t, "/work", nb.Workspace)
}

func TestLoadFileRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no cells", "active: 1\ncells: []\n"},
		{"duplicate fragment", "active: 1\ncells:\n  - {fragment: 1, index: 0, contents: a}\n  - {fragment: 1, index: 1, contents: b}\n"},
		{"missing active", "active: 9\ncells:\n  - {fragment: 1, index: 0, contents: a}\n"},
		{"not yaml", "cells: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeNotebook(t, tt.body))
			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yml"))
	assert.True(t, errors.Is(err, errors.ErrCodeFilesystem))
}
