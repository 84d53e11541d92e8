package notebook

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ignoreSeq = cmpopts.IgnoreUnexported(Cell{})

func TestStoreUpsertKeepsOneCellPerFragment(t *testing.T) {
	s := NewStore()
	s.Upsert(7, 0, "let a = 1;")
	s.Upsert(7, 3, "let a = 2;")
	s.Upsert(7, 1, "let a = 3;")

	require.Equal(t, 1, s.Len())
	cell, ok := s.Get(7)
	require.True(t, ok)
	assert.Equal(t, 1, cell.Index)
	assert.Equal(t, "let a = 3;", cell.Contents)
}

func TestStoreUpsertIsIdempotent(t *testing.T) {
	s := NewStore()
	s.Upsert(1, 0, "x")
	first := s.Snapshot()
	s.Upsert(1, 0, "x")

	if diff := cmp.Diff(first, s.Snapshot(), ignoreSeq); diff != "" {
		t.Errorf("snapshot changed after repeated upsert (-want +got):\n%s", diff)
	}
}

func TestSnapshotOrderDependsOnlyOnIndex(t *testing.T) {
	created := NewStore()
	created.Upsert(1, 0, "a")
	created.Upsert(2, 1, "b")
	created.Upsert(3, 2, "c")

	reordered := NewStore()
	reordered.Upsert(3, 0, "c")
	reordered.Upsert(1, 5, "a")
	reordered.Upsert(2, 9, "b")
	// Move the cells into their final order without recreating them.
	reordered.Upsert(1, 0, "a")
	reordered.Upsert(2, 1, "b")
	reordered.Upsert(3, 2, "c")

	if diff := cmp.Diff(created.Snapshot(), reordered.Snapshot(), ignoreSeq); diff != "" {
		t.Errorf("snapshot mismatch (-created +reordered):\n%s", diff)
	}
}

func TestSnapshotTiesKeepCreationOrder(t *testing.T) {
	s := NewStore()
	s.Upsert(30, 1, "third")
	s.Upsert(10, 1, "first-by-creation")
	s.Upsert(20, 0, "zero")

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, []int{20, 30, 10}, []int{snap[0].Fragment, snap[1].Fragment, snap[2].Fragment})
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Upsert(1, 0, "orig")
	snap := s.Snapshot()
	snap[0].Contents = "mutated"

	cell, _ := s.Get(1)
	assert.Equal(t, "orig", cell.Contents)
}

func TestManagerObserve(t *testing.T) {
	tmp := t.TempDir()
	m := NewManager(Layout{Location: LocationTemp, TempRoot: tmp})

	assert.True(t, m.Observe("a.rs", "/ws"), "first location differs from the empty session")
	m.Current().Cells.Upsert(1, 0, "let x = 1;")

	assert.False(t, m.Observe("a.rs", "/ws"))
	assert.Equal(t, 1, m.Current().Cells.Len())

	assert.True(t, m.Observe("b.rs", "/ws"))
	assert.Empty(t, m.Current().Cells.Snapshot(), "cells must not leak across files")
	assert.Equal(t, "b.rs", m.Current().Filename)

	m.Current().Cells.Upsert(2, 0, "y")
	assert.True(t, m.Observe("b.rs", "/other"))
	assert.Zero(t, m.Current().Cells.Len())
}

func TestManagerReset(t *testing.T) {
	m := NewManager(Layout{TempRoot: t.TempDir()})
	m.Observe("a.rs", "")
	m.Current().Cells.Upsert(1, 0, "x")

	m.Reset()
	assert.Zero(t, m.Current().Cells.Len())
	assert.Equal(t, "a.rs", m.Current().Filename)
}

func TestLayoutDir(t *testing.T) {
	tests := []struct {
		name      string
		layout    Layout
		workspace string
		want      string
	}{
		{"temp", Layout{Location: LocationTemp, TempRoot: "/tmp"}, "/ws", filepath.Join("/tmp", "cellkernel")},
		{"workspace", Layout{Location: LocationWorkspace, Subdir: ".cellkernel"}, "/ws", filepath.Join("/ws", ".cellkernel")},
		{"workspace without root falls back", Layout{Location: LocationWorkspace, TempRoot: "/tmp", Subdir: "src"}, "", filepath.Join("/tmp", "cellkernel")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layout.Dir(tt.workspace))
		})
	}
}

func TestManagerSetLayout(t *testing.T) {
	m := NewManager(Layout{Location: LocationTemp, TempRoot: "/tmp"})
	m.Observe("a.rs", "/ws")
	m.SetLayout(Layout{Location: LocationWorkspace, Subdir: "out"})
	assert.Equal(t, filepath.Join("/ws", "out"), m.Current().ArtifactDir)
}
