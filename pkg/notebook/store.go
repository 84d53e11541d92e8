// Package notebook holds the cells of the notebook being edited and the
// session that owns them.
package notebook

import "sort"

// Cell is one editor notebook cell.
type Cell struct {
	// Fragment is the stable identity assigned by the editor.
	Fragment int `json:"fragment" yaml:"fragment"`
	// Index is the current vertical position in the notebook.
	Index int `json:"index" yaml:"index"`
	// Contents is the raw source text of the cell.
	Contents string `json:"contents" yaml:"contents"`

	seq uint64
}

// Store is an identity-keyed collection of cells.
// It is not safe for concurrent use; callers serialize access.
type Store struct {
	cells map[int]*Cell
	next  uint64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{cells: make(map[int]*Cell)}
}

// Upsert inserts a cell for an unseen fragment or replaces the index and
// contents of the existing one.
func (s *Store) Upsert(fragment, index int, contents string) {
	if cell, ok := s.cells[fragment]; ok {
		cell.Index = index
		cell.Contents = contents
		return
	}
	s.cells[fragment] = &Cell{
		Fragment: fragment,
		Index:    index,
		Contents: contents,
		seq:      s.next,
	}
	s.next++
}

// Get returns a copy of the cell for fragment.
func (s *Store) Get(fragment int) (Cell, bool) {
	cell, ok := s.cells[fragment]
	if !ok {
		return Cell{}, false
	}
	return *cell, true
}

// Len returns the number of cells.
func (s *Store) Len() int {
	return len(s.cells)
}

// Snapshot returns copies of all cells ordered by Index. Cells sharing an
// index keep their creation order.
func (s *Store) Snapshot() []Cell {
	result := make([]Cell, 0, len(s.cells))
	for _, cell := range s.cells {
		result = append(result, *cell)
	}
	// Map iteration is random; establish creation order before the stable sort.
	sort.Slice(result, func(i, j int) bool { return result[i].seq < result[j].seq })
	sort.SliceStable(result, func(i, j int) bool { return result[i].Index < result[j].Index })
	return result
}
