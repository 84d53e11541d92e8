package notebook

import (
	"os"
	"path/filepath"

	"github.com/grovetools/cellkernel/errors"
	"gopkg.in/yaml.v3"
)

// File is a notebook saved to disk for the command line: the cells an
// editor would send plus the fragment to run.
type File struct {
	Filename  string `yaml:"filename,omitempty" json:"filename"`
	Workspace string `yaml:"workspace,omitempty" json:"workspace"`
	Active    int    `yaml:"active" json:"active"`
	Cells     []Cell `yaml:"cells" json:"cells"`
}

// LoadFile reads a notebook file. Filename defaults to the file's own
// absolute path and Workspace to its directory.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Filesystem("read", path, err)
	}

	var nb File
	if err := yaml.Unmarshal(data, &nb); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to parse notebook").
			WithDetail("path", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Filesystem("resolve", path, err)
	}
	if nb.Filename == "" {
		nb.Filename = abs
	}
	if nb.Workspace == "" {
		nb.Workspace = filepath.Dir(abs)
	}

	if err := nb.Validate(); err != nil {
		return nil, err
	}
	return &nb, nil
}

// Validate requires unique fragments and an active fragment that exists.
func (f *File) Validate() error {
	if len(f.Cells) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "notebook has no cells")
	}
	seen := make(map[int]bool, len(f.Cells))
	for _, c := range f.Cells {
		if seen[c.Fragment] {
			return errors.New(errors.ErrCodeInvalidInput, "duplicate fragment in notebook").
				WithDetail("fragment", c.Fragment)
		}
		seen[c.Fragment] = true
	}
	if !seen[f.Active] {
		return errors.New(errors.ErrCodeInvalidInput, "active fragment not in notebook").
			WithDetail("active", f.Active)
	}
	return nil
}

// ActiveCell returns the cell to run.
func (f *File) ActiveCell() Cell {
	for _, c := range f.Cells {
		if c.Fragment == f.Active {
			return c
		}
	}
	return Cell{}
}

// Others returns every cell except the active one, in file order.
func (f *File) Others() []Cell {
	others := make([]Cell, 0, len(f.Cells))
	for _, c := range f.Cells {
		if c.Fragment != f.Active {
			others = append(others, c)
		}
	}
	return others
}
