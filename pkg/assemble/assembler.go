// Package assemble rebuilds a single program and its dependency manifest
// from the cells of a notebook.
package assemble

import (
	"fmt"
	"strings"

	"github.com/grovetools/cellkernel/pkg/notebook"
)

const (
	// DefaultBeginMarker is printed right before the active cell runs.
	DefaultBeginMarker = "<<cellkernel:begin:5f1d>>"
	// DefaultEndMarker is printed right after the active cell runs.
	DefaultEndMarker = "<<cellkernel:end:5f1d>>"

	entryOpen  = "fn main() {"
	entryClose = "}"
)

// Markers are the sentinel tags that delimit the active cell's output.
type Markers struct {
	Begin string `json:"begin"`
	End   string `json:"end"`
}

// DefaultMarkers returns the built-in sentinel tags.
func DefaultMarkers() Markers {
	return Markers{Begin: DefaultBeginMarker, End: DefaultEndMarker}
}

func printStatement(tag string) string {
	return fmt.Sprintf("println!(%q);", tag)
}

// Artifact is the assembled program plus its manifest.
type Artifact struct {
	Source   string `json:"source"`
	Manifest string `json:"manifest"`
	// Dependencies lists external crates in first-seen order.
	Dependencies []string `json:"dependencies"`
	// Markers is nil when no cell was active.
	Markers *Markers `json:"markers,omitempty"`
}

// Assembler turns a cell snapshot into an Artifact.
type Assembler struct {
	markers Markers
	pkg     PackageInfo
}

// New creates an Assembler. Zero-valued markers fall back to the defaults.
func New(markers Markers, pkg PackageInfo) *Assembler {
	if markers.Begin == "" || markers.End == "" {
		markers = DefaultMarkers()
	}
	return &Assembler{markers: markers, pkg: pkg}
}

// Assemble builds the program for cells, which must already be in assembly
// order. The cell whose fragment equals active keeps its output statements
// and is wrapped in sentinels; when no such cell exists the sentinels are
// omitted.
func (a *Assembler) Assemble(cells []notebook.Cell, active int) (*Artifact, error) {
	var (
		imports   []string
		seenLine  = make(map[string]bool)
		deps      []string
		seenCrate = make(map[string]bool)
		body      []string
		hasActive bool
	)

	for _, cell := range cells {
		isActive := cell.Fragment == active
		if isActive {
			hasActive = true
			body = append(body, printStatement(a.markers.Begin))
		}

		lines := stripEntry(splitLines(cell.Contents))
		depth := 0
		for i := 0; i < len(lines); i++ {
			line := lines[i]

			// Continuation of a suppressed multi-line statement.
			if depth > 0 {
				var ended bool
				depth, ended = scanLine(line, depth)
				if ended {
					depth = 0
				}
				continue
			}

			switch Resolve(ClassifyLine(line), isActive) {
			case Import:
				stmt := strings.TrimSpace(line)
				for d := delimiterBalance(line); d > 0 && i+1 < len(lines); {
					i++
					stmt += "\n" + strings.TrimRight(lines[i], " \t")
					d += delimiterBalance(lines[i])
				}
				if !seenLine[stmt] {
					seenLine[stmt] = true
					imports = append(imports, stmt)
				}
				for _, crate := range Crates(stmt) {
					if !seenCrate[crate] {
						seenCrate[crate] = true
						deps = append(deps, crate)
					}
				}
			case Stripped:
			case Suppressed:
				if d, ended := scanLine(line, 0); d > 0 && !ended {
					depth = d
				}
			default:
				body = append(body, line)
			}
		}

		if isActive {
			body = append(body, printStatement(a.markers.End))
		}
	}

	manifestText, err := RenderManifest(a.pkg, deps)
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{
		Source:       renderSource(imports, body),
		Manifest:     manifestText,
		Dependencies: deps,
	}
	if hasActive {
		m := a.markers
		artifact.Markers = &m
	}
	return artifact, nil
}

func renderSource(imports, body []string) string {
	var b strings.Builder
	for _, imp := range imports {
		b.WriteString(imp)
		b.WriteString("\n")
	}
	if len(imports) > 0 {
		b.WriteString("\n")
	}
	b.WriteString(entryOpen)
	b.WriteString("\n")
	for _, line := range body {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(entryClose)
	b.WriteString("\n")
	return b.String()
}

func splitLines(contents string) []string {
	contents = strings.ReplaceAll(contents, "\r\n", "\n")
	contents = strings.TrimRight(contents, "\n")
	if contents == "" {
		return nil
	}
	return strings.Split(contents, "\n")
}

// stripEntry removes a cell's own entry-point scaffolding: the declaration
// line, a lone opening brace on the following line, and the closing brace at
// the end of the last non-blank line.
func stripEntry(lines []string) []string {
	entry := -1
	for i, line := range lines {
		if ClassifyLine(line) == LineEntry {
			entry = i
			break
		}
	}
	if entry < 0 {
		return lines
	}

	out := append([]string(nil), lines[:entry]...)
	rest := lines[entry+1:]
	if !strings.HasSuffix(strings.TrimSpace(lines[entry]), "{") {
		for j, line := range rest {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				continue
			}
			if trimmed == "{" {
				rest = rest[j+1:]
			}
			break
		}
	}

	last := len(rest) - 1
	for last >= 0 && strings.TrimSpace(rest[last]) == "" {
		last--
	}
	if last < 0 {
		return out
	}
	tail := strings.TrimRight(rest[last], " \t")
	if !strings.HasSuffix(tail, entryClose) {
		return append(out, rest...)
	}

	out = append(out, rest[:last]...)
	if head := strings.TrimRight(strings.TrimSuffix(tail, entryClose), " \t"); strings.TrimSpace(head) != "" {
		out = append(out, head)
	}
	return append(out, rest[last+1:]...)
}
