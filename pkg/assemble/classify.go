package assemble

import (
	"regexp"
	"strings"
)

// LineKind is the syntactic category of a single cell line.
type LineKind int

const (
	// LineBody is any statement that belongs inside the entry point.
	LineBody LineKind = iota
	// LineImport is a use/extern declaration hoisted to the file top.
	LineImport
	// LineEntry is a cell's own entry-point declaration.
	LineEntry
	// LineOutput starts an output-producing statement.
	LineOutput
)

func (k LineKind) String() string {
	switch k {
	case LineImport:
		return "import"
	case LineEntry:
		return "entry"
	case LineOutput:
		return "output"
	default:
		return "body"
	}
}

// Disposition is what the assembler does with a classified line.
type Disposition int

const (
	// Body lines go into the entry-point body.
	Body Disposition = iota
	// Import lines are hoisted above the entry point.
	Import
	// Suppressed lines are dropped from the program.
	Suppressed
	// Stripped lines are entry-point scaffolding removed from a cell.
	Stripped
)

type lineRule struct {
	kind  LineKind
	match func(trimmed string) bool
}

var entryPattern = regexp.MustCompile(`^(pub\s+)?fn\s+main\s*\(\s*\)\s*(->\s*[^{]+?)?\s*\{?$`)

// lineRules is evaluated in order; the first match wins and unmatched lines
// are LineBody.
var lineRules = []lineRule{
	{LineImport, hasAnyPrefix("use ", "extern crate ")},
	{LineEntry, entryPattern.MatchString},
	{LineOutput, hasAnyPrefix("println!", "print!", "eprintln!", "eprint!", "dbg!")},
}

func hasAnyPrefix(prefixes ...string) func(string) bool {
	return func(s string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(s, p) {
				return true
			}
		}
		return false
	}
}

// ClassifyLine returns the kind of a raw cell line.
func ClassifyLine(line string) LineKind {
	trimmed := strings.TrimSpace(line)
	for _, r := range lineRules {
		if r.match(trimmed) {
			return r.kind
		}
	}
	return LineBody
}

// Resolve maps a line kind to a disposition. Output statements survive only
// in the active cell.
func Resolve(kind LineKind, active bool) Disposition {
	switch kind {
	case LineImport:
		return Import
	case LineEntry:
		return Stripped
	case LineOutput:
		if active {
			return Body
		}
		return Suppressed
	default:
		return Body
	}
}

// delimiterBalance counts opening minus closing brackets outside of string,
// raw string and char literals.
func delimiterBalance(line string) int {
	depth, _ := scanLine(line, 0)
	return depth
}

// scanLine carries a bracket depth across line. ended reports that the line
// finishes with a `;` seen at depth zero, i.e. the statement is complete.
func scanLine(line string, depth int) (next int, ended bool) {
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			i = skipString(line, i+1)
		case c == 'r' && !identBefore(line, i):
			if end, ok := skipRawString(line, i+1); ok {
				i = end
			}
		case c == 'b' && i+1 < len(line) && line[i+1] == 'r' && !identBefore(line, i):
			if end, ok := skipRawString(line, i+2); ok {
				i = end
			}
		case c == '\'':
			i = skipChar(line, i)
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return depth, ended
		case c == '(' || c == '[' || c == '{':
			depth++
			ended = false
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ';' && depth <= 0:
			ended = true
		}
	}
	return depth, ended
}

// skipString returns the index of the quote closing a string opened before i.
func skipString(line string, i int) int {
	for ; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return len(line)
}

// skipRawString handles r"..." and r#"..."# starting after the r. It returns
// the index of the last closing byte.
func skipRawString(line string, i int) (int, bool) {
	hashes := 0
	for i < len(line) && line[i] == '#' {
		hashes++
		i++
	}
	if i >= len(line) || line[i] != '"' {
		return 0, false
	}
	closing := "\"" + strings.Repeat("#", hashes)
	if end := strings.Index(line[i+1:], closing); end >= 0 {
		return i + 1 + end + len(closing) - 1, true
	}
	return len(line), true
}

// skipChar steps over char literals like '(' or '\''. Lifetimes are left
// alone.
func skipChar(line string, i int) int {
	if i+2 < len(line) && line[i+1] != '\\' && line[i+2] == '\'' {
		return i + 2
	}
	if i+3 < len(line) && line[i+1] == '\\' {
		if end := strings.IndexByte(line[i+3:], '\''); end >= 0 {
			return i + 3 + end
		}
	}
	return i
}

func identBefore(line string, i int) bool {
	if i == 0 {
		return false
	}
	c := line[i-1]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
