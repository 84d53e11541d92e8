package assemble

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
)

// AnyVersion is the unconstrained version requirement given to every
// dependency.
const AnyVersion = "*"

// builtinNamespaces are import roots served by the toolchain itself.
var builtinNamespaces = map[string]bool{
	"std":        true,
	"core":       true,
	"alloc":      true,
	"crate":      true,
	"self":       true,
	"super":      true,
	"proc_macro": true,
	"test":       true,
}

// PackageInfo configures the [package] and [[bin]] sections.
type PackageInfo struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Edition    string `json:"edition"`
	SourceFile string `json:"source_file"`
}

// DefaultPackageInfo matches the layout written by WriteArtifact defaults.
func DefaultPackageInfo() PackageInfo {
	return PackageInfo{
		Name:       "output",
		Version:    "0.0.1",
		Edition:    "2021",
		SourceFile: DefaultSourceFile,
	}
}

type manifestPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition,omitempty"`
}

type manifestTarget struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type manifest struct {
	Package      manifestPackage   `toml:"package"`
	Bin          []manifestTarget  `toml:"bin"`
	Dependencies map[string]string `toml:"dependencies"`
}

// RenderManifest renders the dependency manifest for the given crates.
func RenderManifest(info PackageInfo, deps []string) (string, error) {
	m := manifest{
		Package: manifestPackage{
			Name:    info.Name,
			Version: info.Version,
			Edition: info.Edition,
		},
		Bin:          []manifestTarget{{Name: info.Name, Path: info.SourceFile}},
		Dependencies: make(map[string]string, len(deps)),
	}
	for _, d := range deps {
		m.Dependencies[d] = AnyVersion
	}

	data, err := toml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}
	return string(data), nil
}

// Crates returns the external crates an import statement pulls in. A root
// group such as `use {serde, regex::Regex};` yields one crate per item.
// Built-in namespaces are skipped.
func Crates(stmt string) []string {
	trimmed := strings.TrimSpace(stmt)
	var rest string
	switch {
	case strings.HasPrefix(trimmed, "extern crate "):
		rest = strings.TrimPrefix(trimmed, "extern crate ")
	case strings.HasPrefix(trimmed, "use "):
		rest = strings.TrimPrefix(trimmed, "use ")
	default:
		return nil
	}

	rest = strings.TrimPrefix(strings.TrimSpace(rest), "::")
	if !strings.HasPrefix(rest, "{") {
		if crate, ok := rootCrate(rest); ok {
			return []string{crate}
		}
		return nil
	}

	var crates []string
	for _, item := range splitGroup(rest) {
		if crate, ok := rootCrate(strings.TrimPrefix(item, "::")); ok {
			crates = append(crates, crate)
		}
	}
	return crates
}

func rootCrate(path string) (string, bool) {
	path = strings.TrimSpace(path)
	end := strings.IndexFunc(path, func(r rune) bool {
		return !(r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	if end >= 0 {
		path = path[:end]
	}
	if path == "" || builtinNamespaces[path] {
		return "", false
	}
	return path, true
}

// splitGroup splits the top level of a `{a, b::{c, d}}` group on commas.
func splitGroup(group string) []string {
	var (
		items []string
		depth int
		start int
	)
	for i, r := range group {
		switch r {
		case '{':
			depth++
			if depth == 1 {
				start = i + 1
			}
		case '}':
			depth--
			if depth == 0 {
				items = append(items, strings.TrimSpace(group[start:i]))
				return items
			}
		case ',':
			if depth == 1 {
				items = append(items, strings.TrimSpace(group[start:i]))
				start = i + 1
			}
		}
	}
	return items
}
