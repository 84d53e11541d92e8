package assemble

import (
	"os"
	"path/filepath"

	"github.com/grovetools/cellkernel/errors"
)

const (
	// DefaultSourceFile is the program file name inside the artifact directory.
	DefaultSourceFile = "main.rs"
	// DefaultManifestFile is the manifest file name inside the artifact directory.
	DefaultManifestFile = "Cargo.toml"
)

// FileNames names the two files an artifact is written to.
type FileNames struct {
	Source   string `json:"source"`
	Manifest string `json:"manifest"`
}

// DefaultFileNames returns the Cargo layout.
func DefaultFileNames() FileNames {
	return FileNames{Source: DefaultSourceFile, Manifest: DefaultManifestFile}
}

// WriteArtifact writes the program and manifest into dir, creating it when
// needed. Failures are reported as FILESYSTEM errors.
func WriteArtifact(dir string, names FileNames, a *Artifact) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Filesystem("create directory", dir, err)
	}

	sourcePath := filepath.Join(dir, names.Source)
	if err := os.WriteFile(sourcePath, []byte(a.Source), 0644); err != nil {
		return errors.Filesystem("write", sourcePath, err)
	}

	manifestPath := filepath.Join(dir, names.Manifest)
	if err := os.WriteFile(manifestPath, []byte(a.Manifest), 0644); err != nil {
		return errors.Filesystem("write", manifestPath, err)
	}

	return nil
}
