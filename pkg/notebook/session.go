package notebook

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// LocationTemp places artifacts under the process temp directory.
	LocationTemp = "temp"
	// LocationWorkspace places artifacts under the editor's workspace root.
	LocationWorkspace = "workspace"

	tempDirName = "cellkernel"
)

// Layout decides where a session writes its assembled artifact.
type Layout struct {
	// Location is LocationTemp or LocationWorkspace.
	Location string `json:"location"`
	// TempRoot overrides os.TempDir() for LocationTemp.
	TempRoot string `json:"temp_root,omitempty"`
	// Subdir is joined to the workspace root for LocationWorkspace.
	Subdir string `json:"subdir"`
}

// Dir returns the artifact directory for a workspace root. Workspace layouts
// fall back to the temp directory when the editor reports no workspace.
func (l Layout) Dir(workspace string) string {
	if l.Location == LocationWorkspace && workspace != "" {
		return filepath.Join(workspace, l.Subdir)
	}
	root := l.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	return filepath.Join(root, tempDirName)
}

// Session is the state kept for one open notebook.
type Session struct {
	Filename    string
	Workspace   string
	Cells       *Store
	ArtifactDir string
	StartedAt   time.Time
}

// Manager owns the single live Session and replaces it when the editor
// switches to another file or workspace.
type Manager struct {
	layout  Layout
	current *Session
}

// NewManager creates a Manager with an empty session.
func NewManager(layout Layout) *Manager {
	m := &Manager{layout: layout}
	m.current = m.newSession("", "")
	return m
}

func (m *Manager) newSession(filename, workspace string) *Session {
	return &Session{
		Filename:    filename,
		Workspace:   workspace,
		Cells:       NewStore(),
		ArtifactDir: m.layout.Dir(workspace),
		StartedAt:   time.Now(),
	}
}

// Observe records the location reported by the editor. When either value
// differs from the live session, the session is discarded and replaced with
// an empty one, and Observe reports true.
func (m *Manager) Observe(filename, workspace string) bool {
	if m.current.Filename == filename && m.current.Workspace == workspace {
		return false
	}
	m.current = m.newSession(filename, workspace)
	return true
}

// Current returns the live session.
func (m *Manager) Current() *Session {
	return m.current
}

// Reset discards all cells while keeping the current location.
func (m *Manager) Reset() {
	m.current = m.newSession(m.current.Filename, m.current.Workspace)
}

// SetLayout changes where future sessions write artifacts. The live session
// is re-pointed too, since its artifact is regenerated on every request.
func (m *Manager) SetLayout(layout Layout) {
	m.layout = layout
	m.current.ArtifactDir = layout.Dir(m.current.Workspace)
}
