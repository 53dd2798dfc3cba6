package instructions

import (
	"path/filepath"

	"github.com/zjrosen/phaseguide/internal/paths"
)

// Document tokens recognized in instruction text.
const (
	TokenArchitecture = "$ARCHITECTURE_DOC"
	TokenRequirements = "$REQUIREMENTS_DOC"
	TokenDesign       = "$DESIGN_DOC"
)

// DocumentPaths holds absolute paths of the project documents.
type DocumentPaths struct {
	Architecture string
	Requirements string
	Design       string
}

func (d DocumentPaths) lookup(token string) (string, bool) {
	var p string
	switch token {
	case TokenArchitecture:
		p = d.Architecture
	case TokenRequirements:
		p = d.Requirements
	case TokenDesign:
		p = d.Design
	}
	return p, p != ""
}

// DocumentLocator resolves document paths for a project.
type DocumentLocator interface {
	Locate(projectPath string) DocumentPaths
}

// Layout is the default DocumentLocator: documents live in .phaseguide/docs
// unless overridden. Relative overrides are resolved against the project root.
type Layout struct {
	Architecture string
	Requirements string
	Design       string
}

var _ DocumentLocator = Layout{}

// Locate returns absolute document paths for projectPath.
func (l Layout) Locate(projectPath string) DocumentPaths {
	root := paths.ProjectRoot(projectPath)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	docsDir := paths.DocsDir(root)

	resolve := func(override, name string) string {
		if override == "" {
			return filepath.Join(docsDir, name)
		}
		if filepath.IsAbs(override) {
			return filepath.Clean(override)
		}
		return filepath.Join(root, override)
	}

	return DocumentPaths{
		Architecture: resolve(l.Architecture, "architecture.md"),
		Requirements: resolve(l.Requirements, "requirements.md"),
		Design:       resolve(l.Design, "design.md"),
	}
}
