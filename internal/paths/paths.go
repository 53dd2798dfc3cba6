// Package paths provides path resolution utilities.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// StateDirName is the per-project directory holding conversation state,
// plan files, project-local workflows and documents.
const StateDirName = ".phaseguide"

// ResolveStateDir resolves the .phaseguide directory for a project.
// It normalizes the input (accepting either the project dir or the
// .phaseguide dir itself) and follows redirect files for git worktrees.
//
// Input normalization:
//   - "/path/to/project" -> "/path/to/project/.phaseguide"
//   - "/path/to/project/.phaseguide" -> "/path/to/project/.phaseguide"
//   - "" -> "./.phaseguide"
//
// Redirect handling:
//   - If .phaseguide/redirect exists, follows it to the actual state location
//   - This lets git worktrees share one state directory with the main checkout
func ResolveStateDir(projectPath string) string {
	if projectPath == "" {
		projectPath = "."
	}
	projectPath = filepath.Clean(projectPath)

	if filepath.Base(projectPath) == StateDirName {
		return followRedirect(projectPath)
	}

	return followRedirect(filepath.Join(projectPath, StateDirName))
}

// ProjectRoot strips a trailing .phaseguide component so callers may pass either form.
func ProjectRoot(projectPath string) string {
	if projectPath == "" {
		projectPath = "."
	}
	projectPath = filepath.Clean(projectPath)
	if filepath.Base(projectPath) == StateDirName {
		return filepath.Dir(projectPath)
	}
	return projectPath
}

// ProjectName returns the base name of the project directory.
func ProjectName(projectPath string) string {
	root := ProjectRoot(projectPath)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	name := filepath.Base(root)
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "project"
	}
	return name
}

// WorkflowsDir returns the project-local workflow override directory.
func WorkflowsDir(projectPath string) string {
	return filepath.Join(ResolveStateDir(projectPath), "workflows")
}

// DocsDir returns the directory holding architecture/requirements/design documents.
func DocsDir(projectPath string) string {
	return filepath.Join(ResolveStateDir(projectPath), "docs")
}

// DatabasePath returns the default conversation database location for a project.
func DatabasePath(projectPath string) string {
	return filepath.Join(ResolveStateDir(projectPath), "conversations.db")
}

// ConfigPath returns the project-level config file location.
func ConfigPath(projectPath string) string {
	return filepath.Join(ResolveStateDir(projectPath), "config.yaml")
}

// followRedirect checks for a redirect file and follows it if present.
func followRedirect(stateDir string) string {
	redirectPath := filepath.Join(stateDir, "redirect")

	content, err := os.ReadFile(redirectPath) //nolint:gosec // redirect path is within the state dir
	if err != nil {
		return stateDir
	}

	redirectTarget := strings.TrimSpace(string(content))
	if redirectTarget == "" {
		return stateDir
	}

	if filepath.IsAbs(redirectTarget) {
		return filepath.Clean(redirectTarget)
	}
	return filepath.Clean(filepath.Join(stateDir, redirectTarget))
}
