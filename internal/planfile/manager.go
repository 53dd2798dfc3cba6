// Package planfile manages the markdown development plan that serves as the
// agent's long-lived memory. Its sections mirror the phases of the active
// workflow.
package planfile

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/paths"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

//go:embed templates/plan.md.tmpl
var templates embed.FS

var planTemplate = template.Must(template.ParseFS(templates, "templates/plan.md.tmpl"))

// defaultBranches share the unsuffixed plan file name.
var defaultBranches = map[string]bool{"main": true, "master": true, "default": true}

// Manager creates, reads and removes plan files.
type Manager struct{}

// NewManager creates a Manager.
func NewManager() *Manager {
	return &Manager{}
}

// PathFor returns the plan file location for a project branch.
func (m *Manager) PathFor(projectPath, branch string) string {
	name := "development-plan.md"
	if !defaultBranches[branch] {
		name = "development-plan-" + branchSlug(branch) + ".md"
	}
	return filepath.Join(paths.ResolveStateDir(projectPath), name)
}

func branchSlug(branch string) string {
	var b strings.Builder
	for _, r := range branch {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-.")
}

type phaseSection struct {
	Name        string
	Title       string
	Description string
	Initial     bool
}

type planData struct {
	ProjectName         string
	Branch              string
	WorkflowName        string
	WorkflowDescription string
	Phases              []phaseSection
}

// Render produces the initial plan for a workflow: one section per phase,
// the initial phase first. Every later phase carries its own entrance
// criteria checklist.
func Render(projectName, branch string, wf *workflow.Workflow) (string, error) {
	data := planData{
		ProjectName:         projectName,
		Branch:              branch,
		WorkflowName:        wf.Name,
		WorkflowDescription: strings.TrimSpace(wf.Description),
	}

	initial := wf.State(wf.InitialState)
	data.Phases = append(data.Phases, phaseSection{
		Name:        initial.Name,
		Title:       workflow.PhaseTitle(initial.Name),
		Description: strings.TrimSpace(initial.Description),
		Initial:     true,
	})
	for _, name := range wf.Phases() {
		if name == wf.InitialState {
			continue
		}
		data.Phases = append(data.Phases, phaseSection{
			Name:        name,
			Title:       workflow.PhaseTitle(name),
			Description: strings.TrimSpace(wf.State(name).Description),
		})
	}

	var buf bytes.Buffer
	if err := planTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering plan file: %w", err)
	}
	return buf.String(), nil
}

// EnsureExists writes the initial plan when path is absent. An existing file
// is left untouched.
func (m *Manager) EnsureExists(path, projectName, branch string, wf *workflow.Workflow) (bool, error) {
	_, exists, err := m.Read(path)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	content, err := Render(projectName, branch, wf)
	if err != nil {
		return false, err
	}
	if err := m.Write(path, content); err != nil {
		return false, err
	}
	log.Info(log.CatPlan, "plan file created", "path", path, "workflow", wf.Name)
	return true, nil
}

// Read returns the plan content and whether the file exists.
func (m *Manager) Read(path string) (string, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: plan paths are derived from the project state dir
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading plan file: %w", err)
	}
	return string(data), true, nil
}

// Write replaces the plan content. The file is written to a temp file and
// renamed into place.
func (m *Manager) Write(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating plan directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".plan-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp plan file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing plan file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing plan file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing plan file: %w", err)
	}
	return nil
}

// Delete removes the plan file and reports whether one existed.
func (m *Manager) Delete(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting plan file: %w", err)
	}
	log.Info(log.CatPlan, "plan file deleted", "path", path)
	return true, nil
}

// GuidanceFor returns a one-line reminder about the phase's plan section.
// An undeclared phase means the stored conversation and its workflow
// disagree, which is reported as an error.
func (m *Manager) GuidanceFor(phase string, wf *workflow.Workflow) (string, error) {
	if err := wf.CheckPhase(phase); err != nil {
		return "", err
	}
	st := wf.State(phase)

	guidance := fmt.Sprintf("Work in the %q section of the plan file", "## "+workflow.PhaseTitle(phase))
	if desc := strings.TrimSpace(st.Description); desc != "" {
		guidance += ": " + strings.TrimSuffix(desc, ".")
	}
	return guidance + ".", nil
}
