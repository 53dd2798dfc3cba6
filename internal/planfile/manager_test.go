package planfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/phaseguide/internal/workflow"
)

const testWorkflowDoc = `
name: design-build
description: Two phase workflow
initial_state: design
states:
  build:
    description: Build the thing.
    default_instructions: Build it.
  design:
    description: Design the thing
    default_instructions: Design it.
    transitions:
      - to: build
        transition_reason: design done
`

func loadTestWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf, err := workflow.Load([]byte(testWorkflowDoc), "test")
	require.NoError(t, err)
	return wf
}

func TestManager_PathFor(t *testing.T) {
	m := NewManager()
	project := t.TempDir()

	tests := []struct {
		branch string
		want   string
	}{
		{"main", "development-plan.md"},
		{"master", "development-plan.md"},
		{"default", "development-plan.md"},
		{"feature/login", "development-plan-feature-login.md"},
		{"fix_123", "development-plan-fix_123.md"},
	}
	for _, tt := range tests {
		t.Run(tt.branch, func(t *testing.T) {
			require.Equal(t, filepath.Join(project, ".phaseguide", tt.want), m.PathFor(project, tt.branch))
		})
	}
}

func TestManager_EnsureExistsThenRead(t *testing.T) {
	m := NewManager()
	wf := loadTestWorkflow(t)
	path := filepath.Join(t.TempDir(), ".phaseguide", "development-plan.md")

	created, err := m.EnsureExists(path, "demo", "main", wf)
	require.NoError(t, err)
	require.True(t, created)

	content, exists, err := m.Read(path)
	require.NoError(t, err)
	require.True(t, exists)

	for _, phase := range wf.Phases() {
		require.Equal(t, 1, strings.Count(content, "\n## "+workflow.PhaseTitle(phase)+"\n"), "one heading for %s", phase)
	}
	require.Contains(t, content, "# Development Plan: demo (main branch)")
	require.Contains(t, content, "## Key Decisions")
	require.Contains(t, content, "## Goal")
	require.Contains(t, content, "*To be added when this phase becomes active*")
	require.NotContains(t, content, "- [ ] *", "placeholders carry no checkbox")

	// Entrance criteria live in the section of the phase they guard.
	build := content[strings.Index(content, "\n## Build\n"):]
	require.Contains(t, build, "### Entrance Criteria\n- [ ] Define when to enter **Build**")
	design := content[strings.Index(content, "\n## Design\n"):strings.Index(content, "\n## Build\n")]
	require.NotContains(t, design, "Entrance Criteria")

	// The initial phase comes first even though it is declared second.
	require.Less(t, strings.Index(content, "## Design"), strings.Index(content, "## Build"))
}

func TestManager_EnsureExistsIsIdempotent(t *testing.T) {
	m := NewManager()
	wf := loadTestWorkflow(t)
	path := filepath.Join(t.TempDir(), "plan.md")
	require.NoError(t, os.WriteFile(path, []byte("agent edits"), 0o644))

	created, err := m.EnsureExists(path, "demo", "main", wf)
	require.NoError(t, err)
	require.False(t, created)

	content, _, err := m.Read(path)
	require.NoError(t, err)
	require.Equal(t, "agent edits", content)
}

func TestManager_ReadMissing(t *testing.T) {
	content, exists, err := NewManager().Read(filepath.Join(t.TempDir(), "nope.md"))
	require.NoError(t, err)
	require.False(t, exists)
	require.Empty(t, content)
}

func TestManager_WriteAndDelete(t *testing.T) {
	m := NewManager()
	path := filepath.Join(t.TempDir(), "nested", "plan.md")

	require.NoError(t, m.Write(path, "one"))
	require.NoError(t, m.Write(path, "two"))
	content, _, err := m.Read(path)
	require.NoError(t, err)
	require.Equal(t, "two", content)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are cleaned up")

	deleted, err := m.Delete(path)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = m.Delete(path)
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestManager_GuidanceFor(t *testing.T) {
	m := NewManager()
	wf := loadTestWorkflow(t)

	guidance, err := m.GuidanceFor("build", wf)
	require.NoError(t, err)
	require.Equal(t, `Work in the "## Build" section of the plan file: Build the thing.`, guidance)

	_, err = m.GuidanceFor("qa", wf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "design, build")
}
