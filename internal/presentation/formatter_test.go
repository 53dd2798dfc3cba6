package presentation

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
	"github.com/zjrosen/phaseguide/internal/guide"
	"github.com/zjrosen/phaseguide/internal/planfile"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

func sampleResponse() *guide.Response {
	return &guide.Response{
		ConversationID: "demo-main-0123abcd",
		Workflow:       "epcc",
		Phase:          "explore",
		Instructions:   "# Explore\n\nRead the code.",
		PlanFilePath:   "/work/demo/.phaseguide/development-plan.md",
	}
}

func TestFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(&buf).FormatResponse(sampleResponse()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "explore", decoded["phase"])
	require.Equal(t, "demo-main-0123abcd", decoded["conversation_id"])
	require.Contains(t, buf.String(), "\n  \"")
}

func TestFormatter_PrettyResponse(t *testing.T) {
	r, err := NewRenderer(80, "notty")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewPrettyFormatter(&buf, r).FormatResponse(sampleResponse()))

	out := buf.String()
	require.Contains(t, out, "Phase:")
	require.Contains(t, out, "explore")
	require.Contains(t, out, "Read the code.")
	require.NotContains(t, out, `"phase"`)
}

func TestFormatter_PrettyResume(t *testing.T) {
	var buf bytes.Buffer
	resp := &guide.ResumeResponse{
		Response: *sampleResponse(),
		Phases:   []string{"explore", "plan", "code"},
		Tasks:    planfile.TaskSummary{Phase: "explore", Found: true, Open: 2, Done: 1},
	}
	require.NoError(t, NewPrettyFormatter(&buf, nil).FormatResume(resp))

	out := buf.String()
	require.Contains(t, out, "explore → plan → code")
	require.Contains(t, out, "2 open, 1 done")
	require.Contains(t, out, "plan file not found")
}

func TestFormatter_Reset(t *testing.T) {
	summary := &domain.ResetSummary{ConversationID: "demo-main-0123abcd", ConversationDeleted: true, InteractionsMarked: 3}

	var buf bytes.Buffer
	require.NoError(t, NewPrettyFormatter(&buf, nil).FormatReset(summary))
	require.Contains(t, buf.String(), "3 interaction(s) marked deleted")

	buf.Reset()
	require.NoError(t, NewFormatter(&buf).FormatReset(summary))
	require.Contains(t, buf.String(), `"interactions_marked": 3`)
}

func TestWorkflowTable(t *testing.T) {
	out := WorkflowTable([]workflow.Summary{
		{Name: "epcc", Source: "bundled", Domain: "code", Phases: []string{"explore", "plan"}, Description: "Explore, plan\nmore"},
		{Name: "research", Source: "project", Phases: []string{"read"}},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "NAME")
	require.Contains(t, lines[1], "epcc")
	require.Contains(t, lines[1], "explore,plan")
	require.NotContains(t, out, "more")
	require.Contains(t, lines[2], "research")
	require.Equal(t, strings.Index(lines[1], "bundled"), strings.Index(lines[2], "project"))
}
