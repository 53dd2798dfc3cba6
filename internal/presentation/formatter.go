// Package presentation formats guide results for the CLI: indented JSON by
// default, styled markdown and tables with --pretty.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
	"github.com/zjrosen/phaseguide/internal/guide"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

// Formatter handles output formatting
type Formatter struct {
	writer   io.Writer
	pretty   bool
	markdown *Renderer
}

// NewFormatter creates a JSON formatter.
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// NewPrettyFormatter creates a formatter rendering markdown with r.
func NewPrettyFormatter(writer io.Writer, r *Renderer) *Formatter {
	return &Formatter{
		writer:   writer,
		pretty:   true,
		markdown: r,
	}
}

// FormatJSON writes v as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

var (
	labelStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Faint(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// FormatResponse writes a guide response.
func (f *Formatter) FormatResponse(resp *guide.Response) error {
	if !f.pretty {
		return f.FormatJSON(resp)
	}
	if err := f.header(resp); err != nil {
		return err
	}
	return f.render(resp.Instructions)
}

// FormatResume writes a resume response with its task counts.
func (f *Formatter) FormatResume(resp *guide.ResumeResponse) error {
	if !f.pretty {
		return f.FormatJSON(resp)
	}
	if err := f.header(&resp.Response); err != nil {
		return err
	}
	tasks := resp.Tasks
	line := fmt.Sprintf("%s %s  %s %d open, %d done\n",
		labelStyle.Render("Phases:"), strings.Join(resp.Phases, " → "),
		labelStyle.Render("Tasks:"), tasks.Open, tasks.Done)
	if !resp.PlanFileExists {
		line += mutedStyle.Render("plan file not found") + "\n"
	}
	if _, err := io.WriteString(f.writer, line); err != nil {
		return err
	}
	return f.render(resp.Instructions)
}

// FormatReset writes a reset summary.
func (f *Formatter) FormatReset(summary *domain.ResetSummary) error {
	if !f.pretty {
		return f.FormatJSON(summary)
	}
	_, err := fmt.Fprintf(f.writer, "%s %s\n%s %d interaction(s) marked deleted, plan file deleted: %t\n",
		labelStyle.Render("Reset:"), summary.ConversationID,
		labelStyle.Render("Audit:"), summary.InteractionsMarked, summary.PlanFileDeleted)
	return err
}

// FormatWorkflows writes the workflow list, as a table when pretty.
func (f *Formatter) FormatWorkflows(list []workflow.Summary) error {
	if !f.pretty {
		return f.FormatJSON(list)
	}
	_, err := io.WriteString(f.writer, WorkflowTable(list))
	return err
}

// WorkflowTable renders summaries as aligned columns.
func WorkflowTable(list []workflow.Summary) string {
	headers := []string{"NAME", "SOURCE", "DOMAIN", "PHASES", "DESCRIPTION"}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{s.Name, s.Source, s.Domain, strings.Join(s.Phases, ","), firstLine(s.Description)})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string, style lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if i == len(cells)-1 {
				parts[i] = style.Render(cell)
				continue
			}
			parts[i] = style.Width(widths[i]).Render(cell)
		}
		b.WriteString(strings.TrimRight(strings.Join(parts, "  "), " "))
		b.WriteString("\n")
	}
	writeRow(headers, headerStyle)
	for _, row := range rows {
		writeRow(row, lipgloss.NewStyle())
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (f *Formatter) header(resp *guide.Response) error {
	_, err := fmt.Fprintf(f.writer, "%s %s  %s %s  %s %s\n%s %s\n\n",
		labelStyle.Render("Workflow:"), resp.Workflow,
		labelStyle.Render("Phase:"), resp.Phase,
		labelStyle.Render("Conversation:"), resp.ConversationID,
		labelStyle.Render("Plan:"), resp.PlanFilePath)
	return err
}

func (f *Formatter) render(md string) error {
	out := md
	if f.markdown != nil {
		rendered, err := f.markdown.Render(md)
		if err != nil {
			return fmt.Errorf("rendering markdown: %w", err)
		}
		out = rendered
	}
	_, err := io.WriteString(f.writer, out)
	return err
}
