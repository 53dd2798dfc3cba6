package planfile

import (
	"bufio"
	"strings"

	"github.com/zjrosen/phaseguide/internal/workflow"
)

// TaskSummary counts the checklist items in one phase section.
type TaskSummary struct {
	Phase     string   `json:"phase"`
	Found     bool     `json:"section_found"`
	Open      int      `json:"open"`
	Done      int      `json:"done"`
	OpenTasks []string `json:"open_tasks,omitempty"`
}

// criteriaHeading marks the checklist of conditions for entering a phase.
// Its items are not tasks of the phase.
const criteriaHeading = "### entrance criteria"

// Summarize counts "- [ ]" and "- [x]" items under the phase's "## " heading.
// Nested "### " subsections belong to the phase; the next "## " heading ends it.
// Entrance criteria and placeholder items written wholly in italics are not
// counted.
func Summarize(content, phase string) TaskSummary {
	summary := TaskSummary{Phase: phase}
	heading := "## " + workflow.PhaseTitle(phase)

	inSection, inCriteria := false, false
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "## ") {
			inSection = strings.EqualFold(line, heading)
			inCriteria = false
			if inSection {
				summary.Found = true
			}
			continue
		}
		if !inSection {
			continue
		}
		if strings.HasPrefix(line, "### ") {
			inCriteria = strings.EqualFold(line, criteriaHeading)
			continue
		}
		if inCriteria {
			continue
		}

		switch {
		case strings.HasPrefix(line, "- [ ]"):
			text := strings.TrimSpace(strings.TrimPrefix(line, "- [ ]"))
			if isPlaceholder(text) {
				continue
			}
			summary.Open++
			summary.OpenTasks = append(summary.OpenTasks, text)
		case strings.HasPrefix(line, "- [x]"), strings.HasPrefix(line, "- [X]"):
			summary.Done++
		}
	}
	return summary
}

func isPlaceholder(text string) bool {
	return len(text) > 2 && strings.HasPrefix(text, "*") && strings.HasSuffix(text, "*") &&
		!strings.HasPrefix(text, "**")
}
