package instructions

import (
	"fmt"
	"strings"

	"github.com/zjrosen/phaseguide/internal/workflow"
)

// Context carries everything Compose needs besides the instruction text.
type Context struct {
	Phase              string
	PhaseGuidance      string
	ProjectPath        string
	Branch             string
	PlanFilePath       string
	TransitionReason   string
	IsModeled          bool
	PlanFileExists     bool
	ReviewPerspectives []workflow.ReviewPerspective
}

// Generator composes final instruction text.
type Generator struct {
	docs DocumentLocator
}

// NewGenerator creates a Generator. A nil locator uses the default Layout.
func NewGenerator(docs DocumentLocator) *Generator {
	if docs == nil {
		docs = Layout{}
	}
	return &Generator{docs: docs}
}

// Substitute replaces known document tokens with absolute paths. Unknown
// tokens are left as they are.
func (g *Generator) Substitute(text Text, projectPath string) string {
	switch t := text.(type) {
	case StaticText:
		return string(t)
	case TemplatedText:
		docs := g.docs.Locate(projectPath)
		return tokenPattern.ReplaceAllStringFunc(t.Body, func(token string) string {
			if p, ok := docs.lookup(token); ok {
				return p
			}
			return token
		})
	default:
		return ""
	}
}

// Compose substitutes tokens in text and appends the plan file, review,
// project context and transition sections.
func (g *Generator) Compose(text Text, c Context) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(g.Substitute(text, c.ProjectPath)))
	b.WriteString("\n\n")

	b.WriteString("**Plan File Guidance:**\n")
	fmt.Fprintf(&b, "Use the plan file at `%s` as your memory for this development session. ", c.PlanFilePath)
	if c.PhaseGuidance != "" {
		b.WriteString(c.PhaseGuidance)
	} else {
		fmt.Fprintf(&b, "Focus on the %q section.", "## "+workflow.PhaseTitle(c.Phase))
	}
	b.WriteString("\n")
	b.WriteString("- Mark completed tasks with [x] as you finish them\n")
	b.WriteString("- Add new tasks as they are identified\n")
	b.WriteString("- Record important decisions in the Key Decisions section\n")
	if !c.PlanFileExists {
		b.WriteString("\nThe plan file does not exist yet. It will be created on first write.\n")
	}

	if len(c.ReviewPerspectives) > 0 {
		b.WriteString("\n**Review Before Proceeding:**\n")
		for _, p := range c.ReviewPerspectives {
			fmt.Fprintf(&b, "- %s: %s\n", p.Perspective, strings.TrimSpace(p.Prompt))
		}
	}

	b.WriteString("\n**Project Context:**\n")
	fmt.Fprintf(&b, "- Project: %s\n", c.ProjectPath)
	fmt.Fprintf(&b, "- Branch: %s\n", c.Branch)
	fmt.Fprintf(&b, "- Current Phase: %s\n", c.Phase)

	if c.IsModeled && c.TransitionReason != "" {
		fmt.Fprintf(&b, "\n**Transition:** %s\n", c.TransitionReason)
	}

	return b.String()
}
