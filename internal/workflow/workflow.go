// Package workflow defines the phase state machines that drive a development
// conversation. It loads and validates workflow documents and resolves
// workflow names against the bundled set and a project-local override directory.
package workflow

import (
	"slices"
	"strings"
	"unicode"
)

// Source indicates where a workflow document originated from.
type Source int

const (
	// SourceBundled indicates a workflow shipped with phaseguide.
	SourceBundled Source = iota
	// SourceProject indicates a workflow from the project's .phaseguide/workflows directory.
	SourceProject
)

// String returns a human-readable representation of the Source.
func (s Source) String() string {
	switch s {
	case SourceBundled:
		return "bundled"
	case SourceProject:
		return "project"
	default:
		return "unknown"
	}
}

// ReviewPerspective asks the agent to review work from a given role before a transition.
type ReviewPerspective struct {
	Perspective string `yaml:"perspective" json:"perspective"`
	Prompt      string `yaml:"prompt" json:"prompt"`
}

// Transition is a declared edge out of a state.
type Transition struct {
	Trigger                string
	To                     string
	Instructions           string
	AdditionalInstructions string
	TransitionReason       string
	ReviewPerspectives     []ReviewPerspective
}

// State is a single phase of a workflow.
type State struct {
	Name                string
	Description         string
	DefaultInstructions string
	Transitions         []Transition
}

// Metadata is optional descriptive data used for listing and domain filtering.
type Metadata struct {
	Domain     string   `yaml:"domain"`
	Complexity string   `yaml:"complexity"`
	BestFor    []string `yaml:"best_for"`
}

// Workflow is a loaded, validated workflow definition. It is never mutated
// after Load returns.
type Workflow struct {
	Name         string
	Description  string
	InitialState string
	Metadata     Metadata

	// Source indicates whether this is a bundled or project-local workflow.
	Source Source

	// FilePath is the path the document was read from. For embedded
	// workflows it is relative to the embedded root.
	FilePath string

	states map[string]*State
	order  []string
}

// Summary is the listing view of a workflow.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Domain      string   `json:"domain,omitempty"`
	Complexity  string   `json:"complexity,omitempty"`
	Phases      []string `json:"phases"`
	Source      string   `json:"source"`
	FilePath    string   `json:"file_path,omitempty"`
}

// Phases returns the declared phase names in document order.
func (w *Workflow) Phases() []string {
	return slices.Clone(w.order)
}

// State returns the named state, or nil when it is not declared.
func (w *Workflow) State(name string) *State {
	return w.states[name]
}

// HasPhase reports whether name is a declared phase.
func (w *Workflow) HasPhase(name string) bool {
	_, ok := w.states[name]
	return ok
}

// CheckPhase returns an InvalidPhaseError unless name is a declared phase.
func (w *Workflow) CheckPhase(name string) error {
	if w.HasPhase(name) {
		return nil
	}
	return &InvalidPhaseError{Workflow: w.Name, Phase: name, Valid: w.Phases()}
}

// Edge returns the declared transition from one phase to another.
func (w *Workflow) Edge(from, to string) (Transition, bool) {
	st := w.states[from]
	if st == nil {
		return Transition{}, false
	}
	for _, t := range st.Transitions {
		if t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// SelfTransition returns the edge from phase back to itself, if declared.
func (w *Workflow) SelfTransition(phase string) (Transition, bool) {
	return w.Edge(phase, phase)
}

// Summary returns the listing view of the workflow.
func (w *Workflow) Summary() Summary {
	return Summary{
		Name:        w.Name,
		Description: w.Description,
		Domain:      w.Metadata.Domain,
		Complexity:  w.Metadata.Complexity,
		Phases:      w.Phases(),
		Source:      w.Source.String(),
		FilePath:    w.FilePath,
	}
}

// withOrigin returns a shallow copy stamped with its origin. States are
// shared since neither copy mutates them.
func (w *Workflow) withOrigin(source Source, filePath string) *Workflow {
	cp := *w
	cp.Source = source
	cp.FilePath = filePath
	return &cp
}

// PhaseTitle turns a phase name into a heading, e.g. "code_review" -> "Code Review".
func PhaseTitle(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
