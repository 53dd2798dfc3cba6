package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// document is the on-disk shape of a workflow. States are decoded through a
// yaml.Node so their declaration order survives.
type document struct {
	Name         string    `yaml:"name"`
	Description  string    `yaml:"description"`
	InitialState string    `yaml:"initial_state"`
	Metadata     Metadata  `yaml:"metadata"`
	States       yaml.Node `yaml:"states"`
}

type stateDocument struct {
	Description         string               `yaml:"description"`
	DefaultInstructions string               `yaml:"default_instructions"`
	Transitions         []transitionDocument `yaml:"transitions"`
}

type transitionDocument struct {
	Trigger                string              `yaml:"trigger"`
	To                     string              `yaml:"to"`
	Instructions           string              `yaml:"instructions"`
	AdditionalInstructions string              `yaml:"additional_instructions"`
	TransitionReason       string              `yaml:"transition_reason"`
	ReviewPerspectives     []ReviewPerspective `yaml:"review_perspectives"`
}

// LoadFile reads and loads a workflow document from disk.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: workflow paths come from configured directories
	if err != nil {
		return nil, fmt.Errorf("reading workflow file: %w", err)
	}
	return Load(data, path)
}

// Load parses and validates a workflow document. source names the document
// in error messages.
//
// Validation runs in a fixed order: required fields, then initial_state,
// then transition targets, then per-transition text.
func Load(data []byte, source string) (*Workflow, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Source: source, Kind: KindMalformed, Message: "malformed document: empty"}
		}
		return nil, &LoadError{Source: source, Kind: KindMalformed, Message: "malformed document: " + err.Error()}
	}

	if strings.TrimSpace(doc.Name) == "" {
		return nil, missingField(source, "name")
	}
	if strings.TrimSpace(doc.InitialState) == "" {
		return nil, missingField(source, "initial_state")
	}
	if doc.States.Kind == 0 {
		return nil, missingField(source, "states")
	}
	if doc.States.Kind != yaml.MappingNode {
		return nil, &LoadError{Source: source, Kind: KindMalformed, Field: "states", Message: "malformed document: states must be a mapping"}
	}
	if len(doc.States.Content) == 0 {
		return nil, missingField(source, "states")
	}

	wf := &Workflow{
		Name:         doc.Name,
		Description:  doc.Description,
		InitialState: doc.InitialState,
		Metadata:     doc.Metadata,
		states:       make(map[string]*State, len(doc.States.Content)/2),
	}

	for i := 0; i+1 < len(doc.States.Content); i += 2 {
		name := doc.States.Content[i].Value
		var sd stateDocument
		if err := doc.States.Content[i+1].Decode(&sd); err != nil {
			return nil, &LoadError{Source: source, Kind: KindMalformed, Field: "states." + name, Message: "malformed document: " + err.Error()}
		}
		if _, dup := wf.states[name]; dup {
			return nil, &LoadError{Source: source, Kind: KindMalformed, Field: "states." + name, Message: "malformed document: duplicate state"}
		}
		wf.states[name] = newState(name, sd)
		wf.order = append(wf.order, name)
	}

	if !wf.HasPhase(wf.InitialState) {
		return nil, &LoadError{
			Source:  source,
			Kind:    KindDanglingTarget,
			Field:   "initial_state",
			Message: fmt.Sprintf("initial_state %q is not a declared state", wf.InitialState),
		}
	}

	for _, name := range wf.order {
		for i, t := range wf.states[name].Transitions {
			if !wf.HasPhase(t.To) {
				return nil, &LoadError{
					Source:  source,
					Kind:    KindDanglingTarget,
					Field:   transitionField(name, i, "to"),
					Message: fmt.Sprintf("dangling transition target %q", t.To),
				}
			}
		}
	}

	for _, name := range wf.order {
		for i, t := range wf.states[name].Transitions {
			if strings.TrimSpace(t.TransitionReason) == "" {
				return nil, &LoadError{
					Source:  source,
					Kind:    KindInvalidTransition,
					Field:   transitionField(name, i, "transition_reason"),
					Message: "missing required field: transition_reason",
				}
			}
			if strings.TrimSpace(t.Instructions) == "" && strings.TrimSpace(wf.states[t.To].DefaultInstructions) == "" {
				return nil, &LoadError{
					Source:  source,
					Kind:    KindInvalidTransition,
					Field:   transitionField(name, i, "instructions"),
					Message: fmt.Sprintf("missing required field: instructions (state %q has no default_instructions)", t.To),
				}
			}
		}
	}

	return wf, nil
}

func newState(name string, sd stateDocument) *State {
	st := &State{
		Name:                name,
		Description:         sd.Description,
		DefaultInstructions: sd.DefaultInstructions,
	}
	for _, td := range sd.Transitions {
		st.Transitions = append(st.Transitions, Transition{
			Trigger:                td.Trigger,
			To:                     td.To,
			Instructions:           td.Instructions,
			AdditionalInstructions: td.AdditionalInstructions,
			TransitionReason:       td.TransitionReason,
			ReviewPerspectives:     td.ReviewPerspectives,
		})
	}
	return st
}

func missingField(source, field string) *LoadError {
	return &LoadError{Source: source, Kind: KindMissingField, Field: field, Message: "missing required field: " + field}
}

func transitionField(state string, index int, field string) string {
	return fmt.Sprintf("states.%s.transitions[%d].%s", state, index, field)
}
