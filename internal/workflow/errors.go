package workflow

import (
	"fmt"
	"strings"
)

// LoadErrorKind classifies why a workflow document was rejected.
type LoadErrorKind string

const (
	KindMalformed         LoadErrorKind = "malformed"
	KindMissingField      LoadErrorKind = "missing_field"
	KindDanglingTarget    LoadErrorKind = "dangling_target"
	KindInvalidTransition LoadErrorKind = "invalid_transition"
)

// LoadError is returned when a workflow document fails to parse or validate.
type LoadError struct {
	Source  string
	Kind    LoadErrorKind
	Field   string
	Message string
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("loading workflow")
	if e.Source != "" {
		fmt.Fprintf(&b, " %s", e.Source)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %s)", e.Field)
	}
	return b.String()
}

// InvalidPhaseError is returned when a phase is not declared by the workflow.
type InvalidPhaseError struct {
	Workflow string
	Phase    string
	Valid    []string
}

func (e *InvalidPhaseError) Error() string {
	return fmt.Sprintf("invalid target phase %q for workflow %q, valid phases: %s",
		e.Phase, e.Workflow, strings.Join(e.Valid, ", "))
}

// UnknownWorkflowError is returned when a workflow name matches no document.
type UnknownWorkflowError struct {
	Name      string
	Available []string
}

func (e *UnknownWorkflowError) Error() string {
	return fmt.Sprintf("unknown workflow: %q, retry with one of: %s", e.Name, strings.Join(e.Available, ", "))
}
