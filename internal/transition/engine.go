// Package transition resolves which phase a conversation is in and what the
// agent should be told to do there.
package transition

import (
	"context"
	"fmt"
	"strings"

	"github.com/zjrosen/phaseguide/internal/instructions"
	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

// Reason strings for implicit resolution.
const (
	ReasonBootstrap = "starting development — defining criteria and beginning first phase"
	ReasonContinue  = "continue current phase — agent evaluates transition criteria from the plan file"
)

// InvalidPhaseError is returned when a phase is not declared by the workflow.
type InvalidPhaseError = workflow.InvalidPhaseError

// WorkflowResolver resolves workflow names for a project.
type WorkflowResolver interface {
	Resolve(ctx context.Context, name, projectPath string) (*workflow.Workflow, error)
}

// InteractionHistory answers whether a conversation has been interacted with.
type InteractionHistory interface {
	HasPriorInteractions(ctx context.Context, conversationID string) (bool, error)
}

// Result is the outcome of a resolution.
type Result struct {
	Phase              string
	Instructions       instructions.Text
	Reason             string
	IsModeled          bool
	Bootstrap          bool
	ReviewPerspectives []workflow.ReviewPerspective
	Workflow           *workflow.Workflow
}

// ResolveInput identifies the conversation being resolved.
type ResolveInput struct {
	ConversationID string
	ProjectPath    string
	WorkflowName   string
	CurrentPhase   string
}

// Engine is the phase state machine.
type Engine struct {
	workflows WorkflowResolver
	history   InteractionHistory
}

// NewEngine creates an Engine.
func NewEngine(workflows WorkflowResolver, history InteractionHistory) *Engine {
	return &Engine{workflows: workflows, history: history}
}

// Resolve performs implicit resolution. A conversation still in the initial
// phase with no recorded interactions gets the bootstrap instructions; any
// other conversation stays in its current phase. The phase never advances
// here.
func (e *Engine) Resolve(ctx context.Context, in ResolveInput) (*Result, error) {
	wf, err := e.workflows.Resolve(ctx, in.WorkflowName, in.ProjectPath)
	if err != nil {
		return nil, err
	}
	if err := wf.CheckPhase(in.CurrentPhase); err != nil {
		return nil, fmt.Errorf("stored phase does not match workflow: %w", err)
	}
	st := wf.State(in.CurrentPhase)

	if in.CurrentPhase == wf.InitialState {
		prior, err := e.history.HasPriorInteractions(ctx, in.ConversationID)
		if err != nil {
			return nil, err
		}
		if !prior {
			log.Info(log.CatTransition, "bootstrapping conversation", "conversation", in.ConversationID, "workflow", wf.Name)
			return &Result{
				Phase:        st.Name,
				Instructions: instructions.Join("\n\n", instructions.StaticText(bootstrapPrompt(wf)), instructions.Parse(st.DefaultInstructions)),
				Reason:       ReasonBootstrap,
				IsModeled:    true,
				Bootstrap:    true,
				Workflow:     wf,
			}, nil
		}
	}

	text := instructions.Parse(st.DefaultInstructions)
	if self, ok := wf.SelfTransition(st.Name); ok {
		if strings.TrimSpace(self.Instructions) != "" {
			text = instructions.Parse(self.Instructions)
		}
		text = instructions.Join("\n\n", text, instructions.Parse(self.AdditionalInstructions))
	}

	log.Debug(log.CatTransition, "continuing phase", "conversation", in.ConversationID, "phase", st.Name)
	return &Result{
		Phase:        st.Name,
		Instructions: text,
		Reason:       ReasonContinue,
		IsModeled:    false,
		Workflow:     wf,
	}, nil
}

// Transition performs an explicit jump to targetPhase. Any declared phase is
// a legal target whether or not an edge from currentPhase exists; when one
// does, its review perspectives and additional instructions are carried.
func (e *Engine) Transition(currentPhase, targetPhase string, wf *workflow.Workflow, reason string) (*Result, error) {
	if err := wf.CheckPhase(targetPhase); err != nil {
		return nil, err
	}
	target := wf.State(targetPhase)

	if strings.TrimSpace(reason) == "" {
		reason = "moving to " + targetPhase
	}

	text := instructions.Parse(target.DefaultInstructions)
	var perspectives []workflow.ReviewPerspective
	if edge, ok := wf.Edge(currentPhase, targetPhase); ok {
		if strings.TrimSpace(target.DefaultInstructions) == "" {
			text = instructions.Parse(edge.Instructions)
		}
		text = instructions.Join("\n\n", text, instructions.Parse(edge.AdditionalInstructions))
		perspectives = edge.ReviewPerspectives
	}
	if strings.TrimSpace(text.Raw()) == "" {
		text = instructions.StaticText(fmt.Sprintf("Work on the %s phase: %s", workflow.PhaseTitle(targetPhase), target.Description))
	}

	log.Info(log.CatTransition, "explicit transition", "workflow", wf.Name, "from", currentPhase, "to", targetPhase)
	return &Result{
		Phase:              targetPhase,
		Instructions:       text,
		Reason:             reason,
		IsModeled:          false,
		ReviewPerspectives: perspectives,
		Workflow:           wf,
	}, nil
}

// bootstrapPrompt asks the agent to write entrance criteria for every
// non-initial phase before starting work.
func bootstrapPrompt(wf *workflow.Workflow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are starting the %q workflow. Before beginning work, define entrance criteria in the plan file.\n\n", wf.Name)
	b.WriteString("For each phase below, replace the placeholder under \"### Entrance Criteria\" in its section with concrete, measurable criteria that must be met before entering it:\n")
	for _, name := range wf.Phases() {
		if name == wf.InitialState {
			continue
		}
		line := "- **" + workflow.PhaseTitle(name) + "**"
		if desc := strings.TrimSpace(wf.State(name).Description); desc != "" {
			line += ": " + desc
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "\nThen begin the %s phase:", workflow.PhaseTitle(wf.InitialState))
	return b.String()
}
