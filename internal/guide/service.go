// Package guide is the application service behind the MCP tools and CLI
// commands. It threads an explicit project path through the conversation
// store, transition engine, instruction generator and plan file manager.
package guide

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/phaseguide/internal/conversation"
	"github.com/zjrosen/phaseguide/internal/conversation/domain"
	"github.com/zjrosen/phaseguide/internal/git"
	"github.com/zjrosen/phaseguide/internal/instructions"
	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/paths"
	"github.com/zjrosen/phaseguide/internal/planfile"
	"github.com/zjrosen/phaseguide/internal/tracing"
	"github.com/zjrosen/phaseguide/internal/transition"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

// ErrProjectPathRequired is returned when a request has no project path.
var ErrProjectPathRequired = errors.New("project path is required")

// Catalog resolves and lists workflows.
type Catalog interface {
	Resolve(ctx context.Context, name, projectPath string) (*workflow.Workflow, error)
	ListAvailable(ctx context.Context, projectPath string) ([]workflow.Summary, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Catalog         Catalog
	Store           *conversation.Store
	Engine          *transition.Engine
	Generator       *instructions.Generator
	Plans           *planfile.Manager
	Branches        git.BranchResolver
	Roots           git.RootResolver
	Tracer          trace.Tracer
	DefaultWorkflow string
}

// Service implements the guide operations.
type Service struct {
	catalog         Catalog
	store           *conversation.Store
	engine          *transition.Engine
	generator       *instructions.Generator
	plans           *planfile.Manager
	branches        git.BranchResolver
	roots           git.RootResolver
	tracer          trace.Tracer
	defaultWorkflow string
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	branches := d.Branches
	if branches == nil {
		branches = git.RealBranchResolver
	}
	roots := d.Roots
	if roots == nil {
		roots = git.RealRootResolver
	}
	return &Service{
		catalog:         d.Catalog,
		store:           d.Store,
		engine:          d.Engine,
		generator:       d.Generator,
		plans:           d.Plans,
		branches:        branches,
		roots:           roots,
		tracer:          d.Tracer,
		defaultWorkflow: d.DefaultWorkflow,
	}
}

// project normalizes the explicit project path to its checkout root and
// resolves its branch.
func (s *Service) project(projectPath string) (string, string, error) {
	if projectPath == "" {
		return "", "", ErrProjectPathRequired
	}
	abs, err := filepath.Abs(paths.ProjectRoot(projectPath))
	if err != nil {
		return "", "", fmt.Errorf("resolving project path: %w", err)
	}
	root := s.roots.RepoRoot(abs)
	return root, s.branches.CurrentBranch(root), nil
}

func (s *Service) startSpan(ctx context.Context, op, project, branch string) (context.Context, trace.Span) {
	return tracing.StartSpan(ctx, s.tracer, tracing.SpanPrefixGuide+op,
		attribute.String(tracing.AttrProjectPath, project),
		attribute.String(tracing.AttrGitBranch, branch),
	)
}

// Start selects a workflow and returns the instructions for the initial
// phase. On an existing conversation the workflow argument is ignored and the
// current state is returned.
func (s *Service) Start(ctx context.Context, req StartRequest) (resp *Response, err error) {
	project, branch, err := s.project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "start", project, branch)
	defer func() { tracing.EndSpan(span, err) }()

	name := req.Workflow
	if name == "" {
		name = s.defaultWorkflow
	}
	if _, err = s.catalog.Resolve(ctx, name, project); err != nil {
		return nil, err
	}

	conv, created, err := s.store.GetOrCreate(ctx, project, branch, name)
	if err != nil {
		return nil, err
	}
	if created {
		span.AddEvent(tracing.EventConversationCreated)
	}

	result, err := s.engine.Resolve(ctx, transition.ResolveInput{
		ConversationID: conv.ID(),
		ProjectPath:    project,
		WorkflowName:   conv.WorkflowName(),
		CurrentPhase:   conv.CurrentPhase(),
	})
	if err != nil {
		return nil, err
	}

	resp, err = s.respond(span, conv, result)
	if err != nil {
		return nil, err
	}
	return resp, s.record(ctx, conv.ID(), ToolStart, resp.Phase, req, resp)
}

// Advance returns the instructions for the conversation's current phase.
// It never creates a conversation.
func (s *Service) Advance(ctx context.Context, req AdvanceRequest) (resp *Response, err error) {
	project, branch, err := s.project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "next", project, branch)
	defer func() { tracing.EndSpan(span, err) }()

	conv, err := s.store.Get(ctx, project, branch)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Resolve(ctx, transition.ResolveInput{
		ConversationID: conv.ID(),
		ProjectPath:    project,
		WorkflowName:   conv.WorkflowName(),
		CurrentPhase:   conv.CurrentPhase(),
	})
	if err != nil {
		return nil, err
	}

	resp, err = s.respond(span, conv, result)
	if err != nil {
		return nil, err
	}
	return resp, s.record(ctx, conv.ID(), ToolNext, resp.Phase, req, resp)
}

// Jump moves the conversation to any phase the workflow declares and persists it.
func (s *Service) Jump(ctx context.Context, req JumpRequest) (resp *Response, err error) {
	project, branch, err := s.project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "jump", project, branch)
	defer func() { tracing.EndSpan(span, err) }()
	span.SetAttributes(attribute.String(tracing.AttrTargetPhase, req.TargetPhase))

	conv, err := s.store.Get(ctx, project, branch)
	if err != nil {
		return nil, err
	}
	wf, err := s.catalog.Resolve(ctx, conv.WorkflowName(), project)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Transition(conv.CurrentPhase(), req.TargetPhase, wf, req.Reason)
	if err != nil {
		return nil, err
	}

	// The phase is persisted only once the plan file and response are ready.
	resp, err = s.respond(span, conv, result)
	if err != nil {
		return nil, err
	}
	if _, err = s.store.Update(ctx, conv.ID(), domain.Patch{CurrentPhase: &result.Phase}); err != nil {
		return nil, err
	}
	return resp, s.record(ctx, conv.ID(), ToolJump, resp.Phase, req, resp)
}

// Reset deletes the conversation for the project branch. Nothing is recorded
// afterwards since the conversation no longer exists.
func (s *Service) Reset(ctx context.Context, req ResetRequest) (summary *domain.ResetSummary, err error) {
	project, branch, err := s.project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "reset", project, branch)
	defer func() { tracing.EndSpan(span, err) }()

	if !req.Confirm {
		return nil, domain.ErrResetNotConfirmed
	}

	conv, err := s.store.Get(ctx, project, branch)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String(tracing.AttrConversationID, conv.ID()))

	return s.store.Reset(ctx, conv.ID(), req.Confirm, req.Reason)
}

// Resume reports the current state, the task counts of the current phase and
// the phase instructions, without changing anything.
func (s *Service) Resume(ctx context.Context, req ResumeRequest) (resp *ResumeResponse, err error) {
	project, branch, err := s.project(req.ProjectPath)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "resume", project, branch)
	defer func() { tracing.EndSpan(span, err) }()

	conv, err := s.store.Get(ctx, project, branch)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Resolve(ctx, transition.ResolveInput{
		ConversationID: conv.ID(),
		ProjectPath:    project,
		WorkflowName:   conv.WorkflowName(),
		CurrentPhase:   conv.CurrentPhase(),
	})
	if err != nil {
		return nil, err
	}

	base, err := s.respond(span, conv, result)
	if err != nil {
		return nil, err
	}

	content, exists, err := s.plans.Read(conv.PlanFilePath())
	if err != nil {
		return nil, err
	}
	resp = &ResumeResponse{
		Response:       *base,
		Phases:         result.Workflow.Phases(),
		PlanFileExists: exists,
		Tasks:          planfile.Summarize(content, conv.CurrentPhase()),
	}
	return resp, s.record(ctx, conv.ID(), ToolResume, resp.Phase, req, resp)
}

// ListWorkflows lists the workflows available to the project.
func (s *Service) ListWorkflows(ctx context.Context, projectPath string) (list []workflow.Summary, err error) {
	project, branch, err := s.project(projectPath)
	if err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "list", project, branch)
	defer func() { tracing.EndSpan(span, err) }()

	return s.catalog.ListAvailable(ctx, project)
}

// respond ensures the plan file exists and composes the final instructions.
func (s *Service) respond(span trace.Span, conv *domain.Conversation, result *transition.Result) (*Response, error) {
	wf := result.Workflow
	span.SetAttributes(
		attribute.String(tracing.AttrConversationID, conv.ID()),
		attribute.String(tracing.AttrWorkflowName, wf.Name),
		attribute.String(tracing.AttrPhase, result.Phase),
		attribute.Bool(tracing.AttrIsModeled, result.IsModeled),
		attribute.Bool(tracing.AttrBootstrap, result.Bootstrap),
	)

	_, existed, err := s.plans.Read(conv.PlanFilePath())
	if err != nil {
		return nil, err
	}
	created, err := s.plans.EnsureExists(conv.PlanFilePath(), paths.ProjectName(conv.ProjectPath()), conv.GitBranch(), wf)
	if err != nil {
		return nil, err
	}
	if created {
		span.AddEvent(tracing.EventPlanFileCreated)
	}

	guidance, err := s.plans.GuidanceFor(result.Phase, wf)
	if err != nil {
		return nil, err
	}

	text := s.generator.Compose(result.Instructions, instructions.Context{
		Phase:              result.Phase,
		PhaseGuidance:      guidance,
		ProjectPath:        conv.ProjectPath(),
		Branch:             conv.GitBranch(),
		PlanFilePath:       conv.PlanFilePath(),
		TransitionReason:   result.Reason,
		IsModeled:          result.IsModeled,
		PlanFileExists:     existed,
		ReviewPerspectives: result.ReviewPerspectives,
	})

	log.Debug(log.CatGuide, "resolved phase", "conversation", conv.ID(), "phase", result.Phase, "modeled", result.IsModeled)
	return &Response{
		ConversationID:   conv.ID(),
		Workflow:         wf.Name,
		Phase:            result.Phase,
		Instructions:     text,
		PlanFilePath:     conv.PlanFilePath(),
		TransitionReason: result.Reason,
		IsModeled:        result.IsModeled,
	}, nil
}

// record appends the interaction log row for a successful operation.
func (s *Service) record(ctx context.Context, conversationID, tool, phase string, input, output any) error {
	in, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding %s input: %w", tool, err)
	}
	out, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("encoding %s response: %w", tool, err)
	}
	return s.store.RecordInteraction(ctx, &domain.InteractionLog{
		ConversationID: conversationID,
		ToolName:       tool,
		InputParams:    string(in),
		ResponseData:   string(out),
		CurrentPhase:   phase,
	})
}
