package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
	"github.com/zjrosen/phaseguide/internal/guide"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

// Guide is the set of operations exposed as tools.
type Guide interface {
	Start(ctx context.Context, req guide.StartRequest) (*guide.Response, error)
	Advance(ctx context.Context, req guide.AdvanceRequest) (*guide.Response, error)
	Jump(ctx context.Context, req guide.JumpRequest) (*guide.Response, error)
	Reset(ctx context.Context, req guide.ResetRequest) (*domain.ResetSummary, error)
	Resume(ctx context.Context, req guide.ResumeRequest) (*guide.ResumeResponse, error)
	ListWorkflows(ctx context.Context, projectPath string) ([]workflow.Summary, error)
}

// ServerInstructions is sent to clients during initialization.
const ServerInstructions = `phaseguide keeps a development conversation on a structured workflow.
Call start_development once to choose a workflow, then call whats_next after each user message
and follow the returned instructions. Use proceed_to_phase when the entrance criteria of another
phase are met. The plan file returned with every response is your long-term memory.`

var projectPathProperty = &PropertySchema{
	Type:        "string",
	Description: "Absolute path of the project. Defaults to the directory the server was started for.",
}

// RegisterGuideTools registers the guide tools on s. defaultProject is used
// when a call omits project_path.
func RegisterGuideTools(s *Server, g Guide, defaultProject string) {
	project := func(p string) string {
		if p == "" {
			return defaultProject
		}
		return p
	}

	s.RegisterTool(Tool{
		Name:        guide.ToolStart,
		Description: "Start a development conversation for the current branch with the chosen workflow. Returns the instructions for the initial phase. Calling it again returns the existing conversation unchanged.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"workflow":     {Type: "string", Description: "Workflow name. See list_workflows for the available names."},
				"project_path": projectPathProperty,
			},
		},
	}, func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
		var req guide.StartRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		req.ProjectPath = project(req.ProjectPath)
		return structured(g.Start(ctx, req))
	})

	s.RegisterTool(Tool{
		Name:        guide.ToolNext,
		Description: "Get the instructions for the current phase. Call after each user message. Evaluate the plan file against the entrance criteria of the next phases and call proceed_to_phase when they are met.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"context":              {Type: "string", Description: "Short description of the current situation."},
				"user_input":           {Type: "string", Description: "The latest user message."},
				"conversation_summary": {Type: "string", Description: "Summary of the conversation so far."},
				"project_path":         projectPathProperty,
			},
		},
	}, func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
		var req guide.AdvanceRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		req.ProjectPath = project(req.ProjectPath)
		return structured(g.Advance(ctx, req))
	})

	s.RegisterTool(Tool{
		Name:        guide.ToolJump,
		Description: "Move the conversation to a phase of the current workflow. Any declared phase may be targeted.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"target_phase": {Type: "string", Description: "Phase to move to."},
				"reason":       {Type: "string", Description: "Why the phase is changing."},
				"project_path": projectPathProperty,
			},
			Required: []string{"target_phase"},
		},
	}, func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
		var req guide.JumpRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		if req.TargetPhase == "" {
			return nil, fmt.Errorf("target_phase is required")
		}
		req.ProjectPath = project(req.ProjectPath)
		return structured(g.Jump(ctx, req))
	})

	s.RegisterTool(Tool{
		Name:        guide.ToolReset,
		Description: "Delete the conversation state and plan file for the current branch. Requires confirm=true.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"confirm":      {Type: "boolean", Description: "Must be true to reset."},
				"reason":       {Type: "string", Description: "Why the conversation is being reset."},
				"project_path": projectPathProperty,
			},
			Required: []string{"confirm"},
		},
	}, func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
		var req guide.ResetRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		req.ProjectPath = project(req.ProjectPath)
		return structured(g.Reset(ctx, req))
	})

	s.RegisterTool(Tool{
		Name:        guide.ToolResume,
		Description: "Report the current workflow, phase, plan file task counts and phase instructions. Use at the start of a new session.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"project_path": projectPathProperty,
			},
		},
	}, func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
		var req guide.ResumeRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		req.ProjectPath = project(req.ProjectPath)
		return structured(g.Resume(ctx, req))
	})

	s.RegisterTool(Tool{
		Name:        guide.ToolList,
		Description: "List the workflows available to the project, bundled and project-local.",
		InputSchema: &InputSchema{
			Type: "object",
			Properties: map[string]*PropertySchema{
				"project_path": projectPathProperty,
			},
		},
	}, func(ctx context.Context, args json.RawMessage) (*ToolCallResult, error) {
		var req struct {
			ProjectPath string `json:"project_path"`
		}
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		list, err := g.ListWorkflows(ctx, project(req.ProjectPath))
		if err != nil {
			return nil, err
		}
		return structured(map[string]any{"workflows": list}, nil)
	})
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func structured(v any, err error) (*ToolCallResult, error) {
	if err != nil {
		return nil, err
	}
	return StructuredResult(v)
}
