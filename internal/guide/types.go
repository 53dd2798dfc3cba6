package guide

import (
	"github.com/zjrosen/phaseguide/internal/planfile"
)

// Tool names recorded in the interaction log. They match the MCP tool names.
const (
	ToolStart  = "start_development"
	ToolNext   = "whats_next"
	ToolJump   = "proceed_to_phase"
	ToolReset  = "reset_development"
	ToolResume = "resume_workflow"
	ToolList   = "list_workflows"
)

// Response is returned by every phase-resolving operation.
type Response struct {
	ConversationID   string `json:"conversation_id"`
	Workflow         string `json:"workflow"`
	Phase            string `json:"phase"`
	Instructions     string `json:"instructions"`
	PlanFilePath     string `json:"plan_file_path"`
	TransitionReason string `json:"transition_reason"`
	IsModeled        bool   `json:"is_modeled"`
}

// StartRequest selects a workflow for the project's current branch.
type StartRequest struct {
	ProjectPath string `json:"project_path"`
	Workflow    string `json:"workflow,omitempty"`
}

// AdvanceRequest asks what to do next. The free-form fields are recorded in
// the interaction log but do not influence resolution.
type AdvanceRequest struct {
	ProjectPath         string `json:"project_path"`
	Context             string `json:"context,omitempty"`
	UserInput           string `json:"user_input,omitempty"`
	ConversationSummary string `json:"conversation_summary,omitempty"`
}

// JumpRequest moves the conversation to TargetPhase.
type JumpRequest struct {
	ProjectPath string `json:"project_path"`
	TargetPhase string `json:"target_phase"`
	Reason      string `json:"reason,omitempty"`
}

// ResetRequest deletes the conversation state. Confirm must be true.
type ResetRequest struct {
	ProjectPath string `json:"project_path"`
	Confirm     bool   `json:"confirm"`
	Reason      string `json:"reason,omitempty"`
}

// ResumeRequest asks for the current state without changing it.
type ResumeRequest struct {
	ProjectPath string `json:"project_path"`
}

// ResumeResponse extends Response with the workflow outline and the task
// counts of the current phase's plan section.
type ResumeResponse struct {
	Response
	Phases         []string             `json:"phases"`
	PlanFileExists bool                 `json:"plan_file_exists"`
	Tasks          planfile.TaskSummary `json:"tasks"`
}
