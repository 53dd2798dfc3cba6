// Package domain provides the pure domain layer for development conversations
// with no infrastructure dependencies.
//
// A Conversation ties a (project path, git branch) pair to the workflow it was
// started with and the phase currently active. InteractionLog rows form an
// append-only audit trail of the operations performed on it.
package domain

import "time"

// Conversation is the persisted development session for one project branch.
// All fields are unexported; use the constructor and getters.
type Conversation struct {
	id           string
	projectPath  string
	gitBranch    string
	currentPhase string
	workflowName string
	planFilePath string
	createdAt    time.Time
	updatedAt    time.Time
}

// NewConversation creates a conversation starting in phase.
func NewConversation(id, projectPath, gitBranch, phase, workflowName, planFilePath string) *Conversation {
	now := time.Now()
	return &Conversation{
		id:           id,
		projectPath:  projectPath,
		gitBranch:    gitBranch,
		currentPhase: phase,
		workflowName: workflowName,
		planFilePath: planFilePath,
		createdAt:    now,
		updatedAt:    now,
	}
}

// ReconstituteConversation hydrates a Conversation from stored data.
func ReconstituteConversation(
	id, projectPath, gitBranch, currentPhase, workflowName, planFilePath string,
	createdAt, updatedAt time.Time,
) *Conversation {
	return &Conversation{
		id:           id,
		projectPath:  projectPath,
		gitBranch:    gitBranch,
		currentPhase: currentPhase,
		workflowName: workflowName,
		planFilePath: planFilePath,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

func (c *Conversation) ID() string           { return c.id }
func (c *Conversation) ProjectPath() string  { return c.projectPath }
func (c *Conversation) GitBranch() string    { return c.gitBranch }
func (c *Conversation) CurrentPhase() string { return c.currentPhase }
func (c *Conversation) WorkflowName() string { return c.workflowName }
func (c *Conversation) PlanFilePath() string { return c.planFilePath }
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }
func (c *Conversation) UpdatedAt() time.Time { return c.updatedAt }

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	CurrentPhase *string
	WorkflowName *string
	PlanFilePath *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.CurrentPhase == nil && p.WorkflowName == nil && p.PlanFilePath == nil
}

// Apply merges the patch onto the conversation and refreshes updatedAt.
func (c *Conversation) Apply(p Patch) {
	if p.CurrentPhase != nil {
		c.currentPhase = *p.CurrentPhase
	}
	if p.WorkflowName != nil {
		c.workflowName = *p.WorkflowName
	}
	if p.PlanFilePath != nil {
		c.planFilePath = *p.PlanFilePath
	}
	c.updatedAt = time.Now()
}

// InteractionLog is one audit row recorded per guide operation.
type InteractionLog struct {
	ID             int64
	ConversationID string
	ToolName       string
	InputParams    string // JSON
	ResponseData   string // JSON
	CurrentPhase   string
	Timestamp      time.Time
	DeletedAt      *time.Time
}

// IsDeleted reports whether the row was soft-deleted by a reset.
func (l *InteractionLog) IsDeleted() bool {
	return l.DeletedAt != nil
}

// ResetSummary reports what a confirmed reset removed.
type ResetSummary struct {
	ConversationID      string `json:"conversation_id"`
	ConversationDeleted bool   `json:"conversation_deleted"`
	InteractionsMarked  int64  `json:"interactions_marked"`
	PlanFileDeleted     bool   `json:"plan_file_deleted"`
	Reason              string `json:"reason,omitempty"`
}
