package testutil

import (
	"path/filepath"
	"time"
)

// conversationData holds a conversation to be inserted.
type conversationData struct {
	id          string
	projectPath string
	branch      string
	phase       string
	workflow    string
	planFile    string
	createdAt   time.Time
	updatedAt   time.Time
}

func defaultConversation(id, projectPath string) conversationData {
	now := time.Now()
	return conversationData{
		id:          id,
		projectPath: projectPath,
		branch:      "main",
		phase:       "design",
		workflow:    "design-build",
		planFile:    filepath.Join(projectPath, ".phaseguide", "development-plan.md"),
		createdAt:   now,
		updatedAt:   now,
	}
}

// ConversationOption configures a test conversation.
type ConversationOption func(*conversationData)

// Branch sets the git branch.
func Branch(b string) ConversationOption {
	return func(c *conversationData) { c.branch = b }
}

// Phase sets the current phase.
func Phase(p string) ConversationOption {
	return func(c *conversationData) { c.phase = p }
}

// Workflow sets the workflow name.
func Workflow(w string) ConversationOption {
	return func(c *conversationData) { c.workflow = w }
}

// PlanFile sets the plan file path.
func PlanFile(p string) ConversationOption {
	return func(c *conversationData) { c.planFile = p }
}

// CreatedAt sets both timestamps.
func CreatedAt(t time.Time) ConversationOption {
	return func(c *conversationData) {
		c.createdAt = t
		c.updatedAt = t
	}
}

// interactionData holds an interaction log row to be inserted.
type interactionData struct {
	conversationID string
	tool           string
	phase          string
	input          string
	response       string
	timestamp      time.Time
	deleted        bool
}

// InteractionOption configures a test interaction.
type InteractionOption func(*interactionData)

// Tool sets the tool name.
func Tool(name string) InteractionOption {
	return func(i *interactionData) { i.tool = name }
}

// AtPhase sets the phase recorded with the interaction.
func AtPhase(p string) InteractionOption {
	return func(i *interactionData) { i.phase = p }
}

// Input sets the JSON input parameters.
func Input(json string) InteractionOption {
	return func(i *interactionData) { i.input = json }
}

// Deleted inserts the interaction already soft-deleted.
func Deleted() InteractionOption {
	return func(i *interactionData) { i.deleted = true }
}
