package sqlite

import (
	"time"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
)

// ConversationModel represents a row of the conversations table.
// Time values are stored as Unix milliseconds.
type ConversationModel struct {
	ConversationID string
	ProjectPath    string
	GitBranch      string
	CurrentPhase   string
	WorkflowName   string
	PlanFilePath   string
	CreatedAt      int64
	UpdatedAt      int64
}

func toConversationModel(c *domain.Conversation) *ConversationModel {
	return &ConversationModel{
		ConversationID: c.ID(),
		ProjectPath:    c.ProjectPath(),
		GitBranch:      c.GitBranch(),
		CurrentPhase:   c.CurrentPhase(),
		WorkflowName:   c.WorkflowName(),
		PlanFilePath:   c.PlanFilePath(),
		CreatedAt:      c.CreatedAt().UnixMilli(),
		UpdatedAt:      c.UpdatedAt().UnixMilli(),
	}
}

func (m *ConversationModel) toDomain() *domain.Conversation {
	return domain.ReconstituteConversation(
		m.ConversationID, m.ProjectPath, m.GitBranch,
		m.CurrentPhase, m.WorkflowName, m.PlanFilePath,
		time.UnixMilli(m.CreatedAt), time.UnixMilli(m.UpdatedAt),
	)
}

// InteractionLogModel represents a row of the interaction_logs table.
type InteractionLogModel struct {
	ID             int64
	ConversationID string
	ToolName       string
	InputParams    string
	ResponseData   string
	CurrentPhase   string
	Timestamp      int64
	DeletedAt      *int64 // nullable
}

func toInteractionLogModel(l *domain.InteractionLog) *InteractionLogModel {
	m := &InteractionLogModel{
		ID:             l.ID,
		ConversationID: l.ConversationID,
		ToolName:       l.ToolName,
		InputParams:    l.InputParams,
		ResponseData:   l.ResponseData,
		CurrentPhase:   l.CurrentPhase,
		Timestamp:      l.Timestamp.UnixMilli(),
	}
	if m.InputParams == "" {
		m.InputParams = "{}"
	}
	if m.ResponseData == "" {
		m.ResponseData = "{}"
	}
	if l.DeletedAt != nil {
		deletedAt := l.DeletedAt.UnixMilli()
		m.DeletedAt = &deletedAt
	}
	return m
}

func (m *InteractionLogModel) toDomain() *domain.InteractionLog {
	l := &domain.InteractionLog{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		ToolName:       m.ToolName,
		InputParams:    m.InputParams,
		ResponseData:   m.ResponseData,
		CurrentPhase:   m.CurrentPhase,
		Timestamp:      time.UnixMilli(m.Timestamp),
	}
	if m.DeletedAt != nil {
		deletedAt := time.UnixMilli(*m.DeletedAt)
		l.DeletedAt = &deletedAt
	}
	return l
}
