package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
	"github.com/zjrosen/phaseguide/internal/infrastructure/sqlite"
)

// Builder accumulates test data and inserts it through the repositories.
type Builder struct {
	t             *testing.T
	db            *sqlite.DB
	conversations []conversationData
	interactions  []interactionData
}

// NewBuilder creates a builder for the given test database.
func NewBuilder(t *testing.T, db *sqlite.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithConversation adds a conversation with optional configuration.
func (b *Builder) WithConversation(id, projectPath string, opts ...ConversationOption) *Builder {
	c := defaultConversation(id, projectPath)
	for _, opt := range opts {
		opt(&c)
	}
	b.conversations = append(b.conversations, c)
	return b
}

// WithInteraction adds an interaction log row for conversationID.
func (b *Builder) WithInteraction(conversationID string, opts ...InteractionOption) *Builder {
	i := interactionData{
		conversationID: conversationID,
		tool:           "whats_next",
		input:          "{}",
		response:       "{}",
		timestamp:      time.Now(),
	}
	for _, opt := range opts {
		opt(&i)
	}
	b.interactions = append(b.interactions, i)
	return b
}

// Build inserts conversations first, then interactions.
func (b *Builder) Build() {
	b.t.Helper()
	ctx := context.Background()
	conversations := b.db.ConversationRepository()
	interactions := b.db.InteractionRepository()

	phases := make(map[string]string, len(b.conversations))
	for _, c := range b.conversations {
		conv := domain.ReconstituteConversation(c.id, c.projectPath, c.branch, c.phase, c.workflow, c.planFile, c.createdAt, c.updatedAt)
		_, created, err := conversations.CreateIfAbsent(ctx, conv)
		require.NoError(b.t, err)
		require.True(b.t, created, "conversation %s already exists", c.id)
		phases[c.id] = c.phase
	}

	for _, i := range b.interactions {
		phase := i.phase
		if phase == "" {
			phase = phases[i.conversationID]
		}
		entry := &domain.InteractionLog{
			ConversationID: i.conversationID,
			ToolName:       i.tool,
			InputParams:    i.input,
			ResponseData:   i.response,
			CurrentPhase:   phase,
			Timestamp:      i.timestamp,
		}
		if i.deleted {
			at := i.timestamp
			entry.DeletedAt = &at
		}
		require.NoError(b.t, interactions.Append(ctx, entry))
	}
}
