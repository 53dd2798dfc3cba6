package domain

import (
	"context"
	"time"
)

// ConversationRepository defines persistence for Conversation entities.
type ConversationRepository interface {
	// CreateIfAbsent inserts the conversation unless a row with the same
	// identity or (project, branch) already exists, in a single statement.
	// It returns the stored row and whether it was created by this call.
	CreateIfAbsent(ctx context.Context, c *Conversation) (*Conversation, bool, error)

	// FindByID returns ConversationNotFoundError if no row exists.
	FindByID(ctx context.Context, id string) (*Conversation, error)

	// FindByProjectBranch looks up the secondary (project, branch) key.
	// Returns ConversationNotFoundError if no row exists.
	FindByProjectBranch(ctx context.Context, projectPath, branch string) (*Conversation, error)

	// Save overwrites the mutable fields of an existing conversation.
	// Returns ConversationNotFoundError if no row exists.
	Save(ctx context.Context, c *Conversation) error

	// DeleteWithHistory soft-deletes every live interaction row of the
	// conversation and hard-deletes the conversation row in one transaction.
	// beforeCommit runs inside the transaction after both statements; an
	// error from it rolls both back. It returns how many interaction rows
	// were marked and whether the conversation row existed.
	DeleteWithHistory(ctx context.Context, id string, at time.Time, beforeCommit func() error) (int64, bool, error)
}

// InteractionRepository defines persistence for the append-only interaction log.
type InteractionRepository interface {
	// Append inserts a row and sets its ID.
	Append(ctx context.Context, log *InteractionLog) error

	// HasAny reports whether the conversation has any rows that are not soft-deleted.
	HasAny(ctx context.Context, conversationID string) (bool, error)

	// List returns rows oldest first. Soft-deleted rows are excluded unless
	// includeDeleted is set.
	List(ctx context.Context, conversationID string, includeDeleted bool) ([]*InteractionLog, error)
}
