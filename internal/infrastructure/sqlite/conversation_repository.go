package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
)

const conversationColumns = `conversation_id, project_path, git_branch, current_phase,
	workflow_name, plan_file_path, created_at, updated_at`

// conversationRepository implements domain.ConversationRepository using SQLite.
type conversationRepository struct {
	db *sql.DB
}

func newConversationRepository(db *sql.DB) *conversationRepository {
	return &conversationRepository{db: db}
}

// Ensure conversationRepository implements domain.ConversationRepository.
var _ domain.ConversationRepository = (*conversationRepository)(nil)

func scanConversation(scanner interface{ Scan(...any) error }) (*ConversationModel, error) {
	var model ConversationModel
	err := scanner.Scan(
		&model.ConversationID, &model.ProjectPath, &model.GitBranch, &model.CurrentPhase,
		&model.WorkflowName, &model.PlanFilePath, &model.CreatedAt, &model.UpdatedAt,
	)
	return &model, err
}

// CreateIfAbsent inserts the conversation with ON CONFLICT DO NOTHING so two
// concurrent first requests cannot both create a row, then reads back
// whichever row won.
func (r *conversationRepository) CreateIfAbsent(ctx context.Context, c *domain.Conversation) (*domain.Conversation, bool, error) {
	model := toConversationModel(c)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (`+conversationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		model.ConversationID, model.ProjectPath, model.GitBranch, model.CurrentPhase,
		model.WorkflowName, model.PlanFilePath, model.CreatedAt, model.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	stored, err := r.FindByID(ctx, c.ID())
	if domain.IsNotFound(err) {
		stored, err = r.FindByProjectBranch(ctx, c.ProjectPath(), c.GitBranch())
	}
	if err != nil {
		return nil, false, err
	}
	return stored, affected == 1, nil
}

// FindByID retrieves a conversation by identity.
func (r *conversationRepository) FindByID(ctx context.Context, id string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE conversation_id = ?`, id,
	)
	model, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ConversationNotFoundError{ConversationID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return model.toDomain(), nil
}

// FindByProjectBranch retrieves a conversation by its (project, branch) key.
func (r *conversationRepository) FindByProjectBranch(ctx context.Context, projectPath, branch string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE project_path = ? AND git_branch = ?`,
		projectPath, branch,
	)
	model, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.ConversationNotFoundError{ProjectPath: projectPath, Branch: branch}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation by project branch: %w", err)
	}
	return model.toDomain(), nil
}

// Save persists the mutable fields of an existing conversation.
func (r *conversationRepository) Save(ctx context.Context, c *domain.Conversation) error {
	model := toConversationModel(c)
	result, err := r.db.ExecContext(ctx,
		`UPDATE conversations SET current_phase = ?, workflow_name = ?, plan_file_path = ?, updated_at = ?
		 WHERE conversation_id = ?`,
		model.CurrentPhase, model.WorkflowName, model.PlanFilePath, model.UpdatedAt, model.ConversationID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.ConversationNotFoundError{ConversationID: model.ConversationID}
	}
	return nil
}

// DeleteWithHistory marks the interaction rows deleted and removes the
// conversation row in a single transaction.
func (r *conversationRepository) DeleteWithHistory(
	ctx context.Context, id string, at time.Time, beforeCommit func() error,
) (marked int64, deleted bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx,
		`UPDATE interaction_logs SET deleted_at = ? WHERE conversation_id = ? AND deleted_at IS NULL`,
		at.UnixMilli(), id,
	)
	if err != nil {
		return 0, false, fmt.Errorf("failed to mark interaction logs deleted: %w", err)
	}
	if marked, err = result.RowsAffected(); err != nil {
		return 0, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	result, err = tx.ExecContext(ctx, `DELETE FROM conversations WHERE conversation_id = ?`, id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if beforeCommit != nil {
		if err = beforeCommit(); err != nil {
			return 0, false, err
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit reset: %w", err)
	}
	return marked, affected > 0, nil
}
