package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
)

const interactionColumns = `id, conversation_id, tool_name, input_params, response_data,
	current_phase, timestamp, deleted_at`

// interactionRepository implements domain.InteractionRepository using SQLite.
type interactionRepository struct {
	db *sql.DB
}

func newInteractionRepository(db *sql.DB) *interactionRepository {
	return &interactionRepository{db: db}
}

var _ domain.InteractionRepository = (*interactionRepository)(nil)

func scanInteraction(scanner interface{ Scan(...any) error }) (*InteractionLogModel, error) {
	var model InteractionLogModel
	err := scanner.Scan(
		&model.ID, &model.ConversationID, &model.ToolName, &model.InputParams, &model.ResponseData,
		&model.CurrentPhase, &model.Timestamp, &model.DeletedAt,
	)
	return &model, err
}

// Append inserts a log row and sets its ID.
func (r *interactionRepository) Append(ctx context.Context, l *domain.InteractionLog) error {
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	model := toInteractionLogModel(l)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO interaction_logs (conversation_id, tool_name, input_params, response_data, current_phase, timestamp, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		model.ConversationID, model.ToolName, model.InputParams, model.ResponseData,
		model.CurrentPhase, model.Timestamp, model.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interaction log: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	l.ID = id
	return nil
}

// HasAny reports whether live rows exist for the conversation.
func (r *interactionRepository) HasAny(ctx context.Context, conversationID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM interaction_logs WHERE conversation_id = ? AND deleted_at IS NULL)`,
		conversationID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check interaction logs: %w", err)
	}
	return exists, nil
}

// List returns rows for the conversation ordered by id.
func (r *interactionRepository) List(ctx context.Context, conversationID string, includeDeleted bool) ([]*domain.InteractionLog, error) {
	query := `SELECT ` + interactionColumns + ` FROM interaction_logs WHERE conversation_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interaction logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []*domain.InteractionLog
	for rows.Next() {
		model, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interaction log: %w", err)
		}
		logs = append(logs, model.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interaction logs: %w", err)
	}
	return logs, nil
}
