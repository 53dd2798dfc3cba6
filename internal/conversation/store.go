// Package conversation maps a project branch to its persisted development
// conversation and keeps the interaction audit trail.
package conversation

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
	"github.com/zjrosen/phaseguide/internal/log"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

// identityNamespace seeds the name-based UUIDs conversation IDs are derived from.
var identityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/zjrosen/phaseguide/conversation"))

// ConversationID derives the stable identity of a project branch. The same
// inputs always produce the same ID, across processes and restarts.
func ConversationID(projectPath, branch string) string {
	clean := filepath.Clean(projectPath)
	sum := uuid.NewSHA1(identityNamespace, []byte(clean+"\x00"+branch))
	return fmt.Sprintf("%s-%s-%s", slug(filepath.Base(clean), "project"), slug(branch, "default"), sum.String()[:8])
}

func slug(s, fallback string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return fallback
	}
	return out
}

// WorkflowResolver resolves workflow names for a project.
type WorkflowResolver interface {
	Resolve(ctx context.Context, name, projectPath string) (*workflow.Workflow, error)
}

// PlanFiles locates and removes plan files.
type PlanFiles interface {
	PathFor(projectPath, branch string) string
	Delete(path string) (bool, error)
}

// Store is the conversation store.
type Store struct {
	conversations   domain.ConversationRepository
	interactions    domain.InteractionRepository
	workflows       WorkflowResolver
	plans           PlanFiles
	defaultWorkflow string
	now             func() time.Time
}

// NewStore wires the store to its repositories and collaborators.
// defaultWorkflow is used when GetOrCreate is called without a workflow name.
func NewStore(
	conversations domain.ConversationRepository,
	interactions domain.InteractionRepository,
	workflows WorkflowResolver,
	plans PlanFiles,
	defaultWorkflow string,
) *Store {
	return &Store{
		conversations:   conversations,
		interactions:    interactions,
		workflows:       workflows,
		plans:           plans,
		defaultWorkflow: defaultWorkflow,
		now:             time.Now,
	}
}

// GetOrCreate returns the conversation for the project branch, creating it in
// the workflow's initial phase if none exists. An existing conversation is
// returned unchanged even when workflowName differs from the stored one.
func (s *Store) GetOrCreate(ctx context.Context, projectPath, branch, workflowName string) (*domain.Conversation, bool, error) {
	projectPath = filepath.Clean(projectPath)
	existing, err := s.conversations.FindByProjectBranch(ctx, projectPath, branch)
	if err == nil {
		if workflowName != "" && workflowName != existing.WorkflowName() {
			log.Info(log.CatDB, "workflow selection ignored for existing conversation",
				"conversation", existing.ID(), "stored", existing.WorkflowName(), "requested", workflowName)
		}
		return existing, false, nil
	}
	if !domain.IsNotFound(err) {
		return nil, false, err
	}

	if workflowName == "" {
		workflowName = s.defaultWorkflow
	}
	wf, err := s.workflows.Resolve(ctx, workflowName, projectPath)
	if err != nil {
		return nil, false, err
	}

	c := domain.NewConversation(
		ConversationID(projectPath, branch),
		projectPath,
		branch,
		wf.InitialState,
		wf.Name,
		s.plans.PathFor(projectPath, branch),
	)
	stored, created, err := s.conversations.CreateIfAbsent(ctx, c)
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Info(log.CatDB, "conversation created", "conversation", stored.ID(), "workflow", stored.WorkflowName(),
			"phase", stored.CurrentPhase())
	}
	return stored, created, nil
}

// Get returns the conversation for the project branch, or a
// ConversationNotFoundError telling the caller to start one.
func (s *Store) Get(ctx context.Context, projectPath, branch string) (*domain.Conversation, error) {
	return s.conversations.FindByProjectBranch(ctx, filepath.Clean(projectPath), branch)
}

// Update merges patch onto the stored conversation. Last writer wins. A patch
// that changes the phase or workflow must leave the phase declared by the
// workflow, otherwise an InvalidPhaseError is returned and nothing is saved.
func (s *Store) Update(ctx context.Context, conversationID string, patch domain.Patch) (*domain.Conversation, error) {
	c, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return c, nil
	}
	c.Apply(patch)
	if patch.CurrentPhase != nil || patch.WorkflowName != nil {
		wf, err := s.workflows.Resolve(ctx, c.WorkflowName(), c.ProjectPath())
		if err != nil {
			return nil, err
		}
		if err := wf.CheckPhase(c.CurrentPhase()); err != nil {
			return nil, err
		}
	}
	if err := s.conversations.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// HasPriorInteractions reports whether any live interaction rows exist.
func (s *Store) HasPriorInteractions(ctx context.Context, conversationID string) (bool, error) {
	return s.interactions.HasAny(ctx, conversationID)
}

// RecordInteraction appends an audit row.
func (s *Store) RecordInteraction(ctx context.Context, entry *domain.InteractionLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	return s.interactions.Append(ctx, entry)
}

// Interactions lists the audit rows for a conversation, oldest first.
func (s *Store) Interactions(ctx context.Context, conversationID string, includeDeleted bool) ([]*domain.InteractionLog, error) {
	return s.interactions.List(ctx, conversationID, includeDeleted)
}

// Reset deletes the conversation row and its plan file and soft-deletes its
// interaction rows. It refuses to run unless confirm is set. The database
// changes commit only after the plan file is gone, so a failed reset leaves
// the conversation intact and can be retried.
func (s *Store) Reset(ctx context.Context, conversationID string, confirm bool, reason string) (*domain.ResetSummary, error) {
	if !confirm {
		return nil, domain.ErrResetNotConfirmed
	}

	c, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	summary := &domain.ResetSummary{ConversationID: conversationID, Reason: reason}

	summary.InteractionsMarked, summary.ConversationDeleted, err = s.conversations.DeleteWithHistory(
		ctx, conversationID, s.now(), func() error {
			if c.PlanFilePath() == "" {
				return nil
			}
			var err error
			summary.PlanFileDeleted, err = s.plans.Delete(c.PlanFilePath())
			return err
		})
	if err != nil {
		return nil, err
	}

	log.Info(log.CatDB, "conversation reset", "conversation", conversationID,
		"interactions_marked", summary.InteractionsMarked, "plan_deleted", summary.PlanFileDeleted, "reason", reason)
	return summary, nil
}
