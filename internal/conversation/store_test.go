package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
	"github.com/zjrosen/phaseguide/internal/infrastructure/sqlite"
	"github.com/zjrosen/phaseguide/internal/planfile"
	"github.com/zjrosen/phaseguide/internal/workflow"
)

const designBuildDoc = `
name: design-build
initial_state: design
states:
  design:
    default_instructions: Design it.
    transitions:
      - to: build
        transition_reason: design done
  build:
    default_instructions: Build it.
`

type staticResolver struct {
	workflows map[string]*workflow.Workflow
}

func (r staticResolver) Resolve(_ context.Context, name, _ string) (*workflow.Workflow, error) {
	if wf, ok := r.workflows[name]; ok {
		return wf, nil
	}
	return nil, &workflow.UnknownWorkflowError{Name: name, Available: []string{"design-build"}}
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	wf, err := workflow.Load([]byte(designBuildDoc), "test")
	require.NoError(t, err)

	return NewStore(
		db.ConversationRepository(),
		db.InteractionRepository(),
		staticResolver{workflows: map[string]*workflow.Workflow{"design-build": wf}},
		planfile.NewManager(),
		"design-build",
	)
}

func TestConversationID(t *testing.T) {
	id := ConversationID("/home/dev/My Project", "feature/Login")
	require.Regexp(t, regexp.MustCompile(`^my-project-feature-login-[0-9a-f]{8}$`), id)

	require.Equal(t, id, ConversationID("/home/dev/My Project/", "feature/Login"))
	require.NotEqual(t, id, ConversationID("/home/dev/My Project", "feature/login"))
	require.NotEqual(t, id, ConversationID("/other/My Project", "feature/Login"))

	require.Regexp(t, `^project-default-[0-9a-f]{8}$`, ConversationID("/", ""))
}

func TestConversationID_Property_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		project := "/" + rapid.StringMatching(`[a-zA-Z0-9 _./-]{1,30}`).Draw(t, "project")
		branch := rapid.String().Draw(t, "branch")
		if ConversationID(project, branch) != ConversationID(project, branch) {
			t.Fatalf("identity not deterministic for %q %q", project, branch)
		}
	})
}

func TestStore_GetOrCreate_Property_SameIdentity(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	rapid.Check(t, func(rt *rapid.T) {
		project := "/work/" + rapid.StringMatching(`[a-z]{1,12}`).Draw(rt, "project")
		branch := rapid.StringMatching(`[a-z/]{1,12}`).Draw(rt, "branch")

		first, _, err := store.GetOrCreate(ctx, project, branch, "")
		if err != nil {
			rt.Fatalf("first GetOrCreate: %v", err)
		}
		second, created, err := store.GetOrCreate(ctx, project, branch, "")
		if err != nil {
			rt.Fatalf("second GetOrCreate: %v", err)
		}
		if created || first.ID() != second.ID() {
			rt.Fatalf("identity changed: %s vs %s", first.ID(), second.ID())
		}
	})
}

func TestStore_GetOrCreate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	project := t.TempDir()

	c, created, err := store.GetOrCreate(ctx, project, "main", "design-build")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, ConversationID(project, "main"), c.ID())
	require.Equal(t, "design", c.CurrentPhase())
	require.Equal(t, "design-build", c.WorkflowName())
	require.Equal(t, filepath.Join(project, ".phaseguide", "development-plan.md"), c.PlanFilePath())

	again, created, err := store.GetOrCreate(ctx, project, "main", "something-else")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "design-build", again.WorkflowName())
}

func TestStore_GetOrCreate_NormalizesProjectPath(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	project := t.TempDir()

	c, created, err := store.GetOrCreate(ctx, project, "main", "")
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := store.GetOrCreate(ctx, project+"/", "main", "")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, c.ID(), again.ID())

	found, err := store.Get(ctx, project+"/./", "main")
	require.NoError(t, err)
	require.Equal(t, c.ID(), found.ID())
	require.Equal(t, project, found.ProjectPath())
}

func TestStore_GetOrCreate_UnknownWorkflow(t *testing.T) {
	store := setupStore(t)

	_, _, err := store.GetOrCreate(context.Background(), t.TempDir(), "main", "nope")
	var unknown *workflow.UnknownWorkflowError
	require.ErrorAs(t, err, &unknown)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.Get(context.Background(), t.TempDir(), "main")
	require.True(t, domain.IsNotFound(err))
	require.Contains(t, err.Error(), "start_development")
}

func TestStore_Update(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	c, _, err := store.GetOrCreate(ctx, t.TempDir(), "main", "")
	require.NoError(t, err)

	phase := "build"
	updated, err := store.Update(ctx, c.ID(), domain.Patch{CurrentPhase: &phase})
	require.NoError(t, err)
	require.Equal(t, "build", updated.CurrentPhase())
	require.Equal(t, c.WorkflowName(), updated.WorkflowName())

	unchanged, err := store.Update(ctx, c.ID(), domain.Patch{})
	require.NoError(t, err)
	require.Equal(t, "build", unchanged.CurrentPhase())

	_, err = store.Update(ctx, "missing", domain.Patch{CurrentPhase: &phase})
	require.True(t, domain.IsNotFound(err))
}

func TestStore_Update_RejectsUndeclaredPhase(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	project := t.TempDir()

	c, _, err := store.GetOrCreate(ctx, project, "main", "")
	require.NoError(t, err)

	phase := "qa"
	_, err = store.Update(ctx, c.ID(), domain.Patch{CurrentPhase: &phase})
	var invalid *workflow.InvalidPhaseError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, []string{"design", "build"}, invalid.Valid)

	stored, err := store.Get(ctx, project, "main")
	require.NoError(t, err)
	require.Equal(t, "design", stored.CurrentPhase(), "rejected patch must not be saved")

	unknown := "nope"
	_, err = store.Update(ctx, c.ID(), domain.Patch{WorkflowName: &unknown})
	var unknownErr *workflow.UnknownWorkflowError
	require.ErrorAs(t, err, &unknownErr)
}

func TestStore_Interactions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	c, _, err := store.GetOrCreate(ctx, t.TempDir(), "main", "")
	require.NoError(t, err)

	prior, err := store.HasPriorInteractions(ctx, c.ID())
	require.NoError(t, err)
	require.False(t, prior)

	entry := &domain.InteractionLog{ConversationID: c.ID(), ToolName: "whats_next", CurrentPhase: "design"}
	require.NoError(t, store.RecordInteraction(ctx, entry))
	require.False(t, entry.Timestamp.IsZero())

	prior, err = store.HasPriorInteractions(ctx, c.ID())
	require.NoError(t, err)
	require.True(t, prior)
}

func TestStore_Reset(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	project := t.TempDir()

	c, _, err := store.GetOrCreate(ctx, project, "main", "")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(c.PlanFilePath()), 0o750))
	require.NoError(t, os.WriteFile(c.PlanFilePath(), []byte("# plan"), 0o644))
	for i := 0; i < 2; i++ {
		require.NoError(t, store.RecordInteraction(ctx, &domain.InteractionLog{
			ConversationID: c.ID(), ToolName: "whats_next", CurrentPhase: "design",
		}))
	}

	_, err = store.Reset(ctx, c.ID(), false, "")
	require.True(t, errors.Is(err, domain.ErrResetNotConfirmed))
	_, err = store.Get(ctx, project, "main")
	require.NoError(t, err, "unconfirmed reset must not delete anything")

	summary, err := store.Reset(ctx, c.ID(), true, "starting over")
	require.NoError(t, err)
	require.Equal(t, &domain.ResetSummary{
		ConversationID:      c.ID(),
		ConversationDeleted: true,
		InteractionsMarked:  2,
		PlanFileDeleted:     true,
		Reason:              "starting over",
	}, summary)

	_, err = store.Get(ctx, project, "main")
	require.True(t, domain.IsNotFound(err))

	_, err = os.Stat(c.PlanFilePath())
	require.True(t, os.IsNotExist(err))

	live, err := store.Interactions(ctx, c.ID(), false)
	require.NoError(t, err)
	require.Empty(t, live)

	all, err := store.Interactions(ctx, c.ID(), true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, l := range all {
		require.True(t, l.IsDeleted())
	}

	// A fresh start after reset bootstraps again.
	restarted, created, err := store.GetOrCreate(ctx, project, "main", "")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, c.ID(), restarted.ID())
	prior, err := store.HasPriorInteractions(ctx, restarted.ID())
	require.NoError(t, err)
	require.False(t, prior)
}

func TestStore_Reset_PlanFileFailureKeepsConversation(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	project := t.TempDir()

	c, _, err := store.GetOrCreate(ctx, project, "main", "")
	require.NoError(t, err)
	require.NoError(t, store.RecordInteraction(ctx, &domain.InteractionLog{
		ConversationID: c.ID(), ToolName: "whats_next", CurrentPhase: "design",
	}))

	// A non-empty directory at the plan path cannot be removed.
	require.NoError(t, os.MkdirAll(filepath.Join(c.PlanFilePath(), "blocker"), 0o750))

	_, err = store.Reset(ctx, c.ID(), true, "")
	require.Error(t, err)
	require.Equal(t, 1, strings.Count(err.Error(), "deleting plan file"))

	_, err = store.Get(ctx, project, "main")
	require.NoError(t, err, "conversation must survive a failed reset")
	live, err := store.Interactions(ctx, c.ID(), false)
	require.NoError(t, err)
	require.Len(t, live, 1)

	// Once the obstruction is gone the same reset succeeds.
	require.NoError(t, os.RemoveAll(c.PlanFilePath()))
	require.NoError(t, os.WriteFile(c.PlanFilePath(), []byte("# plan"), 0o644))
	summary, err := store.Reset(ctx, c.ID(), true, "")
	require.NoError(t, err)
	require.True(t, summary.ConversationDeleted)
	require.True(t, summary.PlanFileDeleted)
	require.Equal(t, int64(1), summary.InteractionsMarked)
}

func TestStore_Reset_NotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.Reset(context.Background(), "missing", true, "")
	require.True(t, domain.IsNotFound(err))
}
