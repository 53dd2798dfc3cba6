package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/phaseguide/internal/conversation/domain"
)

func TestInteractionRepository_AppendAndList(t *testing.T) {
	repo := setupTestDB(t).InteractionRepository()
	ctx := context.Background()

	has, err := repo.HasAny(ctx, "c1")
	require.NoError(t, err)
	require.False(t, has)

	first := &domain.InteractionLog{ConversationID: "c1", ToolName: "start_development", CurrentPhase: "design"}
	require.NoError(t, repo.Append(ctx, first))
	require.Greater(t, first.ID, int64(0))
	require.False(t, first.Timestamp.IsZero())

	second := &domain.InteractionLog{
		ConversationID: "c1", ToolName: "whats_next", CurrentPhase: "design",
		InputParams: `{"context":"x"}`, ResponseData: `{"phase":"design"}`,
	}
	require.NoError(t, repo.Append(ctx, second))
	require.NoError(t, repo.Append(ctx, &domain.InteractionLog{ConversationID: "c2", ToolName: "whats_next", CurrentPhase: "a"}))

	has, err = repo.HasAny(ctx, "c1")
	require.NoError(t, err)
	require.True(t, has)

	logs, err := repo.List(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.Equal(t, "start_development", logs[0].ToolName)
	require.Equal(t, "{}", logs[0].InputParams)
	require.Equal(t, `{"context":"x"}`, logs[1].InputParams)
	require.Equal(t, `{"phase":"design"}`, logs[1].ResponseData)
}
