package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketmate/pkg/llm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureUserAndTier(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tier, err := s.EnsureUser(ctx, "user123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "free-tier", tier)

	require.NoError(t, s.SetUserTier(ctx, "user123", "paid-tier"))

	// Re-ensuring keeps the upgraded tier.
	tier, err = s.EnsureUser(ctx, "user123", "alice")
	require.NoError(t, err)
	assert.Equal(t, "paid-tier", tier)

	assert.ErrorIs(t, s.SetUserTier(ctx, "nobody", "paid-tier"), ErrNotFound)
}

func TestConversationLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "user123", "alice")
	require.NoError(t, err)

	conv, err := s.CreateConversation(ctx, "user123", "openai/gpt-4o-mini", "telegram:42")
	require.NoError(t, err)
	require.NotEmpty(t, conv.ID)

	got, err := s.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "user123", got.UserID)
	assert.Equal(t, "openai/gpt-4o-mini", got.Model)

	byKey, err := s.ConversationByKey(ctx, "telegram:42")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, byKey.ID)

	_, err = s.Conversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.ConversationByKey(ctx, "telegram:404")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyTurnAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "user123", "alice")
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, "user123", "", "")
	require.NoError(t, err)

	require.NoError(t, s.ApplyTurn(ctx, conv.ID, "What is a P/E ratio?", "Price over earnings.", ""))
	require.NoError(t, s.ApplyTurn(ctx, conv.ID, "And P/B?", "Price over book value.", "Ratios discussion."))

	history, err := s.History(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 4)
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, "What is a P/E ratio?", history[0].Content)
	assert.Equal(t, llm.RoleAssistant, history[3].Role)
	assert.Equal(t, "Price over book value.", history[3].Content)

	// Loaded timestamps stay in the transcript's unit, Unix seconds.
	now := time.Now().Unix()
	assert.InDelta(t, now, history[0].Timestamp, 5)

	count, err := s.CountUserMessages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := s.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ratios discussion.", got.Summary)
}

func TestApplyTurnWithoutResponse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "user123", "alice")
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, "user123", "", "")
	require.NoError(t, err)

	// A turn that produced no response still records the user message.
	require.NoError(t, s.ApplyTurn(ctx, conv.ID, "hello?", "", ""))

	history, err := s.History(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, llm.RoleUser, history[0].Role)
}

func TestEmptySummaryKeepsPrior(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "user123", "alice")
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, "user123", "", "")
	require.NoError(t, err)

	require.NoError(t, s.ApplyTurn(ctx, conv.ID, "q1", "a1", "summary v1"))
	require.NoError(t, s.ApplyTurn(ctx, conv.ID, "q2", "a2", ""))

	got, err := s.Conversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "summary v1", got.Summary)
}

func TestHistoryWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.EnsureUser(ctx, "user123", "alice")
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, "user123", "", "")
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		require.NoError(t, s.ApplyTurn(ctx, conv.ID, "question", "answer", ""))
	}

	history, err := s.History(ctx, conv.ID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 10)

	// Window keeps the newest rows in chronological order.
	assert.Equal(t, llm.RoleUser, history[0].Role)
	assert.Equal(t, llm.RoleAssistant, history[len(history)-1].Role)
}
