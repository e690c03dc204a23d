package session

import (
	"errors"
	"testing"

	"chatsync-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userMsg(content string) models.Message {
	return models.Message{
		UUID:    models.NewMessageID(),
		Role:    models.RoleUser,
		Content: content,
	}
}

func TestSetActiveChat_FirstVisitNeedsLoad(t *testing.T) {
	s := New()
	chatID := uuid.New()

	needsLoad, epoch := s.SetActiveChat(chatID)

	require.True(t, needsLoad)
	require.NotZero(t, epoch)
	assert.Equal(t, chatID, s.ActiveChat())
	assert.True(t, s.Loading(chatID))
}

func TestSetActiveChat_LoadedChatSwapsInstantly(t *testing.T) {
	s := New()
	chatID := uuid.New()

	_, epoch := s.SetActiveChat(chatID)
	s.CompleteLoad(chatID, epoch, []models.Message{userMsg("hi")}, nil)

	s.SetActiveChat(uuid.New())
	needsLoad, _ := s.SetActiveChat(chatID)

	assert.False(t, needsLoad)
	msgs, loaded := s.Messages(chatID)
	assert.True(t, loaded)
	assert.Len(t, msgs, 1)
}

func TestCompleteLoad_StaleEpochDiscarded(t *testing.T) {
	s := New()
	chatA := uuid.New()
	chatB := uuid.New()

	_, epochA1 := s.SetActiveChat(chatA)
	s.SetActiveChat(chatB)
	// switching back re-arms the load with a newer epoch
	_, epochA2 := s.SetActiveChat(chatA)
	require.NotEqual(t, epochA1, epochA2)

	// the slow first fetch resolves last; it must not win
	s.CompleteLoad(chatA, epochA2, []models.Message{userMsg("fresh")}, nil)
	s.CompleteLoad(chatA, epochA1, []models.Message{userMsg("stale")}, nil)

	msgs, loaded := s.Messages(chatA)
	require.True(t, loaded)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Content)
}

func TestCompleteLoad_ErrorLeavesEmptySequence(t *testing.T) {
	s := New()
	chatID := uuid.New()

	_, epoch := s.SetActiveChat(chatID)
	s.CompleteLoad(chatID, epoch, nil, errors.New("db down"))

	msgs, loaded := s.Messages(chatID)
	assert.False(t, loaded)
	assert.Empty(t, msgs)
	assert.Error(t, s.LoadError(chatID))
	assert.False(t, s.Loading(chatID))
}

func TestCompleteLoad_ReappliesOptimisticTail(t *testing.T) {
	s := New()
	chatID := uuid.New()

	_, epoch := s.SetActiveChat(chatID)
	// user sends while history is still loading
	pending := userMsg("sent while loading")
	require.NoError(t, s.AppendOptimistic(chatID, pending))

	s.CompleteLoad(chatID, epoch, []models.Message{userMsg("old")}, nil)

	msgs, loaded := s.Messages(chatID)
	require.True(t, loaded)
	require.Len(t, msgs, 2)
	assert.Equal(t, pending.UUID, msgs[1].UUID)
}

func TestAppendOptimistic_SingleSlot(t *testing.T) {
	s := New()
	chatID := uuid.New()

	require.NoError(t, s.AppendOptimistic(chatID, userMsg("first")))
	err := s.AppendOptimistic(chatID, userMsg("second"))
	assert.ErrorIs(t, err, ErrPendingExists)

	// a different chat has its own slot
	assert.NoError(t, s.AppendOptimistic(uuid.New(), userMsg("elsewhere")))
}

func TestClearPending_KeepsMessageInSequence(t *testing.T) {
	s := New()
	chatID := uuid.New()
	msg := userMsg("hello")

	require.NoError(t, s.AppendOptimistic(chatID, msg))
	assert.True(t, s.NeedsResponse(chatID))

	s.ClearPending(chatID)

	_, ok := s.Pending(chatID)
	assert.False(t, ok)
	assert.False(t, s.NeedsResponse(chatID))
	msgs, _ := s.Messages(chatID)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.UUID, msgs[0].UUID)

	// the slot is free again
	assert.NoError(t, s.AppendOptimistic(chatID, userMsg("next")))
}

func TestMergeAssistant_AppendsAfterOptimistic(t *testing.T) {
	s := New()
	chatID := uuid.New()

	require.NoError(t, s.AppendOptimistic(chatID, userMsg("question")))
	assistant := models.Message{
		UUID:    models.NewMessageID(),
		Role:    models.RoleAssistant,
		Content: "answer",
	}
	s.MergeAssistant(chatID, assistant)
	s.ClearPending(chatID)

	msgs, _ := s.Messages(chatID)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
}

func TestDropChat_ForgetsStateAndClearsActive(t *testing.T) {
	s := New()
	chatID := uuid.New()

	_, epoch := s.SetActiveChat(chatID)
	s.CompleteLoad(chatID, epoch, []models.Message{userMsg("hi")}, nil)
	require.NoError(t, s.AppendOptimistic(chatID, userMsg("pending")))

	s.DropChat(chatID)

	assert.Equal(t, uuid.Nil, s.ActiveChat())
	_, ok := s.Pending(chatID)
	assert.False(t, ok)
	msgs, loaded := s.Messages(chatID)
	assert.False(t, loaded)
	assert.Empty(t, msgs)
}

func TestMessages_ReturnsSnapshot(t *testing.T) {
	s := New()
	chatID := uuid.New()
	require.NoError(t, s.AppendOptimistic(chatID, userMsg("hi")))

	msgs, _ := s.Messages(chatID)
	msgs[0].Content = "mutated"

	fresh, _ := s.Messages(chatID)
	assert.Equal(t, "hi", fresh[0].Content)
}
