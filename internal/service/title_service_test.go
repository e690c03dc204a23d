package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chatsync-backend/internal/cache"
	llmHandlers "chatsync-backend/internal/llm_handlers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLLMClient struct {
	ChatFunc func(ctx context.Context, systemMessage string, messages []llmHandlers.Message) (string, error)
}

func (m *mockLLMClient) Chat(ctx context.Context, systemMessage string, messages []llmHandlers.Message) (string, error) {
	return m.ChatFunc(ctx, systemMessage, messages)
}

func TestTitleService_SuccessUpdatesAndInvalidates(t *testing.T) {
	owner := uuid.New()
	chatID := uuid.New()

	var updatedChat uuid.UUID
	var updatedTitle string
	chats := &mockChatRepo{
		UpdateTitleFunc: func(id uuid.UUID, title string) error {
			updatedChat = id
			updatedTitle = title
			return nil
		},
	}
	kv := &mockCache{}
	llm := &mockLLMClient{
		ChatFunc: func(ctx context.Context, system string, messages []llmHandlers.Message) (string, error) {
			return "Tax Filing Deadline Question", nil
		},
	}

	svc := NewTitleService(chats, kv, llm)
	svc.GenerateInBackground(owner, chatID, "when are taxes due this year?")
	svc.Wait()

	assert.Equal(t, chatID, updatedChat)
	assert.Equal(t, "Tax Filing Deadline Question", updatedTitle)
	assert.Contains(t, kv.prefixes(), cache.ChatListPrefix(owner))
}

func TestTitleService_FailureKeepsPlaceholder(t *testing.T) {
	updated := false
	chats := &mockChatRepo{
		UpdateTitleFunc: func(id uuid.UUID, title string) error {
			updated = true
			return nil
		},
	}
	kv := &mockCache{}
	llm := &mockLLMClient{
		ChatFunc: func(ctx context.Context, system string, messages []llmHandlers.Message) (string, error) {
			return "", errors.New("model timeout")
		},
	}

	svc := NewTitleService(chats, kv, llm)
	svc.GenerateInBackground(uuid.New(), uuid.New(), "hello")
	svc.Wait()

	// single attempt, no retry, no update, no invalidation
	assert.False(t, updated)
	assert.Empty(t, kv.prefixes())
}

func TestTitleService_EmptyResultIgnored(t *testing.T) {
	updated := false
	chats := &mockChatRepo{
		UpdateTitleFunc: func(id uuid.UUID, title string) error {
			updated = true
			return nil
		},
	}
	llm := &mockLLMClient{
		ChatFunc: func(ctx context.Context, system string, messages []llmHandlers.Message) (string, error) {
			return "  \"\"  ", nil
		},
	}

	svc := NewTitleService(chats, &mockCache{}, llm)
	svc.GenerateInBackground(uuid.New(), uuid.New(), "hello")
	svc.Wait()

	assert.False(t, updated)
}

func TestTitleService_NoClientConfigured(t *testing.T) {
	chats := &mockChatRepo{
		UpdateTitleFunc: func(id uuid.UUID, title string) error {
			t.Fatal("update must not run without a title client")
			return nil
		},
	}

	svc := NewTitleService(chats, &mockCache{}, nil)
	svc.GenerateInBackground(uuid.New(), uuid.New(), "hello")
	svc.Wait()
}

func TestTitleService_PromptCarriesFirstMessage(t *testing.T) {
	var prompt string
	llm := &mockLLMClient{
		ChatFunc: func(ctx context.Context, system string, messages []llmHandlers.Message) (string, error) {
			require.Len(t, messages, 1)
			prompt = messages[0].Content.(string)
			return "A Title", nil
		},
	}

	svc := NewTitleService(&mockChatRepo{}, &mockCache{}, llm)
	svc.GenerateInBackground(uuid.New(), uuid.New(), "how do I poach an egg?")
	svc.Wait()

	assert.Contains(t, prompt, "how do I poach an egg?")
}

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Plain Title", "Plain Title"},
		{"  padded  ", "padded"},
		{"\"Quoted Title\"", "Quoted Title"},
		{"'Single Quoted'", "Single Quoted"},
		{"First line\nsecond line", "First line"},
		{"", ""},
		{"\n\n", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, sanitizeTitle(c.in), "input %q", c.in)
	}

	long := strings.Repeat("x", 200)
	assert.Len(t, sanitizeTitle(long), maxTitleLength)
}
