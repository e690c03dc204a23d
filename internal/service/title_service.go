package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"chatsync-backend/internal/cache"
	llmHandlers "chatsync-backend/internal/llm_handlers"
	"chatsync-backend/internal/logger"
	"chatsync-backend/internal/models"
	"chatsync-backend/internal/prompts"
	"chatsync-backend/internal/repo"

	"github.com/google/uuid"
)

const maxTitleLength = 80

// TitleService derives a chat title from the first user message. Strictly
// best-effort: one attempt, failures only logged, the placeholder stays.
type TitleService struct {
	chats   repo.ChatRepoInterface
	cache   readCache
	llm     llmHandlers.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewTitleService(chats repo.ChatRepoInterface, readCache readCache, llm llmHandlers.Client) *TitleService {
	return &TitleService{
		chats:   chats,
		cache:   readCache,
		llm:     llm,
		timeout: 20 * time.Second,
	}
}

// GenerateInBackground starts the title job detached from the caller. There
// is no return channel: the chat-creation response never waits on this.
func (t *TitleService) GenerateInBackground(ownerID, chatID uuid.UUID, firstMessage string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.generate(ownerID, chatID, firstMessage)
	}()
}

// Wait blocks until in-flight title jobs finish. Used on shutdown.
func (t *TitleService) Wait() {
	t.wg.Wait()
}

func (t *TitleService) generate(ownerID, chatID uuid.UUID, firstMessage string) {
	if t.llm == nil {
		// no title model configured; the placeholder stays
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	raw, err := t.llm.Chat(ctx, "", []llmHandlers.Message{{
		Role:    models.RoleUser,
		Content: prompts.TITLE_PROMPT + "\n\n" + firstMessage,
	}})
	if err != nil {
		logger.Log.WithError(err).WithField("chat_id", chatID).Warn("title generation failed")
		return
	}

	title := sanitizeTitle(raw)
	if title == "" {
		logger.Log.WithField("chat_id", chatID).Warn("title generation produced empty title")
		return
	}

	if err := t.chats.UpdateTitle(chatID, title); err != nil {
		logger.Log.WithError(err).WithField("chat_id", chatID).Warn("title update failed")
		return
	}

	if err := t.cache.DeleteByPrefix(ctx, cache.ChatListPrefix(ownerID)); err != nil {
		logger.Log.WithError(err).Warn("chat list invalidation failed after title update")
	}
}

// sanitizeTitle flattens whatever the model returned into one sidebar-sized
// line.
func sanitizeTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength])
	}
	return title
}
