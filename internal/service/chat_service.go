package service

import (
	"context"
	"errors"
	"fmt"

	"chatsync-backend/internal/cache"
	llmHandlers "chatsync-backend/internal/llm_handlers"
	"chatsync-backend/internal/logger"
	"chatsync-backend/internal/models"
	"chatsync-backend/internal/prompts"
	"chatsync-backend/internal/repo"
	"chatsync-backend/internal/session"
	"chatsync-backend/internal/stream"

	"github.com/google/uuid"
)

// ErrNotFound covers both "no such chat" and "not the owner": callers must
// not be able to tell the difference.
var ErrNotFound = errors.New("chat not found")

// errStopped aborts client-visible delivery without failing the generation.
var errStopped = errors.New("client stream stopped")

type readCache interface {
	GetCompressed(ctx context.Context, key string, out interface{}) (bool, error)
	SetCompressed(ctx context.Context, key string, v interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

type streamClientFactory func(ctx context.Context, mode string) (llmHandlers.StreamClient, error)

// StreamEmitter is how a transport (websocket, SSE) observes one response.
type StreamEmitter interface {
	Starting(chatID, userMessageID, assistantMessageID uuid.UUID)
	Delta(chunk string)
	Completed(assistant *models.Message)
	Failed(message string)
}

// SendRequest carries one user submission. Only the newest message travels
// with it; the server reloads the authoritative history itself.
type SendRequest struct {
	OwnerID     uuid.UUID
	ChatID      uuid.UUID
	Message     string
	Mode        string
	Attachments []models.Attachment

	// set when the user message was already persisted by chat creation, so
	// reconciliation must not write it a second time
	UserMessageID uuid.UUID
	UserPersisted bool
}

type ChatService struct {
	chats       repo.ChatRepoInterface
	messages    repo.MessageRepoInterface
	cache       readCache
	newStream   streamClientFactory
	titles      *TitleService
	historySize int
}

func NewChatService(chats repo.ChatRepoInterface, messages repo.MessageRepoInterface, readCache readCache, titles *TitleService) *ChatService {
	return &ChatService{
		chats:       chats,
		messages:    messages,
		cache:       readCache,
		newStream:   llmHandlers.NewStreamClient,
		titles:      titles,
		historySize: 50,
	}
}

// ChatListPage is the cached unit for one page of an owner's chat list.
type ChatListPage struct {
	Chats []models.Chat `json:"chats"`
	Total int64         `json:"total"`
}

// ListChats reads through the compressed cache.
func (s *ChatService) ListChats(ctx context.Context, ownerID uuid.UUID, page, pageSize int) (*ChatListPage, error) {
	key := cache.ChatListKey(ownerID, page, pageSize)

	var cached ChatListPage
	if hit, err := s.cache.GetCompressed(ctx, key, &cached); err != nil {
		logger.Log.WithError(err).Warn("chat list cache read failed")
	} else if hit {
		return &cached, nil
	}

	chats, total, err := s.chats.GetChatsByOwner(ownerID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("load chat list: %w", err)
	}

	result := &ChatListPage{Chats: chats, Total: total}
	if err := s.cache.SetCompressed(ctx, key, result); err != nil {
		// best-effort: the next read just repopulates
		logger.Log.WithError(err).Warn("chat list cache write failed")
	}
	return result, nil
}

// GetMessages returns a chat's full ordered sequence, read through the cache.
// Non-owners get ErrNotFound before anything is touched.
func (s *ChatService) GetMessages(ctx context.Context, ownerID, chatID uuid.UUID) ([]models.Message, error) {
	owned, err := s.chats.BelongsTo(chatID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ownership check: %w", err)
	}
	if !owned {
		return nil, ErrNotFound
	}

	key := cache.MessagesKey(ownerID, chatID)
	var cached []models.Message
	if hit, err := s.cache.GetCompressed(ctx, key, &cached); err != nil {
		logger.Log.WithError(err).Warn("messages cache read failed")
	} else if hit {
		return cached, nil
	}

	messages, err := s.messages.LoadMessages(chatID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	if err := s.cache.SetCompressed(ctx, key, messages); err != nil {
		logger.Log.WithError(err).Warn("messages cache write failed")
	}
	return messages, nil
}

// CreateChat creates a chat with its first user message atomically, then
// kicks off title generation without waiting for it.
func (s *ChatService) CreateChat(ctx context.Context, ownerID uuid.UUID, firstMessage string, attachments []models.Attachment) (*models.Chat, *models.Message, error) {
	chat := &models.Chat{
		OwnerID: ownerID,
		Title:   models.PlaceholderTitle,
	}
	first := &models.Message{
		UUID:        models.NewMessageID(),
		Role:        models.RoleUser,
		Content:     firstMessage,
		Attachments: models.AttachmentsJSON(attachments),
	}

	if err := s.chats.CreateChatWithFirstMessage(chat, first); err != nil {
		return nil, nil, fmt.Errorf("create chat: %w", err)
	}

	if err := s.cache.DeleteByPrefix(ctx, cache.ChatListPrefix(ownerID)); err != nil {
		logger.Log.WithError(err).Warn("chat list invalidation failed")
	}

	if s.titles != nil {
		s.titles.GenerateInBackground(ownerID, chat.UUID, firstMessage)
	}
	return chat, first, nil
}

// DeleteChat removes a chat and its messages, then invalidates both key
// families for the owner.
func (s *ChatService) DeleteChat(ctx context.Context, ownerID, chatID uuid.UUID) error {
	owned, err := s.chats.BelongsTo(chatID, ownerID)
	if err != nil {
		return fmt.Errorf("ownership check: %w", err)
	}
	if !owned {
		return ErrNotFound
	}

	if err := s.chats.DeleteChat(chatID); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}

	if err := s.cache.Delete(ctx, cache.MessagesKey(ownerID, chatID)); err != nil {
		logger.Log.WithError(err).Warn("messages invalidation failed")
	}
	if err := s.cache.DeleteByPrefix(ctx, cache.ChatListPrefix(ownerID)); err != nil {
		logger.Log.WithError(err).Warn("chat list invalidation failed")
	}
	return nil
}

// StreamResponse runs one full turn: optimistic append, streaming, and
// reconciliation. The generation and persistence path is detached from ctx
// so closing the tab mid-stream never skips the write.
func (s *ChatService) StreamResponse(ctx context.Context, sess *session.Session, ctrl *stream.Controller, req SendRequest, emit StreamEmitter) error {
	owned, err := s.chats.BelongsTo(req.ChatID, req.OwnerID)
	if err != nil {
		return fmt.Errorf("ownership check: %w", err)
	}
	if !owned {
		return ErrNotFound
	}

	userMsg := models.Message{
		UUID:        req.UserMessageID,
		ChatUUID:    req.ChatID,
		Role:        models.RoleUser,
		Content:     req.Message,
		Attachments: models.AttachmentsJSON(req.Attachments),
	}
	if userMsg.UUID == uuid.Nil {
		userMsg.UUID = models.NewMessageID()
	}

	if err := sess.AppendOptimistic(req.ChatID, userMsg); err != nil {
		pending, ok := sess.Pending(req.ChatID)
		// InFlight, not Status: a stopped turn reads idle while it is still
		// draining, and a resend must not interleave with it
		busy := ctrl.InFlight()
		if !ok || busy || pending.Content != req.Message {
			// second, different submission while one is outstanding
			return err
		}
		// identical re-issue after a failed stream: reuse the pending message
		userMsg = *pending
	}

	deliverCtx, assistantID, err := ctrl.Begin(ctx, req.ChatID)
	if err != nil {
		return err
	}
	emit.Starting(req.ChatID, userMsg.UUID, assistantID)

	history, err := s.messages.GetChatHistory(req.ChatID, s.historySize)
	if err != nil {
		ctrl.Finish(err)
		emit.Failed("Failed to load chat history")
		return fmt.Errorf("load history: %w", err)
	}
	// the optimistic message is only in durable history for a fresh chat
	if !req.UserPersisted {
		history = append(history, llmHandlers.Message{Role: models.RoleUser, Content: req.Message})
	}

	client, err := s.newStream(ctx, req.Mode)
	if err != nil {
		ctrl.Finish(err)
		emit.Failed("Model is unavailable")
		return fmt.Errorf("llm client: %w", err)
	}

	// durability over responsiveness: generation survives the request context
	genCtx := context.WithoutCancel(ctx)
	reply, streamErr := client.StreamChat(genCtx, prompts.SYSTEM_PROMPT, history, func(chunk string) error {
		if !ctrl.AppendDelta(chunk) {
			return errStopped
		}
		select {
		case <-deliverCtx.Done():
			return errStopped
		default:
		}
		emit.Delta(chunk)
		return nil
	})

	outcome := ctrl.Finish(streamErr)
	if outcome == stream.StatusError {
		logger.Log.WithError(streamErr).WithField("chat_id", req.ChatID).Warn("stream failed")
		emit.Failed("The response failed. Your message was kept, try again.")
		return nil
	}

	assistant := models.Message{
		UUID:     assistantID,
		ChatUUID: req.ChatID,
		Role:     models.RoleAssistant,
	}
	if reply != nil {
		assistant.Content = reply.Text
		assistant.Parts = models.PartsJSON(reply.Parts)
	} else {
		// stopped before the terminal event: reconcile the partial content
		partial := ctrl.Partial()
		assistant.Content = partial
		if partial != "" {
			assistant.Parts = models.PartsJSON([]models.Part{{Type: models.PartTypeText, Text: partial}})
		}
	}

	// reconcile in-memory state first; persistence must never roll it back
	sess.MergeAssistant(req.ChatID, assistant)
	sess.ClearPending(req.ChatID)

	toAppend := []models.Message{}
	if !req.UserPersisted {
		toAppend = append(toAppend, userMsg)
	}
	toAppend = append(toAppend, assistant)

	if err := s.messages.AppendMessages(req.ChatID, toAppend); err != nil {
		// losing the already-rendered answer would be worse than a delayed
		// write; surface as a warning and keep going
		logger.Log.WithError(err).WithField("chat_id", req.ChatID).Warn("persisting messages failed, keeping in-memory state")
	} else {
		if err := s.cache.Delete(ctx, cache.MessagesKey(req.OwnerID, req.ChatID)); err != nil {
			logger.Log.WithError(err).Warn("messages invalidation failed")
		}
		if err := s.cache.DeleteByPrefix(ctx, cache.ChatListPrefix(req.OwnerID)); err != nil {
			logger.Log.WithError(err).Warn("chat list invalidation failed")
		}
	}

	if !ctrl.Stopped() {
		emit.Completed(&assistant)
	}
	return nil
}
