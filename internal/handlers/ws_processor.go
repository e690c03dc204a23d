package handlers

import (
	"context"
	"errors"

	"chatsync-backend/internal/libraries"
	"chatsync-backend/internal/models"
	"chatsync-backend/internal/service"
	"chatsync-backend/internal/session"
	"chatsync-backend/internal/stream"
	"chatsync-backend/internal/uploads"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SessionProcessor wires the websocket protocol onto the chat service. One
// websocket client = one browser tab = one session.
type SessionProcessor struct {
	chatService *service.ChatService
}

func NewSessionProcessor(chatService *service.ChatService) *SessionProcessor {
	return &SessionProcessor{chatService: chatService}
}

// wsEmitter delivers stream events to a single tab.
type wsEmitter struct {
	hub    *libraries.Hub
	client *libraries.Client
	chatID uuid.UUID
}

func (e *wsEmitter) Starting(chatID, userMessageID, assistantMessageID uuid.UUID) {
	e.chatID = chatID
	libraries.SendTyped(e.hub, e.client, libraries.WebSocketMessageTypeChatStarting, fiber.Map{
		"chat_id":              chatID,
		"user_message_id":      userMessageID,
		"assistant_message_id": assistantMessageID,
	})
}

func (e *wsEmitter) Delta(chunk string) {
	libraries.SendTyped(e.hub, e.client, libraries.WebSocketMessageTypeChatDelta, fiber.Map{
		"chat_id": e.chatID,
		"delta":   chunk,
	})
}

func (e *wsEmitter) Completed(assistant *models.Message) {
	libraries.SendTyped(e.hub, e.client, libraries.WebSocketMessageTypeChatCompleted, fiber.Map{
		"chat_id": e.chatID,
		"message": assistant,
	})
}

func (e *wsEmitter) Failed(message string) {
	libraries.SendErrorMessage(e.hub, e.client, message)
}

func (p *SessionProcessor) ProcessChatMessage(hub *libraries.Hub, client *libraries.Client, payload *libraries.ChatMessagePayload) {
	ctx := context.Background()
	attachments := append(client.Pipeline.Drain(), payload.Attachments...)

	req := service.SendRequest{
		OwnerID:     client.UserID,
		Message:     payload.Message,
		Mode:        payload.Mode,
		Attachments: attachments,
	}

	if payload.ChatID == "" {
		// first message: create the chat (placeholder title, first message
		// persisted atomically), then stream against it
		chat, first, err := p.chatService.CreateChat(ctx, client.UserID, payload.Message, attachments)
		if err != nil {
			libraries.SendErrorMessage(hub, client, "Failed to create chat")
			return
		}
		client.Session.SetActiveChat(chat.UUID)
		req.ChatID = chat.UUID
		req.UserMessageID = first.UUID
		req.UserPersisted = true
	} else {
		chatID, err := uuid.Parse(payload.ChatID)
		if err != nil {
			libraries.SendErrorMessage(hub, client, "Invalid chat ID")
			return
		}
		req.ChatID = chatID
	}

	emitter := &wsEmitter{hub: hub, client: client, chatID: req.ChatID}
	err := p.chatService.StreamResponse(ctx, client.Session, client.Controller, req, emitter)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNotFound):
		libraries.SendErrorMessage(hub, client, "Chat not found")
	case errors.Is(err, session.ErrPendingExists), errors.Is(err, stream.ErrBusy):
		libraries.SendErrorMessage(hub, client, "A response is still in progress for this chat")
	default:
		libraries.SendErrorMessage(hub, client, "Failed to process message")
	}
}

func (p *SessionProcessor) ProcessSetActiveChat(hub *libraries.Hub, client *libraries.Client, payload *libraries.SetActiveChatPayload) {
	if payload.ChatID == "" {
		client.Session.SetActiveChat(uuid.Nil)
		return
	}

	chatID, err := uuid.Parse(payload.ChatID)
	if err != nil {
		libraries.SendErrorMessage(hub, client, "Invalid chat ID")
		return
	}

	needsLoad, epoch := client.Session.SetActiveChat(chatID)
	if needsLoad {
		messages, loadErr := p.chatService.GetMessages(context.Background(), client.UserID, chatID)
		client.Session.CompleteLoad(chatID, epoch, messages, loadErr)
		if loadErr != nil {
			if errors.Is(loadErr, service.ErrNotFound) {
				libraries.SendErrorMessage(hub, client, "Chat not found")
			} else {
				libraries.SendErrorMessage(hub, client, "Failed to load chat history")
			}
			return
		}
	}

	// user may have switched away while history loaded; only the active chat
	// is echoed back
	if client.Session.ActiveChat() != chatID {
		return
	}
	messages, _ := client.Session.Messages(chatID)
	libraries.SendTyped(hub, client, libraries.WebSocketMessageTypeChatHistory, fiber.Map{
		"chat_id":  chatID,
		"messages": messages,
	})
}

func (p *SessionProcessor) ProcessStop(hub *libraries.Hub, client *libraries.Client, payload *libraries.StopPayload) {
	chatID, err := uuid.Parse(payload.ChatID)
	if err != nil || client.Controller.ChatID() != chatID {
		return
	}
	client.Controller.Stop()
}

func (p *SessionProcessor) ProcessUploadEvent(hub *libraries.Hub, client *libraries.Client, msgType libraries.WebSocketMessageType, payload *libraries.UploadPayload) {
	switch msgType {
	case libraries.WebSocketMessageTypeUploadBegin:
		if payload.Name == "" || payload.ContentType == "" {
			libraries.SendErrorMessage(hub, client, "Upload name and content type are required")
			return
		}
		upload := client.Pipeline.Add(payload.Name, payload.ContentType)
		target, err := client.Pipeline.Begin(context.Background(), upload.ID)
		if err != nil {
			libraries.SendErrorMessage(hub, client, "Failed to prepare upload destination")
			return
		}
		libraries.SendTyped(hub, client, libraries.WebSocketMessageTypeUploadTarget, fiber.Map{
			"id":         upload.ID,
			"upload_url": target.UploadURL,
		})
		return

	case libraries.WebSocketMessageTypeUploadProgress:
		client.Pipeline.SetProgress(payload.ID, payload.Progress)
		return

	case libraries.WebSocketMessageTypeUploadComplete:
		client.Pipeline.Complete(payload.ID)

	case libraries.WebSocketMessageTypeUploadError:
		reason := payload.Reason
		if reason == "" {
			reason = "Network error occurred during upload"
		}
		client.Pipeline.Fail(payload.ID, reason)

	case libraries.WebSocketMessageTypeUploadRemove:
		client.Pipeline.Remove(payload.ID)

	case libraries.WebSocketMessageTypeUploadRetry:
		target, err := client.Pipeline.Begin(context.Background(), payload.ID)
		if err != nil {
			libraries.SendErrorMessage(hub, client, "Failed to prepare upload destination")
			return
		}
		libraries.SendTyped(hub, client, libraries.WebSocketMessageTypeUploadTarget, fiber.Map{
			"id":         payload.ID,
			"upload_url": target.UploadURL,
		})
		return
	}

	libraries.SendTyped(hub, client, libraries.WebSocketMessageTypeUploadState, fiber.Map{
		"uploads": client.Pipeline.List(),
	})
}

var _ uploads.TargetProvider = (*libraries.Clients)(nil)
