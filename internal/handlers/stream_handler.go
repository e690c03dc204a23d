package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log"

	"chatsync-backend/internal/models"
	"chatsync-backend/internal/service"
	"chatsync-backend/internal/session"
	"chatsync-backend/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// StreamHandler exposes one response turn over server-sent events for clients
// without a websocket. Each request gets its own throwaway session and
// controller; there is no cross-request state to reconcile into.
type StreamHandler struct {
	chatService *service.ChatService
}

func NewStreamHandler(chatService *service.ChatService) *StreamHandler {
	return &StreamHandler{chatService: chatService}
}

// sseEmitter writes stream events as SSE frames, flushing after each one.
type sseEmitter struct {
	w *bufio.Writer
}

func (e *sseEmitter) event(name string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Println("failed to marshal sse event:", err)
		return
	}
	if _, err := e.w.WriteString("event: " + name + "\ndata: " + string(payload) + "\n\n"); err != nil {
		return
	}
	if err := e.w.Flush(); err != nil {
		// client went away; generation continues regardless
		return
	}
}

func (e *sseEmitter) Starting(chatID, userMessageID, assistantMessageID uuid.UUID) {
	e.event("chat_starting", fiber.Map{
		"chat_id":              chatID,
		"user_message_id":      userMessageID,
		"assistant_message_id": assistantMessageID,
	})
}

func (e *sseEmitter) Delta(chunk string) {
	e.event("chat_delta", fiber.Map{"delta": chunk})
}

func (e *sseEmitter) Completed(assistant *models.Message) {
	e.event("chat_completed", fiber.Map{"message": assistant})
}

func (e *sseEmitter) Failed(message string) {
	e.event("error", fiber.Map{"message": message})
}

// function to stream one assistant response for an existing chat
func (h *StreamHandler) StreamChat(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user id",
		})
	}

	chatID, err := uuid.Parse(c.Params("chatId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid chat ID",
		})
	}

	var dto struct {
		Message     string              `json:"message"`
		Mode        string              `json:"mode"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.BodyParser(&dto); err != nil || dto.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	req := service.SendRequest{
		OwnerID:     owner,
		ChatID:      chatID,
		Message:     dto.Message,
		Mode:        dto.Mode,
		Attachments: dto.Attachments,
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		emitter := &sseEmitter{w: w}
		err := h.chatService.StreamResponse(context.Background(), session.New(), stream.NewController(), req, emitter)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				emitter.Failed("Chat not found")
				return
			}
			log.Println(err, "Error streaming response")
			emitter.Failed("Failed to process message")
		}
	}))
	return nil
}
