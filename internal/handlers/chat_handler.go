package handlers

import (
	"errors"
	"log"

	"chatsync-backend/internal/models"
	"chatsync-backend/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ownerID reads the authenticated user's id. Auth middleware upstream is
// expected to have validated it; here it arrives as a query param.
func ownerID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Query("user_id"))
}

// function to list chats for the sidebar, newest activity first
func (h *ChatHandler) GetChats(c *fiber.Ctx) error {
	owner, err := ownerID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user id",
		})
	}

	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)

	result, err := h.chatService.ListChats(c.Context(), owner, page, pageSize)
	if err != nil {
		log.Println(err, "Error getting chats")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get chats",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"chats": result.Chats,
		"total": result.Total,
	})
}

// function to create a chat with its first message
func (h *ChatHandler) CreateChat(c *fiber.Ctx) error {
	var dto struct {
		UserID      string              `json:"userId"`
		Message     string              `json:"message"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.BodyParser(&dto); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	owner, err := uuid.Parse(dto.UserID)
	if err != nil {
		log.Println(err, "Error parsing user id")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid user id",
		})
	}
	if dto.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	chat, first, err := h.chatService.CreateChat(c.Context(), owner, dto.Message, dto.Attachments)
	if err != nil {
		log.Println(err, "Error creating chat")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create chat",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"chat":    chat,
		"message": first,
	})
}

// function to get a chat's full message history
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
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

	messages, err := h.chatService.GetMessages(c.Context(), owner, chatID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Chat not found",
			})
		}
		log.Println(err, "Error getting messages")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get messages",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"messages": messages,
	})
}

// function to delete a chat and all of its messages
func (h *ChatHandler) DeleteChat(c *fiber.Ctx) error {
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

	if err := h.chatService.DeleteChat(c.Context(), owner, chatID); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Chat not found",
			})
		}
		log.Println(err, "Error deleting chat")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete chat",
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Chat deleted successfully",
	})
}
