package repo

import (
	llmHandlers "chatsync-backend/internal/llm_handlers"
	"chatsync-backend/internal/models"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepo struct {
	db *gorm.DB
}

type MessageRepoInterface interface {
	LoadMessages(chatID uuid.UUID) ([]models.Message, error)
	AppendMessages(chatID uuid.UUID, messages []models.Message) error
	GetChatHistory(chatID uuid.UUID, size int) ([]llmHandlers.Message, error)
}

func NewMessageRepository(db *gorm.DB) MessageRepoInterface {
	return &MessageRepo{db: db}
}

// LoadMessages returns the chat's full message sequence in append order.
// Message ids are UUIDv7, so ordering by primary key is insertion order.
func (r *MessageRepo) LoadMessages(chatID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.Where("chat_uuid = ?", chatID).
		Order("uuid ASC").
		Find(&messages).Error
	return messages, err
}

// AppendMessages inserts the new rows and bumps the chat's updated_at in one
// transaction so list ordering by recency stays correct.
func (r *MessageRepo) AppendMessages(chatID uuid.UUID, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	now := time.Now()
	for i := range messages {
		if messages[i].UUID == uuid.Nil {
			messages[i].UUID = models.NewMessageID()
		}
		messages[i].ChatUUID = chatID
		if messages[i].CreatedAt.IsZero() {
			messages[i].CreatedAt = now
		}
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&messages).Error; err != nil {
			return err
		}
		return tx.Model(&models.Chat{}).
			Where("uuid = ?", chatID).
			Update("updated_at", now).Error
	})
}

// GetChatHistory loads the most recent messages in a shape the LLM clients
// accept. Only role and content matter for prompting.
func (r *MessageRepo) GetChatHistory(chatID uuid.UUID, size int) ([]llmHandlers.Message, error) {
	if size <= 0 {
		size = 50
	}

	var messages []models.Message
	err := r.db.Where("chat_uuid = ?", chatID).
		Select("uuid", "role", "content").
		Order("uuid DESC").
		Limit(size).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// reverse back into chronological order
	history := make([]llmHandlers.Message, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		history = append(history, llmHandlers.Message{
			Role:    messages[i].Role,
			Content: messages[i].Content,
		})
	}
	return history, nil
}
