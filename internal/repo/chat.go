package repo

import (
	"chatsync-backend/internal/models"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatRepo struct {
	db *gorm.DB
}

type ChatRepoInterface interface {
	CreateChatWithFirstMessage(chat *models.Chat, first *models.Message) error
	GetChatsByOwner(ownerID uuid.UUID, page int, pageSize int) ([]models.Chat, int64, error)
	BelongsTo(chatID, ownerID uuid.UUID) (bool, error)
	UpdateTitle(chatID uuid.UUID, title string) error
	DeleteChat(chatID uuid.UUID) error
}

func NewChatRepository(db *gorm.DB) ChatRepoInterface {
	return &ChatRepo{db: db}
}

// CreateChatWithFirstMessage creates the chat row and its first message as a
// single atomic unit: both exist afterwards or neither does.
func (r *ChatRepo) CreateChatWithFirstMessage(chat *models.Chat, first *models.Message) error {
	now := time.Now()
	if chat.UUID == uuid.Nil {
		chat.UUID = uuid.New()
	}
	if chat.Title == "" {
		chat.Title = models.PlaceholderTitle
	}
	chat.CreatedAt = now
	chat.UpdatedAt = now

	if first.UUID == uuid.Nil {
		first.UUID = models.NewMessageID()
	}
	first.ChatUUID = chat.UUID
	first.CreatedAt = now

	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		return tx.Create(first).Error
	})
}

// signature returns chats, totalCount, error
func (r *ChatRepo) GetChatsByOwner(ownerID uuid.UUID, page int, pageSize int) ([]models.Chat, int64, error) {
	var chats []models.Chat
	var total int64

	// sane defaults + cap
	if page < 1 {
		page = 1
	}
	const DefaultPageSize = 20
	const MaxPageSize = 100
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	offset := (page - 1) * pageSize

	base := r.db.Model(&models.Chat{}).Where("owner_id = ?", ownerID)

	// total count
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// most recently active first
	if err := base.Order("updated_at desc").
		Limit(pageSize).
		Offset(offset).
		Find(&chats).Error; err != nil {
		return nil, 0, err
	}

	return chats, total, nil
}

// BelongsTo reports whether the chat exists and is owned by the user. The
// two cases are indistinguishable on purpose so callers cannot leak chat
// existence to non-owners.
func (r *ChatRepo) BelongsTo(chatID, ownerID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&models.Chat{}).
		Where("uuid = ? AND owner_id = ?", chatID, ownerID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *ChatRepo) UpdateTitle(chatID uuid.UUID, title string) error {
	return r.db.Model(&models.Chat{}).
		Where("uuid = ?", chatID).
		Updates(map[string]interface{}{
			"title":      title,
			"updated_at": time.Now(),
		}).Error
}

// DeleteChat removes the chat and all of its messages in one transaction.
func (r *ChatRepo) DeleteChat(chatID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_uuid = ?", chatID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("uuid = ?", chatID).Delete(&models.Chat{}).Error
	})
}
