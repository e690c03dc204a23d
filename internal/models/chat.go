package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PlaceholderTitle is assigned at creation time; the background title job
// overwrites it later.
const PlaceholderTitle = "(New Chat)"

// Chat represents one conversation owned by a single user. UpdatedAt is
// bumped on every message append so list ordering by recency stays correct.
type Chat struct {
	UUID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"uuid"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title     string    `gorm:"not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`
}
