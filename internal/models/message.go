package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PartType string

const (
	PartTypeText           PartType = "text"
	PartTypeReasoning      PartType = "reasoning"
	PartTypeToolInvocation PartType = "tool_invocation"
	PartTypeSource         PartType = "source"
)

// Part is one structured block of an assistant message.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ToolName string   `json:"tool_name,omitempty"`
	ToolArgs string   `json:"tool_args,omitempty"`
	URL      string   `json:"url,omitempty"`
	Title    string   `json:"title,omitempty"`
}

// Attachment is a file reference carried by a user message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	URL         string `json:"url"`
}

// Message is one turn of a chat. UUID is a v7 (time-ordered) so that
// ordering by primary key equals append order; CreatedAt is kept for display.
type Message struct {
	UUID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"uuid"`
	ChatUUID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"chat_uuid"`
	Role        Role           `gorm:"not null" json:"role"`
	Content     string         `gorm:"type:text" json:"content"`
	Parts       datatypes.JSON `json:"parts,omitempty"`
	Attachments datatypes.JSON `json:"attachments,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// NewMessageID allocates a time-ordered message id. Falls back to a random
// UUID if the clock source fails, which keeps inserts working at the cost of
// ordering for that one id.
func NewMessageID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

func PartsJSON(parts []Part) datatypes.JSON {
	if len(parts) == 0 {
		return nil
	}
	bytes, err := json.Marshal(parts)
	if err != nil {
		return nil
	}
	return datatypes.JSON(bytes)
}

func (m *Message) DecodeParts() ([]Part, error) {
	if len(m.Parts) == 0 {
		return nil, nil
	}
	var parts []Part
	if err := json.Unmarshal(m.Parts, &parts); err != nil {
		return nil, err
	}
	return parts, nil
}

func AttachmentsJSON(attachments []Attachment) datatypes.JSON {
	if len(attachments) == 0 {
		return nil
	}
	bytes, err := json.Marshal(attachments)
	if err != nil {
		return nil
	}
	return datatypes.JSON(bytes)
}

func (m *Message) DecodeAttachments() ([]Attachment, error) {
	if len(m.Attachments) == 0 {
		return nil, nil
	}
	var attachments []Attachment
	if err := json.Unmarshal(m.Attachments, &attachments); err != nil {
		return nil, err
	}
	return attachments, nil
}
