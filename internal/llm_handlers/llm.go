package llmHandlers

import (
	"chatsync-backend/internal/models"
	"context"
)

// Message represents a message in the conversation
type Message struct {
	Role    models.Role
	Content interface{} // can be string or []map[string]interface{} for multimodal
}

// Reply is the terminal event of a response: the final structured content,
// valid even when the client-visible stream was aborted part way.
type Reply struct {
	Text       string
	Parts      []models.Part
	StopReason string
}

type Client interface {
	Chat(ctx context.Context, systemMessage string, messages []Message) (string, error)
}

// StreamClient delivers incremental text deltas through onDelta and returns
// the terminal Reply. Implementations must keep buffering server-side even
// when onDelta reports that the consumer is gone, so the Reply stays complete.
type StreamClient interface {
	StreamChat(ctx context.Context, systemMessage string, messages []Message, onDelta func(chunk string) error) (*Reply, error)
}
