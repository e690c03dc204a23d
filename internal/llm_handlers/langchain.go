package llmHandlers

import (
	"context"
	"fmt"
	"strings"

	"chatsync-backend/internal/models"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type LangChainClient struct {
	llm llms.Model
}

type LangChainConfig struct {
	Model   string // e.g. "gpt-4.1", "llama-3.1-70b-versatile"
	BaseURL string // optional: for Groq or other OpenAI-compatible APIs
	APIKey  string // if not set, it’ll fall back to env
}

func NewLangChainClient(cfg LangChainConfig) (*LangChainClient, error) {
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain openai client: %w", err)
	}

	return &LangChainClient{llm: llm}, nil
}

func (c *LangChainClient) buildContents(systemMessage string, messages []Message) ([]llms.MessageContent, error) {
	msgContents := make([]llms.MessageContent, 0, len(messages)+1)
	if systemMessage != "" {
		msgContents = append(msgContents, llms.TextParts(llms.ChatMessageTypeSystem, systemMessage))
	}
	for _, m := range messages {
		var msgType llms.ChatMessageType
		switch m.Role {
		case models.RoleSystem:
			msgType = llms.ChatMessageTypeSystem
		case models.RoleUser:
			msgType = llms.ChatMessageTypeHuman
		case models.RoleAssistant:
			msgType = llms.ChatMessageTypeAI
		default:
			msgType = llms.ChatMessageTypeHuman
		}

		// Handle content - can be string or []map[string]interface{} (for images)
		switch content := m.Content.(type) {
		case string:
			msgContents = append(msgContents, llms.TextParts(msgType, content))

		case []map[string]interface{}:
			// Multi-part content (text + images)
			parts := []llms.ContentPart{}

			for _, block := range content {
				blockType, _ := block["type"].(string)

				switch blockType {
				case "text":
					if text, ok := block["text"].(string); ok {
						parts = append(parts, llms.TextPart(text))
					}

				case "image":
					if source, ok := block["source"].(map[string]interface{}); ok {
						mediaType, _ := source["media_type"].(string)
						dataStr, _ := source["data"].(string)

						// OpenAI-compatible APIs expect image_url format with data URI
						dataURI := fmt.Sprintf("data:%s;base64,%s", mediaType, dataStr)
						parts = append(parts, llms.ImageURLPart(dataURI))
					}
				}
			}

			if len(parts) > 0 {
				msgContents = append(msgContents, llms.MessageContent{
					Role:  msgType,
					Parts: parts,
				})
			}

		default:
			return nil, fmt.Errorf("unsupported message content type for langchain: %T", m.Content)
		}
	}
	return msgContents, nil
}

func (c *LangChainClient) Chat(ctx context.Context, systemMessage string, messages []Message) (string, error) {
	msgContents, err := c.buildContents(systemMessage, messages)
	if err != nil {
		return "", err
	}

	resp, err := c.llm.GenerateContent(ctx, msgContents)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from LLM")
	}

	return resp.Choices[0].Content, nil
}

// StreamChat streams via langchaingo's streaming callback.
func (c *LangChainClient) StreamChat(ctx context.Context, systemMessage string, messages []Message, onDelta func(chunk string) error) (*Reply, error) {
	msgContents, err := c.buildContents(systemMessage, messages)
	if err != nil {
		return nil, err
	}

	var (
		text      strings.Builder
		delivered = true
	)
	resp, err := c.llm.GenerateContent(ctx, msgContents, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		text.Write(chunk)
		if delivered {
			if err := onDelta(string(chunk)); err != nil {
				delivered = false
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from LLM")
	}

	full := resp.Choices[0].Content
	if full == "" {
		full = text.String()
	}
	reply := &Reply{Text: full, StopReason: resp.Choices[0].StopReason}
	if full != "" {
		reply.Parts = append(reply.Parts, models.Part{Type: models.PartTypeText, Text: full})
	}
	return reply, nil
}
