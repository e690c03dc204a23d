package llmHandlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"chatsync-backend/internal/models"

	"google.golang.org/genai"
)

// GenaiGeminiClient implements Client and StreamClient for Gemini via the
// Google AI API
type GenaiGeminiClient struct {
	client  *genai.Client
	modelID string

	Temperature float32
	MaxTokens   int32
}

func NewGenaiGeminiClient(ctx context.Context) (*GenaiGeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	modelID := os.Getenv("GEMINI_MODEL_ID")

	if apiKey == "" || modelID == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY and GEMINI_MODEL_ID must be set")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})

	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &GenaiGeminiClient{
		client:      client,
		modelID:     modelID,
		Temperature: 0.2,
		MaxTokens:   4096,
	}, nil
}

// convertMessagesToGenaiContent converts our Message format to genai.Content
func convertMessagesToGenaiContent(messages []Message) (string, []*genai.Content, error) {
	systemParts := []string{}
	contents := []*genai.Content{}

	for _, m := range messages {
		role := strings.ToLower(strings.TrimSpace(string(m.Role)))

		// Gather system parts separately
		if role == "system" {
			switch c := m.Content.(type) {
			case string:
				systemParts = append(systemParts, c)
			default:
				b, _ := json.Marshal(c)
				systemParts = append(systemParts, string(b))
			}
			continue
		}

		// Convert content to text
		var text string
		switch c := m.Content.(type) {
		case string:
			text = c
		default:
			b, _ := json.Marshal(c)
			text = string(b)
		}

		// Map role: "assistant" -> "model", "user" -> "user"
		roleOut := "user"
		if role == "assistant" || role == "model" {
			roleOut = "model"
		}

		textPart := &genai.Part{Text: text}
		contents = append(contents, &genai.Content{
			Role:  roleOut,
			Parts: []*genai.Part{textPart},
		})
	}

	systemText := strings.Join(systemParts, "\n")
	return systemText, contents, nil
}

func (v *GenaiGeminiClient) generateConfig(systemMessage string) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		Temperature:     &v.Temperature,
		MaxOutputTokens: v.MaxTokens,
	}
	if systemMessage != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemMessage}},
		}
	}
	return genConfig
}

func (v *GenaiGeminiClient) Chat(ctx context.Context, systemMessage string, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	_, contents, err := convertMessagesToGenaiContent(messages)
	if err != nil {
		return "", fmt.Errorf("convert messages: %w", err)
	}

	resp, err := v.client.Models.GenerateContent(ctx, v.modelID, contents, v.generateConfig(systemMessage))
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					sb.WriteString(part.Text)
				}
			}
		}
	}

	return sb.String(), nil
}

// StreamChat streams text deltas via onDelta and assembles the terminal
// Reply. An onDelta error means the consumer stopped listening; the stream
// keeps draining so the Reply still carries everything generated.
func (v *GenaiGeminiClient) StreamChat(ctx context.Context, systemMessage string, messages []Message, onDelta func(chunk string) error) (*Reply, error) {
	_, contents, err := convertMessagesToGenaiContent(messages)
	if err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}

	var (
		text      strings.Builder
		reasoning strings.Builder
		sources   []models.Part
		stop      string
		delivered = true
	)

	for resp, err := range v.client.Models.GenerateContentStream(ctx, v.modelID, contents, v.generateConfig(systemMessage)) {
		if err != nil {
			return nil, fmt.Errorf("gemini stream: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.FinishReason != "" {
				stop = string(cand.FinishReason)
			}
			if cand.GroundingMetadata != nil {
				for _, chunk := range cand.GroundingMetadata.GroundingChunks {
					if chunk.Web != nil {
						sources = append(sources, models.Part{
							Type:  models.PartTypeSource,
							URL:   chunk.Web.URI,
							Title: chunk.Web.Title,
						})
					}
				}
			}
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				if part.Thought {
					reasoning.WriteString(part.Text)
					continue
				}
				text.WriteString(part.Text)
				if delivered {
					if err := onDelta(part.Text); err != nil {
						// consumer gone, keep draining the stream
						delivered = false
					}
				}
			}
		}
	}

	reply := &Reply{Text: text.String(), StopReason: stop}
	if reasoning.Len() > 0 {
		reply.Parts = append(reply.Parts, models.Part{Type: models.PartTypeReasoning, Text: reasoning.String()})
	}
	if text.Len() > 0 {
		reply.Parts = append(reply.Parts, models.Part{Type: models.PartTypeText, Text: text.String()})
	}
	reply.Parts = append(reply.Parts, sources...)
	return reply, nil
}
