package llmHandlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"chatsync-backend/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// VertexAnthropicClient implements Client and StreamClient for Claude models
// served through Vertex AI rawPredict / streamRawPredict.
type VertexAnthropicClient struct {
	httpClient *http.Client
	projectID  string
	location   string
	modelID    string
	maxTokens  int
}

func NewVertexAnthropicClient(ctx context.Context) (*VertexAnthropicClient, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT_ID")
	location := os.Getenv("GOOGLE_CLOUD_VERTEXAI_LOCATION") // e.g. "us-east5"
	modelID := os.Getenv("VERTEX_ANTHROPIC_MODEL_ID")
	if modelID == "" {
		modelID = "claude-sonnet-4-5@20250929"
	}

	// Build authed HTTP client from base64 encoded SA JSON
	enc := os.Getenv("GCP_SERVICE_ACCOUNT_CREDENTIALS")
	if enc == "" {
		return nil, fmt.Errorf("GCP_SERVICE_ACCOUNT_CREDENTIALS not set")
	}
	saJSON, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("decode sa json: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, saJSON, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("CredentialsFromJSON: %w", err)
	}

	return &VertexAnthropicClient{
		httpClient: oauth2.NewClient(ctx, creds.TokenSource),
		projectID:  projectID,
		location:   location,
		modelID:    modelID,
		maxTokens:  4096,
	}, nil
}

type streamEvent struct {
	Type  string       `json:"type"` // message_start, content_block_start, content_block_delta, message_delta, message_stop
	Delta *streamDelta `json:"delta,omitempty"`
}

type streamDelta struct {
	Type       string `json:"type"` // text_delta, thinking_delta
	Text       string `json:"text,omitempty"`
	Thinking   string `json:"thinking,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
}

func (c *VertexAnthropicClient) endpoint(stream bool) string {
	verb := "rawPredict"
	if stream {
		verb = "streamRawPredict"
	}
	return fmt.Sprintf(
		"https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:%s",
		c.location, c.projectID, c.location, c.modelID, verb,
	)
}

func (c *VertexAnthropicClient) buildBody(systemMessage string, messages []Message, stream bool) ([]byte, error) {
	msgs := make([]map[string]interface{}, len(messages))
	for i, m := range messages {
		msgs[i] = map[string]interface{}{
			"role":    string(m.Role),
			"content": m.Content, // string is fine for simple text
		}
	}

	body := map[string]interface{}{
		"anthropic_version": "vertex-2023-10-16",
		"messages":          msgs,
		"max_tokens":        c.maxTokens,
		"stream":            stream,
	}
	if systemMessage != "" {
		body["system"] = systemMessage
	}
	return json.Marshal(body)
}

func (c *VertexAnthropicClient) Chat(ctx context.Context, systemMessage string, messages []Message) (string, error) {
	payload, err := c.buildBody(systemMessage, messages, false)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(false), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return "", fmt.Errorf("vertex error %d: %s", resp.StatusCode, buf.String())
	}

	var raw struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var texts []string
	for _, block := range raw.Content {
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n\n"), nil
}

// StreamChat streams Claude output over SSE and calls onDelta for each text
// delta. The scanner keeps reading after a failed onDelta so the terminal
// Reply is complete even when the consumer went away mid-stream.
func (c *VertexAnthropicClient) StreamChat(ctx context.Context, systemMessage string, messages []Message, onDelta func(chunk string) error) (*Reply, error) {
	payload, err := c.buildBody(systemMessage, messages, true)
	if err != nil {
		return nil, fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(true), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return nil, fmt.Errorf("vertex error %d: %s", resp.StatusCode, buf.String())
	}

	var (
		text      strings.Builder
		reasoning strings.Builder
		stop      string
		delivered = true
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev, ok := parseStreamLine(scanner.Text())
		if !ok {
			continue
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta == nil {
				continue
			}
			switch ev.Delta.Type {
			case "text_delta":
				text.WriteString(ev.Delta.Text)
				if delivered {
					if err := onDelta(ev.Delta.Text); err != nil {
						delivered = false
					}
				}
			case "thinking_delta":
				reasoning.WriteString(ev.Delta.Thinking)
			}
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stop = ev.Delta.StopReason
			}
		case "message_stop":
			// terminal event; loop ends when the body closes
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	reply := &Reply{Text: text.String(), StopReason: stop}
	if reasoning.Len() > 0 {
		reply.Parts = append(reply.Parts, models.Part{Type: models.PartTypeReasoning, Text: reasoning.String()})
	}
	if text.Len() > 0 {
		reply.Parts = append(reply.Parts, models.Part{Type: models.PartTypeText, Text: text.String()})
	}
	return reply, nil
}

// parseStreamLine extracts one SSE event from a "data: {...}" line. Malformed
// chunks are skipped, not fatal.
func parseStreamLine(line string) (*streamEvent, bool) {
	if !strings.HasPrefix(line, "data: ") {
		return nil, false
	}
	data := strings.TrimPrefix(line, "data: ")
	if data == "" || data == "[DONE]" {
		return nil, false
	}
	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, false
	}
	return &ev, true
}
