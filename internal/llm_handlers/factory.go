package llmHandlers

import (
	"context"
	"fmt"
	"os"
)

type Provider string

const (
	ProviderGemini          Provider = "gemini"
	ProviderVertexAnthropic Provider = "vertex_anthropic"
	ProviderLangChain       Provider = "langchain" // openai / groq / llama etc.
)

// NewStreamClient builds a streaming client for the requested mode flag.
// An empty mode falls back to LLM_PROVIDER, then to gemini.
func NewStreamClient(ctx context.Context, mode string) (StreamClient, error) {
	if mode == "" {
		mode = os.Getenv("LLM_PROVIDER")
	}
	switch Provider(mode) {
	case ProviderGemini, "":
		client, err := NewGenaiGeminiClient(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderVertexAnthropic:
		client, err := NewVertexAnthropicClient(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderLangChain:
		client, err := newLangChainFromEnv(os.Getenv("OPENAI_MODEL_NAME"))
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider %s", mode)
	}
}

// NewTitleClient builds the best-effort client used for title generation.
// TITLE_PROVIDER selects the backend, so any provider's one-shot Chat can
// serve titles; the default is the OpenAI-compatible path with
// TITLE_MODEL_NAME. Returns a nil interface on failure, never a wrapped
// nil pointer.
func NewTitleClient(ctx context.Context) (Client, error) {
	switch Provider(os.Getenv("TITLE_PROVIDER")) {
	case ProviderGemini:
		client, err := NewGenaiGeminiClient(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderVertexAnthropic:
		client, err := NewVertexAnthropicClient(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		client, err := newLangChainFromEnv(os.Getenv("TITLE_MODEL_NAME"))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func newLangChainFromEnv(model string) (*LangChainClient, error) {
	return NewLangChainClient(LangChainConfig{
		Model:   model,
		BaseURL: os.Getenv("OPENAI_BASE_URL"),
		APIKey:  os.Getenv("OPENAI_API_KEY"),
	})
}
