package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/taicli/tai/internal/config"
)

// defaultOllamaBaseURL is the OpenAI-compatible endpoint of a local Ollama.
const defaultOllamaBaseURL = "http://localhost:11434/v1"

// OpenAIGateway talks to OpenAI or any OpenAI-compatible endpoint
// (Ollama, LM Studio) selected via base_url.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

// NewOpenAIGateway creates a gateway backed by the go-openai client.
func NewOpenAIGateway(settings *config.Settings, logger *zap.Logger) *OpenAIGateway {
	apiKey := settings.OpenAIAPIKey
	baseURL := settings.BaseURL

	if settings.Provider == config.ProviderOllama {
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		if apiKey == "" {
			// Ollama ignores the key but the client requires one.
			apiKey = "ollama"
		}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       settings.Model,
		maxTokens:   settings.MaxTokens,
		temperature: settings.Temperature,
		logger:      logger,
	}
}

// Complete sends the prompt as a chat completion and returns the first
// choice's content.
func (g *OpenAIGateway) Complete(ctx context.Context, request Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.Messages)+1)
	if request.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.System,
		})
	}
	for _, msg := range request.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: float32(g.temperature),
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &GatewayError{Kind: ErrMalformed, Err: fmt.Errorf("no choices in response")}
	}

	g.logger.Debug("openai completion",
		zap.String("model", resp.Model),
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &Response{Text: resp.Choices[0].Message.Content}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return &GatewayError{Kind: ErrAuth, Err: err}
		}
		return &GatewayError{Kind: ErrNetwork, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &GatewayError{Kind: ErrNetwork, Err: err}
	}

	return &GatewayError{Kind: ErrNetwork, Err: err}
}
