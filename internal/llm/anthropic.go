package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taicli/tai/internal/config"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
)

// AnthropicGateway talks to the Anthropic Messages API directly.
type AnthropicGateway struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

// NewAnthropicGateway creates a gateway for the Anthropic Messages API.
func NewAnthropicGateway(settings *config.Settings, logger *zap.Logger) *AnthropicGateway {
	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicGateway{
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      settings.AnthropicAPIKey,
		model:       settings.Model,
		maxTokens:   settings.MaxTokens,
		temperature: settings.Temperature,
		logger:      logger,
	}
}

// Complete sends the prompt and returns the concatenated text content of
// the reply.
func (g *AnthropicGateway) Complete(ctx context.Context, request Request) (*Response, error) {
	apiReq := anthropicMessagesRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: &g.temperature,
		System:      request.System,
		Messages:    make([]anthropicMessage, len(request.Messages)),
	}
	for i, msg := range request.Messages {
		apiReq.Messages[i] = anthropicMessage{Role: msg.Role, Content: msg.Content}
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &GatewayError{Kind: ErrMalformed, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &GatewayError{Kind: ErrNetwork, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GatewayError{Kind: ErrNetwork, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Kind: ErrNetwork, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &GatewayError{
			Kind: ErrAuth,
			Err:  fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &GatewayError{
			Kind: ErrNetwork,
			Err:  fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var apiResp anthropicMessagesResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &GatewayError{Kind: ErrMalformed, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, &GatewayError{Kind: ErrMalformed, Err: fmt.Errorf("no text content in response")}
	}

	g.logger.Debug("anthropic completion",
		zap.String("model", apiResp.Model),
		zap.String("stop_reason", apiResp.StopReason),
		zap.Int("input_tokens", apiResp.Usage.InputTokens),
		zap.Int("output_tokens", apiResp.Usage.OutputTokens),
	)

	return &Response{Text: text.String()}, nil
}

// Anthropic-specific wire types.

type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicMessagesResponse struct {
	ID         string                  `json:"id"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Content    []anthropicContentBlock `json:"content"`
	Usage      anthropicUsage          `json:"usage"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
