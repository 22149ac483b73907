// Package llm sends assembled prompts to a language-model provider and
// returns its response. The gateway is a pure request→response capability:
// it holds no conversation state and makes no retry decisions.
package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/taicli/tai/internal/config"
)

// Message is one prompt message in provider-neutral form.
type Message struct {
	Role    string
	Content string
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Request is an assembled prompt: the system context plus the ordered
// conversation messages ending with the new utterance.
type Request struct {
	System   string
	Messages []Message
}

// Response is the provider's reply.
type Response struct {
	Text string
}

// GatewayError kinds.
const (
	ErrAuth      = "auth"
	ErrNetwork   = "network"
	ErrMalformed = "malformed"
)

// GatewayError classifies a failed provider call. The task loop halts the
// current step on any gateway error; the kind decides how it is reported.
type GatewayError struct {
	Kind string
	Err  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("model gateway %s error: %v", e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Gateway sends one assembled prompt and returns the model's response.
type Gateway interface {
	Complete(ctx context.Context, request Request) (*Response, error)
}

// NewGateway builds the gateway for the configured provider.
func NewGateway(settings *config.Settings, logger *zap.Logger) (Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch settings.Provider {
	case config.ProviderAnthropic:
		if settings.AnthropicAPIKey == "" {
			return nil, &GatewayError{
				Kind: ErrAuth,
				Err:  fmt.Errorf("anthropic_api_key is not set (config key or ANTHROPIC_API_KEY)"),
			}
		}
		return NewAnthropicGateway(settings, logger), nil
	case config.ProviderOpenAI:
		if settings.OpenAIAPIKey == "" {
			return nil, &GatewayError{
				Kind: ErrAuth,
				Err:  fmt.Errorf("openai_api_key is not set (config key or OPENAI_API_KEY)"),
			}
		}
		return NewOpenAIGateway(settings, logger), nil
	case config.ProviderOllama:
		return NewOpenAIGateway(settings, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", settings.Provider)
	}
}
