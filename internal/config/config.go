// Package config provides configuration management for tai.
// Effective settings are produced by merging three independent key-value
// sources (environment variables, a project-local file, and the user-global
// file) by precedence, then validating the merged result.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Recognized settings keys. Every key listed here has a documented default;
// keys outside this set are preserved verbatim but never interpreted.
const (
	KeyModel           = "model"
	KeyProvider        = "provider"
	KeyBaseURL         = "base_url"
	KeyTemperature     = "temperature"
	KeyMaxTokens       = "max_tokens"
	KeyAnthropicAPIKey = "anthropic_api_key"
	KeyOpenAIAPIKey    = "openai_api_key"
	KeyGlobalContexts  = "global_contexts"
	KeyHistoryLimit    = "history_limit"
	KeyMaxSteps        = "max_steps"
	KeyConfirmTimeout  = "confirm_timeout_seconds"
	KeyLogLevel        = "log_level"
)

// Supported model providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Settings is the validated, effective configuration for one invocation.
// It is rebuilt fresh on every run and never mutated afterwards.
type Settings struct {
	Model           string
	Provider        string
	BaseURL         string
	Temperature     float64
	MaxTokens       int
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GlobalContexts  []string
	HistoryLimit    int
	MaxSteps        int
	ConfirmTimeout  time.Duration

	LogLevel string

	// Extra holds unrecognized keys from the merged sources. They are
	// carried through saves but never interpreted.
	Extra map[string]string
}

// Defaults returns the documented default value for every recognized key.
func Defaults() map[string]string {
	return map[string]string{
		KeyModel:           "claude-sonnet-4-20250514",
		KeyProvider:        ProviderAnthropic,
		KeyBaseURL:         "",
		KeyTemperature:     "0.2",
		KeyMaxTokens:       "1024",
		KeyAnthropicAPIKey: "",
		KeyOpenAIAPIKey:    "",
		KeyGlobalContexts:  "",
		KeyHistoryLimit:    "50",
		KeyMaxSteps:        "10",
		KeyConfirmTimeout:  "0",
		KeyLogLevel:        "info",
	}
}

// IsKnownKey reports whether key is one of the recognized settings keys.
func IsKnownKey(key string) bool {
	_, ok := Defaults()[key]
	return ok
}

// KnownKeys returns the recognized keys in stable order, for display.
func KnownKeys() []string {
	defaults := Defaults()
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ValidationError reports a value that failed type validation for a known
// key. Unknown keys never produce a ValidationError.
type ValidationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for config key %q: %s", e.Value, e.Key, e.Reason)
}

// Materialize validates a merged key-value mapping and produces Settings.
// Values for recognized keys must parse and pass range checks; anything
// else lands in Extra untouched.
func Materialize(values map[string]string) (*Settings, error) {
	merged := Merge(Defaults(), values)

	settings := &Settings{
		Model:           merged[KeyModel],
		BaseURL:         merged[KeyBaseURL],
		AnthropicAPIKey: merged[KeyAnthropicAPIKey],
		OpenAIAPIKey:    merged[KeyOpenAIAPIKey],
		LogLevel:        merged[KeyLogLevel],
		Extra:           map[string]string{},
	}

	provider := merged[KeyProvider]
	switch provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderOllama:
		settings.Provider = provider
	default:
		return nil, &ValidationError{
			Key:    KeyProvider,
			Value:  provider,
			Reason: "must be one of anthropic, openai, ollama",
		}
	}

	temperature, err := strconv.ParseFloat(merged[KeyTemperature], 64)
	if err != nil {
		return nil, &ValidationError{Key: KeyTemperature, Value: merged[KeyTemperature], Reason: "not a number"}
	}
	if temperature < 0.0 || temperature > 2.0 {
		return nil, &ValidationError{Key: KeyTemperature, Value: merged[KeyTemperature], Reason: "must be within [0.0, 2.0]"}
	}
	settings.Temperature = temperature

	settings.MaxTokens, err = parsePositiveInt(KeyMaxTokens, merged[KeyMaxTokens])
	if err != nil {
		return nil, err
	}
	settings.HistoryLimit, err = parsePositiveInt(KeyHistoryLimit, merged[KeyHistoryLimit])
	if err != nil {
		return nil, err
	}
	settings.MaxSteps, err = parsePositiveInt(KeyMaxSteps, merged[KeyMaxSteps])
	if err != nil {
		return nil, err
	}

	confirmSeconds, err := strconv.Atoi(merged[KeyConfirmTimeout])
	if err != nil || confirmSeconds < 0 {
		return nil, &ValidationError{
			Key:    KeyConfirmTimeout,
			Value:  merged[KeyConfirmTimeout],
			Reason: "must be a non-negative integer",
		}
	}
	settings.ConfirmTimeout = time.Duration(confirmSeconds) * time.Second

	settings.GlobalContexts = SplitContextList(merged[KeyGlobalContexts])

	for key, value := range merged {
		if !IsKnownKey(key) {
			settings.Extra[key] = value
		}
	}

	return settings, nil
}

func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Key: key, Value: value, Reason: "must be a positive integer"}
	}
	return n, nil
}

// SplitContextList splits a comma-separated context name list, trimming
// whitespace and dropping empty entries.
func SplitContextList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// MaskValue masks credential values for display. Non-sensitive values pass
// through unchanged.
func MaskValue(key, value string) string {
	if value == "" {
		return "<not set>"
	}
	if key == KeyAnthropicAPIKey || key == KeyOpenAIAPIKey {
		return "***"
	}
	return value
}
