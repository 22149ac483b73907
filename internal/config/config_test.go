package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaterializeDefaults(t *testing.T) {
	settings, err := Materialize(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "claude-sonnet-4-20250514", settings.Model)
	assert.Equal(t, ProviderAnthropic, settings.Provider)
	assert.Equal(t, "", settings.BaseURL)
	assert.InDelta(t, 0.2, settings.Temperature, 1e-9)
	assert.Equal(t, 1024, settings.MaxTokens)
	assert.Equal(t, 50, settings.HistoryLimit)
	assert.Equal(t, 10, settings.MaxSteps)
	assert.Equal(t, time.Duration(0), settings.ConfirmTimeout)
	assert.Equal(t, "info", settings.LogLevel)
	assert.Empty(t, settings.GlobalContexts)
}

func TestMaterializeOverrides(t *testing.T) {
	settings, err := Materialize(map[string]string{
		KeyModel:          "gpt-4o",
		KeyProvider:       ProviderOpenAI,
		KeyTemperature:    "1.5",
		KeyMaxTokens:      "2048",
		KeyGlobalContexts: "work, personal",
		KeyConfirmTimeout: "30",
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", settings.Model)
	assert.Equal(t, ProviderOpenAI, settings.Provider)
	assert.InDelta(t, 1.5, settings.Temperature, 1e-9)
	assert.Equal(t, 2048, settings.MaxTokens)
	assert.Equal(t, []string{"work", "personal"}, settings.GlobalContexts)
	assert.Equal(t, 30*time.Second, settings.ConfirmTimeout)
}

func TestMaterializeValidation(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		key    string
	}{
		{
			name:   "unknown provider",
			values: map[string]string{KeyProvider: "bedrock"},
			key:    KeyProvider,
		},
		{
			name:   "temperature not a number",
			values: map[string]string{KeyTemperature: "warm"},
			key:    KeyTemperature,
		},
		{
			name:   "temperature out of range",
			values: map[string]string{KeyTemperature: "2.5"},
			key:    KeyTemperature,
		},
		{
			name:   "negative temperature",
			values: map[string]string{KeyTemperature: "-0.1"},
			key:    KeyTemperature,
		},
		{
			name:   "zero max tokens",
			values: map[string]string{KeyMaxTokens: "0"},
			key:    KeyMaxTokens,
		},
		{
			name:   "non-numeric history limit",
			values: map[string]string{KeyHistoryLimit: "many"},
			key:    KeyHistoryLimit,
		},
		{
			name:   "negative max steps",
			values: map[string]string{KeyMaxSteps: "-1"},
			key:    KeyMaxSteps,
		},
		{
			name:   "negative confirm timeout",
			values: map[string]string{KeyConfirmTimeout: "-5"},
			key:    KeyConfirmTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings, err := Materialize(tt.values)
			assert.Nil(t, settings)

			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.key, validationErr.Key)
		})
	}
}

func TestMaterializeKeepsUnknownKeys(t *testing.T) {
	settings, err := Materialize(map[string]string{"future_key": "future_value"})
	require.NoError(t, err)
	assert.Equal(t, "future_value", settings.Extra["future_key"])
}

func TestSplitContextList(t *testing.T) {
	assert.Nil(t, SplitContextList(""))
	assert.Nil(t, SplitContextList("   "))
	assert.Equal(t, []string{"work"}, SplitContextList("work"))
	assert.Equal(t, []string{"work", "personal"}, SplitContextList("work, personal"))
	assert.Equal(t, []string{"a", "b"}, SplitContextList(",a,,b,"))
}

func TestMaskValue(t *testing.T) {
	assert.Equal(t, "<not set>", MaskValue(KeyModel, ""))
	assert.Equal(t, "gpt-4o", MaskValue(KeyModel, "gpt-4o"))
	assert.Equal(t, "***", MaskValue(KeyAnthropicAPIKey, "sk-ant-secret"))
	assert.Equal(t, "***", MaskValue(KeyOpenAIAPIKey, "sk-secret"))
	assert.Equal(t, "<not set>", MaskValue(KeyAnthropicAPIKey, ""))
}

func TestKnownKeys(t *testing.T) {
	keys := KnownKeys()
	assert.Contains(t, keys, KeyModel)
	assert.Contains(t, keys, KeyProvider)
	assert.True(t, IsKnownKey(KeyTemperature))
	assert.False(t, IsKnownKey("no_such_key"))
}
