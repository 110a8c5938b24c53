package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
)

func testSettings() config.LLMConfig {
	return config.DefaultConfig().LLM
}

func TestManagerConfigFromSettings(t *testing.T) {
	cfg := testSettings()
	cfg.RetryDelay = "5ms"
	cfg.Timeout = "3s"
	cfg.RetryAttempts = 4
	cfg.FallbackProviders = []string{ProviderOpenAI}

	mc, err := ManagerConfigFromSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, ProviderGroq, mc.DefaultProvider)
	assert.Equal(t, []string{ProviderOpenAI}, mc.FallbackProviders)
	assert.Equal(t, 4, mc.RetryAttempts)
	assert.Equal(t, 5*time.Millisecond, mc.RetryDelay)
	assert.Equal(t, 3*time.Second, mc.Timeout)

	cfg.Timeout = "whenever"
	_, err = ManagerConfigFromSettings(cfg)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		mutate    func(*config.LLMConfig)
		providers []string
		wantErr   bool
	}{
		{
			name:      "default provider with key from environment",
			env:       map[string]string{"GROQ_API_KEY": "g"},
			providers: []string{ProviderGroq},
		},
		{
			name:      "explicit key",
			mutate:    func(c *config.LLMConfig) { c.APIKey = "explicit" },
			providers: []string{ProviderGroq},
		},
		{
			name: "fallback providers with keys",
			env:  map[string]string{"GROQ_API_KEY": "g", "ANTHROPIC_API_KEY": "a"},
			mutate: func(c *config.LLMConfig) {
				c.FallbackProviders = []string{ProviderAnthropic, ProviderOpenAI, ProviderOllama}
			},
			providers: []string{ProviderGroq, ProviderAnthropic, ProviderOllama},
		},
		{
			name:      "missing key leaves only the rules",
			providers: nil,
		},
		{
			name:      "rules only",
			mutate:    func(c *config.LLMConfig) { c.Provider = ProviderFallback },
			providers: nil,
		},
		{
			name:    "missing key without fallback",
			mutate:  func(c *config.LLMConfig) { c.EnableFallback = false },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
				t.Setenv(key, "")
			}

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := testSettings()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			manager, err := NewFromConfig(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.providers, manager.Providers())
		})
	}
}

func TestNewFromConfig_RulesAnswerWithoutProviders(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")

	manager, err := NewFromConfig(testSettings())
	require.NoError(t, err)

	text, err := manager.Complete(context.Background(), Prompt{Task: TaskSQL, Question: "How many orders?", Schema: demoSchema()})
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) AS count FROM orders;", text)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")

	assert.Equal(t, "explicit", ResolveAPIKey(ProviderOpenAI, "explicit"))
	assert.Equal(t, "from-env", ResolveAPIKey(ProviderOpenAI, ""))
	assert.Empty(t, ResolveAPIKey(ProviderOllama, ""))
	assert.Empty(t, ResolveAPIKey("mystery", ""))
}
