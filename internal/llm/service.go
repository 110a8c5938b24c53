package llm

import (
	"context"

	"github.com/kyleking/askdb/internal/schema"
)

// Task says what a prompt asks the model to produce
type Task string

const (
	// TaskSQL asks for exactly one SQL statement
	TaskSQL Task = "sql"
	// TaskNarrate asks for a short plain-language description of a result
	TaskNarrate Task = "narrate"
)

// Prompt is one request to the language model. System and User hold the
// rendered text sent to remote providers; the remaining fields carry the
// structured context it was rendered from, for completers that do not
// read free text.
type Prompt struct {
	Task   Task
	System string
	User   string

	Question string
	Schema   *schema.Descriptor
	Feedback string
}

// Completer is the language-model collaborator: free text in, free text out
type Completer interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// CompleterFunc adapts a function to Completer
type CompleterFunc func(ctx context.Context, prompt Prompt) (string, error)

// Complete calls f
func (f CompleterFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// Config represents a single provider's configuration
type Config struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	APIKey      string  `json:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Provider constants for different LLM providers
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGitHub    = "github"
	ProviderFallback  = "fallback"
)

// Model constants for common models
const (
	ModelGroqDefault  = "openai/gpt-oss-120b"
	ModelGPT4oMini    = "gpt-4o-mini"
	ModelClaudeHaiku  = "claude-3-5-haiku-latest"
	ModelLlama32      = "llama3.2"
	ModelGitHubModels = "openai/gpt-4.1-mini"
)

// providerDefaults holds the endpoint and model used when none is configured
var providerDefaults = map[string]struct {
	baseURL string
	model   string
	keyEnv  string
}{
	ProviderGroq:      {"https://api.groq.com/openai/v1", ModelGroqDefault, "GROQ_API_KEY"},
	ProviderOpenAI:    {"https://api.openai.com/v1", ModelGPT4oMini, "OPENAI_API_KEY"},
	ProviderAnthropic: {"https://api.anthropic.com/v1", ModelClaudeHaiku, "ANTHROPIC_API_KEY"},
	ProviderOllama:    {"http://localhost:11434", ModelLlama32, ""},
	ProviderGitHub:    {"https://models.github.ai/inference", ModelGitHubModels, "GITHUB_TOKEN"},
}
