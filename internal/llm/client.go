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

	"github.com/kyleking/askdb/internal/errors"
)

const defaultHTTPTimeout = 60 * time.Second

// Client is a Completer backed by one remote provider
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a client and validates its configuration
func NewClient(config Config) (*Client, error) {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}

	if err := c.Configure(config); err != nil {
		return nil, err
	}

	return c, nil
}

// WithHTTPClient replaces the transport, mostly for tests
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Configure updates the client configuration, filling provider defaults
func (c *Client) Configure(config Config) error {
	if config.Provider == "" {
		return errors.NewConfigError("provider is required", "llm.provider")
	}

	defaults, ok := providerDefaults[config.Provider]
	if !ok {
		return errors.NewConfigError(fmt.Sprintf("unsupported provider: %s", config.Provider), "llm.provider")
	}

	if config.BaseURL == "" {
		config.BaseURL = defaults.baseURL
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Model == "" {
		config.Model = defaults.model
	}

	if config.APIKey == "" && config.Provider != ProviderOllama {
		return errors.NewConfigError(fmt.Sprintf("API key is required for %s provider", config.Provider), "llm.api_key").
			WithSuggestion(fmt.Sprintf("Set %s or ASKDB_LLM_API_KEY", keyHint(config.Provider)))
	}

	if config.MaxTokens <= 0 {
		config.MaxTokens = 1000
	}

	c.config = config

	return nil
}

// Provider returns the configured provider name
func (c *Client) Provider() string {
	return c.config.Provider
}

// Complete sends the prompt and returns the model's raw text
func (c *Client) Complete(ctx context.Context, prompt Prompt) (string, error) {
	var (
		text string
		err  error
	)

	switch c.config.Provider {
	case ProviderGroq, ProviderOpenAI, ProviderGitHub:
		text, err = c.completeOpenAI(ctx, prompt)
	case ProviderAnthropic:
		text, err = c.completeAnthropic(ctx, prompt)
	case ProviderOllama:
		text, err = c.completeOllama(ctx, prompt)
	default:
		return "", errors.Newf(errors.ErrTypeConfig, "unsupported provider: %s", c.config.Provider)
	}

	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "model request abandoned")
		}

		return "", errors.Wrapf(err, errors.ErrTypeLLM, "%s request failed", c.config.Provider)
	}

	return text, nil
}

// OpenAI-compatible chat completion structures, shared by Groq and GitHub Models
type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message openAIMessage `json:"message"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) completeOpenAI(ctx context.Context, prompt Prompt) (string, error) {
	reqBody := openAIRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	if prompt.System != "" {
		reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "system", Content: prompt.System})
	}

	reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "user", Content: prompt.User})

	respBody, err := c.post(ctx, "/chat/completions", reqBody, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return response.Choices[0].Message.Content, nil
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) completeAnthropic(ctx context.Context, prompt Prompt) (string, error) {
	reqBody := anthropicRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		System:      prompt.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt.User},
		},
	}

	respBody, err := c.post(ctx, "/messages", reqBody, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var response anthropicResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Error != nil {
		return "", fmt.Errorf("API error: %s", response.Error.Message)
	}

	var text strings.Builder

	for _, block := range response.Content {
		if block.Type == "" || block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return "", fmt.Errorf("no text in response")
	}

	return text.String(), nil
}

// Ollama API structures
type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (c *Client) completeOllama(ctx context.Context, prompt Prompt) (string, error) {
	reqBody := ollamaRequest{
		Model:  c.config.Model,
		Prompt: prompt.User,
		System: prompt.System,
		Stream: false,
		Options: map[string]any{
			"temperature": c.config.Temperature,
			"num_predict": c.config.MaxTokens,
		},
	}

	respBody, err := c.post(ctx, "/api/generate", reqBody, nil)
	if err != nil {
		return "", err
	}

	var response ollamaResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if response.Error != "" {
		return "", fmt.Errorf("API error: %s", response.Error)
	}

	return response.Response, nil
}

// post sends a JSON request and returns the body of a 200 response
func (c *Client) post(ctx context.Context, endpoint string, reqBody any, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
