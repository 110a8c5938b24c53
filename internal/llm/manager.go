package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
)

// Manager handles multiple providers with retries and a rule-based fallback
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Completer
	fallback  Completer
	config    ManagerConfig
}

// ManagerConfig configures the manager behavior
type ManagerConfig struct {
	DefaultProvider   string        `json:"default_provider"`
	FallbackProviders []string      `json:"fallback_providers"`
	RetryAttempts     int           `json:"retry_attempts"`
	RetryDelay        time.Duration `json:"retry_delay"`
	Timeout           time.Duration `json:"timeout"`
	EnableFallback    bool          `json:"enable_fallback"`
}

// DefaultManagerConfig returns the built-in manager settings
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DefaultProvider: ProviderGroq,
		RetryAttempts:   2,
		RetryDelay:      2 * time.Second,
		Timeout:         60 * time.Second,
		EnableFallback:  true,
	}
}

// NewManager creates a manager with no remote providers registered
func NewManager(config ManagerConfig) *Manager {
	return &Manager{
		providers: make(map[string]Completer),
		fallback:  NewFallbackService(),
		config:    config,
	}
}

// RegisterProvider registers a completer under name
func (m *Manager) RegisterProvider(name string, completer Completer) error {
	if name == "" {
		return errors.New(errors.ErrTypeConfig, "provider name cannot be empty")
	}

	if completer == nil {
		return errors.New(errors.ErrTypeConfig, "completer cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[name] = completer

	return nil
}

// Providers lists the registered provider names in the order they are tried
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string

	for _, name := range m.order() {
		if _, ok := m.providers[name]; ok {
			names = append(names, name)
		}
	}

	return names
}

func (m *Manager) order() []string {
	names := make([]string, 0, len(m.config.FallbackProviders)+1)
	seen := map[string]bool{}

	for _, name := range append([]string{m.config.DefaultProvider}, m.config.FallbackProviders...) {
		if name == "" || seen[name] {
			continue
		}

		seen[name] = true
		names = append(names, name)
	}

	return names
}

// Complete tries the default provider, then each fallback provider, then the
// rule-based fallback when enabled.
func (m *Manager) Complete(ctx context.Context, prompt Prompt) (string, error) {
	logger := logging.FromContext(ctx).WithField("task", string(prompt.Task))

	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	m.mu.RLock()
	providers := make(map[string]Completer, len(m.providers))
	for k, v := range m.providers {
		providers[k] = v
	}
	order := m.order()
	m.mu.RUnlock()

	var lastErr error

	for _, name := range order {
		provider, ok := providers[name]
		if !ok {
			continue
		}

		text, err := m.tryProvider(ctx, provider, prompt)
		if err == nil {
			return text, nil
		}

		if errors.IsType(err, errors.ErrTypeCancelled) {
			return "", err
		}

		logger.WithField("provider", name).WithError(err).Warn("Provider failed")
		lastErr = err
	}

	if m.config.EnableFallback && m.fallback != nil {
		logger.Debug("Using rule-based fallback")
		return m.fallback.Complete(ctx, prompt)
	}

	if lastErr != nil {
		return "", errors.Wrap(lastErr, errors.ErrTypeLLM, "all providers failed and fallback is disabled")
	}

	return "", errors.New(errors.ErrTypeLLM, "no provider configured and fallback is disabled").
		WithSuggestion("Set ASKDB_LLM_PROVIDER and an API key, or enable the rule-based fallback")
}

// tryProvider calls one provider with retries
func (m *Manager) tryProvider(ctx context.Context, provider Completer, prompt Prompt) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= m.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "model request abandoned")
			case <-time.After(m.config.RetryDelay):
			}
		}

		text, err := provider.Complete(ctx, prompt)
		if err == nil {
			return text, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", errors.Wrap(ctx.Err(), errors.ErrTypeCancelled, "model request abandoned")
		}

		if errors.IsType(err, errors.ErrTypeConfig) {
			break
		}
	}

	return "", fmt.Errorf("provider failed after %d attempts: %w", m.config.RetryAttempts+1, lastErr)
}

// MarshalJSON renders durations as strings
func (mc ManagerConfig) MarshalJSON() ([]byte, error) {
	type Alias ManagerConfig

	return json.Marshal(&struct {
		RetryDelay string `json:"retry_delay"`
		Timeout    string `json:"timeout"`
		*Alias
	}{
		RetryDelay: mc.RetryDelay.String(),
		Timeout:    mc.Timeout.String(),
		Alias:      (*Alias)(&mc),
	})
}

// UnmarshalJSON parses duration strings
func (mc *ManagerConfig) UnmarshalJSON(data []byte) error {
	type Alias ManagerConfig

	aux := &struct {
		RetryDelay string `json:"retry_delay"`
		Timeout    string `json:"timeout"`
		*Alias
	}{
		Alias: (*Alias)(mc),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.RetryDelay != "" {
		d, err := time.ParseDuration(aux.RetryDelay)
		if err != nil {
			return fmt.Errorf("invalid retry_delay: %w", err)
		}

		mc.RetryDelay = d
	}

	if aux.Timeout != "" {
		d, err := time.ParseDuration(aux.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}

		mc.Timeout = d
	}

	return nil
}
