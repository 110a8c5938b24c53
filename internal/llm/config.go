package llm

import (
	"os"
	"time"

	"github.com/cli/go-gh/v2/pkg/auth"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
)

// ManagerConfigFromSettings converts application settings into manager settings
func ManagerConfigFromSettings(cfg config.LLMConfig) (ManagerConfig, error) {
	mc := DefaultManagerConfig()
	mc.DefaultProvider = cfg.Provider
	mc.FallbackProviders = cfg.FallbackProviders
	mc.EnableFallback = cfg.EnableFallback

	if cfg.RetryAttempts >= 0 {
		mc.RetryAttempts = cfg.RetryAttempts
	}

	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return mc, errors.NewConfigError("invalid timeout", "llm.timeout")
		}

		mc.Timeout = d
	}

	if cfg.RetryDelay != "" {
		d, err := time.ParseDuration(cfg.RetryDelay)
		if err != nil {
			return mc, errors.NewConfigError("invalid retry delay", "llm.retry_delay")
		}

		mc.RetryDelay = d
	}

	return mc, nil
}

// NewFromConfig builds a manager with a client for the default provider and
// every fallback provider that has credentials available. Providers without
// credentials are skipped with a warning so the rule-based fallback can
// still answer.
func NewFromConfig(cfg config.LLMConfig) (*Manager, error) {
	mc, err := ManagerConfigFromSettings(cfg)
	if err != nil {
		return nil, err
	}

	manager := NewManager(mc)

	for i, name := range manager.order() {
		if name == ProviderFallback {
			continue
		}

		pc := Config{
			Provider:    name,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			APIKey:      ResolveAPIKey(name, ""),
		}

		// model, key and base URL settings apply to the default provider only
		if i == 0 && name == cfg.Provider {
			pc.Model = cfg.Model
			pc.BaseURL = cfg.BaseURL
			pc.APIKey = ResolveAPIKey(name, cfg.APIKey)
		}

		client, err := NewClient(pc)
		if err != nil {
			if errors.IsType(err, errors.ErrTypeConfig) {
				logging.WithField("provider", name).WithError(err).Warn("Skipping provider")
				continue
			}

			return nil, err
		}

		if err := manager.RegisterProvider(name, client); err != nil {
			return nil, err
		}
	}

	if len(manager.Providers()) == 0 && !mc.EnableFallback {
		return nil, errors.NewConfigError("no usable model provider and the rule-based fallback is disabled", "llm.provider").
			WithSuggestion("Set " + keyHint(cfg.Provider))
	}

	return manager, nil
}

// ResolveAPIKey returns explicit when set, otherwise the provider's usual
// environment variable. GitHub Models also accepts the gh CLI's stored token.
func ResolveAPIKey(provider, explicit string) string {
	if explicit != "" {
		return explicit
	}

	defaults, ok := providerDefaults[provider]
	if !ok || defaults.keyEnv == "" {
		return ""
	}

	if key := os.Getenv(defaults.keyEnv); key != "" {
		return key
	}

	if provider == ProviderGitHub {
		token, _ := auth.TokenForHost("github.com")
		return token
	}

	return ""
}

func keyHint(provider string) string {
	if defaults, ok := providerDefaults[provider]; ok && defaults.keyEnv != "" {
		return defaults.keyEnv
	}

	return "an API key"
}
