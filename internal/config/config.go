package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every environment variable read by LoadConfig
const EnvPrefix = "ASKDB_"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `json:"database"`
	LLM      LLMConfig      `json:"llm"`
	Pipeline PipelineConfig `json:"pipeline"`
	Logging  LoggingConfig  `json:"logging"`
	Debug    DebugConfig    `json:"debug"`
}

// DatabaseConfig represents the persistent store configuration
type DatabaseConfig struct {
	Driver         string `json:"driver"          env:"DB_DRIVER"`          // sqlite, duckdb
	Path           string `json:"path"            env:"DB_PATH"`            // file path or :memory:
	MaxConnections int    `json:"max_connections" env:"DB_MAX_CONNECTIONS"`
	QueryTimeout   string `json:"query_timeout"   env:"DB_QUERY_TIMEOUT"`
}

// LLMConfig represents the language-model collaborator configuration
type LLMConfig struct {
	Provider          string   `json:"provider"           env:"LLM_PROVIDER"` // groq, openai, anthropic, ollama, github, fallback
	Model             string   `json:"model"              env:"MODEL_NAME"`
	Temperature       float64  `json:"temperature"        env:"MODEL_TEMPERATURE"`
	MaxTokens         int      `json:"max_tokens"         env:"MAX_TOKENS"`
	APIKey            string   `json:"api_key,omitempty"  env:"LLM_API_KEY"`
	BaseURL           string   `json:"base_url,omitempty" env:"LLM_BASE_URL"`
	Timeout           string   `json:"timeout"            env:"LLM_TIMEOUT"`
	RetryAttempts     int      `json:"retry_attempts"     env:"LLM_RETRY_ATTEMPTS"`
	RetryDelay        string   `json:"retry_delay"        env:"LLM_RETRY_DELAY"`
	FallbackProviders []string `json:"fallback_providers" env:"LLM_FALLBACK_PROVIDERS" envSeparator:","`
	EnableFallback    bool     `json:"enable_fallback"    env:"LLM_ENABLE_FALLBACK"`
}

// PipelineConfig represents the question pipeline configuration
type PipelineConfig struct {
	MaxAttempts int  `json:"max_attempts" env:"MAX_ATTEMPTS"`
	Narrate     bool `json:"narrate"      env:"NARRATE"`
	AllowWrites bool `json:"allow_writes" env:"ALLOW_WRITES"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"`  // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT"` // text, json
	Output string `json:"output" env:"LOG_OUTPUT"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"`   // log file path when output is file
}

// DebugConfig represents debug configuration
type DebugConfig struct {
	Enabled bool `json:"enabled" env:"DEBUG"`
	Verbose bool `json:"verbose" env:"VERBOSE"`
}

const (
	// MinAttempts and MaxAttempts bound the pipeline retry budget
	MinAttempts = 1
	MaxAttempts = 5
)

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:         "sqlite",
			Path:           "company_db.sqlite",
			MaxConnections: 10,
			QueryTimeout:   "30s",
		},
		LLM: LLMConfig{
			Provider:          "groq",
			Model:             "openai/gpt-oss-120b",
			Temperature:       0.1,
			MaxTokens:         1000,
			Timeout:           "60s",
			RetryAttempts:     2,
			RetryDelay:        "2s",
			FallbackProviders: []string{},
			EnableFallback:    true,
		},
		Pipeline: PipelineConfig{
			MaxAttempts: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
			File:   "~/.config/askdb/logs/askdb.log",
		},
	}
}

// LoadConfig loads configuration from file, .env files and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides.
// Precedence, lowest first: defaults, config file, .env files, environment, flags.
func LoadConfigWithOverrides(flagOverrides map[string]any) (*Config, error) {
	config := DefaultConfig()

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadDotEnv("."); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if flagOverrides != nil {
		applyFlagOverrides(config, flagOverrides)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile decodes a JSON file on top of the existing values, so
// keys absent from the file keep their defaults.
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadDotEnv loads dir/.env without overriding the real environment, then
// dir/.env.local with override semantics.
func loadDotEnv(dir string) error {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return err
		}
	}

	localFile := filepath.Join(dir, ".env.local")
	if _, err := os.Stat(localFile); err == nil {
		if err := godotenv.Overload(localFile); err != nil {
			return err
		}
	}

	return nil
}

// applyEnvironmentOverrides sets only the fields whose variables are present
func applyEnvironmentOverrides(config *Config) error {
	return env.ParseWithOptions(config, env.Options{
		Prefix: EnvPrefix,
	})
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]any) {
	for key, value := range overrides {
		switch key {
		case "db-path":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Path = str
			}
		case "db-driver":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Driver = str
			}
		case "provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "max-attempts":
			if n, ok := toInt(value); ok && n > 0 {
				config.Pipeline.MaxAttempts = n
			}
		case "allow-writes":
			if b, ok := value.(bool); ok && b {
				config.Pipeline.AllowWrites = true
			}
		case "narrate":
			if b, ok := value.(bool); ok && b {
				config.Pipeline.Narrate = true
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "verbose":
			if b, ok := value.(bool); ok && b {
				config.Debug.Verbose = true
			}
		case "debug":
			if b, ok := value.(bool); ok && b {
				config.Debug.Enabled = true
				config.Logging.Level = "debug"
			}
		}
	}
}

func toInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validDrivers := map[string]bool{"sqlite": true, "duckdb": true}
	if !validDrivers[strings.ToLower(config.Database.Driver)] {
		return fmt.Errorf("invalid database driver: %s (must be sqlite or duckdb)", config.Database.Driver)
	}

	if config.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	durations := map[string]string{
		"database query timeout": config.Database.QueryTimeout,
		"llm timeout":            config.LLM.Timeout,
		"llm retry delay":        config.LLM.RetryDelay,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.LLM.Temperature < 0 || config.LLM.Temperature > 2 {
		return fmt.Errorf("model temperature must be between 0 and 2: %g", config.LLM.Temperature)
	}

	if config.LLM.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive: %d", config.LLM.MaxTokens)
	}

	if config.LLM.RetryAttempts < 0 {
		return fmt.Errorf("llm retry attempts must not be negative: %d", config.LLM.RetryAttempts)
	}

	if config.Pipeline.MaxAttempts < MinAttempts || config.Pipeline.MaxAttempts > MaxAttempts {
		return fmt.Errorf(
			"pipeline max attempts must be between %d and %d: %d",
			MinAttempts, MaxAttempts, config.Pipeline.MaxAttempts,
		)
	}

	return nil
}

// QueryTimeout returns the parsed database query timeout
func (c *Config) QueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Database.QueryTimeout)
	if err != nil {
		return 30 * time.Second
	}

	return d
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv(EnvPrefix + "CONFIG"); configPath != "" {
		return ExpandPath(configPath)
	}

	return filepath.Join(GetConfigDir(), "config.json")
}

// ExpandPath expands ~ to home directory in file paths
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	c.Database.Path = ExpandPath(c.Database.Path)
	c.Logging.File = ExpandPath(c.Logging.File)
}

// GetConfigDir returns the configuration directory
func GetConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".config/askdb"
	}

	return filepath.Join(homeDir, ".config", "askdb")
}
