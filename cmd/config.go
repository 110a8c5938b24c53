package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/llm"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the current active configuration including all settings from file, .env files, environment variables, and command-line flags.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the configuration as JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(ctx, cmd)
			if err != nil {
				return err
			}

			return runConfig(output(cmd), cfg, cmd.Bool("json"))
		},
	}
}

func runConfig(w io.Writer, cfg *config.Config, asJSON bool) error {
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	if asJSON {
		return writeConfigJSON(w, cfg)
	}

	_, _ = fmt.Fprintln(w, "====================")
	_, _ = fmt.Fprintln(w, "Active Configuration:")

	_, _ = fmt.Fprintln(w, "\nDatabase:")
	_, _ = fmt.Fprintf(w, "  Driver: %s\n", cfg.Database.Driver)
	_, _ = fmt.Fprintf(w, "  Path: %s\n", cfg.Database.Path)
	_, _ = fmt.Fprintf(w, "  Max Connections: %d\n", cfg.Database.MaxConnections)
	_, _ = fmt.Fprintf(w, "  Query Timeout: %s\n", cfg.Database.QueryTimeout)

	_, _ = fmt.Fprintln(w, "\nLanguage Model:")
	_, _ = fmt.Fprintf(w, "  Provider: %s\n", cfg.LLM.Provider)
	_, _ = fmt.Fprintf(w, "  Model: %s\n", cfg.LLM.Model)
	_, _ = fmt.Fprintf(w, "  API Key: %s\n", keyStatus(cfg.LLM))
	_, _ = fmt.Fprintf(w, "  Temperature: %g\n", cfg.LLM.Temperature)
	_, _ = fmt.Fprintf(w, "  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	_, _ = fmt.Fprintf(w, "  Timeout: %s\n", cfg.LLM.Timeout)
	_, _ = fmt.Fprintf(w, "  Retries: %d (delay %s)\n", cfg.LLM.RetryAttempts, cfg.LLM.RetryDelay)

	if len(cfg.LLM.FallbackProviders) > 0 {
		_, _ = fmt.Fprintf(w, "  Fallback Providers: %s\n", strings.Join(cfg.LLM.FallbackProviders, ", "))
	}

	_, _ = fmt.Fprintf(w, "  Rule-based Fallback: %t\n", cfg.LLM.EnableFallback)

	_, _ = fmt.Fprintln(w, "\nPipeline:")
	_, _ = fmt.Fprintf(w, "  Max Attempts: %d\n", cfg.Pipeline.MaxAttempts)
	_, _ = fmt.Fprintf(w, "  Narrate: %t\n", cfg.Pipeline.Narrate)
	_, _ = fmt.Fprintf(w, "  Allow Writes: %t\n", cfg.Pipeline.AllowWrites)

	_, _ = fmt.Fprintln(w, "\nLogging:")
	_, _ = fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	_, _ = fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	_, _ = fmt.Fprintf(w, "  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		_, _ = fmt.Fprintf(w, "  File: %s\n", cfg.Logging.File)
	}

	_, _ = fmt.Fprintln(w, "\nDebug:")
	_, _ = fmt.Fprintf(w, "  Enabled: %t\n", cfg.Debug.Enabled)
	_, _ = fmt.Fprintf(w, "  Verbose: %t\n", cfg.Debug.Verbose)

	if cfg.Debug.Enabled {
		_, _ = fmt.Fprintln(w, "\nRaw Configuration (JSON):")
		_, _ = fmt.Fprintln(w, "==========================")

		return writeConfigJSON(w, cfg)
	}

	return nil
}

// writeConfigJSON prints cfg with the API key masked
func writeConfigJSON(w io.Writer, cfg *config.Config) error {
	masked := *cfg
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = "********"
	}

	data, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))

	return err
}

// keyStatus says where the default provider's key comes from without
// revealing it
func keyStatus(cfg config.LLMConfig) string {
	switch {
	case cfg.Provider == llm.ProviderOllama || cfg.Provider == llm.ProviderFallback:
		return "not needed"
	case cfg.APIKey != "":
		return "set in configuration"
	case llm.ResolveAPIKey(cfg.Provider, "") != "":
		return "found in environment"
	default:
		return "missing"
	}
}
