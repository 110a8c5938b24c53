package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/pipeline"
	"github.com/kyleking/askdb/internal/storage"
)

var version = "dev"

// NewApp builds the command tree
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "askdb",
		Usage:   "Ask questions about a SQL database in plain language",
		Version: version,
		Description: `askdb turns a question into one SQL statement, checks it against the live schema,
runs it and explains the result. Failed statements are corrected and retried a
bounded number of times. Statements that change data need confirmation unless
writes are allowed.`,
		Flags: globalFlags(),
		Commands: []*cli.Command{
			AskCommand(),
			ChatCommand(),
			SchemaCommand(),
			StatsCommand(),
			SeedCommand(),
			ConfigCommand(),
		},
	}
}

// Execute runs the CLI against os.Args and reports any error on stderr
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := NewApp().Run(ctx, os.Args)
	if err != nil {
		printError(os.Stderr, err)
	}

	return err
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "db-path", Usage: "database file (`PATH`), or :memory:"},
		&cli.StringFlag{Name: "db-driver", Usage: "database backend: sqlite or duckdb"},
		&cli.StringFlag{Name: "provider", Usage: "language model provider: groq, openai, anthropic, ollama, github or fallback"},
		&cli.StringFlag{Name: "model", Usage: "model name for the provider"},
		&cli.IntFlag{Name: "max-attempts", Usage: "statement attempts per question (1-5)"},
		&cli.BoolFlag{Name: "allow-writes", Usage: "run INSERT, UPDATE and DELETE statements without asking"},
		&cli.BoolFlag{Name: "narrate", Usage: "add a model-written sentence to each explanation"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		&cli.BoolFlag{Name: "verbose", Usage: "show attempts and timings"},
		&cli.BoolFlag{Name: "debug", Usage: "debug logging"},
	}
}

// flagOverrides collects the global flags the user actually set
func flagOverrides(cmd *cli.Command) map[string]any {
	overrides := map[string]any{}

	for _, name := range []string{"db-path", "db-driver", "provider", "model", "log-level"} {
		if cmd.IsSet(name) {
			overrides[name] = cmd.String(name)
		}
	}

	if cmd.IsSet("max-attempts") {
		overrides["max-attempts"] = cmd.Int("max-attempts")
	}

	for _, name := range []string{"allow-writes", "narrate", "verbose", "debug"} {
		if cmd.IsSet(name) {
			overrides[name] = cmd.Bool(name)
		}
	}

	return overrides
}

type configKey struct{}

type environmentKey struct{}

// withConfig stores cfg in ctx; commands prefer it over loading from disk
func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// withEnvironment stores a ready environment in ctx, which commands use
// instead of opening their own
func withEnvironment(ctx context.Context, env *environment) context.Context {
	return context.WithValue(ctx, environmentKey{}, env)
}

func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}

	if env, ok := ctx.Value(environmentKey{}).(*environment); ok {
		return env.cfg
	}

	return nil
}

// loadConfig returns the config in ctx, or loads it and sets up logging
func loadConfig(ctx context.Context, cmd *cli.Command) (*config.Config, error) {
	if cfg := getConfigFromContext(ctx); cfg != nil {
		return cfg, nil
	}

	cfg, err := config.LoadConfigWithOverrides(flagOverrides(cmd))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to load configuration")
	}

	cfg.ExpandAllPaths()

	if err := logging.InitializeLogger(cfg.Logging); err != nil {
		logging.SetupFallbackLogger()
		logging.WithError(err).Warn("Falling back to stderr logging")
	}

	return cfg, nil
}

// environment is what the question commands run against
type environment struct {
	cfg         *config.Config
	store       storage.Store
	completer   llm.Completer
	logger      *logging.Logger
	interactive bool
	owned       bool
}

// openEnvironment returns the environment in ctx, or builds one from config.
// An empty database is loaded with the demo data.
func openEnvironment(ctx context.Context, cmd *cli.Command) (*environment, error) {
	if env, ok := ctx.Value(environmentKey{}).(*environment); ok {
		return env, nil
	}

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	manager, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &environment{
		cfg:         cfg,
		store:       store,
		completer:   manager,
		logger:      logging.GetLogger(),
		interactive: !color.NoColor,
		owned:       true,
	}, nil
}

// openStoreFor returns the store of the environment in ctx, or opens the
// configured one. The returned function closes what was opened.
func openStoreFor(ctx context.Context, cmd *cli.Command, seedEmpty bool) (storage.Store, func(), error) {
	if env, ok := ctx.Value(environmentKey{}).(*environment); ok {
		return env.store, func() {}, nil
	}

	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return nil, nil, err
	}

	open := openStore
	if !seedEmpty {
		open = openRawStore
	}

	store, err := open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	return store, func() { _ = store.Close() }, nil
}

func openRawStore(_ context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to open database").
			WithSuggestion("Check --db-path and --db-driver")
	}

	return store, nil
}

// openStore opens the configured database, seeding it when it has no tables
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := openRawStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	desc, err := store.Describe(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if len(desc.Tables) == 0 {
		logging.WithField("path", cfg.Database.Path).Info("Database is empty, loading demo data")

		if _, err := storage.Seed(ctx, store); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	return store, nil
}

// pipelineOptions maps config onto pipeline options; gate overrides the
// configured write policy when writes are not allowed outright
func (e *environment) pipelineOptions(gate pipeline.Gate) pipeline.Options {
	opts := pipeline.OptionsFromConfig(e.cfg.Pipeline)
	opts.Logger = e.logger

	if gate != nil && !e.cfg.Pipeline.AllowWrites {
		opts.Gate = gate
	}

	return opts
}

func (e *environment) Close() error {
	if !e.owned {
		return nil
	}

	return e.store.Close()
}

// output returns the writer commands print to
func output(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}

	return os.Stdout
}

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	hintColor    = color.New(color.FgYellow)
	successColor = color.New(color.FgGreen, color.Bold)
	dimColor     = color.New(color.Faint)
	headerColor  = color.New(color.FgCyan, color.Bold)
)

// printError writes err and any suggestions attached to it
func printError(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "%s %s\n", errorColor.Sprint("Error:"), errorMessage(err))

	var typed *errors.Error
	if errors.As(err, &typed) {
		for _, s := range typed.Suggestions {
			_, _ = fmt.Fprintf(w, "  %s %s\n", hintColor.Sprint("hint:"), s)
		}
	}
}

// errorMessage prefers the message of the outermost typed error, which
// reads better than the full cause chain
func errorMessage(err error) string {
	var runErr *pipeline.RunError
	if errors.As(err, &runErr) {
		err = runErr.Err
	}

	var typed *errors.Error
	if !errors.As(err, &typed) {
		return err.Error()
	}

	if typed.Cause == nil || logging.GetLogger().Enabled(logging.DebugLevel) {
		return typed.Error()
	}

	var inner *errors.Error
	if errors.As(typed.Cause, &inner) {
		return fmt.Sprintf("%s (%s)", typed.Message, inner.Message)
	}

	return fmt.Sprintf("%s (%v)", typed.Message, typed.Cause)
}
