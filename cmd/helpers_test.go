package cmd

import (
	"context"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/formatter"
	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/storage"
)

func TestMain(m *testing.M) {
	color.NoColor = true

	os.Exit(m.Run())
}

// newTestEnvironment wires a seeded in-memory store and completer into an
// environment that commands use instead of opening their own
func newTestEnvironment(t *testing.T, completer llm.Completer, mutate ...func(*config.Config)) *environment {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Database.Path = ":memory:"

	for _, m := range mutate {
		m(cfg)
	}

	return &environment{
		cfg:       cfg,
		store:     storage.NewSeededTestStore(t),
		completer: completer,
		logger:    logging.Discard(),
	}
}

func defaultAskOptions() askOptions {
	return askOptions{format: formatter.FormatTable, showSQL: true, maxRows: formatter.DefaultMaxRows}
}

func countRows(t *testing.T, store storage.Store, table string) int64 {
	t.Helper()

	out, err := store.Run(context.Background(), "SELECT COUNT(*) AS count FROM "+table)
	require.NoError(t, err)

	v, ok := out.Rows.Scalar()
	require.True(t, ok)

	return v.Int
}
