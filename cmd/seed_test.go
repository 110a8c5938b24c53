package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/storage"
	"github.com/kyleking/askdb/internal/testutil"
)

func TestRunSeed(t *testing.T) {
	store := storage.NewTestStore(t)
	ctx := context.Background()

	var buf bytes.Buffer

	require.NoError(t, runSeedStatus(ctx, &buf, store))
	assert.Contains(t, buf.String(), "[ ] 1")

	buf.Reset()
	require.NoError(t, runSeed(ctx, &buf, store, false))
	assert.Contains(t, buf.String(), "Demo data loaded: applied 2 migration(s).")
	assert.EqualValues(t, testutil.DemoCustomerCount, countRows(t, store, "customers"))

	buf.Reset()
	require.NoError(t, runSeed(ctx, &buf, store, false))
	assert.Equal(t, "Demo data is already loaded.\n", buf.String())

	buf.Reset()
	require.NoError(t, runSeedStatus(ctx, &buf, store))
	assert.Contains(t, buf.String(), "[x] 1")
	assert.Contains(t, buf.String(), "[x] 2")
}

func TestRunSeedReset(t *testing.T) {
	store := storage.NewSeededTestStore(t)
	ctx := context.Background()

	_, err := store.Run(ctx, "DELETE FROM orders")
	require.NoError(t, err)
	require.Zero(t, countRows(t, store, "orders"))

	var buf bytes.Buffer
	require.NoError(t, runSeed(ctx, &buf, store, true))
	assert.Equal(t, "Demo data reset.\n", buf.String())
	assert.EqualValues(t, testutil.DemoOrderCount, countRows(t, store, "orders"))
}
