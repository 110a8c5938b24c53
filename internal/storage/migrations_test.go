package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/result"
)

func countRows(t *testing.T, store Store, table string) int64 {
	t.Helper()

	out, err := store.Run(context.Background(), "SELECT COUNT(*) AS count FROM "+table)
	require.NoError(t, err)

	v, ok := out.Rows.Scalar()
	require.True(t, ok)

	return v.Int
}

func TestSeedIsIdempotent(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()

	applied, err := Seed(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	applied, err = Seed(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	for _, table := range []string{"customers", "products", "orders"} {
		assert.EqualValues(t, 4, countRows(t, store, table), table)
	}
}

func TestMigrationStatus(t *testing.T) {
	store := NewTestStore(t)
	ctx := context.Background()
	manager := NewMigrationManager(store.DB(), DemoMigrations())

	status, err := manager.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.False(t, status[0].Applied)

	_, err = manager.MigrateUp(ctx)
	require.NoError(t, err)

	status, err = manager.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status[0].Applied)
	assert.True(t, status[1].Applied)
	assert.Equal(t, "Load sample rows", status[1].Description)
}

func TestMigrateDownToSchemaOnly(t *testing.T) {
	store := NewSeededTestStore(t)
	ctx := context.Background()
	manager := NewMigrationManager(store.DB(), DemoMigrations())

	require.NoError(t, manager.MigrateDown(ctx, 1))
	assert.EqualValues(t, 0, countRows(t, store, "customers"))

	applied, err := manager.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, applied)
}

func TestResetDemoRestoresSampleRows(t *testing.T) {
	store := NewSeededTestStore(t)
	ctx := context.Background()

	_, err := store.Run(ctx, "DELETE FROM orders WHERE id = 4")
	require.NoError(t, err)
	require.EqualValues(t, 3, countRows(t, store, "orders"))

	require.NoError(t, ResetDemo(ctx, store))
	assert.EqualValues(t, 4, countRows(t, store, "orders"))

	out, err := store.Run(ctx, "SELECT SUM(total_amount) AS total FROM orders")
	require.NoError(t, err)

	v, ok := out.Rows.Scalar()
	require.True(t, ok)
	assert.Equal(t, "40900", v.String())
	assert.NotEqual(t, result.KindNull, v.Kind)
}

func TestMigrationsAreSortedByVersion(t *testing.T) {
	manager := NewMigrationManager(nil, []Migration{
		{Version: 3, Description: "c"},
		{Version: 1, Description: "a"},
		{Version: 2, Description: "b"},
	})

	var versions []int
	for _, m := range manager.Migrations() {
		versions = append(versions, m.Version)
	}

	assert.Equal(t, []int{1, 2, 3}, versions)
}
