package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/errors"
)

func TestDuckDBDescribe(t *testing.T) {
	store := NewDuckDBTestStore(t)

	d, err := store.Describe(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "duckdb", d.Dialect)
	assert.Equal(t, []string{"customers", "orders", "products"}, d.TableNames())

	customers, ok := d.Table("customers")
	require.True(t, ok)
	assert.Equal(t, "id", customers.Columns[0].Name)
	assert.Equal(t, []string{"id"}, customers.PrimaryKey)
	assert.Empty(t, customers.ForeignKeys)

	orders, ok := d.Table("orders")
	require.True(t, ok)

	refs := map[string]bool{}
	for _, fk := range orders.ForeignKeys {
		refs[fk.RefTable] = true
	}

	assert.True(t, refs["customers"])
	assert.True(t, refs["products"])
}

func TestDuckDBRunAndPlanCheck(t *testing.T) {
	store := NewDuckDBTestStore(t)
	ctx := context.Background()

	out, err := store.Run(ctx, "SELECT COUNT(*) AS count FROM customers WHERE city = 'Cairo'")
	require.NoError(t, err)

	v, ok := out.Rows.Scalar()
	require.True(t, ok)
	assert.EqualValues(t, 2, v.Int)

	require.NoError(t, store.PlanCheck(ctx, "SELECT name FROM products"))

	err = store.PlanCheck(ctx, "SELECT nickname FROM customers")
	assert.Equal(t, errors.ErrTypeUnknownIdentifier, errors.GetType(err))

	err = store.PlanCheck(ctx, "SELECT * FROM users")
	assert.Equal(t, errors.ErrTypeUnknownIdentifier, errors.GetType(err))

	err = store.PlanCheck(ctx, "SELEC * FROM customers")
	assert.Equal(t, errors.ErrTypeSyntax, errors.GetType(err))
}

func TestDuckDBMutation(t *testing.T) {
	store := NewDuckDBTestStore(t)
	ctx := context.Background()

	// Mona Ahmed has no orders, so no foreign key points at her row
	out, err := store.Run(ctx, "UPDATE customers SET phone = '01000000000' WHERE id = 4")
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.RowsAffected)
	assert.False(t, out.HasLastInsertID)
}

// hiddenDropStatements read as one statement under SQLite quoting but as
// two under DuckDB quoting
var hiddenDropStatements = []string{
	"SELECT $$'$$; DROP TABLE orders; --'",
	"SELECT $q$'$q$; DROP TABLE orders; --'",
	`SELECT E'\''; DROP TABLE orders; --'`,
	"SELECT [']'; DROP TABLE orders; --",
}

func TestDuckDBRefusesHiddenStatements(t *testing.T) {
	store := NewDuckDBTestStore(t)
	ctx := context.Background()

	for _, statement := range hiddenDropStatements {
		t.Run(statement, func(t *testing.T) {
			err := store.PlanCheck(ctx, statement)
			assert.Equal(t, errors.ErrTypeMultipleStatements, errors.GetType(err))

			_, err = store.Run(ctx, statement)
			assert.Equal(t, errors.ErrTypeMultipleStatements, errors.GetType(err))

			out, err := store.Run(ctx, "SELECT COUNT(*) AS count FROM orders")
			require.NoError(t, err, "orders must survive")

			v, ok := out.Rows.Scalar()
			require.True(t, ok)
			assert.EqualValues(t, 4, v.Int)
		})
	}
}

func TestDuckDBPlanCheckLeavesNoTrace(t *testing.T) {
	store := NewDuckDBTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PlanCheck(ctx, "DELETE FROM orders"))

	out, err := store.Run(ctx, "SELECT COUNT(*) AS count FROM orders")
	require.NoError(t, err)

	v, _ := out.Rows.Scalar()
	assert.EqualValues(t, 4, v.Int)
}
