package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/schema"
	"github.com/kyleking/askdb/internal/testutil"
)

func TestRunSchema(t *testing.T) {
	desc := testutil.ShopDescriptor()

	tests := []struct {
		name     string
		table    string
		format   string
		contains []string
		excludes []string
	}{
		{
			name:     "table",
			format:   "table",
			contains: []string{"Table: customers", "Table: orders", "Nullable", "FK customers.id"},
		},
		{
			name:     "single table",
			table:    "orders",
			contains: []string{"Table: orders", "customer_id"},
			excludes: []string{"Table: customers"},
		},
		{
			name:     "text",
			format:   "TEXT",
			contains: []string{"Table: products", "  foreign key: customer_id -> customers(id)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, runSchema(&buf, desc, tt.table, tt.format))

			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}

			for _, unwanted := range tt.excludes {
				assert.NotContains(t, buf.String(), unwanted)
			}
		})
	}
}

func TestRunSchemaJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runSchema(&buf, testutil.ShopDescriptor(), "customers", "json"))

	var decoded schema.Descriptor
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, []string{"customers"}, decoded.TableNames())
}

func TestRunSchemaErrors(t *testing.T) {
	var buf bytes.Buffer

	err := runSchema(&buf, testutil.ShopDescriptor(), "invoices", "table")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	var typed *errors.Error
	require.True(t, errors.As(err, &typed))
	assert.Contains(t, typed.Suggestions[0], "customers")

	err = runSchema(&buf, testutil.ShopDescriptor(), "", "yaml")
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
}

func TestSchemaCommand(t *testing.T) {
	env := newTestEnvironment(t, testutil.NewScriptedCompleter())

	app := NewApp()

	var buf bytes.Buffer
	app.Writer = &buf

	require.NoError(t, app.Run(withEnvironment(context.Background(), env), []string{"askdb", "schema", "--format", "text", "products"}))
	assert.Contains(t, buf.String(), "Table: products")
	assert.NotContains(t, buf.String(), "schema_migrations")
}

func TestColumnKey(t *testing.T) {
	orders := testutil.NewTable("orders",
		testutil.WithPrimaryKey("id", "INTEGER"),
		testutil.WithColumn("customer_id", "INTEGER"),
		testutil.WithForeignKey("customer_id", "customers", "id"),
		testutil.WithColumn("status", "TEXT"),
	)

	assert.Equal(t, "PK", columnKey(orders, orders.Columns[0]))
	assert.Equal(t, "FK customers.id", columnKey(orders, orders.Columns[1]))
	assert.Empty(t, columnKey(orders, orders.Columns[2]))
}
