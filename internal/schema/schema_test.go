package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shopDescriptor() *Descriptor {
	return &Descriptor{
		Dialect: "sqlite",
		Tables: []Table{
			{
				Name: "customers",
				Columns: []Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "name", Type: "TEXT"},
					{Name: "city", Type: "TEXT", Nullable: true},
				},
				PrimaryKey: []string{"id"},
			},
			{
				Name: "orders",
				Columns: []Column{
					{Name: "id", Type: "INTEGER", PrimaryKey: true},
					{Name: "customer_id", Type: "INTEGER", Nullable: true},
					{Name: "total_amount", Type: "", Nullable: true},
				},
				PrimaryKey: []string{"id"},
				ForeignKeys: []ForeignKey{
					{Columns: []string{"customer_id"}, RefTable: "customers", RefColumns: []string{"id"}},
				},
			},
		},
	}
}

func TestFormat(t *testing.T) {
	expected := `Table: customers
  - id: INTEGER (primary key)
  - name: TEXT (not null)
  - city: TEXT

Table: orders
  - id: INTEGER (primary key)
  - customer_id: INTEGER
  - total_amount: ANY
  foreign key: customer_id -> customers(id)`

	assert.Equal(t, expected, shopDescriptor().Format())
}

func TestFormatEmpty(t *testing.T) {
	assert.Equal(t, "(no tables)", (&Descriptor{}).Format())

	var nilDescriptor *Descriptor
	assert.Equal(t, "(no tables)", nilDescriptor.Format())
}

func TestLookups(t *testing.T) {
	d := shopDescriptor()

	tests := []struct {
		table, column string
		hasTable      bool
		hasColumn     bool
	}{
		{"customers", "name", true, true},
		{"CUSTOMERS", "Name", true, true},
		{"customers", "email", true, false},
		{"users", "id", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.table+"."+tt.column, func(t *testing.T) {
			assert.Equal(t, tt.hasTable, d.HasTable(tt.table))
			assert.Equal(t, tt.hasColumn, d.HasColumn(tt.table, tt.column))
		})
	}

	assert.Equal(t, []string{"customers", "orders"}, d.TableNames())
}

func TestStaticProvider(t *testing.T) {
	p := Static{Descriptor: shopDescriptor()}

	d, err := p.Describe(context.Background())
	require.NoError(t, err)
	assert.Len(t, d.Tables, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Describe(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
