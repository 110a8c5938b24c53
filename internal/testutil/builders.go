package testutil

import (
	"github.com/kyleking/askdb/internal/result"
	"github.com/kyleking/askdb/internal/schema"
)

// ResultSetBuilder builds result sets row by row
type ResultSetBuilder struct {
	set *result.ResultSet
}

// NewResultSet starts a result set with the given columns
func NewResultSet(columns ...string) *ResultSetBuilder {
	return &ResultSetBuilder{set: &result.ResultSet{Columns: columns, Rows: [][]result.Value{}}}
}

// Row appends a row, converting Go values the way the drivers do
func (b *ResultSetBuilder) Row(values ...any) *ResultSetBuilder {
	row := make([]result.Value, len(values))
	for i, v := range values {
		row[i] = result.FromDriver(v)
	}

	b.set.Rows = append(b.set.Rows, row)

	return b
}

// Build returns the result set
func (b *ResultSetBuilder) Build() *result.ResultSet {
	return b.set
}

// TableOption is a functional option for configuring test tables
type TableOption func(*schema.Table)

// WithColumn appends a nullable column
func WithColumn(name, typ string) TableOption {
	return func(t *schema.Table) {
		t.Columns = append(t.Columns, schema.Column{Name: name, Type: typ, Nullable: true})
	}
}

// WithPrimaryKey appends a primary key column
func WithPrimaryKey(name, typ string) TableOption {
	return func(t *schema.Table) {
		t.Columns = append(t.Columns, schema.Column{Name: name, Type: typ, PrimaryKey: true})
		t.PrimaryKey = append(t.PrimaryKey, name)
	}
}

// WithForeignKey links column to refTable(refColumn)
func WithForeignKey(column, refTable, refColumn string) TableOption {
	return func(t *schema.Table) {
		t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
			Columns:    []string{column},
			RefTable:   refTable,
			RefColumns: []string{refColumn},
		})
	}
}

// NewTable creates a table with the given options
func NewTable(name string, opts ...TableOption) schema.Table {
	t := schema.Table{Name: name}
	for _, opt := range opts {
		opt(&t)
	}

	return t
}

// NewDescriptor creates a descriptor for dialect holding tables
func NewDescriptor(dialect string, tables ...schema.Table) *schema.Descriptor {
	return &schema.Descriptor{Dialect: dialect, Tables: tables}
}

// ShopDescriptor mirrors the demo shop schema without a database
func ShopDescriptor() *schema.Descriptor {
	return NewDescriptor("sqlite",
		NewTable("customers",
			WithPrimaryKey("id", "INTEGER"),
			WithColumn("name", "TEXT"),
			WithColumn("email", "TEXT"),
			WithColumn("phone", "TEXT"),
			WithColumn("city", "TEXT"),
			WithColumn("registration_date", "DATE"),
		),
		NewTable("orders",
			WithPrimaryKey("id", "INTEGER"),
			WithColumn("customer_id", "INTEGER"),
			WithColumn("product_id", "INTEGER"),
			WithColumn("quantity", "INTEGER"),
			WithColumn("order_date", "DATE"),
			WithColumn("total_amount", "DECIMAL(10,2)"),
			WithForeignKey("customer_id", "customers", "id"),
			WithForeignKey("product_id", "products", "id"),
		),
		NewTable("products",
			WithPrimaryKey("id", "INTEGER"),
			WithColumn("name", "TEXT"),
			WithColumn("category", "TEXT"),
			WithColumn("price", "DECIMAL(10,2)"),
			WithColumn("stock_quantity", "INTEGER"),
		),
	)
}
