// Package schema describes the tables of the persistent store in the form
// the analyzer grounds its statements on.
package schema

import (
	"context"
	"fmt"
	"strings"
)

// Provider reports the current schema. Describe is read-only.
type Provider interface {
	Describe(ctx context.Context) (*Descriptor, error)
}

// Column is one column of a table
type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
}

// ForeignKey links columns of one table to another
type ForeignKey struct {
	Columns    []string `json:"columns"`
	RefTable   string   `json:"ref_table"`
	RefColumns []string `json:"ref_columns"`
}

// Table is one table with columns in declaration order
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Descriptor lists the tables in the order the backend reported them
type Descriptor struct {
	Dialect string  `json:"dialect"`
	Tables  []Table `json:"tables"`
}

// Table returns the table named name, matched case-insensitively
func (d *Descriptor) Table(name string) (*Table, bool) {
	if d == nil {
		return nil, false
	}

	for i := range d.Tables {
		if strings.EqualFold(d.Tables[i].Name, name) {
			return &d.Tables[i], true
		}
	}

	return nil, false
}

// HasTable reports whether a table named name exists
func (d *Descriptor) HasTable(name string) bool {
	_, ok := d.Table(name)
	return ok
}

// HasColumn reports whether table has a column named column
func (d *Descriptor) HasColumn(table, column string) bool {
	t, ok := d.Table(table)
	if !ok {
		return false
	}

	_, ok = t.Column(column)

	return ok
}

// Column returns the column named name, matched case-insensitively
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}

	return nil, false
}

// TableNames returns the table names in order
func (d *Descriptor) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		names = append(names, t.Name)
	}

	return names
}

// Format renders the descriptor as the plain-text listing given to the
// language model:
//
//	Table: customers
//	  - id: INTEGER (primary key)
//	  - name: TEXT
//	  foreign key: customer_id -> customers(id)
func (d *Descriptor) Format() string {
	if d == nil || len(d.Tables) == 0 {
		return "(no tables)"
	}

	var b strings.Builder

	for i, t := range d.Tables {
		if i > 0 {
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "Table: %s\n", t.Name)

		for _, c := range t.Columns {
			typ := c.Type
			if typ == "" {
				typ = "ANY"
			}

			fmt.Fprintf(&b, "  - %s: %s", c.Name, typ)

			switch {
			case c.PrimaryKey:
				b.WriteString(" (primary key)")
			case !c.Nullable:
				b.WriteString(" (not null)")
			}

			b.WriteString("\n")
		}

		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(&b, "  foreign key: %s -> %s(%s)\n",
				strings.Join(fk.Columns, ", "), fk.RefTable, strings.Join(fk.RefColumns, ", "))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// Static is a Provider over a fixed descriptor
type Static struct {
	Descriptor *Descriptor
}

// Describe returns the fixed descriptor
func (s Static) Describe(ctx context.Context) (*Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.Descriptor, nil
}
