package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kyleking/askdb/internal/schema"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
)

// OpenDuckDB opens a DuckDB store at path; ":memory:" opens an in-memory
// database shared by every pooled connection.
func OpenDuckDB(path string, maxConns int, queryTimeout time.Duration) (*SQLStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	dsn := path
	if isMemory(path) {
		dsn = ""
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 10
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns / 2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return newSQLStore(db, path, queryTimeout, dialectOps{
		dialect:  DialectDuckDB,
		explain:  func(statement string) string { return "EXPLAIN " + statement },
		describe: describeDuckDB,
	})
}

func describeDuckDB(ctx context.Context, db *sql.DB) ([]schema.Table, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'main'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}

		if !internalTables[name] {
			names = append(names, name)
		}
	}

	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	tables := make([]schema.Table, 0, len(names))

	for _, name := range names {
		table := schema.Table{Name: name}

		if table.Columns, err = duckdbColumns(ctx, db, name); err != nil {
			return nil, fmt.Errorf("failed to introspect columns for %s: %w", name, err)
		}

		if err := duckdbConstraints(ctx, db, &table); err != nil {
			return nil, fmt.Errorf("failed to introspect constraints for %s: %w", name, err)
		}

		tables = append(tables, table)
	}

	return tables, nil
}

func duckdbColumns(ctx context.Context, db *sql.DB, table string) ([]schema.Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []schema.Column

	for rows.Next() {
		var (
			col      schema.Column
			nullable string
		)

		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.Nullable = strings.EqualFold(nullable, "YES")
		columns = append(columns, col)
	}

	return columns, rows.Err()
}

// foreignKeyText matches duckdb_constraints().constraint_text for a
// foreign key, e.g. FOREIGN KEY (customer_id) REFERENCES customers(id)
var foreignKeyText = regexp.MustCompile(`(?i)FOREIGN KEY\s*\(([^)]*)\)\s*REFERENCES\s+"?([^"(\s]+)"?\s*\(([^)]*)\)`)

func duckdbConstraints(ctx context.Context, db *sql.DB, table *schema.Table) error {
	rows, err := db.QueryContext(ctx, `
		SELECT constraint_type, constraint_text
		FROM duckdb_constraints()
		WHERE schema_name = 'main' AND table_name = ?
		  AND constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY')
		ORDER BY constraint_index`, table.Name)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var kind, text string
		if err := rows.Scan(&kind, &text); err != nil {
			return fmt.Errorf("failed to scan constraint: %w", err)
		}

		switch kind {
		case "PRIMARY KEY":
			table.PrimaryKey = splitColumnList(strings.TrimPrefix(strings.TrimSpace(text), "PRIMARY KEY"))
			for _, name := range table.PrimaryKey {
				if col, ok := table.Column(name); ok {
					col.PrimaryKey = true
					col.Nullable = false
				}
			}
		case "FOREIGN KEY":
			m := foreignKeyText.FindStringSubmatch(text)
			if m == nil || !hasColumns(table, splitColumnList(m[1])) {
				// the referenced side of a foreign key is listed too
				continue
			}

			table.ForeignKeys = append(table.ForeignKeys, schema.ForeignKey{
				Columns:    splitColumnList(m[1]),
				RefTable:   m[2],
				RefColumns: splitColumnList(m[3]),
			})
		}
	}

	return rows.Err()
}

func hasColumns(table *schema.Table, names []string) bool {
	for _, name := range names {
		if _, ok := table.Column(name); !ok {
			return false
		}
	}

	return len(names) > 0
}

// splitColumnList turns "(a, \"b\")" or "a, b" into its names
func splitColumnList(list string) []string {
	list = strings.Trim(strings.TrimSpace(list), "()")

	var names []string

	for _, part := range strings.Split(list, ",") {
		name := strings.Trim(strings.TrimSpace(part), `"`)
		if name != "" {
			names = append(names, name)
		}
	}

	return names
}
