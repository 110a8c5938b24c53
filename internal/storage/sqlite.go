package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/kyleking/askdb/internal/schema"
	_ "modernc.org/sqlite" // SQLite driver
)

// OpenSQLite opens a SQLite store at path. An in-memory database is
// pinned to one connection so every statement sees the same data.
func OpenSQLite(path string, maxConns int, queryTimeout time.Duration) (*SQLStore, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	location := path
	if isMemory(path) {
		location = ":memory:"
	}

	db, err := sql.Open("sqlite", location+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isMemory(path) || maxConns <= 0 {
		maxConns = 1
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if isMemory(path) {
		// closing the only connection would drop the database
		db.SetConnMaxIdleTime(0)
		db.SetConnMaxLifetime(0)
	}

	return newSQLStore(db, path, queryTimeout, dialectOps{
		dialect:  DialectSQLite,
		explain:  func(statement string) string { return "EXPLAIN QUERY PLAN " + statement },
		describe: describeSQLite,
	})
}

func describeSQLite(ctx context.Context, db *sql.DB) ([]schema.Table, error) {
	// names are collected before the per-table pragmas so a single-connection
	// pool never needs a second connection
	rows, err := db.QueryContext(ctx, `
		SELECT name
		FROM sqlite_master
		WHERE type IN ('table', 'view')
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
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

		if table.Columns, table.PrimaryKey, err = sqliteColumns(ctx, db, name); err != nil {
			return nil, fmt.Errorf("failed to introspect columns for %s: %w", name, err)
		}

		if table.ForeignKeys, err = sqliteForeignKeys(ctx, db, name); err != nil {
			return nil, fmt.Errorf("failed to introspect foreign keys for %s: %w", name, err)
		}

		tables = append(tables, table)
	}

	return tables, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, table string) ([]schema.Column, []string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	type pkColumn struct {
		name string
		pos  int
	}

	var (
		columns []schema.Column
		pks     []pkColumn
	)

	for rows.Next() {
		var (
			cid       int
			col       schema.Column
			colType   sql.NullString
			notNull   int
			dfltValue sql.NullString
			pk        int
		)

		if err := rows.Scan(&cid, &col.Name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col.Type = colType.String
		col.Nullable = notNull == 0 && pk == 0
		col.PrimaryKey = pk > 0

		if pk > 0 {
			pks = append(pks, pkColumn{name: col.Name, pos: pk})
		}

		columns = append(columns, col)
	}

	sort.Slice(pks, func(i, j int) bool { return pks[i].pos < pks[j].pos })

	primaryKey := make([]string, 0, len(pks))
	for _, pk := range pks {
		primaryKey = append(primaryKey, pk.name)
	}

	return columns, primaryKey, rows.Err()
}

func sqliteForeignKeys(ctx context.Context, db *sql.DB, table string) ([]schema.ForeignKey, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		fks   []schema.ForeignKey
		index = map[int]int{}
	)

	for rows.Next() {
		var (
			id, seq                   int
			refTable, from            string
			to                        sql.NullString
			onUpdate, onDelete, match string
		)

		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}

		i, ok := index[id]
		if !ok {
			i = len(fks)
			index[id] = i
			fks = append(fks, schema.ForeignKey{RefTable: refTable})
		}

		fks[i].Columns = append(fks[i].Columns, from)
		fks[i].RefColumns = append(fks[i].RefColumns, to.String)
	}

	return fks, rows.Err()
}
