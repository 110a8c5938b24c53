// Package storage runs single SQL statements against the persistent store
// and reports its schema.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kyleking/askdb/internal/config"
	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/result"
	"github.com/kyleking/askdb/internal/schema"
	"github.com/kyleking/askdb/internal/sqltext"
)

// Dialect names a supported backend
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectDuckDB Dialect = "duckdb"
)

const defaultQueryTimeout = 30 * time.Second

// Store is the persistent store the pipeline runs against
type Store interface {
	schema.Provider

	// PlanCheck asks the backend to plan statement without running it
	PlanCheck(ctx context.Context, statement string) error

	// Run executes a single statement in its own transaction
	Run(ctx context.Context, statement string) (*RunResult, error)

	Dialect() Dialect
	DB() *sql.DB
	Close() error
}

// RunResult is what running one statement produced. Rows is set for
// statements that return rows; the counters are set otherwise.
type RunResult struct {
	Rows            *result.ResultSet
	RowsAffected    int64
	LastInsertID    int64
	HasLastInsertID bool
}

// dialectOps holds what differs between backends
type dialectOps struct {
	dialect  Dialect
	explain  func(statement string) string
	describe func(ctx context.Context, db *sql.DB) ([]schema.Table, error)
}

// SQLStore implements Store over database/sql
type SQLStore struct {
	db           *sql.DB
	path         string
	queryTimeout time.Duration
	ops          dialectOps
}

// Open opens the store described by cfg
func Open(cfg config.DatabaseConfig) (*SQLStore, error) {
	timeout := defaultQueryTimeout

	if cfg.QueryTimeout != "" {
		d, err := time.ParseDuration(cfg.QueryTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid query_timeout: %w", err)
		}

		timeout = d
	}

	path := config.ExpandPath(cfg.Path)

	switch Dialect(strings.ToLower(cfg.Driver)) {
	case DialectSQLite, "":
		return OpenSQLite(path, cfg.MaxConnections, timeout)
	case DialectDuckDB:
		return OpenDuckDB(path, cfg.MaxConnections, timeout)
	default:
		return nil, errors.NewConfigError("unsupported database driver "+cfg.Driver, "database.driver")
	}
}

func isMemory(path string) bool {
	return path == "" || path == ":memory:"
}

func ensureDir(path string) error {
	if isMemory(path) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	return nil
}

func newSQLStore(db *sql.DB, path string, timeout time.Duration, ops dialectOps) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to ping database")
	}

	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	return &SQLStore{db: db, path: path, queryTimeout: timeout, ops: ops}, nil
}

// Dialect returns the backend dialect
func (s *SQLStore) Dialect() Dialect { return s.ops.dialect }

// DB exposes the underlying handle for migrations and tests
func (s *SQLStore) DB() *sql.DB { return s.db }

// Path returns the database location
func (s *SQLStore) Path() string { return s.path }

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Describe reports tables and views in backend order
func (s *SQLStore) Describe(ctx context.Context) (*schema.Descriptor, error) {
	tables, err := s.ops.describe(ctx, s.db)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to describe schema")
	}

	return &schema.Descriptor{Dialect: string(s.ops.dialect), Tables: tables}, nil
}

// PlanCheck plans statement without executing it. Failures are typed as
// unknown identifiers or syntax errors. The plan runs on its own
// connection inside a transaction that is always rolled back.
func (s *SQLStore) PlanCheck(ctx context.Context, statement string) error {
	if err := requireSingle(statement); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to acquire connection")
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, s.ops.explain(statement))
	if err != nil {
		return ClassifyPlanError(ctx, err)
	}
	defer rows.Close()

	for rows.Next() { //nolint:revive // drain the plan
	}

	if err := rows.Err(); err != nil {
		return ClassifyPlanError(ctx, err)
	}

	return nil
}

// requireSingle refuses text that holds anything but one statement.
// Backend drivers run every statement they find in the text they are given.
func requireSingle(statement string) error {
	switch n := sqltext.Count(statement); n {
	case 1:
		return nil
	case 0:
		return errors.New(errors.ErrTypeEmptyStatement, "statement is empty")
	default:
		return errors.Newf(errors.ErrTypeMultipleStatements, "refusing to run %d statements", n)
	}
}

// ClassifyPlanError maps a backend planning error onto the error taxonomy
func ClassifyPlanError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Wrap(ctxErr, errors.ErrTypeCancelled, "plan check abandoned")
	}

	msg := strings.ToLower(err.Error())

	for _, marker := range unknownIdentifierMarkers {
		if strings.Contains(msg, marker) {
			return errors.Wrap(err, errors.ErrTypeUnknownIdentifier, "statement references an unknown table or column")
		}
	}

	return errors.Wrap(err, errors.ErrTypeSyntax, "statement is not valid SQL")
}

var unknownIdentifierMarkers = []string{
	"no such table",
	"no such column",
	"no such function",
	"ambiguous column",
	"catalog error",
	"binder error",
	"does not exist",
	"not found in from clause",
}

// Run executes one statement. The backend call runs on a context that
// outlives ctx, bounded by the query timeout, inside its own transaction;
// if ctx ends first the transaction is rolled back and the result dropped.
func (s *SQLStore) Run(ctx context.Context, statement string) (*RunResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeCancelled, "run abandoned before execution")
	}

	if err := requireSingle(statement); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.queryTimeout)
	defer cancel()

	conn, err := s.db.Conn(runCtx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to acquire connection")
	}
	defer conn.Close()

	tx, err := conn.BeginTx(runCtx, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeDatabase, "failed to begin transaction")
	}

	defer func() { _ = tx.Rollback() }()

	var out *RunResult

	if sqltext.ReturnsRows(statement) {
		out, err = queryRows(runCtx, tx, statement)
	} else {
		out, err = execStatement(runCtx, tx, statement)
	}

	if err != nil {
		if runCtx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrTypeExecution, "statement exceeded query timeout")
		}

		return nil, errors.Wrap(err, errors.ErrTypeExecution, "statement failed")
	}

	if err := ctx.Err(); err != nil {
		logging.FromContext(ctx).Debug("caller went away, rolling back")
		return nil, errors.Wrap(err, errors.ErrTypeCancelled, "run abandoned during execution")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeExecution, "failed to commit")
	}

	return out, nil
}

func queryRows(ctx context.Context, tx *sql.Tx, statement string) (*RunResult, error) {
	rows, err := tx.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set, err := result.Scan(rows)
	if err != nil {
		return nil, err
	}

	return &RunResult{Rows: set}, nil
}

func execStatement(ctx context.Context, tx *sql.Tx, statement string) (*RunResult, error) {
	res, err := tx.ExecContext(ctx, statement)
	if err != nil {
		return nil, err
	}

	out := &RunResult{}

	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}

	switch sqltext.FirstKeyword(statement) {
	case "INSERT", "REPLACE":
	default:
		return out, nil
	}

	if id, err := res.LastInsertId(); err == nil && id > 0 {
		out.LastInsertID = id
		out.HasLastInsertID = true
	}

	return out, nil
}

// quoteIdent quotes a table name for use in PRAGMA and catalog queries
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// internalTables are bookkeeping tables hidden from the descriptor
var internalTables = map[string]bool{
	migrationTable: true,
}
