package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// NewTestStore opens an empty in-memory SQLite store that is closed when
// the test ends.
func NewTestStore(t testing.TB) *SQLStore {
	t.Helper()

	store, err := OpenSQLite(":memory:", 1, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test store: %v", err)
		}
	})

	return store
}

// NewSeededTestStore opens an in-memory SQLite store holding the demo
// customers, products and orders.
func NewSeededTestStore(t testing.TB) *SQLStore {
	t.Helper()

	store := NewTestStore(t)

	if _, err := Seed(context.Background(), store); err != nil {
		t.Fatalf("failed to seed test store: %v", err)
	}

	return store
}

// NewFileTestStore opens a seeded SQLite store in a temporary file, for
// tests that need a pool of more than one connection.
func NewFileTestStore(t testing.TB) *SQLStore {
	t.Helper()

	store, err := OpenSQLite(filepath.Join(t.TempDir(), "test.sqlite"), 4, 5*time.Second)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })

	if _, err := Seed(context.Background(), store); err != nil {
		t.Fatalf("failed to seed test store: %v", err)
	}

	return store
}

// NewDuckDBTestStore opens a seeded DuckDB store in a temporary file
func NewDuckDBTestStore(t testing.TB) *SQLStore {
	t.Helper()

	store, err := OpenDuckDB(filepath.Join(t.TempDir(), "shop.duckdb"), 4, 10*time.Second)
	if err != nil {
		t.Fatalf("failed to open duckdb test store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })

	if _, err := Seed(context.Background(), store); err != nil {
		t.Fatalf("failed to seed duckdb test store: %v", err)
	}

	return store
}
