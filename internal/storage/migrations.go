package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/kyleking/askdb/internal/logging"
)

const migrationTable = "schema_migrations"

// Migration is one versioned step of the demo database bootstrap
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationStatus reports whether a migration has been applied
type MigrationStatus struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
	Applied     bool   `json:"applied"`
}

// MigrationManager applies and rolls back migrations, recording applied
// versions in schema_migrations
type MigrationManager struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrationManager creates a manager for migrations, applied in version order
func NewMigrationManager(db *sql.DB, migrations []Migration) *MigrationManager {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	return &MigrationManager{db: db, migrations: sorted}
}

// DemoMigrations creates the sample shop schema (customers, products,
// orders) and loads its sample rows. Re-running the seed step replaces
// the sample rows rather than duplicating them.
func DemoMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create customers, products and orders",
			Up: `
				CREATE TABLE IF NOT EXISTS customers (
					id INTEGER PRIMARY KEY,
					name TEXT NOT NULL,
					email TEXT UNIQUE,
					phone TEXT,
					city TEXT,
					registration_date DATE
				);

				CREATE TABLE IF NOT EXISTS products (
					id INTEGER PRIMARY KEY,
					name TEXT NOT NULL,
					category TEXT,
					price DECIMAL(10,2),
					stock_quantity INTEGER
				);

				CREATE TABLE IF NOT EXISTS orders (
					id INTEGER PRIMARY KEY,
					customer_id INTEGER,
					product_id INTEGER,
					quantity INTEGER,
					order_date DATE,
					total_amount DECIMAL(10,2),
					FOREIGN KEY (customer_id) REFERENCES customers(id),
					FOREIGN KEY (product_id) REFERENCES products(id)
				);
			`,
			Down: `
				DROP TABLE IF EXISTS orders;
				DROP TABLE IF EXISTS products;
				DROP TABLE IF EXISTS customers;
			`,
		},
		{
			Version:     2,
			Description: "Load sample rows",
			Up: `
				INSERT OR REPLACE INTO customers VALUES
					(1, 'Ahmed Mohamed', 'ahmed@email.com', '01234567890', 'Cairo', '2024-01-15'),
					(2, 'Fatma Ali', 'fatma@email.com', '01234567891', 'Alexandria', '2024-02-20'),
					(3, 'Mahmoud Hassan', 'mahmoud@email.com', '01234567892', 'Giza', '2024-03-10'),
					(4, 'Mona Ahmed', 'mona@email.com', '01234567893', 'Cairo', '2024-04-05');

				INSERT OR REPLACE INTO products VALUES
					(1, 'Dell Laptop', 'Electronics', 15000.00, 50),
					(2, 'iPhone', 'Electronics', 25000.00, 30),
					(3, 'Programming Book', 'Books', 200.00, 100),
					(4, 'Bluetooth Headphones', 'Electronics', 500.00, 75);

				INSERT OR REPLACE INTO orders VALUES
					(1, 1, 1, 1, '2024-01-20', 15000.00),
					(2, 2, 2, 1, '2024-02-25', 25000.00),
					(3, 1, 3, 2, '2024-03-15', 400.00),
					(4, 3, 4, 1, '2024-04-10', 500.00);
			`,
			Down: `
				DELETE FROM orders WHERE id BETWEEN 1 AND 4;
				DELETE FROM products WHERE id BETWEEN 1 AND 4;
				DELETE FROM customers WHERE id BETWEEN 1 AND 4;
			`,
		},
	}
}

// Migrations returns the managed migrations in version order
func (m *MigrationManager) Migrations() []Migration {
	return m.migrations
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS `+migrationTable+` (
		version INTEGER PRIMARY KEY,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`)
	if err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns applied versions in ascending order
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM "+migrationTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// apply runs one migration step and its bookkeeping in a single transaction
func (m *MigrationManager) apply(ctx context.Context, migration Migration, up bool) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	body, record := migration.Down, "DELETE FROM "+migrationTable+" WHERE version = ?"
	args := []any{migration.Version}

	if up {
		body, record = migration.Up, "INSERT INTO "+migrationTable+" (version, description) VALUES (?, ?)"
		args = append(args, migration.Description)
	}

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations and returns how many ran
func (m *MigrationManager) MigrateUp(ctx context.Context) (int, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.appliedSet(ctx)
	if err != nil {
		return 0, err
	}

	count := 0

	for _, migration := range m.migrations {
		if applied[migration.Version] {
			continue
		}

		logging.WithFields(map[string]any{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("applying migration")

		if err := m.apply(ctx, migration, true); err != nil {
			return count, fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}

		count++
	}

	return count, nil
}

// MigrateDown rolls back every applied migration above targetVersion
func (m *MigrationManager) MigrateDown(ctx context.Context, targetVersion int) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	byVersion := make(map[int]Migration, len(m.migrations))
	for _, migration := range m.migrations {
		byVersion[migration.Version] = migration
	}

	sort.Sort(sort.Reverse(sort.IntSlice(appliedVersions)))

	for _, version := range appliedVersions {
		if version <= targetVersion {
			break
		}

		migration, exists := byVersion[version]
		if !exists {
			return fmt.Errorf("migration %d not found", version)
		}

		logging.WithField("version", version).Info("rolling back migration")

		if err := m.apply(ctx, migration, false); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", version, err)
		}
	}

	return nil
}

// Status reports every managed migration in version order
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.appliedSet(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]MigrationStatus, 0, len(m.migrations))
	for _, migration := range m.migrations {
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     applied[migration.Version],
		})
	}

	return status, nil
}

func (m *MigrationManager) appliedSet(ctx context.Context) (map[int]bool, error) {
	versions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	set := make(map[int]bool, len(versions))
	for _, v := range versions {
		set[v] = true
	}

	return set, nil
}

// Seed applies the demo migrations to store
func Seed(ctx context.Context, store Store) (int, error) {
	return NewMigrationManager(store.DB(), DemoMigrations()).MigrateUp(ctx)
}

// ResetDemo rolls the demo migrations back and applies them again
func ResetDemo(ctx context.Context, store Store) error {
	manager := NewMigrationManager(store.DB(), DemoMigrations())

	if err := manager.MigrateDown(ctx, 0); err != nil {
		return err
	}

	_, err := manager.MigrateUp(ctx)

	return err
}
