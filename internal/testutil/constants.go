// Package testutil provides common constants, mocks and fixtures for tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// ConcurrentRuns is how many pipeline runs concurrency tests start
	ConcurrentRuns = 8
)

// Facts about the seeded demo shop
const (
	DemoCustomerCount = 4
	DemoProductCount  = 4
	DemoOrderCount    = 4

	// DemoTotalSales is SUM(total_amount) over the sample orders
	DemoTotalSales = "40900"

	// DemoCairoCustomers is how many sample customers live in Cairo
	DemoCairoCustomers = 2
)

// Canned model replies used across pipeline tests
const (
	CountCustomersSQL = "SELECT COUNT(*) AS count FROM customers;"
	UnknownColumnSQL  = "SELECT COUNT(nickname) AS count FROM customers;"
	InjectedSQL       = "SELECT * FROM customers; DELETE FROM customers;"
	FencedCountSQL    = "```sql\nSELECT COUNT(*) FROM customers;\n```"
)

// HiddenStatements chain a DROP behind quoting that SQLite reads as one
// string but DuckDB reads as a string followed by another statement
var HiddenStatements = []string{
	"SELECT $$'$$; DROP TABLE orders; --'",
	"SELECT $q$'$q$; DROP TABLE orders; --'",
	`SELECT E'\''; DROP TABLE orders; --'`,
	"SELECT [']'; DROP TABLE orders; --",
}
