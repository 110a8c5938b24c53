package sqltext

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeRoundTrips(t *testing.T) {
	inputs := []string{
		"SELECT * FROM customers;",
		"SELECT 'it''s; fine' AS s -- trailing; comment\nFROM t",
		"/* block; comment */ SELECT \"weird;col\" FROM [my table]",
		"SELECT 'unterminated; DELETE FROM t",
		"select ?, :name, @p, $1 from t where a <> 1 and b >= 2.5e3",
		"SELECT 'ümlaut', naïve FROM t",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			tokens, err := Tokenize(input)
			require.NoError(t, err)

			var b strings.Builder
			for _, tok := range tokens {
				b.WriteString(tok.Text)
			}

			assert.Equal(t, input, b.String())
		})
	}
}

func TestTokenKinds(t *testing.T) {
	tokens, err := Tokenize("SELECT 'a', x -- c\n;")
	require.NoError(t, err)

	var kinds []TokenKind
	for _, tok := range tokens {
		kinds = append(kinds, tok.Kind)
	}

	assert.Equal(t, []TokenKind{
		TokenWord, TokenSpace, TokenString, TokenPunct, TokenSpace,
		TokenWord, TokenSpace, TokenComment, TokenSpace, TokenSemicolon,
	}, kinds)
	assert.Equal(t, "SELECT", tokens[0].Keyword())
	assert.Equal(t, "", tokens[2].Keyword())
}

func TestSplitAndCount(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected []string
	}{
		{"single", "SELECT 1", []string{"SELECT 1"}},
		{"single with semicolon", "SELECT 1;", []string{"SELECT 1"}},
		{"trailing whitespace and comment", "SELECT 1;  -- done\n", []string{"SELECT 1"}},
		{"injected delete", "SELECT * FROM customers; DELETE FROM customers", []string{
			"SELECT * FROM customers", "DELETE FROM customers",
		}},
		{"semicolon in string", "SELECT ';' AS s", []string{"SELECT ';' AS s"}},
		{"semicolon in quoted identifier", `SELECT "a;b" FROM t`, []string{`SELECT "a;b" FROM t`}},
		{"semicolon in comment", "SELECT 1 /* ; */", []string{"SELECT 1 /* ; */"}},
		{"empty fragments", ";;  ;", nil},
		{"only comment", "-- nothing here", nil},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statements, err := Split(tt.sql)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, statements)
			assert.Equal(t, len(tt.expected), Count(tt.sql))
		})
	}
}

func TestCountDialects(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		sqlite int
		duckdb int
	}{
		{"plain", "SELECT 1", 1, 1},
		{"dollar quote hides a drop from sqlite", "SELECT $$'$$; DROP TABLE orders; --'", 1, 2},
		{"tagged dollar quote", "SELECT $q$'$q$; DROP TABLE orders; --'", 1, 2},
		{"mismatched tags run to the end", "SELECT $a$ ; $b$; DROP TABLE orders", 3, 1},
		{"escape string", `SELECT E'\''; DROP TABLE orders; --'`, 1, 2},
		{"escaped backslash", `SELECT E'\\'; SELECT 2`, 2, 2},
		{"brackets are a list in duckdb", "SELECT [']'; DROP TABLE orders; --", 1, 2},
		{"dollar string holding a semicolon", "SELECT $$a;b$$", 2, 1},
		{"positional parameter", "SELECT $1", 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.sqlite, CountDialect(tt.sql, DialectSQLite))
			assert.Equal(t, tt.duckdb, CountDialect(tt.sql, DialectDuckDB))
			assert.Equal(t, max(tt.sqlite, tt.duckdb), Count(tt.sql), "the largest count wins")
		})
	}
}

func TestTokenizeDuckDB(t *testing.T) {
	inputs := []string{
		"SELECT $$'$$; DROP TABLE orders; --'",
		"SELECT $tag$ body $$ still body $tag$ || 'x'",
		"SELECT $open$ never closed; DELETE",
		`SELECT E'it\'s', [1, 2] FROM t`,
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			tokens, err := TokenizeDialect(input, DialectDuckDB)
			require.NoError(t, err)

			var b strings.Builder
			for _, tok := range tokens {
				assert.NotEqual(t, tokenDollarTag, tok.Kind)
				assert.Equal(t, tok.Text, input[tok.Offset:tok.Offset+len(tok.Text)])
				b.WriteString(tok.Text)
			}

			assert.Equal(t, input, b.String())
		})
	}

	tokens, err := TokenizeDialect("SELECT $tag$ a; b $tag$", DialectDuckDB)
	require.NoError(t, err)
	require.Len(t, tokens, 3)
	assert.Equal(t, TokenString, tokens[2].Kind)
	assert.Equal(t, "$tag$ a; b $tag$", tokens[2].Text)
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty("   \n\t"))
	assert.True(t, IsEmpty("-- just a comment"))
	assert.True(t, IsEmpty(";"))
	assert.False(t, IsEmpty("SELECT 1"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		sql      string
		expected Kind
	}{
		{"SELECT * FROM customers", KindSelect},
		{"  select 1", KindSelect},
		{"(SELECT 1) UNION (SELECT 2)", KindSelect},
		{"VALUES (1), (2)", KindSelect},
		{"-- leading comment\nSELECT 1", KindSelect},
		{"WITH c AS (SELECT * FROM orders) SELECT COUNT(*) FROM c", KindSelect},
		{"WITH c AS (SELECT replace(name, 'a', 'b') AS n FROM t) SELECT replace(n, 'x', 'y') FROM c", KindSelect},
		{"WITH c AS (SELECT id FROM t) DELETE FROM t WHERE id IN (SELECT id FROM c)", KindDML},
		{"INSERT INTO customers (name) VALUES ('x')", KindDML},
		{"UPDATE products SET price = 1", KindDML},
		{"DELETE FROM orders", KindDML},
		{"REPLACE INTO t VALUES (1)", KindDML},
		{"CREATE TABLE t (id INTEGER)", KindOther},
		{"DROP TABLE customers", KindOther},
		{"PRAGMA table_info(customers)", KindOther},
		{"", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.sql))
		})
	}
}

func TestReturnsRows(t *testing.T) {
	assert.True(t, ReturnsRows("SELECT 1"))
	assert.True(t, ReturnsRows("PRAGMA table_info(customers)"))
	assert.True(t, ReturnsRows("EXPLAIN QUERY PLAN SELECT 1"))
	assert.True(t, ReturnsRows("INSERT INTO t (a) VALUES (1) RETURNING id"))
	assert.False(t, ReturnsRows("INSERT INTO t (a) VALUES (1)"))
	assert.False(t, ReturnsRows("CREATE TABLE t (id INTEGER)"))
}

func TestFirstKeyword(t *testing.T) {
	assert.Equal(t, "SELECT", FirstKeyword("  /* x */ select 1"))
	assert.Equal(t, "", FirstKeyword("'literal'"))
	assert.Equal(t, "", FirstKeyword(""))
}

func TestCleanCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"sql fence", "```sql\nSELECT 1;\n```", "SELECT 1;"},
		{"upper-case sql fence", "Here you go:\n```SQL\nSELECT 2\n```\nDone.", "SELECT 2"},
		{"bare fence", "```\nSELECT 3\n```", "SELECT 3"},
		{"unclosed fence", "```sql\nSELECT 4", "SELECT 4"},
		{"no fence", "  SELECT 5  \n", "SELECT 5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanCodeFences(tt.input))
		})
	}
}

func TestEnsureAliases(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			"count star",
			"SELECT COUNT(*) FROM customers;",
			"SELECT COUNT(*) AS count FROM customers;",
		},
		{
			"grouped sum",
			"SELECT c.city, SUM(o.total_amount) FROM orders o JOIN customers c ON c.id = o.customer_id GROUP BY c.city",
			"SELECT c.city, SUM(o.total_amount) AS total FROM orders o JOIN customers c ON c.id = o.customer_id GROUP BY c.city",
		},
		{
			"all aggregates",
			"select avg(price), min(price), max(price) from products",
			"select avg(price) AS average, min(price) AS min, max(price) AS max from products",
		},
		{
			"repeated alias",
			"SELECT COUNT(*), COUNT(DISTINCT city) FROM customers",
			"SELECT COUNT(*) AS count, COUNT(DISTINCT city) AS count_2 FROM customers",
		},
		{
			"explicit alias taken",
			"SELECT COUNT(*) AS count, COUNT(DISTINCT city) FROM customers",
			"SELECT COUNT(*) AS count, COUNT(DISTINCT city) AS count_2 FROM customers",
		},
		{
			"later alias taken",
			"SELECT COUNT(DISTINCT city), COUNT(*) AS count FROM customers",
			"SELECT COUNT(DISTINCT city) AS count_2, COUNT(*) AS count FROM customers",
		},
		{
			"column name taken",
			"SELECT o.total, SUM(o.total_amount) FROM orders o",
			"SELECT o.total, SUM(o.total_amount) AS total_2 FROM orders o",
		},
		{
			"quoted alias taken",
			`SELECT MAX(price) AS "max", MAX(id) FROM products`,
			`SELECT MAX(price) AS "max", MAX(id) AS max_2 FROM products`,
		},
		{
			"already aliased",
			"SELECT COUNT(*) AS n FROM customers",
			"SELECT COUNT(*) AS n FROM customers",
		},
		{
			"bare alias",
			"SELECT COUNT(*) n FROM customers",
			"SELECT COUNT(*) n FROM customers",
		},
		{
			"part of expression",
			"SELECT COUNT(*) + 1 FROM customers",
			"SELECT COUNT(*) + 1 FROM customers",
		},
		{
			"order by aggregate untouched",
			"SELECT city FROM customers GROUP BY city ORDER BY COUNT(*)",
			"SELECT city FROM customers GROUP BY city ORDER BY COUNT(*)",
		},
		{
			"having untouched",
			"SELECT city, COUNT(*) FROM customers GROUP BY city HAVING COUNT(*) > 1",
			"SELECT city, COUNT(*) AS count FROM customers GROUP BY city HAVING COUNT(*) > 1",
		},
		{
			"subquery untouched",
			"SELECT name FROM products WHERE price = (SELECT MAX(price) FROM products)",
			"SELECT name FROM products WHERE price = (SELECT MAX(price) FROM products)",
		},
		{
			"no from",
			"SELECT MAX(1, 2)",
			"SELECT MAX(1, 2) AS max",
		},
		{
			"not a select",
			"DELETE FROM orders WHERE id = 1",
			"DELETE FROM orders WHERE id = 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, EnsureAliases(tt.input))
		})
	}
}

func TestCountSubject(t *testing.T) {
	for sql, expected := range map[string]string{
		"SELECT COUNT(*) FROM customers":                                "customers",
		"select count(*) as n from Customers;":                          "customers",
		"SELECT COUNT(id) count FROM main.orders WHERE status = 'paid'": "orders",
		`SELECT COUNT(*) FROM "order_items" oi LIMIT 1`:                 "order items",
		"SELECT COUNT(*) FROM orders o JOIN customers c ON c.id = o.id": "",
		"SELECT COUNT(*) FROM orders, customers":                        "",
		"SELECT city, COUNT(*) FROM customers GROUP BY city":            "",
		"SELECT COUNT(*) FROM customers GROUP BY city":                  "",
		"SELECT COUNT(*) + 1 FROM customers":                            "",
		"SELECT MAX(id) FROM orders":                                    "",
		"SELECT COUNT(*) FROM (SELECT 1)":                               "",
		"DELETE FROM customers":                                         "",
	} {
		assert.Equal(t, expected, CountSubject(sql), sql)
	}
}
