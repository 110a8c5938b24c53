package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/result"
	"github.com/kyleking/askdb/internal/testutil"
)

func TestSynthesize(t *testing.T) {
	tests := []struct {
		name        string
		res         ExecutionResult
		explanation string
		scalar      *result.Value
	}{
		{
			name:        "scalar",
			res:         ExecutionResult{Rows: testutil.NewResultSet("count").Row(int64(4)).Build()},
			explanation: "Found 1 row. The answer is 4 (count).",
			scalar:      ptr(result.Int(4)),
		},
		{
			name:        "zero rows",
			res:         ExecutionResult{Rows: testutil.NewResultSet("name").Build()},
			explanation: "No matching data was found.",
		},
		{
			name:        "aggregate over nothing is still a scalar",
			res:         ExecutionResult{Rows: testutil.NewResultSet("total").Row(nil).Build()},
			explanation: "Found 1 row. The answer is NULL (total).",
			scalar:      ptr(result.Null),
		},
		{
			name: "several rows",
			res: ExecutionResult{Rows: testutil.NewResultSet("name", "city").
				Row("Ahmed Mohamed", "Cairo").
				Row("Mona Ahmed", "Cairo").
				Build()},
			explanation: "Found 2 rows with columns name, city.",
		},
		{
			name:        "one row, several columns",
			res:         ExecutionResult{Rows: testutil.NewResultSet("name", "price").Row("iPhone", 25000.0).Build()},
			explanation: "Found 1 row with columns name, price.",
		},
		{
			name:        "mutation",
			res:         ExecutionResult{RowsAffected: 3},
			explanation: "The statement affected 3 rows.",
		},
		{
			name:        "insert",
			res:         ExecutionResult{RowsAffected: 1, LastInsertID: 5, HasLastInsertID: true},
			explanation: "The statement affected 1 row. Last inserted id: 5.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewSynthesizer(nil, true).Synthesize(context.Background(), "q", "", tt.res)

			assert.Equal(t, tt.explanation, out.Explanation)
			assert.Equal(t, tt.res, out.Result, "result is passed through untouched")
			assert.Equal(t, "q", out.Question)

			if tt.scalar == nil {
				assert.Nil(t, out.ScalarHint)
				return
			}

			require.NotNil(t, out.ScalarHint)
			assert.True(t, tt.scalar.Equal(*out.ScalarHint))
		})
	}
}

func TestSynthesizeNamesCountedSubject(t *testing.T) {
	count := func(n int64) ExecutionResult {
		return ExecutionResult{Rows: testutil.NewResultSet("count").Row(n).Build()}
	}

	tests := []struct {
		name        string
		question    string
		statement   string
		res         ExecutionResult
		explanation string
	}{
		{
			name:        "from the counted table",
			question:    "q",
			statement:   testutil.CountCustomersSQL,
			res:         count(4),
			explanation: "Found 1 row. The answer is 4 customers (count).",
		},
		{
			name:        "filtered and aliased table",
			question:    "q",
			statement:   "SELECT COUNT(*) FROM order_items AS oi WHERE oi.quantity > 1",
			res:         count(3),
			explanation: "Found 1 row. The answer is 3 order items (count).",
		},
		{
			name:        "singular",
			question:    "q",
			statement:   "SELECT COUNT(*) AS count FROM products WHERE price > 50000",
			res:         count(1),
			explanation: "Found 1 row. The answer is 1 product (count).",
		},
		{
			name:        "from the question when the statement joins",
			question:    "How many customers ordered a phone?",
			statement:   "SELECT COUNT(DISTINCT c.id) FROM customers c JOIN orders o ON o.customer_id = c.id",
			res:         count(2),
			explanation: "Found 1 row. The answer is 2 customers (count).",
		},
		{
			name:        "nothing to name",
			question:    "What is the largest order id?",
			statement:   "SELECT MAX(id) AS max FROM orders",
			res:         ExecutionResult{Rows: testutil.NewResultSet("max").Row(int64(4)).Build()},
			explanation: "Found 1 row. The answer is 4 (max).",
		},
		{
			name:        "only whole numbers are counted",
			question:    "How many dollars did we make?",
			statement:   "SELECT SUM(total_amount) AS total FROM orders",
			res:         ExecutionResult{Rows: testutil.NewResultSet("total").Row(1250.5).Build()},
			explanation: "Found 1 row. The answer is 1250.5 (total).",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewSynthesizer(nil, false).Synthesize(context.Background(), tt.question, tt.statement, tt.res)
			assert.Equal(t, tt.explanation, out.Explanation)
		})
	}
}

func TestSynthesizeNarration(t *testing.T) {
	rows := testutil.NewResultSet("city", "count").Row("Cairo", int64(2)).Row("Giza", int64(1)).Build()

	t.Run("narrative follows the deterministic text", func(t *testing.T) {
		completer := testutil.NewScriptedCompleter(testutil.WithNarration("  Cairo has the most\ncustomers. "))

		out := NewSynthesizer(completer, true).Synthesize(context.Background(), "customers per city", "", ExecutionResult{Rows: rows})

		assert.Equal(t, "Found 2 rows with columns city, count. Cairo has the most customers.", out.Explanation)
		assert.Equal(t, "Cairo has the most customers.", out.Narrative)

		prompts := completer.Prompts()
		require.Len(t, prompts, 1)
		assert.Equal(t, llm.TaskNarrate, prompts[0].Task)
		assert.Contains(t, prompts[0].User, "Cairo | 2")
	})

	t.Run("failure falls back", func(t *testing.T) {
		completer := testutil.NewScriptedCompleter(testutil.WithNarrationError(errors.New(errors.ErrTypeLLM, "down")))

		out := NewSynthesizer(completer, true).Synthesize(context.Background(), "q", "", ExecutionResult{Rows: rows})
		assert.Equal(t, "Found 2 rows with columns city, count.", out.Explanation)
		assert.Empty(t, out.Narrative)
	})

	t.Run("disabled", func(t *testing.T) {
		completer := testutil.NewScriptedCompleter(testutil.WithNarration("ignored"))

		out := NewSynthesizer(completer, false).Synthesize(context.Background(), "q", "", ExecutionResult{Rows: rows})
		assert.Empty(t, out.Narrative)
		assert.Zero(t, completer.Calls(llm.TaskNarrate))
	})

	t.Run("no narration for empty results", func(t *testing.T) {
		completer := testutil.NewScriptedCompleter(testutil.WithNarration("There is nothing."))

		out := NewSynthesizer(completer, true).Synthesize(context.Background(), "q", "", ExecutionResult{Rows: testutil.NewResultSet("x").Build()})
		assert.Equal(t, "No matching data was found.", out.Explanation)
		assert.Zero(t, completer.Calls(llm.TaskNarrate))
	})
}

func ptr[T any](v T) *T {
	return &v
}
