package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/errors"
)

func TestFallbackService_Complete(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"How many customers are there?", "SELECT COUNT(*) AS count FROM customers;"},
		{"How many customers in Cairo?", "SELECT COUNT(*) AS count FROM customers WHERE city = 'Cairo';"},
		{"What is the total amount of all orders?", "SELECT SUM(total_amount) AS total FROM orders;"},
		{"Show the average price of products", "SELECT AVG(price) AS average FROM products;"},
		{"What is the most expensive product?", "SELECT * FROM products ORDER BY price DESC LIMIT 1;"},
		{"Top 3 products by price", "SELECT * FROM products ORDER BY price DESC LIMIT 3;"},
		{"Cheapest product in Books", "SELECT * FROM products WHERE category = 'Books' ORDER BY price ASC LIMIT 1;"},
		{"List products in Electronics", "SELECT * FROM products WHERE category = 'Electronics' LIMIT 100;"},
		{"show me the orders", "SELECT * FROM orders LIMIT 100;"},
	}

	f := NewFallbackService()

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got, err := f.Complete(context.Background(), Prompt{Task: TaskSQL, Question: tt.question, Schema: demoSchema()})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFallbackService_Unanswerable(t *testing.T) {
	f := NewFallbackService()

	tests := []struct {
		name   string
		prompt Prompt
	}{
		{"no table mentioned", Prompt{Task: TaskSQL, Question: "What's the weather like?", Schema: demoSchema()}},
		{"no schema", Prompt{Task: TaskSQL, Question: "How many customers?"}},
		{"blank question", Prompt{Task: TaskSQL, Question: "  ", Schema: demoSchema()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Complete(context.Background(), tt.prompt)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeLLM))
		})
	}
}

func TestFallbackService_NeverNarrates(t *testing.T) {
	text, err := NewFallbackService().Complete(context.Background(), Prompt{Task: TaskNarrate, Question: "How many customers?"})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestFallbackService_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFallbackService().Complete(ctx, Prompt{Task: TaskSQL, Question: "How many customers?", Schema: demoSchema()})
	assert.True(t, errors.IsType(err, errors.ErrTypeCancelled))
}
