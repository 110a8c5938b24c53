package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/storage"
	"github.com/kyleking/askdb/internal/testutil"
)

// countingPlanner records plan checks and returns err
type countingPlanner struct {
	calls int
	err   error
}

func (p *countingPlanner) PlanCheck(context.Context, string) error {
	p.calls++
	return p.err
}

func TestValidate(t *testing.T) {
	store := storage.NewSeededTestStore(t)
	validator := NewValidator(store)

	tests := []struct {
		name      string
		statement string
		errType   errors.ErrorType
	}{
		{"count", testutil.CountCustomersSQL, ""},
		{"join", "SELECT c.name, o.total_amount FROM orders o JOIN customers c ON c.id = o.customer_id", ""},
		{"mutation plans without running", "DELETE FROM customers WHERE id = 4", ""},
		{"empty", "   ", errors.ErrTypeEmptyStatement},
		{"comment only", "-- nothing here", errors.ErrTypeEmptyStatement},
		{"chained", testutil.InjectedSQL, errors.ErrTypeMultipleStatements},
		{"chained behind comment", "SELECT 1; /* then */ DROP TABLE orders", errors.ErrTypeMultipleStatements},
		{"unknown column", testutil.UnknownColumnSQL, errors.ErrTypeUnknownIdentifier},
		{"unknown table", "SELECT * FROM employees", errors.ErrTypeUnknownIdentifier},
		{"syntax", "SELECT FROM WHERE", errors.ErrTypeSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := validator.Validate(context.Background(), tt.statement)
			require.NoError(t, err)

			if tt.errType == "" {
				assert.True(t, outcome.Valid, outcome.Reason())
				assert.Empty(t, outcome.Reason())

				return
			}

			assert.False(t, outcome.Valid)
			require.NotNil(t, outcome.Err)
			assert.Equal(t, tt.errType, outcome.Err.Type)
			assert.NotEmpty(t, outcome.Reason())
		})
	}

	out, err := store.Run(context.Background(), "SELECT COUNT(*) AS count FROM customers")
	require.NoError(t, err)

	v, _ := out.Rows.Scalar()
	assert.EqualValues(t, testutil.DemoCustomerCount, v.Int, "validation never mutates")
}

func TestValidateDuckDB(t *testing.T) {
	store := storage.NewDuckDBTestStore(t)
	validator := NewValidator(store)
	ctx := context.Background()

	outcome, err := validator.Validate(ctx, testutil.CountCustomersSQL)
	require.NoError(t, err)
	assert.True(t, outcome.Valid, outcome.Reason())

	outcome, err = validator.Validate(ctx, "DELETE FROM orders")
	require.NoError(t, err)
	assert.True(t, outcome.Valid, outcome.Reason())

	for _, statement := range append([]string{testutil.InjectedSQL}, testutil.HiddenStatements...) {
		t.Run(statement, func(t *testing.T) {
			outcome, err := validator.Validate(ctx, statement)
			require.NoError(t, err)
			assert.False(t, outcome.Valid)
			require.NotNil(t, outcome.Err)
			assert.Equal(t, errors.ErrTypeMultipleStatements, outcome.Err.Type)
		})
	}

	assert.EqualValues(t, testutil.DemoOrderCount, countOf(t, store, "orders"), "validation never mutates")
}

func TestValidateRejectsBeforePlanning(t *testing.T) {
	planner := &countingPlanner{}
	validator := NewValidator(planner)

	outcome, err := validator.Validate(context.Background(), testutil.InjectedSQL)
	require.NoError(t, err)
	assert.False(t, outcome.Valid)
	assert.Equal(t, "multiple statements: expected one statement, got 2", outcome.Reason())
	assert.Zero(t, planner.calls)
}

func TestValidateUntypedPlannerError(t *testing.T) {
	validator := NewValidator(&countingPlanner{err: assert.AnError})

	outcome, err := validator.Validate(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.False(t, outcome.Valid)
	assert.Equal(t, errors.ErrTypeSyntax, outcome.Err.Type)
}

func TestValidateCancelled(t *testing.T) {
	planner := &countingPlanner{}
	validator := NewValidator(planner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := validator.Validate(ctx, "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeCancelled))
	assert.Zero(t, planner.calls)
}
