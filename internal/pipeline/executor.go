package pipeline

import (
	"context"
	"time"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/sqltext"
	"github.com/kyleking/askdb/internal/storage"
)

// Runner executes one statement against the store
type Runner interface {
	Run(ctx context.Context, statement string) (*storage.RunResult, error)
}

// Executor runs validated statements. It re-checks the statement count on
// its own so nothing it is handed can chain a second statement.
type Executor struct {
	runner Runner
}

// NewExecutor creates an executor over runner
func NewExecutor(runner Runner) *Executor {
	return &Executor{runner: runner}
}

// Execute runs exactly one statement. Store failures come back inside the
// ExecutionResult; the error return is reserved for cancellation, in which
// case any partial work has been rolled back.
func (e *Executor) Execute(ctx context.Context, statement string) (ExecutionResult, error) {
	if n := sqltext.Count(statement); n != 1 {
		if n == 0 {
			return ExecutionResult{Err: errors.New(errors.ErrTypeEmptyStatement, "statement is empty")}, nil
		}

		return ExecutionResult{Err: errors.Newf(errors.ErrTypeMultipleStatements, "refusing to run %d statements", n)}, nil
	}

	started := time.Now()

	out, err := e.runner.Run(ctx, statement)
	elapsed := time.Since(started)

	if err != nil {
		if errors.IsType(err, errors.ErrTypeCancelled) {
			return ExecutionResult{}, err
		}

		var typed *errors.Error
		if !errors.As(err, &typed) || typed.Type != errors.ErrTypeExecution {
			typed = errors.Wrap(err, errors.ErrTypeExecution, "statement failed")
		}

		return ExecutionResult{Err: typed, Duration: elapsed}, nil
	}

	return ExecutionResult{
		Rows:            out.Rows,
		RowsAffected:    out.RowsAffected,
		LastInsertID:    out.LastInsertID,
		HasLastInsertID: out.HasLastInsertID,
		Duration:        elapsed,
	}, nil
}
