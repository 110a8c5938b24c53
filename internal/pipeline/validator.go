package pipeline

import (
	"context"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/sqltext"
)

// Planner checks a statement without running it
type Planner interface {
	PlanCheck(ctx context.Context, statement string) error
}

// Validator statically checks candidate statements
type Validator struct {
	planner Planner
}

// NewValidator creates a validator that plans statements on planner
func NewValidator(planner Planner) *Validator {
	return &Validator{planner: planner}
}

// Validate rejects empty and multi-statement input before asking the
// backend for a plan. It never mutates the store. A cancelled context is
// returned as an error rather than as an invalid outcome.
func (v *Validator) Validate(ctx context.Context, statement string) (ValidationOutcome, error) {
	if sqltext.IsEmpty(statement) {
		return invalid(errors.New(errors.ErrTypeEmptyStatement, "statement is empty")), nil
	}

	if n := sqltext.Count(statement); n > 1 {
		return invalid(errors.Newf(errors.ErrTypeMultipleStatements, "expected one statement, got %d", n)), nil
	}

	if err := ctx.Err(); err != nil {
		return ValidationOutcome{}, errors.Wrap(err, errors.ErrTypeCancelled, "validation abandoned")
	}

	if err := v.planner.PlanCheck(ctx, statement); err != nil {
		if errors.IsType(err, errors.ErrTypeCancelled) {
			return ValidationOutcome{}, err
		}

		var typed *errors.Error
		if !errors.As(err, &typed) {
			typed = errors.Wrap(err, errors.ErrTypeSyntax, "statement is not valid SQL")
		}

		return invalid(typed), nil
	}

	return ValidationOutcome{Valid: true}, nil
}

func invalid(err *errors.Error) ValidationOutcome {
	return ValidationOutcome{Valid: false, Err: err}
}
