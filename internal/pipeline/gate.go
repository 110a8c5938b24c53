package pipeline

import "context"

// Gate decides whether a statement that is not a plain SELECT may run.
// It is consulted after validation and before execution.
type Gate interface {
	Allow(ctx context.Context, statement CandidateStatement) (bool, error)
}

// GateFunc adapts a function to Gate
type GateFunc func(ctx context.Context, statement CandidateStatement) (bool, error)

// Allow calls f
func (f GateFunc) Allow(ctx context.Context, statement CandidateStatement) (bool, error) {
	return f(ctx, statement)
}

// AllowAll lets every statement through
func AllowAll() Gate {
	return GateFunc(func(context.Context, CandidateStatement) (bool, error) { return true, nil })
}

// DenyWrites refuses every statement that is not a SELECT
func DenyWrites() Gate {
	return GateFunc(func(_ context.Context, s CandidateStatement) (bool, error) { return s.IsSelect(), nil })
}
