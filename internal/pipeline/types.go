// Package pipeline turns one question into one validated statement, runs it
// and explains the result. A run is a bounded loop of attempts; every
// attempt sends at most one statement to the store.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/result"
	"github.com/kyleking/askdb/internal/schema"
	"github.com/kyleking/askdb/internal/sqltext"
	"github.com/kyleking/askdb/internal/storage"
)

// Store is the persistent store as the pipeline sees it
type Store interface {
	schema.Provider
	PlanCheck(ctx context.Context, statement string) error
	Run(ctx context.Context, statement string) (*storage.RunResult, error)
}

// State is a step of the run state machine
type State string

const (
	StateStart        State = "start"
	StateAnalyzing    State = "analyzing"
	StateValidating   State = "validating"
	StateExecuting    State = "executing"
	StateSynthesizing State = "synthesizing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// CandidateStatement is one SQL statement produced by the analyzer
type CandidateStatement struct {
	SQL  string       `json:"sql"`
	Kind sqltext.Kind `json:"kind"`
}

// IsSelect reports whether the statement only reads
func (c CandidateStatement) IsSelect() bool {
	return c.Kind == sqltext.KindSelect
}

// ValidationOutcome is Valid, or Invalid with a typed reason
type ValidationOutcome struct {
	Valid bool          `json:"valid"`
	Err   *errors.Error `json:"-"`
}

// Reason returns the human-readable classification of an invalid outcome
func (v ValidationOutcome) Reason() string {
	if v.Valid || v.Err == nil {
		return ""
	}

	return describeFailure(v.Err)
}

// ExecutionResult is rows (or a mutation summary) or an execution error
type ExecutionResult struct {
	Rows            *result.ResultSet `json:"rows,omitempty"`
	RowsAffected    int64             `json:"rows_affected"`
	LastInsertID    int64             `json:"last_insert_id,omitempty"`
	HasLastInsertID bool              `json:"-"`
	Duration        time.Duration     `json:"duration"`
	Err             *errors.Error     `json:"-"`
}

// OK reports whether the statement ran successfully
func (e ExecutionResult) OK() bool {
	return e.Err == nil
}

// HasRows reports whether the statement produced a row set, even an empty one
func (e ExecutionResult) HasRows() bool {
	return e.Err == nil && e.Rows != nil
}

// Reason returns the human-readable classification of a failed execution
func (e ExecutionResult) Reason() string {
	if e.Err == nil {
		return ""
	}

	return describeFailure(e.Err)
}

// Attempt is one analyze, validate and execute cycle
type Attempt struct {
	Number     int                 `json:"number"`
	Output     string              `json:"output,omitempty"`
	Statement  *CandidateStatement `json:"statement,omitempty"`
	Validation *ValidationOutcome  `json:"validation,omitempty"`
	Execution  *ExecutionResult    `json:"execution,omitempty"`
	Err        error               `json:"-"`
}

// Failed reports whether the attempt ended without a result
func (a Attempt) Failed() bool {
	return a.Err != nil
}

// Run holds the state of one question for the duration of Ask
type Run struct {
	ID       string
	Question string
	State    State
	Attempts []Attempt
	Started  time.Time
}

// Outcome is the answer to one question
type Outcome struct {
	RunID       string             `json:"run_id"`
	Question    string             `json:"question"`
	Statement   CandidateStatement `json:"statement"`
	Explanation string             `json:"explanation"`
	Narrative   string             `json:"narrative,omitempty"`
	Result      ExecutionResult    `json:"result"`
	ScalarHint  *result.Value      `json:"scalar_hint,omitempty"`
	Attempts    []Attempt          `json:"attempts"`
	Duration    time.Duration      `json:"duration"`
}

// Rows returns the result rows, nil for mutations
func (o *Outcome) Rows() *result.ResultSet {
	return o.Result.Rows
}

// RunError is returned by Ask when a run ends in the failed state. It keeps
// the attempts for inspection.
type RunError struct {
	RunID    string
	Question string
	Attempts []Attempt
	Err      error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed after %d attempt(s): %v", e.RunID, len(e.Attempts), e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Feedback is the reason a previous attempt failed, handed to the next
// analyzer call
type Feedback struct {
	Statement string
	Reason    string
}

func (f *Feedback) empty() bool {
	return f == nil || (f.Statement == "" && f.Reason == "")
}

// RejectedOutput is model output that could not become a candidate statement
type RejectedOutput struct {
	Output string
	Err    *errors.Error
}

func (r *RejectedOutput) Error() string {
	return r.Err.Error()
}

func (r *RejectedOutput) Unwrap() error {
	return r.Err
}

var failureLabels = map[errors.ErrorType]string{
	errors.ErrTypeMultipleStatements: "multiple statements",
	errors.ErrTypeEmptyStatement:     "empty statement",
	errors.ErrTypeSyntax:             "syntax error",
	errors.ErrTypeUnknownIdentifier:  "unknown table or column",
	errors.ErrTypeExecution:          "execution error",
}

// describeFailure renders a typed failure as "label: backend detail"
func describeFailure(err *errors.Error) string {
	label, ok := failureLabels[err.Type]
	if !ok {
		label = string(err.Type)
	}

	detail := err.Message
	if err.Cause != nil {
		detail = err.Cause.Error()
	}

	if detail == "" || strings.EqualFold(detail, label) {
		return label
	}

	return label + ": " + detail
}
