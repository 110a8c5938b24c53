package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/schema"
	"github.com/kyleking/askdb/internal/sqltext"
)

// Analyzer asks the language model for one statement answering a question
type Analyzer struct {
	completer llm.Completer
}

// NewAnalyzer creates an analyzer backed by completer
func NewAnalyzer(completer llm.Completer) *Analyzer {
	return &Analyzer{completer: completer}
}

var dialectNames = map[string]string{
	"sqlite": "SQLite",
	"duckdb": "DuckDB",
}

const sqlRules = `Rules:
1) Use exact table/column names from the schema.
2) Valid %[1]s syntax only.
3) Use JOINs when needed to link tables.
4) Output exactly ONE SQL statement. Never chain statements with ';'.
5) Do NOT include explanations, output SQL only.
6) When using aggregations (COUNT/SUM/AVG/MIN/MAX), ALWAYS add a short alias:
   COUNT(...) AS count, SUM(...) AS total, AVG(...) AS average, MIN(...) AS min, MAX(...) AS max.

Examples:
Q: How many customers?
A: SELECT COUNT(*) AS count FROM customers;

Q: What is the total amount of all orders?
A: SELECT SUM(total_amount) AS total FROM orders;

Q: Which customer spent the most?
A: SELECT c.name, SUM(o.total_amount) AS total FROM orders o JOIN customers c ON c.id = o.customer_id GROUP BY c.name ORDER BY total DESC LIMIT 1;`

// BuildPrompt renders the analyzer prompt. The examples illustrate shape
// only; the schema section is the sole source of names.
func BuildPrompt(question string, desc *schema.Descriptor, prior *Feedback) llm.Prompt {
	dialect := "SQL"
	if desc != nil {
		if name, ok := dialectNames[desc.Dialect]; ok {
			dialect = name
		}
	}

	var system strings.Builder

	fmt.Fprintf(&system, "You are a database expert for %s. Convert the user's question into ONE valid SQL statement.\n\n", dialect)
	system.WriteString("Database schema:\n")
	system.WriteString(desc.Format())
	system.WriteString("\n\n")
	fmt.Fprintf(&system, sqlRules, dialect)

	var user strings.Builder

	fmt.Fprintf(&user, "User question: %s\n\n", question)

	if !prior.empty() {
		user.WriteString("Your previous attempt failed.\n")

		if prior.Statement != "" {
			fmt.Fprintf(&user, "Previous statement:\n%s\n", prior.Statement)
		}

		if prior.Reason != "" {
			fmt.Fprintf(&user, "Error: %s\n", prior.Reason)
		}

		user.WriteString("Fix the problem and write a corrected statement.\n\n")
	}

	user.WriteString("Write the SQL statement only:")

	p := llm.Prompt{
		Task:     llm.TaskSQL,
		System:   system.String(),
		User:     user.String(),
		Question: question,
		Schema:   desc,
	}

	if !prior.empty() {
		p.Feedback = prior.Reason
	}

	return p
}

// Analyze produces one candidate statement. Collaborator failure or empty
// output is AnalysisFailed; output holding more than one statement is
// returned as a *RejectedOutput carrying MultipleStatements.
func (a *Analyzer) Analyze(ctx context.Context, question string, desc *schema.Descriptor, prior *Feedback) (*CandidateStatement, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeCancelled, "analysis abandoned")
	}

	raw, err := a.completer.Complete(ctx, BuildPrompt(question, desc, prior))
	if err != nil {
		if ctx.Err() != nil || errors.IsType(err, errors.ErrTypeCancelled) {
			return nil, errors.Wrap(err, errors.ErrTypeCancelled, "analysis abandoned")
		}

		return nil, errors.Wrap(err, errors.ErrTypeAnalysisFailed, "the language model did not produce a statement")
	}

	statement := strings.TrimSpace(sqltext.CleanCodeFences(raw))

	if sqltext.IsEmpty(statement) {
		return nil, errors.New(errors.ErrTypeAnalysisFailed, "the language model returned no SQL").
			WithSuggestion("Rephrase the question using table names from the schema")
	}

	if n := sqltext.Count(statement); n > 1 {
		return nil, &RejectedOutput{
			Output: statement,
			Err:    errors.Newf(errors.ErrTypeMultipleStatements, "expected one statement, got %d", n),
		}
	}

	statement = sqltext.EnsureAliases(statement)

	return &CandidateStatement{
		SQL:  statement,
		Kind: sqltext.Classify(statement),
	}, nil
}
