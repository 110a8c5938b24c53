package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kyleking/askdb/internal/llm"
	"github.com/kyleking/askdb/internal/logging"
	"github.com/kyleking/askdb/internal/result"
	"github.com/kyleking/askdb/internal/sqltext"
)

// narrateRowLimit caps how many rows are shown to the model when narrating
const narrateRowLimit = 20

// Synthesizer explains execution results in plain language
type Synthesizer struct {
	completer llm.Completer
	narrate   bool
}

// NewSynthesizer creates a synthesizer. With narrate set and a non-nil
// completer, non-empty results also get a short model-written narrative.
func NewSynthesizer(completer llm.Completer, narrate bool) *Synthesizer {
	return &Synthesizer{completer: completer, narrate: narrate && completer != nil}
}

// howManyPattern picks the counted noun out of questions like "How many
// customers live in Cairo?"
var howManyPattern = regexp.MustCompile(`(?i)\bhow\s+many\s+([\p{L}_]+)`)

// Synthesize builds the outcome for a successful execution of statement.
// The result is carried through untouched; the explanation never replaces it.
func (s *Synthesizer) Synthesize(ctx context.Context, question, statement string, res ExecutionResult) Outcome {
	out := Outcome{
		Question: question,
		Result:   res,
	}

	if !res.HasRows() {
		out.Explanation = explainMutation(res)
		return out
	}

	rows := res.Rows

	if rows.Empty() {
		out.Explanation = "No matching data was found."
		return out
	}

	if v, ok := rows.Scalar(); ok {
		out.ScalarHint = &v
		out.Explanation = fmt.Sprintf("Found 1 row. The answer is %s (%s).", scalarAnswer(v, question, statement), rows.Columns[0])
	} else {
		out.Explanation = fmt.Sprintf("Found %s with columns %s.", plural(rows.Len(), "row"), strings.Join(rows.Columns, ", "))
	}

	if s.narrate {
		if narrative := s.narrative(ctx, question, rows); narrative != "" {
			out.Narrative = narrative
			out.Explanation += " " + narrative
		}
	}

	return out
}

// scalarAnswer renders a single value, naming what was counted when the
// statement or the question says so: "4 customers" rather than "4".
func scalarAnswer(v result.Value, question, statement string) string {
	if v.Kind != result.KindInteger {
		return v.String()
	}

	subject := sqltext.CountSubject(statement)
	if subject == "" {
		if m := howManyPattern.FindStringSubmatch(question); m != nil {
			subject = strings.ToLower(m[1])
		}
	}

	if subject == "" {
		return v.String()
	}

	if v.Int == 1 && strings.HasSuffix(subject, "s") && !strings.HasSuffix(subject, "ss") {
		subject = strings.TrimSuffix(subject, "s")
	}

	return v.String() + " " + subject
}

func explainMutation(res ExecutionResult) string {
	text := fmt.Sprintf("The statement affected %s.", plural(int(res.RowsAffected), "row"))
	if res.HasLastInsertID {
		text += fmt.Sprintf(" Last inserted id: %d.", res.LastInsertID)
	}

	return text
}

// narrative asks the model for a one or two sentence summary. Any failure
// yields "" so the deterministic explanation stands alone.
func (s *Synthesizer) narrative(ctx context.Context, question string, rows *result.ResultSet) string {
	if ctx.Err() != nil {
		return ""
	}

	text, err := s.completer.Complete(ctx, buildNarrationPrompt(question, rows))
	if err != nil {
		logging.FromContext(ctx).WithError(err).Debug("Narration skipped")
		return ""
	}

	return strings.Join(strings.Fields(text), " ")
}

func buildNarrationPrompt(question string, rows *result.ResultSet) llm.Prompt {
	var user strings.Builder

	fmt.Fprintf(&user, "Question: %s\n\n", question)
	fmt.Fprintf(&user, "Columns: %s\n", strings.Join(rows.Columns, " | "))

	shown := rows.Head(narrateRowLimit)
	for _, row := range shown.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}

		user.WriteString(strings.Join(cells, " | "))
		user.WriteString("\n")
	}

	if rows.Len() > shown.Len() {
		fmt.Fprintf(&user, "(%d more rows not shown)\n", rows.Len()-shown.Len())
	}

	return llm.Prompt{
		Task: llm.TaskNarrate,
		System: "You describe SQL query results to a business user in one or two sentences. " +
			"Use only the values shown. Never invent data. Plain text, no markdown.",
		User:     user.String(),
		Question: question,
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}

	return fmt.Sprintf("%d %ss", n, noun)
}
