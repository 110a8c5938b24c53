package formatter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/pipeline"
	"github.com/kyleking/askdb/internal/result"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatTable    OutputFormat = "table"
	FormatJSON     OutputFormat = "json"
	FormatCSV      OutputFormat = "csv"
	FormatMarkdown OutputFormat = "markdown"
	FormatDetails  OutputFormat = "details"
)

// DefaultMaxRows caps rendered rows unless configured otherwise
const DefaultMaxRows = 100

// Formats lists the accepted format names
func Formats() []string {
	return []string{
		string(FormatTable), string(FormatJSON), string(FormatCSV),
		string(FormatMarkdown), string(FormatDetails),
	}
}

// ParseFormat resolves a user supplied format name
func ParseFormat(name string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "details", "rows":
		return FormatDetails, nil
	default:
		return "", errors.Newf(errors.ErrTypeValidation, "unknown output format %q", name).
			WithSuggestion("Use one of: " + strings.Join(Formats(), ", "))
	}
}

// Formatter renders results and outcomes
type Formatter struct {
	maxRows int
	showSQL bool
}

// Option configures a Formatter
type Option func(*Formatter)

// WithMaxRows caps rendered rows; zero or less means no cap
func WithMaxRows(n int) Option {
	return func(f *Formatter) {
		f.maxRows = n
	}
}

// WithSQL includes the executed statement in outcome renderings
func WithSQL(show bool) Option {
	return func(f *Formatter) {
		f.showSQL = show
	}
}

// NewFormatter creates a new formatter instance
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{maxRows: DefaultMaxRows, showSQL: true}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FormatRows renders a result set in the given format
func (f *Formatter) FormatRows(w io.Writer, rs *result.ResultSet, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return f.writeJSON(w, rs)
	case FormatCSV:
		return f.writeCSV(w, rs)
	case FormatMarkdown:
		_, err := io.WriteString(w, f.Markdown(rs))
		return err
	case FormatDetails:
		_, err := io.WriteString(w, f.Details(rs))
		return err
	default:
		return f.writeTable(w, rs)
	}
}

// FormatOutcome renders a pipeline outcome. Table, markdown and details
// formats lead with the explanation; json and csv stay machine readable.
func (f *Formatter) FormatOutcome(w io.Writer, outcome *pipeline.Outcome, format OutputFormat) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(f.outcomeDocument(outcome))
	case FormatCSV:
		if outcome.Rows() == nil {
			_, err := fmt.Fprintf(w, "rows_affected\n%d\n", outcome.Result.RowsAffected)
			return err
		}

		return f.writeCSV(w, outcome.Rows())
	}

	_, _ = fmt.Fprintln(w, outcome.Explanation)

	if f.showSQL {
		_, _ = fmt.Fprintf(w, "\nSQL: %s\n", outcome.Statement.SQL)
	}

	if outcome.Rows() == nil || outcome.Rows().Empty() {
		return nil
	}

	_, _ = fmt.Fprintln(w)

	return f.FormatRows(w, outcome.Rows(), format)
}

// Summary is a one-line description of how an outcome was reached
func (f *Formatter) Summary(outcome *pipeline.Outcome) string {
	return fmt.Sprintf("%s in %s, %s",
		plural(len(outcome.Attempts), "attempt"), humanizeDuration(outcome.Duration), plural(outcome.Rows().Len(), "row"))
}

// Markdown renders rows as a markdown table
func (f *Formatter) Markdown(rs *result.ResultSet) string {
	if rs.Empty() {
		return "_No rows._\n"
	}

	var b strings.Builder

	b.WriteString("| " + strings.Join(escapeMarkdown(rs.Columns), " | ") + " |\n")

	seps := make([]string, len(rs.Columns))
	for i := range seps {
		seps[i] = "---"
	}

	b.WriteString("| " + strings.Join(seps, " | ") + " |\n")

	shown := f.head(rs)
	for _, row := range shown.Rows {
		b.WriteString("| " + strings.Join(escapeMarkdown(cells(row)), " | ") + " |\n")
	}

	if note := f.capNote(rs); note != "" {
		b.WriteString("\n_" + note + "_\n")
	}

	return b.String()
}

// Details renders each row as a labelled block, one field per line
func (f *Formatter) Details(rs *result.ResultSet) string {
	if rs.Empty() {
		return "No rows.\n"
	}

	width := 0
	for _, col := range rs.Columns {
		width = max(width, len(col))
	}

	var b strings.Builder

	shown := f.head(rs)
	for i, row := range shown.Rows {
		if i > 0 {
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "Row %d\n", i+1)

		for j, col := range rs.Columns {
			fmt.Fprintf(&b, "  %-*s  %s\n", width, col+":", row[j].String())
		}
	}

	if note := f.capNote(rs); note != "" {
		b.WriteString("\n" + note + "\n")
	}

	return b.String()
}

func (f *Formatter) writeTable(w io.Writer, rs *result.ResultSet) error {
	if rs.Empty() {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col
	}

	t.AppendHeader(header)

	shown := f.head(rs)
	for _, row := range shown.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = v.String()
		}

		t.AppendRow(r)
	}

	t.Render()

	if note := f.capNote(rs); note != "" {
		_, err := fmt.Fprintln(w, note)
		return err
	}

	_, err := fmt.Fprintf(w, "(%s)\n", plural(rs.Len(), "row"))

	return err
}

func (f *Formatter) writeJSON(w io.Writer, rs *result.ResultSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(f.head(rs).Maps())
}

func (f *Formatter) writeCSV(w io.Writer, rs *result.ResultSet) error {
	cw := csv.NewWriter(w)

	if rs != nil {
		if err := cw.Write(rs.Columns); err != nil {
			return err
		}

		for _, row := range f.head(rs).Rows {
			if err := cw.Write(csvCells(row)); err != nil {
				return err
			}
		}
	}

	cw.Flush()

	return cw.Error()
}

// outcomeDocument is the json shape of an outcome
type outcomeDocument struct {
	RunID        string         `json:"run_id"`
	Question     string         `json:"question"`
	SQL          string         `json:"sql"`
	Kind         string         `json:"kind"`
	Explanation  string         `json:"explanation"`
	Answer       *result.Value  `json:"answer,omitempty"`
	Columns      []string       `json:"columns,omitempty"`
	Rows         []result.Row   `json:"rows,omitempty"`
	RowsAffected *int64         `json:"rows_affected,omitempty"`
	LastInsertID *int64         `json:"last_insert_id,omitempty"`
	Attempts     []attemptEntry `json:"attempts"`
	DurationMS   int64          `json:"duration_ms"`
}

type attemptEntry struct {
	Number int    `json:"number"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

func (f *Formatter) outcomeDocument(outcome *pipeline.Outcome) outcomeDocument {
	doc := outcomeDocument{
		RunID:       outcome.RunID,
		Question:    outcome.Question,
		SQL:         outcome.Statement.SQL,
		Kind:        string(outcome.Statement.Kind),
		Explanation: outcome.Explanation,
		Answer:      outcome.ScalarHint,
		DurationMS:  outcome.Duration.Milliseconds(),
	}

	if rs := outcome.Rows(); rs != nil {
		doc.Columns = rs.Columns
		doc.Rows = f.head(rs).Maps()
	} else {
		affected := outcome.Result.RowsAffected
		doc.RowsAffected = &affected

		if outcome.Result.HasLastInsertID {
			id := outcome.Result.LastInsertID
			doc.LastInsertID = &id
		}
	}

	for _, a := range outcome.Attempts {
		entry := attemptEntry{Number: a.Number, Output: a.Output}
		if a.Err != nil {
			entry.Error = a.Err.Error()
		}

		doc.Attempts = append(doc.Attempts, entry)
	}

	return doc
}

func (f *Formatter) head(rs *result.ResultSet) *result.ResultSet {
	if f.maxRows <= 0 {
		return rs
	}

	return rs.Head(f.maxRows)
}

// capNote explains a truncated rendering, or returns ""
func (f *Formatter) capNote(rs *result.ResultSet) string {
	if f.maxRows <= 0 || rs.Len() <= f.maxRows {
		return ""
	}

	return fmt.Sprintf("Showing first %d of %d rows.", f.maxRows, rs.Len())
}

func cells(row []result.Value) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = v.String()
	}

	return out
}

// csvCells renders NULL as an empty field
func csvCells(row []result.Value) []string {
	out := make([]string, len(row))
	for i, v := range row {
		if !v.IsNull() {
			out[i] = v.String()
		}
	}

	return out
}

func escapeMarkdown(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		v = strings.ReplaceAll(v, "|", `\|`)
		out[i] = strings.ReplaceAll(v, "\n", " ")
	}

	return out
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}

	return fmt.Sprintf("%d %ss", n, noun)
}

// humanizeDuration renders a duration with a precision that suits its size
func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}
