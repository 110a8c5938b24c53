package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/schema"
)

// FallbackService answers simple questions from the schema alone when no
// model provider is reachable. It never narrates.
type FallbackService struct{}

// NewFallbackService creates a new fallback service
func NewFallbackService() *FallbackService {
	return &FallbackService{}
}

// Complete turns a question into SQL using keyword rules
func (f *FallbackService) Complete(ctx context.Context, prompt Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(err, errors.ErrTypeCancelled, "model request abandoned")
	}

	if prompt.Task == TaskNarrate {
		return "", nil
	}

	if statement, ok := f.parseBasicQuery(prompt.Question, prompt.Schema); ok {
		return statement, nil
	}

	return "", errors.New(errors.ErrTypeLLM, "the rule-based fallback could not interpret the question").
		WithSuggestion("Configure a model provider for free-form questions").
		WithSuggestion("Try phrasing like: how many customers in Cairo")
}

var (
	wordPattern   = regexp.MustCompile(`[a-z0-9_]+`)
	filterPattern = regexp.MustCompile(`\b(?:in|from)\s+([A-Z][\w-]*(?:\s+[A-Z][\w-]*)*)`)
	topPattern    = regexp.MustCompile(`(?i)\btop\s+(\d+)\b`)
)

// filterColumns are the text columns a trailing "in X" is matched against
var filterColumns = []string{"city", "category", "country", "status"}

// parseBasicQuery maps a question onto one of a few statement shapes
func (f *FallbackService) parseBasicQuery(question string, desc *schema.Descriptor) (string, bool) {
	if desc == nil || strings.TrimSpace(question) == "" {
		return "", false
	}

	lower := strings.ToLower(question)
	words := wordPattern.FindAllString(lower, -1)

	table := f.findTable(words, desc)
	if table == nil {
		return "", false
	}

	where := f.buildFilter(question, table)
	column := f.findColumn(lower, table)

	switch {
	case containsAny(lower, "how many", "count", "number of"):
		return fmt.Sprintf("SELECT COUNT(*) AS count FROM %s%s;", table.Name, where), true

	case column != nil && containsAny(lower, "average", "avg", "mean"):
		return fmt.Sprintf("SELECT AVG(%s) AS average FROM %s%s;", column.Name, table.Name, where), true

	case column != nil && containsAny(lower, "total", "sum"):
		return fmt.Sprintf("SELECT SUM(%s) AS total FROM %s%s;", column.Name, table.Name, where), true

	case containsAny(lower, "most expensive", "highest", "largest", "maximum", "top"):
		if order := f.orderColumn(column, table); order != "" {
			return fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s DESC LIMIT %d;", table.Name, where, order, topN(question)), true
		}

	case containsAny(lower, "cheapest", "lowest", "smallest", "minimum"):
		if order := f.orderColumn(column, table); order != "" {
			return fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s ASC LIMIT %d;", table.Name, where, order, topN(question)), true
		}
	}

	return fmt.Sprintf("SELECT * FROM %s%s LIMIT 100;", table.Name, where), true
}

// findTable returns the first table named in the question, allowing plurals
func (f *FallbackService) findTable(words []string, desc *schema.Descriptor) *schema.Table {
	for _, word := range words {
		for _, candidate := range []string{word, word + "s", strings.TrimSuffix(word, "s"), strings.TrimSuffix(word, "es")} {
			if t, ok := desc.Table(candidate); ok {
				return t
			}
		}
	}

	return nil
}

// findColumn returns the longest column whose name, read as words, appears
// in the question. Numeric columns win ties.
func (f *FallbackService) findColumn(lower string, table *schema.Table) *schema.Column {
	var best *schema.Column

	for i := range table.Columns {
		col := &table.Columns[i]
		phrase := strings.ReplaceAll(strings.ToLower(col.Name), "_", " ")

		if !strings.Contains(lower, phrase) {
			continue
		}

		if best == nil || len(col.Name) > len(best.Name) || (len(col.Name) == len(best.Name) && isNumeric(col.Type)) {
			best = col
		}
	}

	return best
}

func (f *FallbackService) orderColumn(column *schema.Column, table *schema.Table) string {
	if column != nil && isNumeric(column.Type) {
		return column.Name
	}

	if col, ok := table.Column("price"); ok {
		return col.Name
	}

	for _, col := range table.Columns {
		if isNumeric(col.Type) && !col.PrimaryKey {
			return col.Name
		}
	}

	return ""
}

// buildFilter turns "in Cairo" into a WHERE clause on the table's first
// text column that usually holds such values
func (f *FallbackService) buildFilter(question string, table *schema.Table) string {
	m := filterPattern.FindStringSubmatch(question)
	if m == nil {
		return ""
	}

	for _, name := range filterColumns {
		if col, ok := table.Column(name); ok {
			value := strings.ReplaceAll(m[1], "'", "''")
			return fmt.Sprintf(" WHERE %s = '%s'", col.Name, value)
		}
	}

	return ""
}

func topN(question string) int {
	if m := topPattern.FindStringSubmatch(question); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}

	return 1
}

func isNumeric(columnType string) bool {
	upper := strings.ToUpper(columnType)
	return containsAny(upper, "INT", "REAL", "DEC", "NUM", "FLOAT", "DOUBLE")
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}

	return false
}
