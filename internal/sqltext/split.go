package sqltext

import (
	"strings"
)

// Kind is the statement class used to decide how a statement is run and
// whether it needs confirmation
type Kind string

const (
	KindSelect Kind = "SELECT"
	KindDML    Kind = "DML"
	KindOther  Kind = "OTHER"
)

var dmlKeywords = map[string]bool{
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"REPLACE": true,
	"MERGE":   true,
	"UPSERT":  true,
}

// rowKeywords start statements that are not SELECT but still produce rows
var rowKeywords = map[string]bool{
	"PRAGMA":    true,
	"EXPLAIN":   true,
	"SHOW":      true,
	"DESCRIBE":  true,
	"DESC":      true,
	"SUMMARIZE": true,
}

// Split returns the top-level statements in sql, trimmed and without their
// terminating semicolon. Fragments made only of whitespace and comments
// are not statements.
func Split(sql string) ([]string, error) {
	tokens, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}

	return splitTokens(tokens), nil
}

func splitTokens(tokens []Token) []string {
	var (
		statements []string
		current    strings.Builder
		meaningful bool
	)

	flush := func() {
		if meaningful {
			statements = append(statements, strings.TrimSpace(current.String()))
		}

		current.Reset()

		meaningful = false
	}

	for _, tok := range tokens {
		if tok.Kind == TokenSemicolon {
			flush()
			continue
		}

		if tok.Significant() {
			meaningful = true
		}

		current.WriteString(tok.Text)
	}

	flush()

	return statements
}

// Count returns the number of top-level statements in sql. The SQL is
// split under every known dialect and the largest count wins, so text that
// any supported backend would read as several statements is never taken
// for one. Text that cannot be lexed counts as a single statement, leaving
// rejection to the database.
func Count(sql string) int {
	n := 0

	for _, dialect := range Dialects() {
		if c := CountDialect(sql, dialect); c > n {
			n = c
		}
	}

	return n
}

// CountDialect returns the number of top-level statements in sql under the
// quoting rules of dialect
func CountDialect(sql string, dialect Dialect) int {
	tokens, err := TokenizeDialect(sql, dialect)
	if err != nil {
		if strings.TrimSpace(sql) == "" {
			return 0
		}

		return 1
	}

	return len(splitTokens(tokens))
}

// IsEmpty reports whether sql holds no statement, only whitespace,
// comments and semicolons
func IsEmpty(sql string) bool {
	return Count(sql) == 0
}

// Classify returns the statement kind of a single statement. A WITH
// clause is classified by the statement it introduces.
func Classify(sql string) Kind {
	tokens, err := Tokenize(sql)
	if err != nil {
		return KindOther
	}

	return classifyTokens(tokens)
}

func classifyTokens(tokens []Token) Kind {
	first := leadingKeyword(tokens)

	switch {
	case first == "SELECT" || first == "VALUES":
		return KindSelect
	case dmlKeywords[first]:
		return KindDML
	case first == "WITH":
		if hasTopLevelKeyword(tokens, dmlKeywords) {
			return KindDML
		}

		return KindSelect
	default:
		return KindOther
	}
}

// ReturnsRows reports whether running sql is expected to produce a row set
func ReturnsRows(sql string) bool {
	tokens, err := Tokenize(sql)
	if err != nil {
		return false
	}

	switch classifyTokens(tokens) {
	case KindSelect:
		return true
	case KindDML:
		return hasTopLevelKeyword(tokens, map[string]bool{"RETURNING": true})
	default:
		return rowKeywords[leadingKeyword(tokens)]
	}
}

// FirstKeyword returns the upper-cased leading keyword of sql, or ""
func FirstKeyword(sql string) string {
	tokens, err := Tokenize(sql)
	if err != nil {
		return ""
	}

	return leadingKeyword(tokens)
}

// leadingKeyword skips comments and opening parentheses
func leadingKeyword(tokens []Token) string {
	for _, tok := range tokens {
		if !tok.Significant() || tok.Is("(") {
			continue
		}

		return tok.Keyword()
	}

	return ""
}

// hasTopLevelKeyword looks for any of keywords outside parentheses. The
// leading word and function names such as replace(...) are skipped.
func hasTopLevelKeyword(tokens []Token, keywords map[string]bool) bool {
	idx := significant(tokens)
	depth := 0

	for n, i := range idx {
		tok := tokens[i]

		switch {
		case tok.Is("("):
			depth++
		case tok.Is(")"):
			if depth > 0 {
				depth--
			}
		case tok.Kind == TokenWord && n > 0 && depth == 0:
			if n+1 < len(idx) && tokens[idx[n+1]].Is("(") {
				continue
			}

			if keywords[tok.Keyword()] {
				return true
			}
		}
	}

	return false
}
