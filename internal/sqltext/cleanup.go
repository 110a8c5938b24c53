package sqltext

import (
	"fmt"
	"strings"
)

const fence = "```"

// CleanCodeFences extracts the statement from model output that wraps it in
// a markdown code block. A ```sql block wins over a bare one; text without
// fences is only trimmed.
func CleanCodeFences(text string) string {
	lower := strings.ToLower(text)

	if i := strings.Index(lower, fence+"sql"); i >= 0 {
		body := text[i+len(fence)+len("sql"):]
		if j := strings.Index(body, fence); j >= 0 {
			body = body[:j]
		}

		return strings.TrimSpace(body)
	}

	if i := strings.Index(text, fence); i >= 0 {
		body := text[i+len(fence):]
		if j := strings.Index(body, fence); j >= 0 {
			body = body[:j]
		}

		return strings.TrimSpace(body)
	}

	return strings.TrimSpace(text)
}

// AggregateAliases maps aggregate functions to the column name they get
// when the model leaves them unaliased
var AggregateAliases = map[string]string{
	"COUNT": "count",
	"SUM":   "total",
	"AVG":   "average",
	"MIN":   "min",
	"MAX":   "max",
}

// selectListEnd are the keywords that close a select list
var selectListEnd = map[string]bool{
	"FROM":      true,
	"WHERE":     true,
	"GROUP":     true,
	"HAVING":    true,
	"ORDER":     true,
	"LIMIT":     true,
	"WINDOW":    true,
	"UNION":     true,
	"INTERSECT": true,
	"EXCEPT":    true,
	"INTO":      true,
}

// EnsureAliases gives a short alias to every select-list item that is a
// bare aggregate call, e.g. "SELECT COUNT(*) FROM t" becomes
// "SELECT COUNT(*) AS count FROM t". Items that already have an alias, or
// where the aggregate is only part of an expression, are left alone.
// An alias already naming another column gets a numeric suffix.
func EnsureAliases(sql string) string {
	tokens, err := Tokenize(sql)
	if err != nil {
		return sql
	}

	type pending struct {
		at    int
		alias string
	}

	idx := significant(tokens)
	taken := map[string]bool{}

	var missing []pending

	depth := 0
	inSelectList := false

	for n := 0; n < len(idx); n++ {
		tok := tokens[idx[n]]

		switch {
		case tok.Is("("):
			depth++
			continue
		case tok.Is(")"):
			if depth > 0 {
				depth--
			}

			continue
		}

		if depth != 0 {
			continue
		}

		if tok.Kind == TokenQuotedIdent && inSelectList && endsItem(tokens, idx, n) {
			taken[strings.ToLower(unquoteIdent(tok.Text))] = true
			continue
		}

		if tok.Kind != TokenWord {
			continue
		}

		keyword := tok.Keyword()

		if keyword == "SELECT" {
			inSelectList = true
			continue
		}

		if selectListEnd[keyword] {
			inSelectList = false
			continue
		}

		if !inSelectList {
			continue
		}

		// The last word of an item names its output column, whether it is an
		// alias or a plain column reference.
		if endsItem(tokens, idx, n) {
			taken[strings.ToLower(tok.Text)] = true
			continue
		}

		alias, ok := AggregateAliases[keyword]
		if !ok {
			continue
		}

		closeAt, ok := aggregateCallEnd(tokens, idx, n)
		if !ok || !startsItem(tokens, idx, n) || !endsItem(tokens, idx, closeAt) {
			continue
		}

		missing = append(missing, pending{at: idx[closeAt], alias: alias})
		n = closeAt
	}

	if len(missing) == 0 {
		return sql
	}

	insertAfter := make(map[int]string, len(missing))

	for _, m := range missing {
		alias := m.alias
		for suffix := 2; taken[alias]; suffix++ {
			alias = fmt.Sprintf("%s_%d", m.alias, suffix)
		}

		taken[alias] = true
		insertAfter[m.at] = alias
	}

	var b strings.Builder

	for i, tok := range tokens {
		b.WriteString(tok.Text)

		if alias, ok := insertAfter[i]; ok {
			b.WriteString(" AS ")
			b.WriteString(alias)
		}
	}

	return b.String()
}

func unquoteIdent(text string) string {
	if len(text) < 2 {
		return text
	}

	return text[1 : len(text)-1]
}

// aggregateCallEnd returns the position in idx of the parenthesis closing
// the call that starts at idx[n]
func aggregateCallEnd(tokens []Token, idx []int, n int) (int, bool) {
	if n+1 >= len(idx) || !tokens[idx[n+1]].Is("(") {
		return 0, false
	}

	depth := 0

	for m := n + 1; m < len(idx); m++ {
		switch tok := tokens[idx[m]]; {
		case tok.Is("("):
			depth++
		case tok.Is(")"):
			depth--
			if depth == 0 {
				return m, true
			}
		}
	}

	return 0, false
}

func startsItem(tokens []Token, idx []int, n int) bool {
	if n == 0 {
		return false
	}

	prev := tokens[idx[n-1]]

	return prev.Is(",") || prev.Is("SELECT") || prev.Is("DISTINCT") || prev.Is("ALL")
}

func endsItem(tokens []Token, idx []int, closeAt int) bool {
	if closeAt+1 >= len(idx) {
		return true
	}

	next := tokens[idx[closeAt+1]]

	return next.Is(",") || next.Kind == TokenSemicolon || selectListEnd[next.Keyword()]
}
