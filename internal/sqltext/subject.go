package sqltext

import "strings"

// subjectEnd are the keywords that may follow the counted table
var subjectEnd = map[string]bool{
	"WHERE": true,
	"ORDER": true,
	"LIMIT": true,
}

var joinKeywords = map[string]bool{
	"JOIN": true, "ON": true, "USING": true, "LEFT": true, "RIGHT": true,
	"INNER": true, "OUTER": true, "FULL": true, "CROSS": true, "NATURAL": true,
}

// CountSubject names what a single-count query counts, e.g. "customers"
// for "SELECT COUNT(*) AS count FROM customers WHERE city = 'Cairo'".
// Joins, grouping and anything other than one COUNT item yield "".
func CountSubject(sql string) string {
	tokens, err := Tokenize(sql)
	if err != nil {
		return ""
	}

	idx := significant(tokens)
	at := func(n int) Token {
		if n < len(idx) {
			return tokens[idx[n]]
		}

		return Token{}
	}

	if !at(0).Is("SELECT") || !at(1).Is("COUNT") {
		return ""
	}

	closeAt, ok := aggregateCallEnd(tokens, idx, 1)
	if !ok {
		return ""
	}

	n := skipAlias(at, closeAt+1)
	if !at(n).Is("FROM") {
		return ""
	}

	n++

	table, ok := identName(at(n))
	if !ok {
		return ""
	}

	if at(n + 1).Is(".") {
		n += 2
		if table, ok = identName(at(n)); !ok {
			return ""
		}
	}

	n = skipAlias(at, n+1)

	if end := at(n); n < len(idx) && end.Kind != TokenSemicolon && !subjectEnd[end.Keyword()] {
		return ""
	}

	return strings.ReplaceAll(strings.ToLower(table), "_", " ")
}

func skipAlias(at func(int) Token, n int) int {
	tok := at(n)

	switch {
	case tok.Is("AS"):
		return n + 2
	case tok.Kind == TokenQuotedIdent:
		return n + 1
	case tok.Kind == TokenWord && !selectListEnd[tok.Keyword()] && !joinKeywords[tok.Keyword()]:
		return n + 1
	default:
		return n
	}
}

func identName(tok Token) (string, bool) {
	switch tok.Kind {
	case TokenWord:
		return tok.Text, true
	case TokenQuotedIdent:
		return unquoteIdent(tok.Text), true
	default:
		return "", false
	}
}
