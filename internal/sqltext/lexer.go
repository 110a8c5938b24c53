// Package sqltext tokenizes SQL text without parsing it. It is the shared
// basis for statement counting, statement-kind classification and the
// cleanup applied to language-model output.
package sqltext

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// TokenKind is the coarse class of a lexed token
type TokenKind int

const (
	TokenOther TokenKind = iota
	TokenSpace
	TokenComment
	TokenString
	TokenQuotedIdent
	TokenWord
	TokenNumber
	TokenOperator
	TokenPunct
	TokenSemicolon
)

// Dialect selects the quoting rules used to tokenize
type Dialect int

const (
	// DialectSQLite knows '' escapes and "ident", `ident` and [ident]
	// quoting
	DialectSQLite Dialect = iota

	// DialectDuckDB adds E'...' strings with backslash escapes and
	// $tag$...$tag$ strings. Brackets and backticks are not quotes there.
	DialectDuckDB
)

// Dialects lists every dialect the tokenizer knows
func Dialects() []Dialect {
	return []Dialect{DialectSQLite, DialectDuckDB}
}

// tokenDollarTag marks an opening $tag$ until TokenizeDialect pairs it with its
// closing tag
const tokenDollarTag TokenKind = -1

// Strings, quoted identifiers and block comments that are never closed run
// to the end of the input, so a semicolon inside them is never a
// statement boundary. Concatenating the token values of any input
// reproduces it exactly.
var (
	SQLiteLexer = lexer.MustSimple(lexerRules(DialectSQLite))
	DuckDBLexer = lexer.MustSimple(lexerRules(DialectDuckDB))
)

func lexerRules(dialect Dialect) []lexer.SimpleRule {
	// Comments come first so "--" and "/*" are never read as operators
	rules := []lexer.SimpleRule{
		{Name: "LineComment", Pattern: `--[^\n]*`},
		{Name: "BlockComment", Pattern: `/\*(?s:.*?)(?:\*/|\z)`},
	}

	switch dialect {
	case DialectDuckDB:
		rules = append(rules,
			lexer.SimpleRule{Name: "EscapeString", Pattern: `[eE]'(?:[^'\\]|\\(?s:.)|'')*'?`},
			lexer.SimpleRule{Name: "DollarTag", Pattern: `\$(?:[\p{L}_][\p{L}\p{N}_]*)?\$`},
			lexer.SimpleRule{Name: "String", Pattern: `[xXbBnN]?'(?:[^']|'')*'?`},
			lexer.SimpleRule{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"?`},
		)
	default:
		rules = append(rules,
			lexer.SimpleRule{Name: "String", Pattern: `[xXbBnNeE]?'(?:[^']|'')*'?`},
			lexer.SimpleRule{Name: "QuotedIdent", Pattern: "\"(?:[^\"]|\"\")*\"?|`[^`]*`?|\\[[^\\]]*\\]?"},
		)
	}

	return append(rules,
		lexer.SimpleRule{Name: "Semicolon", Pattern: `;`},
		lexer.SimpleRule{Name: "Whitespace", Pattern: `\s+`},

		lexer.SimpleRule{Name: "Number", Pattern: `(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`},
		lexer.SimpleRule{Name: "Word", Pattern: `[\p{L}_][\p{L}\p{N}_$]*`},

		lexer.SimpleRule{Name: "Operator", Pattern: `<>|<=|>=|!=|==|\|\||::|->>|->|[-+*/%<>=~!&|^]`},
		lexer.SimpleRule{Name: "Punct", Pattern: `[(),.\[\]]`},

		// Anything else (parameters, stray bytes) is kept verbatim
		lexer.SimpleRule{Name: "Other", Pattern: `(?s:.)`},
	)
}

var tokenKindNames = map[string]TokenKind{
	"LineComment":  TokenComment,
	"BlockComment": TokenComment,
	"String":       TokenString,
	"EscapeString": TokenString,
	"DollarTag":    tokenDollarTag,
	"QuotedIdent":  TokenQuotedIdent,
	"Semicolon":    TokenSemicolon,
	"Whitespace":   TokenSpace,
	"Number":       TokenNumber,
	"Word":         TokenWord,
	"Operator":     TokenOperator,
	"Punct":        TokenPunct,
	"Other":        TokenOther,
}

func symbolKinds(def *lexer.StatefulDefinition) map[lexer.TokenType]TokenKind {
	kinds := map[lexer.TokenType]TokenKind{}
	for name, tt := range def.Symbols() {
		if kind, ok := tokenKindNames[name]; ok {
			kinds[tt] = kind
		}
	}

	return kinds
}

var (
	sqliteKinds = symbolKinds(SQLiteLexer)
	duckdbKinds = symbolKinds(DuckDBLexer)
)

// Token is a single lexed piece of SQL text
type Token struct {
	Kind   TokenKind
	Text   string
	Offset int
}

// Significant reports whether the token carries meaning, i.e. it is not
// whitespace or a comment
func (t Token) Significant() bool {
	return t.Kind != TokenSpace && t.Kind != TokenComment
}

// Keyword returns the upper-cased text of a bare word, or "" for any
// other token
func (t Token) Keyword() string {
	if t.Kind != TokenWord {
		return ""
	}

	return strings.ToUpper(t.Text)
}

// Is reports whether the token is the given punctuation or bare keyword
func (t Token) Is(text string) bool {
	switch t.Kind {
	case TokenWord:
		return strings.EqualFold(t.Text, text)
	case TokenPunct, TokenOperator, TokenSemicolon:
		return t.Text == text
	default:
		return false
	}
}

// Tokenize lexes sql with SQLite quoting rules
func Tokenize(sql string) ([]Token, error) {
	return TokenizeDialect(sql, DialectSQLite)
}

// TokenizeDialect lexes sql in source order using the quoting rules of
// dialect. A $tag$ string runs to the next identical tag, or to the end of
// the input when there is none.
func TokenizeDialect(sql string, dialect Dialect) ([]Token, error) {
	if dialect != DialectDuckDB {
		return lex(SQLiteLexer, sqliteKinds, sql, 0)
	}

	var tokens []Token

	base := 0

	for {
		chunk, err := lex(DuckDBLexer, duckdbKinds, sql[base:], base)
		if err != nil {
			return nil, err
		}

		restart := -1

		for _, tok := range chunk {
			if tok.Kind != tokenDollarTag {
				tokens = append(tokens, tok)
				continue
			}

			end := len(sql)

			bodyStart := tok.Offset + len(tok.Text)
			if i := strings.Index(sql[bodyStart:], tok.Text); i >= 0 {
				end = bodyStart + i + len(tok.Text)
			}

			tokens = append(tokens, Token{Kind: TokenString, Text: sql[tok.Offset:end], Offset: tok.Offset})
			restart = end

			break
		}

		if restart < 0 {
			return tokens, nil
		}

		base = restart
	}
}

func lex(def *lexer.StatefulDefinition, kinds map[lexer.TokenType]TokenKind, sql string, base int) ([]Token, error) {
	if sql == "" {
		return nil, nil
	}

	l, err := def.LexString("", sql)
	if err != nil {
		return nil, fmt.Errorf("failed to lex sql: %w", err)
	}

	raw, err := lexer.ConsumeAll(l)
	if err != nil {
		return nil, fmt.Errorf("failed to lex sql: %w", err)
	}

	tokens := make([]Token, 0, len(raw))

	for _, tok := range raw {
		if tok.EOF() {
			break
		}

		tokens = append(tokens, Token{
			Kind:   kinds[tok.Type],
			Text:   tok.Value,
			Offset: base + tok.Pos.Offset,
		})
	}

	return tokens, nil
}

// significant returns the indexes of meaningful tokens
func significant(tokens []Token) []int {
	idx := make([]int, 0, len(tokens))

	for i, tok := range tokens {
		if tok.Significant() {
			idx = append(idx, i)
		}
	}

	return idx
}
