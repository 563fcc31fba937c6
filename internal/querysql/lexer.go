package querysql

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/querybridge/internal/qerr"
)

// tokenKind classifies a lexical token.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp    // = <> != < <= > >= + - * /
	tokPunct // ( ) , ; .
)

// token is one lexeme with its byte offset in the input.
//
// String literals are always a single token, so clause keywords inside a
// literal can never be mistaken for clause boundaries.
type token struct {
	kind   tokenKind
	text   string // identifier name (unquoted), string contents, number, or operator
	upper  string // upper-cased text for unquoted identifiers
	quoted bool   // identifier was written "quoted" or `quoted`
	pos    int
}

// is reports whether t is the unquoted keyword kw.
func (t token) is(kw string) bool {
	return t.kind == tokIdent && !t.quoted && t.upper == kw
}

// isPunct reports whether t is the punctuation or operator p.
func (t token) isPunct(p string) bool {
	return (t.kind == tokPunct || t.kind == tokOp) && t.text == p
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return fmt.Sprintf("'%s'", t.text)
	default:
		return t.text
	}
}

// lex splits src into tokens. Dotted identifiers (t.col, "a"."b") are
// merged into one identifier token.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case c == '\'':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i = next
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					i = j
					for i < len(src) && isDigit(src[i]) {
						i++
					}
				}
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isIdentStart(c) || c == '"' || c == '`':
			tok, next, err := lexIdent(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		case strings.ContainsRune("<>!=", rune(c)):
			op := string(c)
			if i+1 < len(src) {
				two := src[i : i+2]
				if two == "<>" || two == "<=" || two == ">=" || two == "!=" || two == "==" {
					op = two
				}
			}
			if op == "!" {
				return nil, &qerr.RelationalSyntaxError{Position: i, Reason: "unexpected '!'"}
			}
			toks = append(toks, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		case strings.ContainsRune("+-*/%", rune(c)):
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case strings.ContainsRune("(),;.", rune(c)):
			toks = append(toks, token{kind: tokPunct, text: string(c), pos: i})
			i++
		case c == '?':
			return nil, &qerr.RelationalSyntaxError{Position: i, Reason: "placeholders are not literals"}
		default:
			return nil, &qerr.RelationalSyntaxError{Position: i, Reason: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

// lexString reads a single-quoted literal; '' stands for one quote.
func lexString(src string, start int) (string, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		if src[i] == '\'' {
			if i+1 < len(src) && src[i+1] == '\'' {
				b.WriteByte('\'')
				i += 2
				continue
			}
			return b.String(), i + 1, nil
		}
		r, size := utf8.DecodeRuneInString(src[i:])
		if r == utf8.RuneError && size == 1 {
			return "", 0, &qerr.LiteralSyntaxError{Position: i, Reason: "invalid UTF-8 in string literal"}
		}
		b.WriteString(src[i : i+size])
		i += size
	}
	return "", 0, &qerr.RelationalSyntaxError{Position: start, Reason: "unterminated string literal"}
}

func lexIdent(src string, start int) (token, int, error) {
	var parts []string
	quoted := false
	i := start
	for {
		if i >= len(src) {
			break
		}
		switch c := src[i]; {
		case c == '"' || c == '`':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return token{}, 0, &qerr.RelationalSyntaxError{Position: i, Reason: "unterminated quoted identifier"}
			}
			parts = append(parts, src[i+1:i+1+end])
			i += end + 2
			quoted = true
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			parts = append(parts, src[i:j])
			i = j
		default:
			return token{}, 0, &qerr.RelationalSyntaxError{Position: i, Reason: "expected identifier"}
		}
		// Continue through a dot only when another identifier part follows.
		if i+1 < len(src) && src[i] == '.' && (isIdentStart(src[i+1]) || src[i+1] == '"' || src[i+1] == '`') {
			i++
			continue
		}
		break
	}
	text := strings.Join(parts, ".")
	return token{kind: tokIdent, text: text, upper: strings.ToUpper(text), quoted: quoted, pos: start}, i, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) || c == '$' }

// splitStatements splits tokens on ';' at parenthesis depth 0. Empty
// statements are dropped. Every returned slice ends with an EOF token.
func splitStatements(toks []token) ([][]token, error) {
	var out [][]token
	depth := 0
	start := 0
	for i, t := range toks {
		switch {
		case t.isPunct("("):
			depth++
		case t.isPunct(")"):
			depth--
			if depth < 0 {
				return nil, &qerr.RelationalSyntaxError{Position: t.pos, Reason: "unbalanced ')'"}
			}
		case t.isPunct(";") && depth == 0, t.kind == tokEOF:
			if t.kind == tokEOF && depth > 0 {
				return nil, &qerr.RelationalSyntaxError{Position: t.pos, Reason: "unbalanced '('"}
			}
			if i > start {
				stmt := append([]token{}, toks[start:i]...)
				stmt = append(stmt, token{kind: tokEOF, pos: t.pos})
				out = append(out, stmt)
			}
			start = i + 1
		}
	}
	return out, nil
}
