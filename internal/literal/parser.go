// Package literal parses the literal expressions embedded in query text
// (records, arrays, strings, numbers, regexes and a closed set of
// constructors) into ir values.
//
// The grammar is closed: input is never evaluated. Unknown constructor
// names and bare identifiers fail unless references are enabled.
package literal

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// Options configures a Parser.
type Options struct {
	// AllowRefs accepts bare identifiers in value position as ir.IRRef.
	AllowRefs bool

	// MaxDepth bounds object/array nesting. Zero selects qir.DefaultMaxDepth.
	MaxDepth int

	// Offset is added to every reported position, so errors point into the
	// enclosing statement rather than the literal span.
	Offset int
}

// Parser is a recursive-descent parser over one source string.
type Parser struct {
	src   string
	pos   int
	opts  Options
	depth *qir.DepthCounter
}

// NewParser creates a parser positioned at the start of src.
func NewParser(src string, opts Options) *Parser {
	return &Parser{src: src, opts: opts, depth: qir.NewDepthCounter(opts.MaxDepth)}
}

// Parse parses src as exactly one literal, surrounded only by whitespace.
func Parse(src string, opts Options) (ir.IRValue, error) {
	p := NewParser(src, opts)
	v, err := p.Value()
	if err != nil {
		return nil, err
	}
	p.SkipSpace()
	if !p.EOF() {
		return nil, p.errorf("unexpected %q after literal", p.peekRune())
	}
	return v, nil
}

// Pos returns the current byte offset within src.
func (p *Parser) Pos() int { return p.pos }

// EOF reports whether the parser consumed all input.
func (p *Parser) EOF() bool { return p.pos >= len(p.src) }

// SkipSpace advances past whitespace.
func (p *Parser) SkipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *Parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *Parser) peekRune() string {
	if p.pos >= len(p.src) {
		return "end of input"
	}
	r, _ := utf8.DecodeRuneInString(p.src[p.pos:])
	return string(r)
}

func (p *Parser) errorf(format string, args ...any) error {
	return &qerr.LiteralSyntaxError{Position: p.opts.Offset + p.pos, Reason: fmt.Sprintf(format, args...)}
}

func (p *Parser) expect(c byte) error {
	p.SkipSpace()
	if p.peek() != c {
		return p.errorf("expected %q, found %q", c, p.peekRune())
	}
	p.pos++
	return nil
}

// Value parses one literal starting at the current position.
func (p *Parser) Value() (ir.IRValue, error) {
	p.SkipSpace()
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("expected a value, found end of input")
	case c == '{':
		return p.object()
	case c == '[':
		return p.array()
	case c == '"' || c == '\'':
		s, err := p.String()
		if err != nil {
			return nil, err
		}
		return ir.IRString(s), nil
	case c == '/':
		return p.regex()
	case c == '-' || c == '+' || isDigit(c):
		return p.number()
	case isIdentStart(c):
		return p.identValue()
	default:
		return nil, p.errorf("unexpected %q", p.peekRune())
	}
}

func (p *Parser) object() (ir.IRValue, error) {
	if err := p.depth.Enter(); err != nil {
		return nil, err
	}
	defer p.depth.Exit()

	p.pos++ // {
	obj := ir.IRObject{}
	for {
		p.SkipSpace()
		if p.peek() == '}' {
			p.pos++
			return obj, nil
		}
		keyPos := p.pos
		key, err := p.key()
		if err != nil {
			return nil, err
		}
		if _, dup := obj.Get(key); dup {
			p.pos = keyPos
			return nil, p.errorf("duplicate key %q", key)
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		val, err := p.Value()
		if err != nil {
			return nil, err
		}
		obj = append(obj, ir.O(key, val))

		p.SkipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.errorf("expected ',' or '}', found %q", p.peekRune())
		}
	}
}

func (p *Parser) key() (string, error) {
	switch c := p.peek(); {
	case c == '"' || c == '\'':
		return p.String()
	case isIdentStart(c) || isDigit(c):
		start := p.pos
		for p.pos < len(p.src) && (isIdentPart(p.src[p.pos]) || p.src[p.pos] == '.') {
			p.pos++
		}
		return p.src[start:p.pos], nil
	default:
		return "", p.errorf("expected object key, found %q", p.peekRune())
	}
}

func (p *Parser) array() (ir.IRValue, error) {
	if err := p.depth.Enter(); err != nil {
		return nil, err
	}
	defer p.depth.Exit()

	p.pos++ // [
	arr := ir.IRArray{}
	for {
		p.SkipSpace()
		if p.peek() == ']' {
			p.pos++
			return arr, nil
		}
		val, err := p.Value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)

		p.SkipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
		default:
			return nil, p.errorf("expected ',' or ']', found %q", p.peekRune())
		}
	}
}

// String parses a single- or double-quoted string with backslash escapes.
func (p *Parser) String() (string, error) {
	quote := p.peek()
	start := p.pos
	p.pos++
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			p.pos = start
			return "", p.errorf("unterminated string")
		}
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return b.String(), nil
		case c == '\\':
			p.pos++
			if p.pos >= len(p.src) {
				p.pos = start
				return "", p.errorf("unterminated string")
			}
			if err := p.escape(&b); err != nil {
				return "", err
			}
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
}

func (p *Parser) escape(b *strings.Builder) error {
	c := p.src[p.pos]
	p.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case '0':
		b.WriteByte(0)
	case 'u':
		if p.pos+4 > len(p.src) {
			return p.errorf("truncated \\u escape")
		}
		n, err := strconv.ParseUint(p.src[p.pos:p.pos+4], 16, 16)
		if err != nil {
			return p.errorf("invalid \\u escape %q", p.src[p.pos:p.pos+4])
		}
		p.pos += 4
		b.WriteRune(rune(n))
	default:
		// \\, \', \", \/ and any other escaped character stand for themselves.
		b.WriteByte(c)
	}
	return nil
}

func (p *Parser) regex() (ir.IRValue, error) {
	start := p.pos
	p.pos++ // opening /
	var b strings.Builder
	inClass := false
	for {
		if p.pos >= len(p.src) || p.src[p.pos] == '\n' {
			p.pos = start
			return nil, p.errorf("unterminated regular expression")
		}
		c := p.src[p.pos]
		if c == '\\' && p.pos+1 < len(p.src) {
			b.WriteString(p.src[p.pos : p.pos+2])
			p.pos += 2
			continue
		}
		if c == '/' && !inClass {
			p.pos++
			break
		}
		switch c {
		case '[':
			inClass = true
		case ']':
			inClass = false
		}
		b.WriteByte(c)
		p.pos++
	}
	if b.Len() == 0 {
		p.pos = start
		return nil, p.errorf("empty regular expression")
	}
	flagStart := p.pos
	for p.pos < len(p.src) && strings.IndexByte("gimsuy", p.src[p.pos]) >= 0 {
		p.pos++
	}
	return ir.IRRegex{Pattern: b.String(), Flags: p.src[flagStart:p.pos]}, nil
}

func (p *Parser) number() (ir.IRValue, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	digits := p.pos
	for isDigit(p.peek()) {
		p.pos++
	}
	if p.pos == digits {
		return nil, p.errorf("expected digits")
	}
	isFloat := false
	if p.peek() == '.' {
		isFloat = true
		p.pos++
		for isDigit(p.peek()) {
			p.pos++
		}
	}
	if c := p.peek(); c == 'e' || c == 'E' {
		isFloat = true
		p.pos++
		if c := p.peek(); c == '-' || c == '+' {
			p.pos++
		}
		expDigits := p.pos
		for isDigit(p.peek()) {
			p.pos++
		}
		if p.pos == expDigits {
			return nil, p.errorf("malformed exponent")
		}
	}
	text := strings.TrimPrefix(p.src[start:p.pos], "+")
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return ir.IRInt(n), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		p.pos = start
		return nil, p.errorf("invalid number %q", text)
	}
	return ir.IRFloat(f), nil
}

// Ident parses an identifier at the current position.
func (p *Parser) Ident() string {
	start := p.pos
	for p.pos < len(p.src) && isIdentPart(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *Parser) identValue() (ir.IRValue, error) {
	start := p.pos
	name := p.Ident()
	switch name {
	case "true":
		return ir.IRBool(true), nil
	case "false":
		return ir.IRBool(false), nil
	case "null":
		return ir.IRNull{}, nil
	case "new":
		p.SkipSpace()
		ctorPos := p.pos
		ctor := p.Ident()
		if ctor != "Date" && ctor != "ISODate" && ctor != "ObjectId" && ctor != "RegExp" {
			p.pos = ctorPos
			return nil, p.errorf("unknown constructor %q", ctor)
		}
		return p.constructor(ctor, ctorPos)
	}

	save := p.pos
	p.SkipSpace()
	if p.peek() == '(' {
		return p.constructor(name, start)
	}
	p.pos = save
	if p.opts.AllowRefs {
		return ir.IRRef{Name: name}, nil
	}
	p.pos = start
	return nil, p.errorf("bare identifier %q is not a literal", name)
}

// constructor parses the argument list of a known constructor.
func (p *Parser) constructor(name string, at int) (ir.IRValue, error) {
	build, ok := constructors[name]
	if !ok {
		p.pos = at
		return nil, p.errorf("unknown constructor %q", name)
	}
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var args []ir.IRValue
	for {
		p.SkipSpace()
		if p.peek() == ')' {
			p.pos++
			break
		}
		v, err := p.Value()
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		p.SkipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case ')':
		default:
			return nil, p.errorf("expected ',' or ')', found %q", p.peekRune())
		}
	}
	v, reason := build(args)
	if reason != "" {
		p.pos = at
		return nil, p.errorf("%s: %s", name, reason)
	}
	return v, nil
}

// constructors is the closed set of named constructors. Each returns a
// value or a non-empty reason.
var constructors = map[string]func(args []ir.IRValue) (ir.IRValue, string){
	"ISODate":       dateCtor,
	"Date":          dateCtor,
	"ObjectId":      objectIDCtor,
	"NumberInt":     intCtor,
	"NumberLong":    intCtor,
	"NumberDecimal": decimalCtor,
	"RegExp":        regexpCtor,
}

func dateCtor(args []ir.IRValue) (ir.IRValue, string) {
	if len(args) != 1 {
		return nil, "expects exactly one argument (the current time is not a literal)"
	}
	switch a := args[0].(type) {
	case ir.IRString:
		t, err := ir.ParseDate(string(a))
		if err != nil {
			return nil, err.Error()
		}
		return ir.IRDate{Time: t}, ""
	case ir.IRInt:
		return ir.IRDate{Time: time.UnixMilli(int64(a)).UTC()}, ""
	}
	return nil, "expects a date string or epoch milliseconds"
}

func objectIDCtor(args []ir.IRValue) (ir.IRValue, string) {
	if len(args) != 1 {
		return nil, "expects exactly one argument"
	}
	s, ok := args[0].(ir.IRString)
	if !ok || len(s) != 24 {
		return nil, "expects a 24 character hex string"
	}
	if _, err := strconv.ParseUint(string(s[:12]), 16, 64); err != nil {
		return nil, "expects a 24 character hex string"
	}
	if _, err := strconv.ParseUint(string(s[12:]), 16, 64); err != nil {
		return nil, "expects a 24 character hex string"
	}
	return ir.IRObjectID(s), ""
}

func intCtor(args []ir.IRValue) (ir.IRValue, string) {
	if len(args) != 1 {
		return nil, "expects exactly one argument"
	}
	switch a := args[0].(type) {
	case ir.IRInt:
		return a, ""
	case ir.IRString:
		n, err := strconv.ParseInt(string(a), 10, 64)
		if err != nil {
			return nil, fmt.Sprintf("invalid integer %q", string(a))
		}
		return ir.IRInt(n), ""
	}
	return nil, "expects an integer"
}

func decimalCtor(args []ir.IRValue) (ir.IRValue, string) {
	if len(args) != 1 {
		return nil, "expects exactly one argument"
	}
	switch a := args[0].(type) {
	case ir.IRInt, ir.IRFloat:
		return a, ""
	case ir.IRString:
		f, err := strconv.ParseFloat(string(a), 64)
		if err != nil {
			return nil, fmt.Sprintf("invalid decimal %q", string(a))
		}
		return ir.IRFloat(f), ""
	}
	return nil, "expects a number"
}

func regexpCtor(args []ir.IRValue) (ir.IRValue, string) {
	if len(args) < 1 || len(args) > 2 {
		return nil, "expects a pattern and optional flags"
	}
	pattern, ok := args[0].(ir.IRString)
	if !ok {
		return nil, "pattern must be a string"
	}
	re := ir.IRRegex{Pattern: string(pattern)}
	if len(args) == 2 {
		flags, ok := args[1].(ir.IRString)
		if !ok {
			return nil, "flags must be a string"
		}
		re.Flags = string(flags)
	}
	return re, ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }

// IsIdent reports whether s is a bare identifier.
func IsIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
