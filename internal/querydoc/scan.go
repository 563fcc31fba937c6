package querydoc

import (
	"strings"

	"github.com/roach88/querybridge/internal/qerr"
)

// span is one piece of script text and its byte offset in the script.
type span struct {
	text string
	pos  int
}

func syntaxErr(pos int, reason string) error {
	return &qerr.DocumentMethodSyntaxError{Position: pos, Reason: reason}
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

// regexAllowed reports whether a '/' following prev starts a regex
// literal rather than a division.
func regexAllowed(prev byte) bool {
	return prev == 0 || strings.IndexByte("(,=:[!&|?{};", prev) >= 0
}

// skipString returns the index of the quote closing the string at i.
func skipString(src string, i int) (int, error) {
	q := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j, nil
		case '\n':
			return 0, syntaxErr(i, "unterminated string")
		}
	}
	return 0, syntaxErr(i, "unterminated string")
}

// skipRegex returns the index of the '/' closing the regex literal at i.
func skipRegex(src string, i int) (int, error) {
	inClass := false
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '[':
			inClass = true
		case ']':
			inClass = false
		case '/':
			if !inClass {
				return j, nil
			}
		case '\n':
			return 0, syntaxErr(i, "unterminated regular expression")
		}
	}
	return 0, syntaxErr(i, "unterminated regular expression")
}

// stripComments blanks out // and /* */ comments, keeping every other
// byte (and so every position) in place.
func stripComments(src string) (string, error) {
	out := []byte(src)
	var prev byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		var err error
		switch {
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for ; i < len(src) && src[i] != '\n'; i++ {
				out[i] = ' '
			}
			continue
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return "", syntaxErr(i, "unterminated comment")
			}
			for j := i; j < i+2+end+2; j++ {
				if out[j] != '\n' {
					out[j] = ' '
				}
			}
			i += 2 + end + 1
			continue
		case c == '"' || c == '\'':
			i, err = skipString(src, i)
		case c == '/' && regexAllowed(prev):
			i, err = skipRegex(src, i)
		}
		if err != nil {
			return "", err
		}
		if !isSpace(c) {
			prev = c
		}
	}
	return string(out), nil
}

// startsStatement reports whether rest begins a new statement, which lets
// scripts omit the ';' between lines.
func startsStatement(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	for _, prefix := range []string{"db.", "db[", "var ", "let ", "const "} {
		if strings.HasPrefix(rest, prefix) {
			return true
		}
	}
	return false
}

// splitScript splits a script into statements on ';' at bracket depth 0,
// outside strings, regex literals and comments. A newline at depth 0 also
// ends a statement when the next line starts a new one.
func splitScript(src string) ([]span, error) {
	src, err := stripComments(src)
	if err != nil {
		return nil, err
	}
	var out []span
	depth, start := 0, 0
	var prev byte
	flush := func(end int) {
		raw := src[start:end]
		text := strings.TrimSpace(raw)
		if text != "" {
			lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
			out = append(out, span{text: text, pos: start + lead})
		}
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			if i, err = skipString(src, i); err != nil {
				return nil, err
			}
		case c == '/' && regexAllowed(prev):
			if i, err = skipRegex(src, i); err != nil {
				return nil, err
			}
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
			if depth < 0 {
				return nil, syntaxErr(i, "unbalanced "+string(c))
			}
		case c == ';' && depth == 0:
			flush(i)
			start, prev = i+1, 0
			continue
		case c == '\n' && depth == 0 && prev != 0 && prev != '.' && startsStatement(src[i+1:]):
			flush(i)
			start, prev = i+1, 0
			continue
		}
		if !isSpace(c) {
			prev = c
		}
	}
	if depth != 0 {
		return nil, syntaxErr(len(src), "unbalanced brackets at end of input")
	}
	flush(len(src))
	return out, nil
}

// closing returns the index of the bracket closing the one at open.
func closing(src string, open int) (int, error) {
	depth := 0
	var prev byte
	for i := open; i < len(src); i++ {
		c := src[i]
		var err error
		switch {
		case c == '"' || c == '\'':
			i, err = skipString(src, i)
		case c == '/' && regexAllowed(prev):
			i, err = skipRegex(src, i)
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
		if err != nil {
			return 0, err
		}
		if !isSpace(c) {
			prev = c
		}
	}
	return 0, syntaxErr(open, "unbalanced "+string(src[open]))
}

// splitArgs splits the text between a call's parentheses on depth-0 commas.
func splitArgs(src string, base int) ([]span, error) {
	var out []span
	depth, start := 0, 0
	var prev byte
	add := func(end int) {
		raw := src[start:end]
		lead := len(raw) - len(strings.TrimLeft(raw, " \t\r\n"))
		out = append(out, span{text: strings.TrimSpace(raw), pos: base + start + lead})
	}
	for i := 0; i < len(src); i++ {
		c := src[i]
		var err error
		switch {
		case c == '"' || c == '\'':
			i, err = skipString(src, i)
		case c == '/' && regexAllowed(prev):
			i, err = skipRegex(src, i)
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == ',' && depth == 0:
			add(i)
			start = i + 1
		}
		if err != nil {
			return nil, err
		}
		if !isSpace(c) {
			prev = c
		}
	}
	if strings.TrimSpace(src[start:]) != "" || len(out) > 0 {
		add(len(src))
	}
	if n := len(out); n > 0 && out[n-1].text == "" {
		out = out[:n-1] // trailing comma
	}
	for _, a := range out {
		if a.text == "" {
			return nil, syntaxErr(a.pos, "empty argument")
		}
	}
	return out, nil
}
