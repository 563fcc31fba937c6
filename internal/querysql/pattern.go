package querysql

import (
	"regexp"
	"strings"
)

// likeToRegex converts a LIKE pattern to an unanchored-where-possible
// regular expression: % becomes .*, _ becomes ., a leading or trailing %
// drops the corresponding anchor.
func likeToRegex(like string) string {
	var body strings.Builder
	for i := 0; i < len(like); i++ {
		switch c := like[i]; c {
		case '%':
			body.WriteString(".*")
		case '_':
			body.WriteByte('.')
		case '\\':
			if i+1 < len(like) {
				i++
				body.WriteString(regexp.QuoteMeta(like[i : i+1]))
			} else {
				body.WriteString(`\\`)
			}
		default:
			body.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	re := body.String()
	if rest, ok := strings.CutPrefix(re, ".*"); ok {
		re = rest
	} else {
		re = "^" + re
	}
	if rest, ok := strings.CutSuffix(re, ".*"); ok && !strings.HasSuffix(rest, `\`) {
		re = rest
	} else {
		re += "$"
	}
	return re
}

// regexToLike converts a regular expression back to a LIKE pattern. It
// reports false when the expression uses anything beyond anchors,
// literal characters, '.' and '.*'.
func regexToLike(re string) (string, bool) {
	var b strings.Builder
	anchoredStart := strings.HasPrefix(re, "^")
	if anchoredStart {
		re = re[1:]
	}
	anchoredEnd := strings.HasSuffix(re, "$") && !strings.HasSuffix(re, `\$`)
	if anchoredEnd {
		re = re[:len(re)-1]
	}
	if !anchoredStart {
		b.WriteByte('%')
	}
	for i := 0; i < len(re); i++ {
		c := re[i]
		switch {
		case c == '\\':
			if i+1 >= len(re) {
				return "", false
			}
			i++
			lit := re[i]
			if isAlnum(lit) {
				return "", false // \d, \w, \b ...
			}
			writeLikeLiteral(&b, lit)
		case c == '.' && i+1 < len(re) && re[i+1] == '*':
			b.WriteByte('%')
			i++
		case c == '.':
			b.WriteByte('_')
		case strings.IndexByte(`[](){}|?*+^$`, c) >= 0:
			return "", false
		default:
			writeLikeLiteral(&b, c)
		}
	}
	if !anchoredEnd {
		b.WriteByte('%')
	}
	return b.String(), true
}

func writeLikeLiteral(b *strings.Builder, c byte) {
	if c == '%' || c == '_' || c == '\\' {
		b.WriteByte('\\')
	}
	b.WriteByte(c)
}

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
