package querydoc

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/literal"
)

// writeValue renders v in shell literal syntax: bare keys where possible,
// constructor calls for dates and object ids, and /regex/ literals.
func writeValue(b *strings.Builder, v ir.IRValue) error {
	switch val := v.(type) {
	case ir.IRNull:
		b.WriteString("null")
	case ir.IRString:
		return writeString(b, string(val))
	case ir.IRInt:
		b.WriteString(ir.FormatNumber(val))
	case ir.IRFloat:
		if math.IsInf(float64(val), 0) || math.IsNaN(float64(val)) {
			return fmt.Errorf("non-finite number %v", float64(val))
		}
		b.WriteString(ir.FormatNumber(val))
	case ir.IRBool:
		fmt.Fprintf(b, "%t", bool(val))
	case ir.IRDate:
		b.WriteString("ISODate(")
		if err := writeString(b, val.Time.UTC().Format(ir.DateLayout)); err != nil {
			return err
		}
		b.WriteByte(')')
	case ir.IRObjectID:
		b.WriteString("ObjectId(")
		if err := writeString(b, string(val)); err != nil {
			return err
		}
		b.WriteByte(')')
	case ir.IRRegex:
		writeRegex(b, val)
	case ir.IRRef:
		b.WriteString(val.Name)
	case ir.IRArray:
		b.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := writeValue(b, elem); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case ir.IRObject:
		b.WriteByte('{')
		for i, pair := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			if literal.IsIdent(pair.Key) {
				b.WriteString(pair.Key)
			} else if err := writeString(b, pair.Key); err != nil {
				return err
			}
			b.WriteString(": ")
			if err := writeValue(b, pair.Value); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("unknown value type %T", v)
	}
	return nil
}

// writeString writes s as a double-quoted literal. Strings that are not
// valid UTF-8 have no shell form and are rejected rather than repaired.
func writeString(b *strings.Builder, s string) error {
	if !utf8.ValidString(s) {
		return emitUnrepresentable("string literal with invalid UTF-8")
	}
	out, err := ir.MarshalIRValue(ir.IRString(s), "")
	if err != nil {
		return err
	}
	b.Write(out)
	return nil
}

// writeRegex writes /pattern/flags, escaping bare slashes.
func writeRegex(b *strings.Builder, re ir.IRRegex) {
	b.WriteByte('/')
	if re.Pattern == "" {
		b.WriteString("(?:)")
	}
	for i := 0; i < len(re.Pattern); i++ {
		c := re.Pattern[i]
		switch {
		case c == '\\' && i+1 < len(re.Pattern):
			b.WriteString(re.Pattern[i : i+2])
			i++
		case c == '/':
			b.WriteString(`\/`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('/')
	b.WriteString(re.Flags)
}

func render(v ir.IRValue) (string, error) {
	var b strings.Builder
	if err := writeValue(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}
