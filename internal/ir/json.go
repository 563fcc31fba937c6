package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Extended JSON keys used for values JSON has no literal for.
const (
	extDate    = "$date"
	extOID     = "$oid"
	extRegex   = "$regex"
	extOptions = "$options"
)

// UnmarshalIRValue decodes one JSON document into an IRValue, keeping
// object key order. Integral numbers become IRInt, others IRFloat.
// Single-key {"$date": ...} and {"$oid": ...} objects become IRDate and
// IRObjectID; {"$regex": ..., "$options": ...} becomes IRRegex.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value at offset %d", dec.InputOffset())
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (IRValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case nil:
		return IRNull{}, nil
	case bool:
		return IRBool(t), nil
	case string:
		return IRString(t), nil
	case json.Number:
		return numberValue(t)
	case json.Delim:
		switch t {
		case '[':
			arr := IRArray{}
			for dec.More() {
				elem, err := decodeValue(dec)
				if err != nil {
					return nil, fmt.Errorf("array[%d]: %w", len(arr), err)
				}
				arr = append(arr, elem)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		case '{':
			obj := IRObject{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key must be a string, got %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, fmt.Errorf("object[%q]: %w", key, err)
				}
				obj = append(obj, IRPair{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return FromExtended(obj)
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func numberValue(n json.Number) (IRValue, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return IRInt(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %s", s)
	}
	return IRFloat(f), nil
}

// FromExtended maps Extended JSON wrappers onto typed values. Objects that
// are not wrappers are returned unchanged.
func FromExtended(obj IRObject) (IRValue, error) {
	switch {
	case len(obj) == 1 && obj[0].Key == extDate:
		s, ok := obj[0].Value.(IRString)
		if !ok {
			return nil, fmt.Errorf("%s must hold a string", extDate)
		}
		t, err := ParseDate(string(s))
		if err != nil {
			return nil, err
		}
		return IRDate{Time: t}, nil
	case len(obj) == 1 && obj[0].Key == extOID:
		s, ok := obj[0].Value.(IRString)
		if !ok {
			return nil, fmt.Errorf("%s must hold a string", extOID)
		}
		return IRObjectID(s), nil
	case len(obj) >= 1 && len(obj) <= 2 && obj[0].Key == extRegex:
		pattern, ok := obj[0].Value.(IRString)
		if !ok {
			return obj, nil // {$regex: ...} with a non-string operand is left to the caller
		}
		re := IRRegex{Pattern: string(pattern)}
		if len(obj) == 2 {
			opts, ok := obj[1].Value.(IRString)
			if obj[1].Key != extOptions || !ok {
				return obj, nil
			}
			re.Flags = string(opts)
		}
		return re, nil
	}
	return obj, nil
}

// MarshalIRValue renders an IRValue as indented JSON. Object keys keep
// their order; dates, object ids and regexes use Extended JSON wrappers.
// An empty indent produces compact output.
func MarshalIRValue(v IRValue, indent string) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v, indent, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v IRValue, indent string, level int) error {
	switch val := v.(type) {
	case IRNull:
		buf.WriteString("null")
	case IRString:
		return writeJSONString(buf, string(val))
	case IRInt, IRFloat:
		buf.WriteString(FormatNumber(val))
	case IRBool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case IRDate, IRObjectID, IRRegex:
		return writeJSON(buf, ExtendedForm(val), indent, level)
	case IRRef:
		return fmt.Errorf("reference %q has no JSON form", val.Name)
	case IRArray:
		if len(val) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, indent, level+1)
			if err := writeJSON(buf, elem, indent, level+1); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		newline(buf, indent, level)
		buf.WriteByte(']')
	case IRObject:
		if len(val) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteByte('{')
		for i, p := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			newline(buf, indent, level+1)
			if err := writeJSONString(buf, p.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if indent != "" {
				buf.WriteByte(' ')
			}
			if err := writeJSON(buf, p.Value, indent, level+1); err != nil {
				return fmt.Errorf("object[%q]: %w", p.Key, err)
			}
		}
		newline(buf, indent, level)
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown IRValue type: %T", v)
	}
	return nil
}

// ExtendedForm returns the Extended JSON wrapper object for a date,
// object id or regex value.
func ExtendedForm(v IRValue) IRObject {
	switch val := v.(type) {
	case IRDate:
		return IRObject{O(extDate, IRString(val.Time.UTC().Format(DateLayout)))}
	case IRObjectID:
		return IRObject{O(extOID, IRString(val))}
	case IRRegex:
		obj := IRObject{O(extRegex, IRString(val.Pattern))}
		if val.Flags != "" {
			obj = append(obj, O(extOptions, IRString(val.Flags)))
		}
		return obj
	}
	return nil
}

func newline(buf *bytes.Buffer, indent string, level int) {
	if indent == "" {
		return
	}
	buf.WriteByte('\n')
	buf.WriteString(strings.Repeat(indent, level))
}

// writeJSONString writes s as a JSON string without HTML escaping.
func writeJSONString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
