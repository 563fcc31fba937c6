package ir

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for fingerprinting.
//
// Differences from MarshalIRValue:
//  1. Object keys sorted by UTF-16 code units (RFC 8785), not written order
//  2. Strings are NFC normalized
//  3. Floats use the shortest round-trip form
//  4. Always compact
//
// Two value trees that differ only in key order or string normalization
// produce the same bytes.
func MarshalCanonical(v IRValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v IRValue) error {
	switch val := v.(type) {
	case IRString:
		return writeJSONString(buf, norm.NFC.String(string(val)))
	case IRFloat:
		buf.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case IRArray:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case IRObject:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, norm.NFC.String(k)); err != nil {
				return err
			}
			buf.WriteByte(':')
			elem, _ := val.Get(k)
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	case IRDate, IRObjectID, IRRegex:
		return writeCanonical(buf, ExtendedForm(val))
	default:
		return writeJSON(buf, v, "", 0)
	}
	return nil
}
