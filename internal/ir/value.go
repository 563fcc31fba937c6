package ir

import (
	"fmt"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"
)

// IRValue is a sealed interface representing literal value trees.
// Only the types in this package implement it.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents a null literal.
type IRNull struct{}

func (IRNull) irValue() {}

// IRString represents a string literal.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer literal.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat represents a non-integral number literal.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool represents a boolean literal.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an ordered sequence of values.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a record. Key order is the order the record was
// written in and is preserved by every parser and emitter.
// Use SortedKeys() when a canonical order is needed.
type IRObject []IRPair

func (IRObject) irValue() {}

// IRDate represents a date constructor literal (ISODate, new Date).
type IRDate struct {
	Time time.Time
}

func (IRDate) irValue() {}

// IRObjectID represents an object identifier constructor literal.
type IRObjectID string

func (IRObjectID) irValue() {}

// IRRegex represents a regular expression literal (/pattern/flags).
type IRRegex struct {
	Pattern string
	Flags   string
}

func (IRRegex) irValue() {}

// IRRef is a bare identifier referencing a named prior result.
// Only the document dialect produces it, and only where references are enabled.
type IRRef struct {
	Name string
}

func (IRRef) irValue() {}

// IRPair represents a key-value pair of an IRObject.
type IRPair struct {
	Key   string
	Value IRValue
}

// O is a shorthand for IRPair for ergonomic construction.
// Example: IRObject{O("name", IRString("cart")), O("count", IRInt(5))}
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// Get returns the value stored under key.
func (obj IRObject) Get(key string) (IRValue, bool) {
	for _, p := range obj {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Keys returns keys in written order.
func (obj IRObject) Keys() []string {
	keys := make([]string, len(obj))
	for i, p := range obj {
		keys[i] = p.Key
	}
	return keys
}

// With returns a copy of obj with key set to value. An existing key keeps
// its position.
func (obj IRObject) With(key string, value IRValue) IRObject {
	out := slices.Clone(obj)
	for i, p := range out {
		if p.Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, IRPair{Key: key, Value: value})
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := obj.Keys()
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// Equal reports whether two value trees are structurally identical.
// Object key order is significant.
func Equal(a, b IRValue) bool {
	switch av := a.(type) {
	case IRArray:
		bv, ok := b.(IRArray)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if av[i].Key != bv[i].Key || !Equal(av[i].Value, bv[i].Value) {
				return false
			}
		}
		return true
	case IRDate:
		bv, ok := b.(IRDate)
		return ok && av.Time.Equal(bv.Time)
	default:
		return a == b
	}
}

// TypeName returns a short name for the value's type, used in error messages.
func TypeName(v IRValue) string {
	switch v.(type) {
	case IRNull:
		return "null"
	case IRString:
		return "string"
	case IRInt:
		return "int"
	case IRFloat:
		return "float"
	case IRBool:
		return "bool"
	case IRArray:
		return "array"
	case IRObject:
		return "object"
	case IRDate:
		return "date"
	case IRObjectID:
		return "objectId"
	case IRRegex:
		return "regex"
	case IRRef:
		return "reference"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// AsInt returns the value as a non-fractional integer.
func AsInt(v IRValue) (int64, bool) {
	switch n := v.(type) {
	case IRInt:
		return int64(n), true
	case IRFloat:
		if float64(n) == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// FormatNumber renders a number literal the same way in every dialect.
func FormatNumber(v IRValue) string {
	switch n := v.(type) {
	case IRInt:
		return strconv.FormatInt(int64(n), 10)
	case IRFloat:
		return strconv.FormatFloat(float64(n), 'g', -1, 64)
	default:
		return ""
	}
}

// DateLayout is the layout every emitter uses for date literals.
const DateLayout = time.RFC3339Nano

// ParseDate accepts the date layouts written by humans in either dialect.
func ParseDate(s string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
