package queryrec

import (
	"fmt"

	"github.com/roach88/querybridge/internal/ir"
	"github.com/roach88/querybridge/internal/qerr"
	"github.com/roach88/querybridge/internal/qir"
)

// Format is a record serialization.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	CUE  Format = "cue"
)

// ParseFormat accepts a format name or file extension.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", ".json":
		return JSON, nil
	case "yaml", "yml", ".yaml", ".yml":
		return YAML, nil
	case "cue", ".cue":
		return CUE, nil
	}
	return "", fmt.Errorf("unknown record format %q (valid: json, yaml, cue)", s)
}

// Record is a decoded record document. Statements named by a binding are
// the producers of that binding.
type Record struct {
	Statements []qir.Statement
	Bindings   []qir.Binding
}

// Options configures decoding.
type Options struct {
	// MaxDepth bounds value and filter nesting. Zero selects
	// qir.DefaultMaxDepth.
	MaxDepth int
}

// Decode reads a record document and validates every statement.
func Decode(data []byte, f Format, opts Options) (Record, error) {
	var (
		root ir.IRValue
		err  error
	)
	switch f {
	case JSON:
		root, err = decodeJSON(data)
	case YAML:
		root, err = decodeYAML(data)
	case CUE:
		root, err = decodeCUE(data)
	default:
		return Record{}, fmt.Errorf("unknown record format %q", f)
	}
	if err != nil {
		return Record{}, err
	}
	d := &decoder{depth: qir.NewDepthCounter(opts.MaxDepth)}
	rec, err := d.record(root)
	if err != nil {
		return Record{}, err
	}
	for i, s := range rec.Statements {
		if err := qir.ValidateWithLimit(s, opts.MaxDepth); err != nil {
			return Record{}, fmt.Errorf("statements[%d]: %w", i, err)
		}
	}
	return rec, nil
}

// Encode writes r as indented JSON or YAML.
func Encode(r Record, f Format) ([]byte, error) {
	doc, err := recordValue(r)
	if err != nil {
		return nil, err
	}
	switch f {
	case JSON:
		out, err := ir.MarshalIRValue(doc, "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case YAML:
		return encodeYAML(doc)
	case CUE:
		return nil, &qerr.UnrepresentableConstructError{Dialect: string(qir.Record), Construct: "CUE output (CUE is read-only; JSON output is valid CUE)"}
	}
	return nil, fmt.Errorf("unknown record format %q", f)
}

func invalid(node, format string, args ...any) error {
	return &qerr.InvariantViolationError{Node: "record " + node, Reason: fmt.Sprintf(format, args...)}
}
