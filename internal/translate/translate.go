package translate

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/querydoc"
	"github.com/roach88/querybridge/internal/queryrec"
	"github.com/roach88/querybridge/internal/querysql"
	"github.com/roach88/querybridge/internal/resolve"
)

// Options configures a Translator.
type Options struct {
	// MaxDepth bounds literal, filter and subquery nesting in every stage.
	// Zero selects qir.DefaultMaxDepth.
	MaxDepth int

	// Parameterize makes the relational emitter write ? placeholders and
	// return the literal values in Output.Params.
	Parameterize bool

	// RecordFormat is the serialization of the record dialect. Empty
	// writes JSON and reads JSON or YAML depending on the first byte.
	RecordFormat queryrec.Format

	// Workers bounds TranslateBatch concurrency. Zero or less selects 4.
	Workers int

	// Logger receives debug records for each stage. Nil discards.
	Logger *slog.Logger
}

// Output is the result of emitting one or more statements.
type Output struct {
	Text   string
	Params []any
}

// Translator runs translations with fixed options. It is safe for
// concurrent use.
type Translator struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Translator.
func New(opts Options) *Translator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Translator{opts: opts, logger: logger}
}

var defaultTranslator = New(Options{})

// Translate converts input from one dialect to another with default
// options.
func Translate(input string, from, to qir.Dialect) (string, error) {
	out, err := defaultTranslator.Translate(input, from, to)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// ParseToQIR parses input into statements with subqueries nested.
func ParseToQIR(input string, from qir.Dialect) ([]qir.Statement, error) {
	return defaultTranslator.Parse(input, from)
}

// EmitFromQIR renders statements in the target dialect with default
// options.
func EmitFromQIR(stmts []qir.Statement, bindings []qir.Binding, to qir.Dialect) (string, error) {
	out, err := defaultTranslator.Emit(stmts, bindings, to)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// Translate converts input from one dialect to another.
func (t *Translator) Translate(input string, from, to qir.Dialect) (Output, error) {
	stmts, err := t.Parse(input, from)
	if err != nil {
		return Output{}, err
	}
	plan, err := t.resolve(stmts)
	if err != nil {
		return Output{}, err
	}
	return t.emit(plan, to)
}

// Parse parses input into statements with subqueries nested. Record input
// names its producers through bindings; they are folded back into their
// consumers.
func (t *Translator) Parse(input string, from qir.Dialect) ([]qir.Statement, error) {
	var (
		stmts []qir.Statement
		err   error
	)
	switch from {
	case qir.Document:
		stmts, err = querydoc.Parse(input, querydoc.Options{MaxDepth: t.opts.MaxDepth})
	case qir.Relational:
		stmts, err = querysql.Parse(input, querysql.Options{MaxDepth: t.opts.MaxDepth})
	case qir.Record:
		var rec queryrec.Record
		rec, err = queryrec.Decode([]byte(input), t.inputFormat(input), queryrec.Options{MaxDepth: t.opts.MaxDepth})
		if err == nil {
			stmts, err = resolve.Nest(rec.Statements, rec.Bindings)
		}
	default:
		return nil, fmt.Errorf("unknown source dialect %q", from)
	}
	if err != nil {
		t.logger.Debug("parse failed", "dialect", from, "error", err)
		return nil, err
	}
	t.logger.Debug("parsed", "dialect", from, "statements", len(stmts))
	return stmts, nil
}

// Emit renders statements in the target dialect. Statements may be nested
// (subqueries inline) or resolved (producers named by bindings); they are
// normalised to the resolved form first, so producer names are always the
// deterministic ones.
func (t *Translator) Emit(stmts []qir.Statement, bindings []qir.Binding, to qir.Dialect) (Output, error) {
	nested, err := resolve.Nest(stmts, bindings)
	if err != nil {
		return Output{}, err
	}
	plan, err := t.resolve(nested)
	if err != nil {
		return Output{}, err
	}
	return t.emit(plan, to)
}

func (t *Translator) resolve(stmts []qir.Statement) (resolve.Plan, error) {
	plan, err := resolve.Resolve(stmts, resolve.Options{MaxDepth: t.opts.MaxDepth})
	if err != nil {
		t.logger.Debug("resolve failed", "error", err)
		return resolve.Plan{}, err
	}
	t.logger.Debug("resolved", "statements", len(plan.Statements), "bindings", len(plan.Bindings))
	return plan, nil
}

func (t *Translator) emit(plan resolve.Plan, to qir.Dialect) (Output, error) {
	var out Output
	switch to {
	case qir.Document:
		text, err := (&querydoc.Emitter{MaxDepth: t.opts.MaxDepth}).Emit(plan.Statements, plan.Bindings)
		if err != nil {
			return Output{}, err
		}
		out.Text = text
	case qir.Relational:
		e := &querysql.Emitter{Parameterize: t.opts.Parameterize, MaxDepth: t.opts.MaxDepth}
		text, params, err := e.Emit(plan.Statements, plan.Bindings)
		if err != nil {
			return Output{}, err
		}
		out = Output{Text: text, Params: params}
	case qir.Record:
		data, err := queryrec.Encode(queryrec.Record{Statements: plan.Statements, Bindings: plan.Bindings}, t.outputFormat())
		if err != nil {
			return Output{}, err
		}
		out.Text = string(bytes.TrimRight(data, "\n"))
	default:
		return Output{}, fmt.Errorf("unknown target dialect %q", to)
	}
	t.logger.Debug("emitted", "dialect", to, "bytes", len(out.Text), "params", len(out.Params))
	return out, nil
}

func (t *Translator) inputFormat(input string) queryrec.Format {
	if t.opts.RecordFormat != "" {
		return t.opts.RecordFormat
	}
	if trimmed := bytes.TrimSpace([]byte(input)); len(trimmed) > 0 && trimmed[0] == '{' {
		return queryrec.JSON
	}
	return queryrec.YAML
}

func (t *Translator) outputFormat() queryrec.Format {
	if t.opts.RecordFormat == "" {
		return queryrec.JSON
	}
	return t.opts.RecordFormat
}
