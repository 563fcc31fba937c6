package translate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/querydoc"
	"github.com/roach88/querybridge/internal/querysql"
	"github.com/roach88/querybridge/internal/resolve"
)

// StatementError reports the failure of one statement of a script or one
// input of a batch. Index is zero-based.
type StatementError struct {
	Index int
	Err   error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d: %v", e.Index+1, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// StatementResult is the translation of one source statement.
type StatementResult struct {
	Index  int
	Source string
	Output Output
	Err    error
}

// TranslateEach translates every statement of input on its own. A failing
// statement does not affect its siblings; its Err is a *StatementError.
// The returned error reports only input that cannot be split into
// statements.
func (t *Translator) TranslateEach(input string, from, to qir.Dialect) ([]StatementResult, error) {
	parsed, err := t.parseEach(input, from)
	if err != nil {
		return nil, err
	}
	results := make([]StatementResult, len(parsed))
	for i, p := range parsed {
		results[i] = StatementResult{Index: i, Source: p.text}
		err := p.err
		if err == nil {
			var plan resolve.Plan
			if plan, err = t.resolve([]qir.Statement{p.stmt}); err == nil {
				results[i].Output, err = t.emit(plan, to)
			}
		}
		if err != nil {
			results[i].Err = &StatementError{Index: i, Err: err}
		}
	}
	return results, nil
}

type parsedStatement struct {
	text string
	stmt qir.Statement
	err  error
}

func (t *Translator) parseEach(input string, from qir.Dialect) ([]parsedStatement, error) {
	var out []parsedStatement
	switch from {
	case qir.Document:
		results, err := querydoc.ParseEach(input, querydoc.Options{MaxDepth: t.opts.MaxDepth})
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			out = append(out, parsedStatement{text: r.Text, stmt: r.Statement, err: r.Err})
		}
	case qir.Relational:
		results, err := querysql.ParseEach(input, querysql.Options{MaxDepth: t.opts.MaxDepth})
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			out = append(out, parsedStatement{text: r.Text, stmt: r.Statement, err: r.Err})
		}
	case qir.Record:
		// A record is decoded as a whole; its statements are then
		// translated independently.
		stmts, err := t.Parse(input, from)
		if err != nil {
			return nil, err
		}
		for _, s := range stmts {
			out = append(out, parsedStatement{text: s.Target, stmt: s})
		}
	default:
		return nil, fmt.Errorf("unknown source dialect %q", from)
	}
	t.logger.Debug("split", "dialect", from, "statements", len(out))
	return out, nil
}

// BatchResult is the translation of one input of a batch.
type BatchResult struct {
	Index  int
	Output Output
	Err    error
}

// TranslateBatch translates independent inputs concurrently, at most
// Options.Workers at a time. Results are in input order; a failing input
// carries a *StatementError and does not stop the others. The returned
// error is non-nil only when ctx is cancelled.
func (t *Translator) TranslateBatch(ctx context.Context, inputs []string, from, to qir.Dialect) ([]BatchResult, error) {
	results := make([]BatchResult, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for i, input := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := t.Translate(input, from, to)
			results[i] = BatchResult{Index: i, Output: out}
			if err != nil {
				results[i].Err = &StatementError{Index: i, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	t.logger.Debug("batch translated", "inputs", len(inputs), "workers", t.opts.Workers)
	return results, nil
}
