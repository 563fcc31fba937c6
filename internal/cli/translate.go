package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/translate"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	Each bool // translate statements one at a time
}

// TranslateResult is the JSON payload of a translation.
type TranslateResult struct {
	Output string `json:"output"`
	Params []any  `json:"params,omitempty"`
}

// StatementRow is one row of a --each or batch translation.
type StatementRow struct {
	Index  int    `json:"index"`
	Source string `json:"source"`
	Output string `json:"output,omitempty"`
	Params []any  `json:"params,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate [file...]",
		Short: "Translate queries from one dialect to another",
		Long: `Translate a query script from the --from dialect to the --to dialect.

With no file, or "-", the script is read from stdin. With several files,
each file is translated on its own and concurrently. --each translates
every statement of the script separately and reports failures per
statement instead of stopping at the first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, args, cmd)
		},
	}

	cmd.Flags().String("from", "", "source dialect (relational|document|record)")
	cmd.Flags().String("to", "", "target dialect (relational|document|record)")
	cmd.Flags().Bool("parameterize", false, "emit ? placeholders and report parameters")
	cmd.Flags().Int("workers", 4, "concurrent translations for multiple files")
	cmd.Flags().BoolVar(&opts.Each, "each", false, "translate each statement separately")

	return cmd
}

func runTranslate(opts *TranslateOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg := opts.settings()

	from, err := dialect("from", cfg.From)
	if err != nil {
		return formatter.CommandError(ErrCodeNoDialect, err)
	}
	to, err := dialect("to", cfg.To)
	if err != nil {
		return formatter.CommandError(ErrCodeNoDialect, err)
	}
	tr := opts.translator()

	if len(args) > 1 {
		return runBatch(cmd.Context(), formatter, tr, args, from, to)
	}

	input, err := readInput(cmd, args)
	if err != nil {
		return formatter.CommandError(ErrCodeReadFailed, err)
	}
	formatter.VerboseLog("Translating %s -> %s", from, to)

	if opts.Each {
		return runEach(formatter, tr, input, from, to)
	}

	out, err := tr.Translate(input, from, to)
	if err != nil {
		return formatter.TranslationError(err)
	}
	if formatter.Format == "json" {
		return formatter.Success(TranslateResult{Output: out.Text, Params: out.Params})
	}
	fmt.Fprintln(formatter.Writer, out.Text)
	if len(out.Params) > 0 {
		fmt.Fprintf(formatter.Writer, "-- params: %s\n", formatParams(out.Params))
	}
	return nil
}

func runEach(formatter *OutputFormatter, tr *translate.Translator, input string, from, to qir.Dialect) error {
	results, err := tr.TranslateEach(input, from, to)
	if err != nil {
		return formatter.TranslationError(err)
	}
	rows := make([]StatementRow, len(results))
	failed := 0
	for i, r := range results {
		rows[i] = statementRow(r.Index, r.Source, r.Output, r.Err)
		if r.Err != nil {
			failed++
		}
	}
	return outputRows(formatter, rows, failed)
}

func runBatch(ctx context.Context, formatter *OutputFormatter, tr *translate.Translator, files []string, from, to qir.Dialect) error {
	if ctx == nil {
		ctx = context.Background()
	}
	inputs := make([]string, len(files))
	for i, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return formatter.CommandError(ErrCodeReadFailed, fmt.Errorf("reading input: %w", err))
		}
		inputs[i] = string(data)
	}
	formatter.VerboseLog("Translating %d file(s) %s -> %s", len(files), from, to)

	results, err := tr.TranslateBatch(ctx, inputs, from, to)
	if err != nil {
		return formatter.CommandError(ErrCodeGeneric, err)
	}
	rows := make([]StatementRow, len(results))
	failed := 0
	for i, r := range results {
		rows[i] = statementRow(r.Index, files[i], r.Output, r.Err)
		if r.Err != nil {
			failed++
		}
	}
	return outputRows(formatter, rows, failed)
}

func statementRow(index int, source string, out translate.Output, err error) StatementRow {
	row := StatementRow{Index: index + 1, Source: strings.TrimSpace(source)}
	if err != nil {
		row.Error = err.Error()
		row.Code = ErrorCode(err)
		return row
	}
	row.Output = out.Text
	row.Params = out.Params
	return row
}

// outputRows prints rows as a table or a JSON list. Any failed row makes
// the command exit with ExitFailure after the output is written.
func outputRows(formatter *OutputFormatter, rows []StatementRow, failed int) error {
	if formatter.Format == "json" {
		if err := formatter.Success(rows); err != nil {
			return err
		}
	} else {
		renderRows(formatter, rows)
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d of %d statement(s) failed", ErrCodeStatementsFailed, failed, len(rows)))
	}
	return nil
}

func renderRows(formatter *OutputFormatter, rows []StatementRow) {
	t := table.NewWriter()
	t.SetOutputMirror(formatter.Writer)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Source", "Output", "Error"})
	for _, r := range rows {
		out := r.Output
		if len(r.Params) > 0 {
			out += "\n-- params: " + formatParams(r.Params)
		}
		errText := ""
		if r.Error != "" {
			errText = fmt.Sprintf("[%s] %s", r.Code, r.Error)
		}
		t.AppendRow(table.Row{r.Index, r.Source, out, errText})
	}
	t.Render()
}

func formatParams(params []any) string {
	parts := make([]string, len(params))
	for i, p := range params {
		if s, ok := p.(string); ok {
			parts[i] = fmt.Sprintf("%q", s)
			continue
		}
		parts[i] = fmt.Sprint(p)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
