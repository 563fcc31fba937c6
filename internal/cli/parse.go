package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/queryrec"
)

// ParseResult is the JSON payload of the parse command.
type ParseResult struct {
	Record       string   `json:"record"`
	Fingerprints []string `json:"fingerprints"`
}

// NewParseCommand creates the parse command.
func NewParseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a query script into its record form",
		Long: `Parse a query script and print the validated intermediate form as a
record document. Every statement carries a fingerprint that stays the
same however the statement was written.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(rootOpts, args, cmd)
		},
	}

	cmd.Flags().String("from", "", "source dialect (relational|document|record)")

	return cmd
}

func runParse(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	from, err := dialect("from", opts.settings().From)
	if err != nil {
		return formatter.CommandError(ErrCodeNoDialect, err)
	}
	input, err := readInput(cmd, args)
	if err != nil {
		return formatter.CommandError(ErrCodeReadFailed, err)
	}

	tr := opts.translator()
	stmts, err := tr.Parse(input, from)
	if err != nil {
		return formatter.TranslationError(err)
	}
	out, err := tr.Emit(stmts, nil, qir.Record)
	if err != nil {
		return formatter.TranslationError(err)
	}

	fingerprints := make([]string, len(stmts))
	for i, s := range stmts {
		if fingerprints[i], err = queryrec.StatementFingerprint(s); err != nil {
			return formatter.TranslationError(err)
		}
	}
	formatter.VerboseLog("Parsed %d statement(s)", len(stmts))

	if formatter.Format == "json" {
		return formatter.Success(ParseResult{Record: out.Text, Fingerprints: fingerprints})
	}
	fmt.Fprintln(formatter.Writer, out.Text)
	return nil
}
