package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/querybridge/internal/translate"
)

// DetectResult is the JSON payload of the detect command.
type DetectResult struct {
	Dialect string `json:"dialect"`
}

// NewDetectCommand creates the detect command.
func NewDetectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect [file]",
		Short: "Guess the dialect of a query script",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			input, err := readInput(cmd, args)
			if err != nil {
				return formatter.CommandError(ErrCodeReadFailed, err)
			}
			d, err := translate.Detect(input)
			if errors.Is(err, translate.ErrUnknownDialect) {
				return formatter.CommandError(ErrCodeUndetectable, err)
			}
			if err != nil {
				return formatter.CommandError(ErrCodeGeneric, err)
			}
			if formatter.Format == "json" {
				return formatter.Success(DetectResult{Dialect: string(d)})
			}
			fmt.Fprintln(formatter.Writer, d)
			return nil
		},
	}
}
