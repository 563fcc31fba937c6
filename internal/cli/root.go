package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/querybridge/internal/config"
	"github.com/roach88/querybridge/internal/qir"
	"github.com/roach88/querybridge/internal/translate"
)

// RootOptions holds global flags for all commands and the settings loaded
// from them before a command runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string

	Config *config.Config
	Logger *slog.Logger
	IDs    IDGenerator
}

// NewRootCommand creates the root command for the querybridge CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{IDs: UUIDv7Generator{}})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "querybridge",
		Short: "querybridge - translate queries between dialects",
		Long: `Translate queries between SQL text, document-store method calls and a
neutral record form (JSON, YAML or CUE).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigFile, cmd.Flags())
			if err != nil {
				return WrapExitError(ExitCommandError, ErrCodeConfig, err)
			}
			opts.Config = cfg
			opts.Format = cfg.Format
			opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			if cfg.File != "" {
				opts.Logger.Debug("config loaded", "file", cfg.File)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default querybridge.yaml)")
	cmd.PersistentFlags().Int("max-depth", qir.DefaultMaxDepth, "maximum nesting depth")
	cmd.PersistentFlags().String("record-format", "", "record dialect serialization (json|yaml|cue)")

	cmd.AddCommand(NewTranslateCommand(opts))
	cmd.AddCommand(NewParseCommand(opts))
	cmd.AddCommand(NewDetectCommand(opts))

	return cmd
}

// newLogger writes text records to w, at debug level when verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
		IDs:       o.IDs,
	}
}

// translator builds a Translator from the loaded config.
func (o *RootOptions) translator() *translate.Translator {
	cfg := o.settings()
	return translate.New(translate.Options{
		MaxDepth:     cfg.MaxDepth,
		Parameterize: cfg.Parameterize,
		RecordFormat: cfg.Record(),
		Workers:      cfg.Workers,
		Logger:       o.Logger,
	})
}

func (o *RootOptions) settings() *config.Config {
	if o.Config == nil {
		cfg := config.Default()
		o.Config = &cfg
	}
	return o.Config
}

// dialect resolves a configured dialect name; key is used in the error.
func dialect(key, name string) (qir.Dialect, error) {
	if name == "" {
		return "", fmt.Errorf("no %s dialect: set --%s or %s in the config", key, key, key)
	}
	return qir.ParseDialect(name)
}

// readInput reads the file named by args[0], or stdin when there is no
// argument or it is "-".
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return string(data), nil
}
