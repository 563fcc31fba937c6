package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/querybridge/internal/qerr"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Translation failure (unsupported operator, syntax error, etc.)
	ExitCommandError = 2 // Command error (unreadable input, bad config, missing dialect)
)

// Error codes for CLI responses. Translation failures use the E1xx range,
// one code per error kind.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeReadFailed   = "E002" // Input file or stdin could not be read
	ErrCodeConfig       = "E003" // Invalid configuration
	ErrCodeNoDialect    = "E004" // Source or target dialect missing
	ErrCodeUndetectable = "E005" // Dialect detection found no match

	ErrCodeLiteralSyntax       = "E101"
	ErrCodeRelationalSyntax    = "E102"
	ErrCodeDocumentSyntax      = "E103"
	ErrCodeUnsupportedOperator = "E104"
	ErrCodeUnsupportedChain    = "E105"
	ErrCodeInvariantViolation  = "E106"
	ErrCodeCyclicDependency    = "E107"
	ErrCodeDepthExceeded       = "E108"
	ErrCodeUnrepresentable     = "E109"
	ErrCodeStatementsFailed    = "E110" // One or more statements of --each failed
)

var translationCodes = map[qerr.Code]string{
	qerr.CodeLiteralSyntax:          ErrCodeLiteralSyntax,
	qerr.CodeRelationalSyntax:       ErrCodeRelationalSyntax,
	qerr.CodeDocumentMethodSyntax:   ErrCodeDocumentSyntax,
	qerr.CodeUnsupportedOperator:    ErrCodeUnsupportedOperator,
	qerr.CodeUnsupportedChainedCall: ErrCodeUnsupportedChain,
	qerr.CodeInvariantViolation:     ErrCodeInvariantViolation,
	qerr.CodeCyclicDependency:       ErrCodeCyclicDependency,
	qerr.CodeDepthExceeded:          ErrCodeDepthExceeded,
	qerr.CodeUnrepresentable:        ErrCodeUnrepresentable,
}

// ErrorCode maps a translation error to its CLI error code.
func ErrorCode(err error) string {
	if code, ok := translationCodes[qerr.CodeOf(err)]; ok {
		return code
	}
	return ErrCodeGeneric
}

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
	IDs       IDGenerator // Trace ids for JSON responses; nil omits them
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status  string      `json:"status"`             // "ok" or "error"
	Data    interface{} `json:"data,omitempty"`     // success payload
	Error   *CLIError   `json:"error,omitempty"`    // error details
	TraceID string      `json:"trace_id,omitempty"` // correlates a response with verbose logs
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string      `json:"code"`              // "E001", "E104", etc.
	Message string      `json:"message"`           // human-readable message
	Details interface{} `json:"details,omitempty"` // additional context
}

func (f *OutputFormatter) traceID() string {
	if f.IDs == nil {
		return ""
	}
	return f.IDs.Generate()
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status:  "ok",
			Data:    data,
			TraceID: f.traceID(),
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
			TraceID: f.traceID(),
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// TranslationError outputs a failed translation and returns the matching
// ExitError. The error kind is reported in the details.
func (f *OutputFormatter) TranslationError(err error) error {
	code := ErrorCode(err)
	_ = f.Error(code, err.Error(), map[string]string{"kind": string(qerr.CodeOf(err))})
	return WrapExitError(ExitFailure, code, err)
}

// CommandError outputs a command-level failure and returns an ExitError
// with ExitCommandError.
func (f *OutputFormatter) CommandError(code string, err error) error {
	_ = f.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, code, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
