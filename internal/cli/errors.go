// Package cli provides CLI output formatting and display functions.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/canectors/fundsync/internal/config"
	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/runtime"
)

// maxCompactMessage truncates validation messages outside verbose mode.
const maxCompactMessage = 80

// PrintParseErrors prints parse errors to w.
func PrintParseErrors(w io.Writer, errs []config.ParseError, verbose bool) {
	fmt.Fprintln(w, "✗ Parse errors:")
	for _, err := range errs {
		location := formatErrorLocation(err.Path, err.Line, err.Column)
		if location != "" {
			fmt.Fprintf(w, "  %s: %s\n", location, err.Message)
		} else {
			fmt.Fprintf(w, "  %s\n", err.Message)
		}
		if verbose && err.Type != "" {
			fmt.Fprintf(w, "    Type: %s\n", err.Type)
		}
	}
}

// formatErrorLocation formats path:line:column, omitting unknown parts.
func formatErrorLocation(path string, line, column int) string {
	if path == "" {
		return ""
	}

	location := path
	if line > 0 {
		location += fmt.Sprintf(":%d", line)
		if column > 0 {
			location += fmt.Sprintf(":%d", column)
		}
	}
	return location
}

// PrintValidationErrors prints request validation errors to w.
func PrintValidationErrors(w io.Writer, errs []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(w, "✗ Validation errors:")
	for _, err := range errs {
		path := err.Path
		if path == "" {
			path = "/"
		}

		if verbose {
			fmt.Fprintf(w, "  %s:\n", path)
			fmt.Fprintf(w, "    Message: %s\n", err.Message)
			if err.Type != "" {
				fmt.Fprintf(w, "    Type: %s\n", err.Type)
			}
			continue
		}

		message := err.Message
		if len(message) > maxCompactMessage {
			message = message[:maxCompactMessage-3] + "..."
		}
		fmt.Fprintf(w, "  %s: %s\n", path, message)
	}

	if !quiet && !verbose {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Hint: Use --verbose for detailed error information")
	}
}

// PrintExecutionError prints a failed execution: the stage, the error
// category and the message.
func PrintExecutionError(w io.Writer, err error, verbose bool) {
	fmt.Fprintln(w, "✗ Execution failed")

	var stageErr *runtime.StageError
	if errors.As(err, &stageErr) {
		fmt.Fprintf(w, "  Stage: %s\n", stageErr.Stage)
		if verbose {
			fmt.Fprintf(w, "  Code: %s\n", stageErr.Code)
		}
		err = stageErr.Err
	}

	fmt.Fprintf(w, "  Category: %s\n", errhandling.GetErrorCategory(err))
	fmt.Fprintf(w, "  Error: %v\n", err)

	switch {
	case errhandling.IsFatal(err):
		fmt.Fprintln(w, "  Retrying will not help: fix the request, the pipe or the credentials")
	case errhandling.IsRetryable(err):
		fmt.Fprintln(w, "  The failure may be transient, try again later")
	}
}
