package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/pkg/connector"
)

// maxPreviewRecords bounds the dry-run preview outside verbose mode.
const maxPreviewRecords = 10

// OutputOptions configures CLI output behavior.
type OutputOptions struct {
	Verbose bool
	Quiet   bool
	// Elapsed is the wall time of the execution, shown in the summary line
	Elapsed time.Duration
}

// PrintRequestSummary prints the request a command is about to execute.
func PrintRequestSummary(w io.Writer, request *connector.Request) {
	if request == nil {
		return
	}

	fmt.Fprintf(w, "  File: %s\n", request.FileName)
	if request.PipeID != "" {
		fmt.Fprintf(w, "  Pipe: %s\n", request.PipeID)
	}
	if request.Filter.IsEmpty() {
		fmt.Fprintln(w, "  Filter: none (every record matches)")
		return
	}

	fields := make([]string, 0, len(request.Filter.Fields))
	for field := range request.Filter.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	fmt.Fprintf(w, "  Filter: %s %s\n", strings.Join(fields, ", "), request.Filter.EffectiveOperator())
}

// PrintExecutionResult displays a successful execution.
func PrintExecutionResult(w io.Writer, result *connector.ExecutionResult, opts OutputOptions) {
	if result == nil || opts.Quiet {
		return
	}

	fmt.Fprintln(w, "✓ Execution completed")
	fmt.Fprintf(w, "  %s\n", logger.FormatMetricsHuman(resultMetrics(result, opts.Elapsed)))
	fmt.Fprintf(w, "  Execution: %s\n", result.ExecutionID)
	fmt.Fprintf(w, "  Records loaded: %d\n", result.RecordsLoaded)
	fmt.Fprintf(w, "  Records matched: %d\n", result.RecordsMatched)

	if result.DryRun {
		PrintMatches(w, result.Matched, opts.Verbose)
		return
	}

	if result.Submission == nil {
		return
	}
	fmt.Fprintf(w, "  Cards created: %d\n", result.Submission.Count)
	if opts.Verbose {
		for _, card := range result.Submission.Cards {
			fmt.Fprintf(w, "    %s (%s)\n", card.ID, card.CreatedAt)
		}
	}
}

func resultMetrics(result *connector.ExecutionResult, elapsed time.Duration) logger.ExecutionMetrics {
	metrics := logger.ExecutionMetrics{
		TotalDuration:  elapsed,
		RecordsLoaded:  result.RecordsLoaded,
		RecordsMatched: result.RecordsMatched,
	}
	if result.Submission != nil {
		metrics.CardsCreated = result.Submission.Count
	}
	return metrics
}

// PrintMatches prints the records a dry run would have submitted.
func PrintMatches(w io.Writer, records []connector.Record, verbose bool) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Dry-run preview (records that would become cards):")

	shown := records
	if !verbose && len(shown) > maxPreviewRecords {
		shown = shown[:maxPreviewRecords]
	}
	for i, record := range shown {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, formatRecord(record))
	}
	if hidden := len(records) - len(shown); hidden > 0 {
		fmt.Fprintf(w, "  ... (%d more, use --verbose for all)\n", hidden)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "No card was created (dry-run mode)")
}

// formatRecord renders a record as sorted key=value pairs.
func formatRecord(record connector.Record) string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, record[key]))
	}
	return strings.Join(parts, " ")
}
