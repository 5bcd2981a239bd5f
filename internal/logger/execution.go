package logger

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Stage names one step of an execution.
type Stage string

// Execution stages, in order.
const (
	StageValidate Stage = "validate"
	StageLoad     Stage = "load"
	StageFilter   Stage = "filter"
	StageSubmit   Stage = "submit"
)

// ExecutionContext identifies one filter-and-submit execution in the logs.
type ExecutionContext struct {
	// ExecutionID is the unique identifier of the execution (required)
	ExecutionID string
	// FileName is the archive entry being processed
	FileName string
	// PipeID is the target pipe
	PipeID string
	// Stage is the current stage, empty outside stages
	Stage Stage
	// DryRun marks executions that create no card
	DryRun bool
}

// AtStage returns a copy of the context positioned at stage.
func (c ExecutionContext) AtStage(stage Stage) ExecutionContext {
	c.Stage = stage
	return c
}

// attrs returns the context as slog attributes, skipping empty fields.
func (c ExecutionContext) attrs() []any {
	attrs := make([]any, 0, 6)
	attrs = append(attrs, slog.String("execution_id", c.ExecutionID))
	if c.FileName != "" {
		attrs = append(attrs, slog.String("file_name", c.FileName))
	}
	if c.PipeID != "" {
		attrs = append(attrs, slog.String("pipe_id", c.PipeID))
	}
	if c.Stage != "" {
		attrs = append(attrs, slog.String("stage", string(c.Stage)))
	}
	if c.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	return attrs
}

// WithExecution returns a logger carrying the execution context.
func WithExecution(ctx ExecutionContext) *slog.Logger {
	return Logger.With(ctx.attrs()...)
}

// LogExecutionStart logs the start of an execution.
func LogExecutionStart(ctx ExecutionContext) {
	Logger.Info("execution started", ctx.attrs()...)
}

// LogExecutionEnd logs the end of an execution with its final status.
func LogExecutionEnd(ctx ExecutionContext, status string, cardsCreated int, duration time.Duration) {
	attrs := append(ctx.attrs(),
		slog.String("status", status),
		slog.Int("cards_created", cardsCreated),
		slog.Duration("duration", duration),
	)
	if status == StatusSuccess {
		Logger.Info("execution completed", attrs...)
		return
	}
	Logger.Error("execution failed", attrs...)
}

// Execution statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// LogStageStart logs the start of the context's stage.
func LogStageStart(ctx ExecutionContext) {
	Logger.Debug("stage started", ctx.attrs()...)
}

// LogStageEnd logs the end of the context's stage. A non-nil err is logged
// at error level.
func LogStageEnd(ctx ExecutionContext, recordCount int, duration time.Duration, err error) {
	attrs := append(ctx.attrs(),
		slog.Int("record_count", recordCount),
		slog.Duration("duration", duration),
	)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		Logger.Error("stage failed", attrs...)
		return
	}
	Logger.Info("stage completed", attrs...)
}

// ExecutionMetrics summarizes one execution.
type ExecutionMetrics struct {
	TotalDuration  time.Duration
	LoadDuration   time.Duration
	FilterDuration time.Duration
	SubmitDuration time.Duration
	RecordsLoaded  int
	RecordsMatched int
	CardsCreated   int
}

// MatchRate is the share of loaded records kept by the filter.
func (m ExecutionMetrics) MatchRate() float64 {
	if m.RecordsLoaded == 0 {
		return 0
	}
	return float64(m.RecordsMatched) / float64(m.RecordsLoaded)
}

// LogMetrics logs the execution metrics.
func LogMetrics(ctx ExecutionContext, metrics ExecutionMetrics) {
	attrs := append(ctx.attrs(),
		slog.Duration("total_duration", metrics.TotalDuration),
		slog.Duration("load_duration", metrics.LoadDuration),
		slog.Duration("filter_duration", metrics.FilterDuration),
		slog.Duration("submit_duration", metrics.SubmitDuration),
		slog.Int("records_loaded", metrics.RecordsLoaded),
		slog.Int("records_matched", metrics.RecordsMatched),
		slog.Int("cards_created", metrics.CardsCreated),
		slog.Float64("match_rate", metrics.MatchRate()),
	)
	Logger.Info("execution metrics", attrs...)
}

// FormatMetricsHuman renders metrics as one console line.
func FormatMetricsHuman(metrics ExecutionMetrics) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Matched %d of %d records in %s",
		metrics.RecordsMatched, metrics.RecordsLoaded, formatDuration(metrics.TotalDuration))
	if metrics.CardsCreated > 0 {
		fmt.Fprintf(&sb, ", %d cards created", metrics.CardsCreated)
	}
	return sb.String()
}

// ErrorContext describes a failure for LogError.
type ErrorContext struct {
	ExecutionContext

	// Err is the failure; its wrap chain is logged
	Err error
	// Category is the error taxonomy category, if known
	Category string
	// RecordIndex is the failing record, -1 when not record-specific
	RecordIndex int
	// HTTPStatus is the remote status code, 0 when none
	HTTPStatus int
	// Extra holds additional attributes
	Extra map[string]interface{}
}

// LogError logs a failure with its execution context and error chain.
func LogError(message string, errCtx ErrorContext) {
	attrs := errCtx.ExecutionContext.attrs()

	if errCtx.Err != nil {
		attrs = append(attrs,
			slog.String("error", errCtx.Err.Error()),
			slog.String("error_type", fmt.Sprintf("%T", errCtx.Err)),
		)
		if chain := errorChain(errCtx.Err); len(chain) > 1 {
			attrs = append(attrs, slog.String("error_chain", strings.Join(chain, " -> ")))
		}
	}
	if errCtx.Category != "" {
		attrs = append(attrs, slog.String("error_category", errCtx.Category))
	}
	if errCtx.RecordIndex >= 0 {
		attrs = append(attrs, slog.Int("record_index", errCtx.RecordIndex))
	}
	if errCtx.HTTPStatus > 0 {
		attrs = append(attrs, slog.Int("http_status", errCtx.HTTPStatus))
	}
	for k, v := range errCtx.Extra {
		attrs = append(attrs, slog.Any(k, v))
	}

	Logger.Error(message, attrs...)
}

// errorChain follows single-error Unwrap links.
func errorChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}
	return chain
}
