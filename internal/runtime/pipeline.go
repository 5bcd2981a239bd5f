// Package runtime provides the execution engine.
// An Executor runs one request through validate, load, filter and submit.
package runtime

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/canectors/fundsync/internal/config"
	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/internal/modules/filter"
	"github.com/canectors/fundsync/internal/modules/input"
	"github.com/canectors/fundsync/internal/modules/output"
	"github.com/canectors/fundsync/pkg/connector"
)

// SourceFactory builds the input module of one execution.
type SourceFactory func() input.Module

// SubmitterFactory builds the output module of one execution. Building it
// acquires the remote credential, so it runs only when there is something
// to submit.
type SubmitterFactory func(ctx context.Context) (output.Module, error)

// Executor runs filter-and-submit executions.
//
// The Executor only talks to modules through their interfaces and builds
// fresh modules for every execution; it holds no session state between
// calls.
type Executor struct {
	newSource     SourceFactory
	newSubmitter  SubmitterFactory
	defaultPipeID string
	dryRun        bool
	newID         func() string
}

// Option configures an Executor.
type Option func(*Executor)

// WithDryRun stops executions after the filter stage.
func WithDryRun(dryRun bool) Option {
	return func(e *Executor) {
		e.dryRun = dryRun
	}
}

// WithDefaultPipeID sets the pipe used when a request has none.
func WithDefaultPipeID(pipeID string) Option {
	return func(e *Executor) {
		e.defaultPipeID = strings.TrimSpace(pipeID)
	}
}

// WithIDGenerator replaces the execution ID generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Executor) {
		e.newID = newID
	}
}

// NewExecutor creates an executor. submitter may be nil for dry-run executors.
func NewExecutor(source SourceFactory, submitter SubmitterFactory, opts ...Option) *Executor {
	e := &Executor{
		newSource:    source,
		newSubmitter: submitter,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewExecutorFromSettings wires the archive source and the Pipefy submitter
// described by settings.
func NewExecutorFromSettings(settings *config.Settings, opts ...Option) *Executor {
	opts = append([]Option{WithDefaultPipeID(settings.PipeID)}, opts...)
	return NewExecutor(
		ArchiveSourceFactory(settings.ArchiveURL, settings.ArchiveTimeout),
		PipefySubmitterFactory(settings.PipefyConfig()),
		opts...,
	)
}

// DryRun reports whether executions stop after filtering.
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// ExecutePayload validates a decoded request payload and executes it.
func (e *Executor) ExecutePayload(ctx context.Context, payload interface{}) (*connector.ExecutionResult, error) {
	request, err := config.LoadRequest(payload)
	if err != nil {
		logger.Warn("request rejected",
			slog.String("error", err.Error()),
			slog.String("error_category", string(errhandling.GetErrorCategory(err))),
		)
		return nil, stageError(logger.StageValidate, ErrCodeInvalidRequest, err)
	}
	return e.Execute(ctx, request)
}

// Execute runs request through every stage.
//
// Execution flow:
//  1. Validate the request and compile its filter
//  2. Load the archive entry
//  3. Filter the records
//  4. Submit the matches, one card per record (skipped in dry-run mode)
//
// A failure returns the partially filled result and a *StageError wrapping
// the cause.
func (e *Executor) Execute(ctx context.Context, request *connector.Request) (*connector.ExecutionResult, error) {
	startedAt := time.Now()
	result := &connector.ExecutionResult{
		ExecutionID: e.newID(),
		DryRun:      e.dryRun,
	}
	execCtx := logger.ExecutionContext{
		ExecutionID: result.ExecutionID,
		DryRun:      e.dryRun,
	}
	if request != nil {
		execCtx.FileName = request.FileName
	}
	logger.LogExecutionStart(execCtx)

	var metrics logger.ExecutionMetrics
	fail := func(err *StageError) (*connector.ExecutionResult, error) {
		logger.LogError("execution failed", logger.ErrorContext{
			ExecutionContext: execCtx.AtStage(err.Stage),
			Err:              err.Err,
			Category:         string(err.Category()),
			RecordIndex:      -1,
		})
		logger.LogExecutionEnd(execCtx, logger.StatusFailed, 0, time.Since(startedAt))
		return result, err
	}

	evaluator, pipeID, serr := e.prepare(request)
	if serr != nil {
		return fail(serr)
	}
	execCtx.PipeID = pipeID

	records, loadDuration, serr := e.load(ctx, execCtx.AtStage(logger.StageLoad), request.FileName)
	metrics.LoadDuration = loadDuration
	if serr != nil {
		return fail(serr)
	}
	result.RecordsLoaded = len(records)

	matched, filterDuration, serr := e.applyFilter(execCtx.AtStage(logger.StageFilter), evaluator, records)
	metrics.FilterDuration = filterDuration
	if serr != nil {
		return fail(serr)
	}
	result.RecordsMatched = len(matched)

	if e.dryRun {
		result.Matched = matched
	} else {
		submission, submitDuration, serr := e.submit(ctx, execCtx.AtStage(logger.StageSubmit), pipeID, matched)
		metrics.SubmitDuration = submitDuration
		if serr != nil {
			return fail(serr)
		}
		result.Submission = submission
		metrics.CardsCreated = submission.Count
	}

	metrics.TotalDuration = time.Since(startedAt)
	metrics.RecordsLoaded = result.RecordsLoaded
	metrics.RecordsMatched = result.RecordsMatched
	logger.LogExecutionEnd(execCtx, logger.StatusSuccess, metrics.CardsCreated, metrics.TotalDuration)
	logger.LogMetrics(execCtx, metrics)

	return result, nil
}

// prepare validates the request and resolves the target pipe.
func (e *Executor) prepare(request *connector.Request) (*filter.Evaluator, string, *StageError) {
	invalid := func(err error) (*filter.Evaluator, string, *StageError) {
		return nil, "", stageError(logger.StageValidate, ErrCodeInvalidRequest, err)
	}

	switch {
	case request == nil:
		return invalid(ErrNilRequest)
	case e.newSource == nil:
		return invalid(ErrNilSource)
	case e.newSubmitter == nil && !e.dryRun:
		return invalid(ErrNilSubmitter)
	case strings.TrimSpace(request.FileName) == "":
		return invalid(errhandling.NewValidationError(errhandling.ErrMissingRequiredField, "field 'file_name' is required"))
	}

	evaluator, err := filter.NewEvaluator(request.Filter)
	if err != nil {
		return invalid(err)
	}

	pipeID := strings.TrimSpace(request.PipeID)
	if pipeID == "" {
		pipeID = e.defaultPipeID
	}
	if pipeID == "" && !e.dryRun {
		return invalid(errhandling.NewValidationError(errhandling.ErrMissingRequiredField,
			"field 'pipe_id' is required when no default pipe is configured"))
	}

	return evaluator, pipeID, nil
}

func (e *Executor) load(ctx context.Context, execCtx logger.ExecutionContext, fileName string) ([]connector.Record, time.Duration, *StageError) {
	logger.LogStageStart(execCtx)
	start := time.Now()

	source := e.newSource()
	dataset, err := source.Load(ctx, fileName)
	closeModule(execCtx, source)
	duration := time.Since(start)

	if err != nil {
		logger.LogStageEnd(execCtx, 0, duration, err)
		return nil, duration, stageError(logger.StageLoad, ErrCodeLoadFailed, err)
	}

	logger.LogStageEnd(execCtx, len(dataset.Records), duration, nil)
	return dataset.Records, duration, nil
}

func (e *Executor) applyFilter(execCtx logger.ExecutionContext, evaluator *filter.Evaluator, records []connector.Record) ([]connector.Record, time.Duration, *StageError) {
	logger.LogStageStart(execCtx)
	logger.WithExecution(execCtx).Debug("filtering records",
		slog.String("operator", evaluator.Operator()),
		slog.Int("record_count", len(records)),
	)
	start := time.Now()

	matched, err := evaluator.Process(records)
	duration := time.Since(start)

	if err != nil {
		logger.LogStageEnd(execCtx, 0, duration, err)
		return nil, duration, stageError(logger.StageFilter, ErrCodeFilterFailed, err)
	}

	logger.LogStageEnd(execCtx, len(matched), duration, nil)
	return matched, duration, nil
}

func (e *Executor) submit(ctx context.Context, execCtx logger.ExecutionContext, pipeID string, records []connector.Record) (*connector.SubmissionResult, time.Duration, *StageError) {
	if len(records) == 0 {
		logger.WithExecution(execCtx).Info("no record matched, nothing to submit")
		return &connector.SubmissionResult{Cards: []connector.CreatedCard{}}, 0, nil
	}

	logger.LogStageStart(execCtx)
	start := time.Now()

	submitter, err := e.newSubmitter(ctx)
	if err != nil {
		duration := time.Since(start)
		logger.LogStageEnd(execCtx, 0, duration, err)
		return nil, duration, stageError(logger.StageSubmit, ErrCodeSubmitFailed, err)
	}
	defer closeModule(execCtx, submitter)

	submission, err := submitter.Submit(ctx, pipeID, records)
	duration := time.Since(start)
	if err != nil {
		logger.LogStageEnd(execCtx, 0, duration, err)
		return nil, duration, stageError(logger.StageSubmit, ErrCodeSubmitFailed, err)
	}

	logger.LogStageEnd(execCtx, submission.Count, duration, nil)
	return submission, duration, nil
}

type moduleCloser interface {
	Close() error
}

// closeModule closes a module and logs any error.
func closeModule(execCtx logger.ExecutionContext, m moduleCloser) {
	if err := m.Close(); err != nil {
		logger.WithExecution(execCtx).Warn("failed to close module", slog.String("error", err.Error()))
	}
}
