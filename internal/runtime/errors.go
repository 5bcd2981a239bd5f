package runtime

import (
	"errors"
	"fmt"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/logger"
)

// Error codes reported for a failed stage
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeLoadFailed     = "LOAD_FAILED"
	ErrCodeFilterFailed   = "FILTER_FAILED"
	ErrCodeSubmitFailed   = "SUBMIT_FAILED"
)

// Common errors
var (
	// ErrNilRequest is returned when Execute receives no request
	ErrNilRequest = errors.New("request is nil")

	// ErrNilSource is returned when the executor has no source factory
	ErrNilSource = errors.New("source factory is nil")

	// ErrNilSubmitter is returned when a non dry-run executor has no submitter factory
	ErrNilSubmitter = errors.New("submitter factory is nil")
)

// StageError records the stage at which an execution failed.
// It unwraps to the underlying error, so taxonomy checks still apply.
type StageError struct {
	Stage logger.Stage
	Code  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Category returns the taxonomy category of the underlying error.
func (e *StageError) Category() errhandling.ErrorCategory {
	return errhandling.GetErrorCategory(e.Err)
}

func stageError(stage logger.Stage, code string, err error) *StageError {
	return &StageError{Stage: stage, Code: code, Err: err}
}
