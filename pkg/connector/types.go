// Package connector provides public types for fundsync executions.
// This package is intended to be importable by external projects that need
// to build requests for, or consume results of, the fundsync runtime.
package connector

// Supported filter operators.
const (
	OperatorEquals   = "equals"
	OperatorContains = "contains"
	OperatorIn       = "in"
	OperatorGt       = "gt"
	OperatorLt       = "lt"
	OperatorBetween  = "between"
)

// DefaultOperator is applied when a filter does not name an operator.
const DefaultOperator = OperatorEquals

// OperatorKey is the reserved filter key selecting the operator.
const OperatorKey = "operator"

// Record is one row of ingested tabular data, keyed by column name.
// Values are raw CSV strings unless decoded upstream.
type Record = map[string]interface{}

// Request is the inbound request of a filter-and-submit execution.
// It is built from the raw payload {file_name, filter, pipe_id}, where the
// filter object mixes field values with the reserved "operator" key.
type Request struct {
	// FileName is the name of the CSV entry inside the remote archive (required)
	FileName string

	// Filter selects which records to submit (optional)
	Filter FilterSpec

	// PipeID is the target pipe; falls back to the configured default when empty
	PipeID string
}

// FilterSpec is a declarative description of which records to keep.
// Every field is compared with the same Operator and all must match.
type FilterSpec struct {
	// Fields maps a column name to its filter value (scalar, list or pair)
	Fields map[string]interface{}

	// Operator is one of equals, contains, in, gt, lt, between
	Operator string
}

// IsEmpty reports whether the spec names no field.
func (f FilterSpec) IsEmpty() bool {
	return len(f.Fields) == 0
}

// EffectiveOperator returns the operator, applying the default when unset.
func (f FilterSpec) EffectiveOperator() string {
	if f.Operator == "" {
		return DefaultOperator
	}
	return f.Operator
}

// FieldAttribute is one entry of the fields_attributes list sent to Pipefy.
type FieldAttribute struct {
	FieldID    string `json:"field_id"`
	FieldValue string `json:"field_value"`
}

// Card is a card created by the remote service.
type Card struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// CreatedCard is a successful submission entry.
type CreatedCard struct {
	// ID is the remote card identifier
	ID string `json:"id"`

	// CreatedAt is the UTC ISO-8601 creation timestamp
	CreatedAt string `json:"created_at"`
}

// SubmissionResult is the result of a successful batch.
type SubmissionResult struct {
	Cards []CreatedCard `json:"cards"`
	Count int           `json:"count"`
}

// ExecutionResult wraps a submission with the execution metadata.
type ExecutionResult struct {
	// ExecutionID is the unique identifier of this execution
	ExecutionID string `json:"execution_id"`

	// RecordsLoaded is the number of rows read from the archive entry
	RecordsLoaded int `json:"records_loaded"`

	// RecordsMatched is the number of rows kept by the filter
	RecordsMatched int `json:"records_matched"`

	// DryRun is true when no card was created
	DryRun bool `json:"dry_run,omitempty"`

	// Matched holds the matching records in dry-run mode
	Matched []Record `json:"matched,omitempty"`

	// Submission is the created cards (nil in dry-run mode)
	Submission *SubmissionResult `json:"submission,omitempty"`
}
