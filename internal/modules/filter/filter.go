// Package filter provides implementations for filter modules.
// Filter modules select which ingested records move on to submission.
package filter

import "github.com/canectors/fundsync/pkg/connector"

// Module represents a filter module that selects records.
type Module interface {
	// Process returns the records that pass the filter, in input order.
	Process(records []connector.Record) ([]connector.Record, error)
}

var _ Module = (*Evaluator)(nil)
