// Package output provides implementations for output modules.
// Output modules are responsible for sending data to destination systems.
package output

import (
	"context"

	"github.com/canectors/fundsync/pkg/connector"
)

// CardCreator creates a single card in a pipe.
// *pipefy.Client implements it.
type CardCreator interface {
	CreateCard(ctx context.Context, pipeID string, fields []connector.FieldAttribute, parentIDs []string) (connector.Card, error)
}

// Module represents an output module that sends records to a destination.
type Module interface {
	// Submit sends every record to pipeID and returns the created cards.
	// The first error aborts the batch and no partial result is returned.
	Submit(ctx context.Context, pipeID string, records []connector.Record) (*connector.SubmissionResult, error)

	// Close releases any resources held by the module.
	Close() error
}
