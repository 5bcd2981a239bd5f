// Package input provides implementations for input modules.
// Input modules are responsible for fetching data from source systems.
package input

import (
	"context"

	"github.com/canectors/fundsync/pkg/connector"
)

// Dataset is a parsed tabular file.
type Dataset struct {
	// Columns is the header row, in file order
	Columns []string

	// Records holds one record per data row, keyed by column name
	Records []connector.Record
}

// Module represents an input module that loads a named tabular file.
type Module interface {
	// Load retrieves and parses the named file.
	// The context can be used to cancel long-running downloads.
	Load(ctx context.Context, name string) (*Dataset, error)
	// Close releases any resources held by the module.
	Close() error
}
