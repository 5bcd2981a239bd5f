package runtime

import (
	"context"
	"time"

	"github.com/canectors/fundsync/internal/modules/input"
	"github.com/canectors/fundsync/internal/modules/output"
	"github.com/canectors/fundsync/internal/pipefy"
)

// ArchiveSourceFactory builds an archive source per execution.
func ArchiveSourceFactory(url string, timeout time.Duration) SourceFactory {
	return func() input.Module {
		return input.NewArchiveSource(url, timeout, nil)
	}
}

// PipefySubmitterFactory builds a Pipefy client per execution and wraps it
// in a submitter using the default field map.
func PipefySubmitterFactory(cfg pipefy.Config, opts ...output.Option) SubmitterFactory {
	return func(ctx context.Context) (output.Module, error) {
		client, err := pipefy.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return output.NewSubmitter(client, output.DefaultFieldMap(), opts...), nil
	}
}
