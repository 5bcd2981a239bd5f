// Package output provides implementations for output modules.
// Submitter turns filtered records into Pipefy cards, one card per record.
package output

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/pkg/connector"
)

// FieldMapping maps a record column to a remote card field.
type FieldMapping struct {
	// FieldID is the Pipefy field identifier
	FieldID string
	// Column is the record column providing the value
	Column string
}

// FieldMap is an ordered list of mappings. The order is kept in the
// fields_attributes sent to the remote service.
type FieldMap []FieldMapping

// DefaultFieldMap returns the mapping used for fund registry records.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		{FieldID: "razao_social", Column: "Denominacao_Social"},
		{FieldID: "cnpj", Column: "CNPJ_Fundo"},
		{FieldID: "patrimonio_liquido", Column: "Patrimonio_Liquido"},
	}
}

// Attributes builds the fields_attributes of a record. Missing columns map to "".
func (m FieldMap) Attributes(record connector.Record) []connector.FieldAttribute {
	attrs := make([]connector.FieldAttribute, 0, len(m))
	for _, mapping := range m {
		attrs = append(attrs, connector.FieldAttribute{
			FieldID:    mapping.FieldID,
			FieldValue: valueString(record[mapping.Column]),
		})
	}
	return attrs
}

func valueString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Option configures a Submitter.
type Option func(*Submitter)

// WithClock replaces the clock used for created_at timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Submitter) {
		s.now = now
	}
}

// WithParentIDs sets the parent card ids attached to every created card.
func WithParentIDs(ids ...string) Option {
	return func(s *Submitter) {
		s.parentIDs = ids
	}
}

// Submitter creates one card per record, strictly in order.
type Submitter struct {
	creator   CardCreator
	fieldMap  FieldMap
	parentIDs []string
	now       func() time.Time
}

// NewSubmitter creates a submitter. A nil fieldMap selects DefaultFieldMap.
func NewSubmitter(creator CardCreator, fieldMap FieldMap, opts ...Option) *Submitter {
	if fieldMap == nil {
		fieldMap = DefaultFieldMap()
	}
	s := &Submitter{
		creator:  creator,
		fieldMap: fieldMap,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a card for every record in input order.
//
// Record k+1 is only attempted once record k succeeded. Any error, including
// a response without a card id, aborts the batch; cards already created are
// not rolled back.
func (s *Submitter) Submit(ctx context.Context, pipeID string, records []connector.Record) (*connector.SubmissionResult, error) {
	result := &connector.SubmissionResult{Cards: make([]connector.CreatedCard, 0, len(records))}

	if len(records) == 0 {
		logger.Debug("no records to submit, returning success", slog.String("pipe_id", pipeID))
		return result, nil
	}

	logger.Debug("submitting records",
		slog.String("pipe_id", pipeID),
		slog.Int("record_count", len(records)),
	)

	for i, record := range records {
		card, err := s.creator.CreateCard(ctx, pipeID, s.fieldMap.Attributes(record), s.parentIDs)
		if err != nil {
			logger.Error("card creation failed",
				slog.Int("record_index", i),
				slog.Int("cards_created", len(result.Cards)),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("creating card for record %d: %w", i, err)
		}
		if card.ID == "" {
			return nil, errhandling.NewMalformedResponseError(
				fmt.Sprintf("createCard returned no card id for record %d", i),
			)
		}

		result.Cards = append(result.Cards, connector.CreatedCard{
			ID:        card.ID,
			CreatedAt: s.now().UTC().Format(time.RFC3339Nano),
		})

		logger.Debug("card created",
			slog.Int("record_index", i),
			slog.String("card_id", card.ID),
		)
	}

	result.Count = len(result.Cards)
	return result, nil
}

// Close closes the underlying creator when it holds resources.
func (s *Submitter) Close() error {
	if closer, ok := s.creator.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

var _ Module = (*Submitter)(nil)
