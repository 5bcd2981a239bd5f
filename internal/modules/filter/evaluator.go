package filter

import (
	"log/slog"
	"sort"

	"github.com/canectors/fundsync/internal/logger"
	"github.com/canectors/fundsync/pkg/connector"
)

// Evaluator keeps the records whose every filtered field is present and
// satisfies the shared operator.
type Evaluator struct {
	operator string
	fields   []fieldFilter
}

type fieldFilter struct {
	name  string
	value interface{}
}

// NewEvaluator creates an evaluator for spec.
//
// The operator and the shape of "between" values are validated here, so a
// bad spec fails even when no record would reach the comparator.
func NewEvaluator(spec connector.FilterSpec) (*Evaluator, error) {
	op := spec.EffectiveOperator()
	if err := ValidateOperator(op); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(spec.Fields))
	for name := range spec.Fields {
		if name == connector.OperatorKey {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]fieldFilter, 0, len(names))
	for _, name := range names {
		value := spec.Fields[name]
		if op == connector.OperatorBetween {
			if _, _, err := parseBetweenValues(normalize(value)); err != nil {
				return nil, err
			}
		}
		fields = append(fields, fieldFilter{name: name, value: value})
	}

	logger.Debug("filter evaluator created",
		slog.String("operator", op),
		slog.Int("field_count", len(fields)),
	)

	return &Evaluator{operator: op, fields: fields}, nil
}

// Operator returns the effective operator.
func (e *Evaluator) Operator() string {
	return e.operator
}

// Process returns the matching records in input order.
// With no filtered field, records are returned unchanged.
func (e *Evaluator) Process(records []connector.Record) ([]connector.Record, error) {
	if len(e.fields) == 0 {
		return records, nil
	}

	result := make([]connector.Record, 0, len(records))
	for _, record := range records {
		ok, err := e.Matches(record)
		if err != nil {
			return nil, err
		}
		if ok {
			result = append(result, record)
		}
	}

	logger.Debug("filter applied",
		slog.String("operator", e.operator),
		slog.Int("input_records", len(records)),
		slog.Int("matched_records", len(result)),
	)

	return result, nil
}

// Matches reports whether a single record passes every field filter.
// A field missing from the record excludes it.
func (e *Evaluator) Matches(record connector.Record) (bool, error) {
	for _, f := range e.fields {
		value, present := record[f.name]
		if !present {
			return false, nil
		}
		ok, err := Compare(e.operator, value, f.value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Apply filters records with spec in one call.
func Apply(records []connector.Record, spec connector.FilterSpec) ([]connector.Record, error) {
	evaluator, err := NewEvaluator(spec)
	if err != nil {
		return nil, err
	}
	return evaluator.Process(records)
}
