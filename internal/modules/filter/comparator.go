// Package filter provides implementations for filter modules.
// Comparator implements the semantics of each filter operator on a single
// field value.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/pkg/connector"
)

// SupportedOperators lists the operators accepted by Compare.
var SupportedOperators = []string{
	connector.OperatorEquals,
	connector.OperatorContains,
	connector.OperatorIn,
	connector.OperatorGt,
	connector.OperatorLt,
	connector.OperatorBetween,
}

// InvalidOperatorError is returned when an operator is outside SupportedOperators.
type InvalidOperatorError struct {
	Operator string
}

func (e *InvalidOperatorError) Error() string {
	return fmt.Sprintf("invalid filter operator %q (supported: %s)", e.Operator, strings.Join(SupportedOperators, ", "))
}

// Unwrap allows errors.Is(err, errhandling.ErrInvalidOperator).
func (e *InvalidOperatorError) Unwrap() error {
	return errhandling.ErrInvalidOperator
}

// ValidateOperator returns an *InvalidOperatorError if op is not supported.
func ValidateOperator(op string) error {
	for _, supported := range SupportedOperators {
		if op == supported {
			return nil
		}
	}
	return &InvalidOperatorError{Operator: op}
}

// Compare reports whether fieldValue satisfies filterValue under op.
//
// Strings are trimmed before comparison. equals, contains and in are
// case-insensitive. gt, lt and between compare numerically when every side
// coerces to a number (see coerceNumber) and lexicographically otherwise.
func Compare(op string, fieldValue, filterValue interface{}) (bool, error) {
	fieldValue = normalize(fieldValue)
	filterValue = normalize(filterValue)

	switch op {
	case connector.OperatorEquals:
		return strings.EqualFold(toString(fieldValue), toString(filterValue)), nil

	case connector.OperatorContains:
		return strings.Contains(strings.ToLower(toString(fieldValue)), strings.ToLower(toString(filterValue))), nil

	case connector.OperatorIn:
		field := strings.ToLower(toString(fieldValue))
		for _, candidate := range parseInValues(filterValue) {
			if strings.ToLower(candidate) == field {
				return true, nil
			}
		}
		return false, nil

	case connector.OperatorGt, connector.OperatorLt:
		return compareOrdered(op, fieldValue, filterValue), nil

	case connector.OperatorBetween:
		start, end, err := parseBetweenValues(filterValue)
		if err != nil {
			return false, err
		}
		return inRange(fieldValue, start, end), nil

	default:
		return false, &InvalidOperatorError{Operator: op}
	}
}

func compareOrdered(op string, fieldValue, filterValue interface{}) bool {
	fieldNum, fieldOK := coerceNumber(fieldValue)
	filterNum, filterOK := coerceNumber(filterValue)
	if fieldOK && filterOK {
		if op == connector.OperatorGt {
			return fieldNum > filterNum
		}
		return fieldNum < filterNum
	}

	// Case-sensitive on purpose: "b" > "A" but "B" < "a".
	field, filter := toString(fieldValue), toString(filterValue)
	if op == connector.OperatorGt {
		return field > filter
	}
	return field < filter
}

func inRange(fieldValue, start, end interface{}) bool {
	fieldNum, fieldOK := coerceNumber(fieldValue)
	startNum, startOK := coerceNumber(start)
	endNum, endOK := coerceNumber(end)
	if fieldOK && startOK && endOK {
		return startNum <= fieldNum && fieldNum <= endNum
	}

	field := toString(fieldValue)
	return toString(start) <= field && field <= toString(end)
}

// normalize trims surrounding whitespace from strings. Other values are returned as-is.
func normalize(value interface{}) interface{} {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s)
	}
	return value
}

// coerceNumber converts value to a float64 using the Brazilian locale
// convention: "." is a thousands separator and "," the decimal separator,
// so "1.234,56" becomes 1234.56. It never fails loudly; ok is false when the
// value is not a number.
func coerceNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		cleaned := strings.ReplaceAll(v, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		n, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case fmt.Stringer:
		return coerceNumber(v.String())
	default:
		return 0, false
	}
}

// parseInValues returns the candidate list of an "in" filter value.
// Lists pass through, strings are split on commas (blank tokens dropped) and
// any other scalar becomes a single candidate.
func parseInValues(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, toString(item))
		}
		return out
	case string:
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return []string{toString(value)}
	}
}

// parseBetweenValues extracts the (start, end) bounds of a "between" filter
// value. It accepts a two-element list or a string with exactly one comma.
func parseBetweenValues(value interface{}) (interface{}, interface{}, error) {
	switch v := value.(type) {
	case []interface{}:
		if len(v) == 2 {
			return v[0], v[1], nil
		}
	case []string:
		if len(v) == 2 {
			return v[0], v[1], nil
		}
	case string:
		parts := strings.Split(v, ",")
		if len(parts) == 2 {
			return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
		}
	}
	return nil, nil, errhandling.NewValidationError(
		errhandling.ErrInvalidFilterSpec,
		fmt.Sprintf("between requires exactly two values, got %s", toString(value)),
	)
}

// toString renders a value the way it is compared as text.
func toString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(v)
	case []interface{}, []string:
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprint(v)
	}
}
