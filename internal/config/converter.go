package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/canectors/fundsync/internal/errhandling"
	"github.com/canectors/fundsync/pkg/connector"
)

// Request payload keys
const (
	FieldFileName = "file_name"
	FieldFilter   = "filter"
	FieldPipeID   = "pipe_id"
)

// BuildRequest converts a decoded payload into a Request.
//
// The payload is expected to have this structure:
//
//	{
//	  "file_name": "registro_fundo.csv",
//	  "filter": {"Tipo_Fundo": "FII", "operator": "equals"},
//	  "pipe_id": "301"
//	}
//
// Errors wrap ErrInvalidPayloadShape when data or its filter is not an object
// and ErrMissingRequiredField when file_name is absent or empty.
func BuildRequest(data interface{}) (*connector.Request, error) {
	payload, ok := data.(map[string]interface{})
	if !ok {
		return nil, errhandling.NewValidationError(errhandling.ErrInvalidPayloadShape,
			fmt.Sprintf("request must be a JSON object, got %s", typeName(data)))
	}

	fileName, err := extractFileName(payload)
	if err != nil {
		return nil, err
	}

	filter, err := extractFilter(payload)
	if err != nil {
		return nil, err
	}

	pipeID, err := extractPipeID(payload)
	if err != nil {
		return nil, err
	}

	return &connector.Request{
		FileName: fileName,
		Filter:   filter,
		PipeID:   pipeID,
	}, nil
}

func extractFileName(payload map[string]interface{}) (string, error) {
	raw, present := payload[FieldFileName]
	if !present || raw == nil {
		return "", errhandling.NewValidationError(errhandling.ErrMissingRequiredField,
			"field 'file_name' is required")
	}
	fileName, ok := raw.(string)
	if !ok {
		return "", errhandling.NewValidationError(errhandling.ErrInvalidPayloadShape,
			fmt.Sprintf("field 'file_name' must be a string, got %s", typeName(raw)))
	}
	if strings.TrimSpace(fileName) == "" {
		return "", errhandling.NewValidationError(errhandling.ErrMissingRequiredField,
			"field 'file_name' is required")
	}
	return fileName, nil
}

// extractFilter splits the filter object into field filters and the operator.
// A missing or null filter is an empty spec.
func extractFilter(payload map[string]interface{}) (connector.FilterSpec, error) {
	spec := connector.FilterSpec{Fields: map[string]interface{}{}}

	raw, present := payload[FieldFilter]
	if !present || isBlank(raw) {
		return spec, nil
	}

	filterObj, ok := raw.(map[string]interface{})
	if !ok {
		return spec, errhandling.NewValidationError(errhandling.ErrInvalidPayloadShape,
			fmt.Sprintf("field 'filter' must be a JSON object, got %s", typeName(raw)))
	}

	for key, value := range filterObj {
		if key == connector.OperatorKey {
			op, ok := value.(string)
			if !ok {
				return spec, errhandling.NewValidationError(errhandling.ErrInvalidOperator,
					fmt.Sprintf("filter operator must be a string, got %s", typeName(value)))
			}
			spec.Operator = op
			continue
		}
		spec.Fields[key] = value
	}

	return spec, nil
}

// extractPipeID accepts a string or an integral number.
func extractPipeID(payload map[string]interface{}) (string, error) {
	raw, present := payload[FieldPipeID]
	if !present || raw == nil {
		return "", nil
	}

	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		if v != float64(int64(v)) {
			return "", errhandling.NewValidationError(errhandling.ErrInvalidPayloadShape,
				fmt.Sprintf("field 'pipe_id' must be an integer, got %v", v))
		}
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	default:
		return "", errhandling.NewValidationError(errhandling.ErrInvalidPayloadShape,
			fmt.Sprintf("field 'pipe_id' must be a string or number, got %s", typeName(raw)))
	}
}

// isBlank reports values treated as "no filter": null, "", false, 0 and empty collections.
func isBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	default:
		return false
	}
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
