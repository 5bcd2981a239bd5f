package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/canectors/fundsync/internal/errhandling"
)

// Supported request formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseRequestFile reads, decodes and validates a request file.
//
// The format comes from the extension. Files without a known extension are
// decoded as JSON when they start with '{' or '[', as YAML otherwise.
func ParseRequestFile(path string) *Result {
	result := &Result{Format: DetectFormat(path)}

	content, err := os.ReadFile(path)
	if err != nil {
		result.ParseErrors = []ParseError{{
			Path:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Type:    ErrorTypeIO,
		}}
		return result
	}
	if result.Format == "" {
		result.Format = sniffFormat(content)
	}

	data, parseErr := decodeRequest(content, result.Format)
	if parseErr != nil {
		parseErr.Path = path
		result.ParseErrors = []ParseError{*parseErr}
		return result
	}

	result.resolve(data)
	return result
}

// DetectFormat maps a file extension to a format, "" when unknown.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	}
	return ""
}

func sniffFormat(content []byte) string {
	trimmed := bytes.TrimSpace(content)
	if bytes.HasPrefix(trimmed, []byte("{")) || bytes.HasPrefix(trimmed, []byte("[")) {
		return FormatJSON
	}
	return FormatYAML
}

// decodeRequest decodes content into a JSON-typed object. YAML documents go
// through a JSON round trip so numbers and lists have the same Go types in
// both formats.
func decodeRequest(content []byte, format string) (map[string]interface{}, *ParseError) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, &ParseError{Message: "empty request: expected an object", Type: ErrorTypeSyntax}
	}

	var doc interface{}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, jsonParseError(content, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, yamlParseError(err)
		}
		if doc != nil {
			encoded, err := json.Marshal(doc)
			if err != nil {
				return nil, &ParseError{Message: fmt.Sprintf("YAML document has no JSON form: %v", err), Type: ErrorTypeFormat}
			}
			doc = nil
			if err := json.Unmarshal(encoded, &doc); err != nil {
				return nil, &ParseError{Message: err.Error(), Type: ErrorTypeFormat}
			}
		}
	default:
		return nil, &ParseError{Message: fmt.Sprintf("unsupported format %q", format), Type: ErrorTypeFormat}
	}

	switch v := doc.(type) {
	case nil:
		return nil, &ParseError{Message: "empty request: expected an object", Type: ErrorTypeFormat}
	case map[string]interface{}:
		return v, nil
	default:
		return nil, &ParseError{
			Message: fmt.Sprintf("request must be an object, got %s", typeName(v)),
			Type:    ErrorTypeFormat,
		}
	}
}

// jsonParseError locates syntax and type errors by their byte offset.
func jsonParseError(content []byte, err error) *ParseError {
	parseErr := &ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	var offset int64
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	default:
		return parseErr
	}

	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	before := content[:offset]
	parseErr.Line = bytes.Count(before, []byte("\n")) + 1
	parseErr.Column = len(before) - bytes.LastIndexByte(before, '\n')
	return parseErr
}

// yamlParseError keeps the line yaml.v3 embeds as "yaml: line N: ...".
func yamlParseError(err error) *ParseError {
	parseErr := &ParseError{Message: err.Error(), Type: ErrorTypeSyntax}

	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		parseErr.Message = strings.Join(typeErr.Errors, "; ")
	}

	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
		parseErr.Line = line
	}
	return parseErr
}

// resolve builds and validates the request from a decoded document.
// Request checks run before the schema so taxonomy errors win over the
// generic schema report.
func (r *Result) resolve(data map[string]interface{}) {
	request, err := BuildRequest(data)
	if err != nil {
		r.Err = err
		r.ValidationErrors = []ValidationError{{
			Path:    "/",
			Type:    string(errhandling.GetErrorCategory(err)),
			Message: err.Error(),
		}}
		return
	}

	validation := ValidateRequest(data)
	if !validation.Valid {
		r.ValidationErrors = validation.Errors
		r.Err = errhandling.NewValidationError(errhandling.ErrInvalidPayloadShape, joinValidationErrors(validation.Errors))
		return
	}

	r.Request = request
}
