package config

import (
	"fmt"

	"github.com/canectors/fundsync/pkg/connector"
)

// Parse error types
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
)

// ParseError is a request file that could not be decoded.
// Line and Column are 1-based, 0 when unknown.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Type    string
}

func (e ParseError) Error() string {
	msg := e.Message
	switch {
	case e.Line > 0 && e.Column > 0:
		msg = fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, msg)
	case e.Line > 0:
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	return msg
}

// ValidationError is a decoded request rejected by the request checks or
// the schema. Path is a JSON pointer such as "/filter".
type ValidationError struct {
	Path    string
	Type    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationResult is the outcome of ValidateRequest.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Result is the outcome of ParseRequestFile. Request is set only when both
// error lists are empty; Err is the taxonomy error behind ValidationErrors.
type Result struct {
	Format           string
	Request          *connector.Request
	Err              error
	ParseErrors      []ParseError
	ValidationErrors []ValidationError
}
