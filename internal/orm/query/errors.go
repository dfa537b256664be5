package query

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperatorForType is returned when an operator does not apply to the field's type
	ErrUnsupportedOperatorForType = errors.New("unsupported operator for type")

	// ErrEmptyInList is returned when IN has no values
	ErrEmptyInList = errors.New("IN requires at least one value")

	// ErrEmptyLogical is returned when AND or OR has no children
	ErrEmptyLogical = errors.New("logical expression requires at least one child")

	// ErrInvalidOperand is returned when a comparison value cannot be used with its operator
	ErrInvalidOperand = errors.New("invalid operand")

	// ErrUnknownOperator is returned when an operator name cannot be parsed
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrInvalidExpression is returned for malformed expression trees or documents
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrUnknownScope is returned when a named scope is not registered
	ErrUnknownScope = errors.New("unknown scope")

	// ErrUnboundParameter is returned when a scope placeholder has no argument
	ErrUnboundParameter = errors.New("unbound scope parameter")
)

// CompileError carries the field path and expression fragment that failed
type CompileError struct {
	Path     string
	Fragment string
	Err      error
}

// Error returns the failing fragment and its cause
func (e *CompileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("compile %s: %v", e.Fragment, e.Err)
	}
	return fmt.Sprintf("compile %s (path %s): %v", e.Fragment, e.Path, e.Err)
}

// Unwrap returns the cause
func (e *CompileError) Unwrap() error {
	return e.Err
}

// IsUnsupportedOperator checks if an error is an operator/type mismatch
func IsUnsupportedOperator(err error) bool {
	return errors.Is(err, ErrUnsupportedOperatorForType)
}
