// Package query provides the search expression tree and its compiler
package query

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEquals Operator = iota
	OpContains
	OpIContains
	OpGreaterThan
	OpGreaterThanOrEquals
	OpLessThan
	OpLessThanOrEquals
	OpIn
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEquals:
		return "EQUALS"
	case OpContains:
		return "CONTAINS"
	case OpIContains:
		return "ICONTAINS"
	case OpGreaterThan:
		return "GREATER_THAN"
	case OpGreaterThanOrEquals:
		return "GREATER_THAN_OR_EQUALS"
	case OpLessThan:
		return "LESS_THAN"
	case OpLessThanOrEquals:
		return "LESS_THAN_OR_EQUALS"
	case OpIn:
		return "IN"
	default:
		return "UNKNOWN"
	}
}

// IsOrdering reports whether the operator compares by order
func (o Operator) IsOrdering() bool {
	switch o {
	case OpGreaterThan, OpGreaterThanOrEquals, OpLessThan, OpLessThanOrEquals:
		return true
	}
	return false
}

var operatorNames = map[string]Operator{
	"EQUALS":                 OpEquals,
	"=":                      OpEquals,
	"CONTAINS":               OpContains,
	"~":                      OpContains,
	"ICONTAINS":              OpIContains,
	"~*":                     OpIContains,
	"GREATER_THAN":           OpGreaterThan,
	">":                      OpGreaterThan,
	"GREATER_THAN_OR_EQUALS": OpGreaterThanOrEquals,
	">=":                     OpGreaterThanOrEquals,
	"LESS_THAN":              OpLessThan,
	"<":                      OpLessThan,
	"LESS_THAN_OR_EQUALS":    OpLessThanOrEquals,
	"<=":                     OpLessThanOrEquals,
	"IN":                     OpIn,
}

// ParseOperator parses an operator name or symbol, case-insensitively
func ParseOperator(s string) (Operator, error) {
	if op, ok := operatorNames[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// LogicalOperator combines child expressions
type LogicalOperator int

const (
	And LogicalOperator = iota
	Or
)

// String returns the string representation of the logical operator
func (o LogicalOperator) String() string {
	if o == Or {
		return "OR"
	}
	return "AND"
}

// ValidateOperator checks that an operator applies to a property and value
func ValidateOperator(op Operator, prop *schema.PropertyDescriptor, value any) error {
	vt := prop.ValueType

	switch op {
	case OpContains, OpIContains:
		if !vt.Textual() {
			return fmt.Errorf("%w: %s on %s field %s", ErrUnsupportedOperatorForType, op, vt, prop.FieldName)
		}
	case OpGreaterThan, OpGreaterThanOrEquals, OpLessThan, OpLessThanOrEquals:
		if !vt.Orderable() {
			return fmt.Errorf("%w: %s on %s field %s", ErrUnsupportedOperatorForType, op, vt, prop.FieldName)
		}
	}

	if op == OpIn {
		if values, ok := value.([]any); ok {
			for _, v := range values {
				if err := validateKeyword(prop, v); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return validateKeyword(prop, value)
}

// validateKeyword rejects keywords compared with non-temporal fields
func validateKeyword(prop *schema.PropertyDescriptor, value any) error {
	if _, ok := value.(Keyword); ok && prop.ValueType != schema.ValueTemporal {
		return fmt.Errorf("%w: %s compared with %s field %s", ErrUnsupportedOperatorForType, value, prop.ValueType, prop.FieldName)
	}
	return nil
}
