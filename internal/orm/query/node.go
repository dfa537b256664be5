package query

import (
	"fmt"
	"strings"
)

// Node is the document form of an expression, as read from JSON or YAML.
// Exactly one of Field, And, Or and Not is set.
type Node struct {
	Field  string  `json:"field,omitempty" yaml:"field,omitempty"`
	Op     string  `json:"op,omitempty" yaml:"op,omitempty"`
	Value  any     `json:"value,omitempty" yaml:"value,omitempty"`
	Values []any   `json:"values,omitempty" yaml:"values,omitempty"`
	And    []*Node `json:"and,omitempty" yaml:"and,omitempty"`
	Or     []*Node `json:"or,omitempty" yaml:"or,omitempty"`
	Not    *Node   `json:"not,omitempty" yaml:"not,omitempty"`
}

// ValueBinder converts a raw document value into the typed value compared
// against field. Keyword names are recognized before the binder runs.
type ValueBinder func(field string, op Operator, raw any) (any, error)

// Validate checks the document shape without converting values
func (n *Node) Validate() error {
	_, err := n.Expression(nil)
	return err
}

// Expression converts the document into an expression tree. A nil binder
// keeps raw values as they are.
func (n *Node) Expression(bind ValueBinder) (Expression, error) {
	return n.expression(bind, "$")
}

// expression converts the node at path at, binding raw values
func (n *Node) expression(bind ValueBinder, at string) (Expression, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: %s: empty node", ErrInvalidExpression, at)
	}

	set := 0
	for _, present := range []bool{n.Field != "", n.And != nil, n.Or != nil, n.Not != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: %s: exactly one of field, and, or, not must be set", ErrInvalidExpression, at)
	}

	switch {
	case n.Not != nil:
		child, err := n.Not.expression(bind, at+".not")
		if err != nil {
			return nil, err
		}
		return Negate(child), nil
	case n.And != nil:
		children, err := childExpressions(n.And, bind, at+".and")
		if err != nil {
			return nil, err
		}
		return AllOf(children...), nil
	case n.Or != nil:
		children, err := childExpressions(n.Or, bind, at+".or")
		if err != nil {
			return nil, err
		}
		return AnyOf(children...), nil
	default:
		return n.comparison(bind, at)
	}
}

func childExpressions(nodes []*Node, bind ValueBinder, at string) ([]Expression, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyLogical, at)
	}
	out := make([]Expression, len(nodes))
	for i, child := range nodes {
		expr, err := child.expression(bind, fmt.Sprintf("%s[%d]", at, i))
		if err != nil {
			return nil, err
		}
		out[i] = expr
	}
	return out, nil
}

func (n *Node) comparison(bind ValueBinder, at string) (Expression, error) {
	opName := n.Op
	if opName == "" {
		opName = "EQUALS"
	}

	if strings.EqualFold(strings.TrimSpace(opName), "BETWEEN") {
		if len(n.Values) != 2 {
			return nil, fmt.Errorf("%w: %s: BETWEEN needs exactly two values", ErrInvalidOperand, at)
		}
		lo, err := bindValue(bind, n.Field, OpGreaterThan, n.Values[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", at, err)
		}
		hi, err := bindValue(bind, n.Field, OpLessThan, n.Values[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", at, err)
		}
		return Between(n.Field, lo, hi), nil
	}

	op, err := ParseOperator(opName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", at, err)
	}

	if op == OpIn {
		raw := n.Values
		if raw == nil && n.Value != nil {
			raw = []any{n.Value}
		}
		values := make([]any, len(raw))
		for i, v := range raw {
			if values[i], err = bindValue(bind, n.Field, op, v); err != nil {
				return nil, fmt.Errorf("%s: %w", at, err)
			}
		}
		return In(n.Field, values...), nil
	}

	if n.Values != nil {
		return nil, fmt.Errorf("%w: %s: %s takes a single value", ErrInvalidOperand, at, op)
	}
	value, err := bindValue(bind, n.Field, op, n.Value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", at, err)
	}
	return Comparison{Field: n.Field, Operator: op, Value: value}, nil
}

// bindValue types one raw value against its field
func bindValue(bind ValueBinder, field string, op Operator, raw any) (any, error) {
	if IsNull(raw) {
		return Null, nil
	}
	if s, ok := raw.(string); ok {
		if k, ok := ParseKeyword(s); ok {
			return k, nil
		}
	}
	if bind == nil {
		return raw, nil
	}
	return bind(field, op, raw)
}
