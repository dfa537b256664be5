package query

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Expression is a node of a search expression tree. The set of node
// types is closed: Comparison, Logical and Not.
type Expression interface {
	isExpression()
}

// Comparison compares the value at a field path with a literal or keyword
type Comparison struct {
	Field    string
	Operator Operator
	Value    any
}

// Logical combines children with AND or OR
type Logical struct {
	Operator LogicalOperator
	Children []Expression
}

// Not negates its child
type Not struct {
	Child Expression
}

func (Comparison) isExpression() {}
func (Logical) isExpression()    {}
func (Not) isExpression()        {}

// Keyword is a value resolved by the backend at execution time
type Keyword int

const (
	CurrentDate Keyword = iota + 1
	CurrentTime
	CurrentDateTime
)

// String returns the keyword name
func (k Keyword) String() string {
	switch k {
	case CurrentDate:
		return "CURRENT_DATE"
	case CurrentTime:
		return "CURRENT_TIME"
	case CurrentDateTime:
		return "CURRENT_DATE_TIME"
	default:
		return "UNKNOWN_KEYWORD"
	}
}

// ParseKeyword recognizes a keyword name, case-insensitively
func ParseKeyword(s string) (Keyword, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CURRENT_DATE":
		return CurrentDate, true
	case "CURRENT_TIME":
		return CurrentTime, true
	case "CURRENT_DATE_TIME":
		return CurrentDateTime, true
	}
	return 0, false
}

// NullValue is the explicit null literal
type NullValue struct{}

// String returns "null"
func (NullValue) String() string { return "null" }

// Null is the null literal
var Null = NullValue{}

// IsNull reports whether a value is a null-equivalent literal
func IsNull(v any) bool {
	switch v.(type) {
	case nil, NullValue, *NullValue:
		return true
	}
	return false
}

// Equals builds an EQUALS comparison
func Equals(field string, value any) Comparison {
	return Comparison{Field: field, Operator: OpEquals, Value: value}
}

// Contains builds a CONTAINS comparison
func Contains(field, value string) Comparison {
	return Comparison{Field: field, Operator: OpContains, Value: value}
}

// IContains builds a case-insensitive CONTAINS comparison
func IContains(field, value string) Comparison {
	return Comparison{Field: field, Operator: OpIContains, Value: value}
}

// GreaterThan builds a GREATER_THAN comparison
func GreaterThan(field string, value any) Comparison {
	return Comparison{Field: field, Operator: OpGreaterThan, Value: value}
}

// GreaterThanOrEquals builds a GREATER_THAN_OR_EQUALS comparison
func GreaterThanOrEquals(field string, value any) Comparison {
	return Comparison{Field: field, Operator: OpGreaterThanOrEquals, Value: value}
}

// LessThan builds a LESS_THAN comparison
func LessThan(field string, value any) Comparison {
	return Comparison{Field: field, Operator: OpLessThan, Value: value}
}

// LessThanOrEquals builds a LESS_THAN_OR_EQUALS comparison
func LessThanOrEquals(field string, value any) Comparison {
	return Comparison{Field: field, Operator: OpLessThanOrEquals, Value: value}
}

// In matches any of the values
func In(field string, values ...any) Comparison {
	vs := make([]any, len(values))
	copy(vs, values)
	return Comparison{Field: field, Operator: OpIn, Value: vs}
}

// Between expands to AND(GREATER_THAN(field, lo), LESS_THAN(field, hi))
func Between(field string, lo, hi any) Logical {
	return AllOf(GreaterThan(field, lo), LessThan(field, hi))
}

// AllOf combines children with AND
func AllOf(children ...Expression) Logical {
	return Logical{Operator: And, Children: children}
}

// AnyOf combines children with OR
func AnyOf(children ...Expression) Logical {
	return Logical{Operator: Or, Children: children}
}

// Negate wraps an expression in NOT
func Negate(child Expression) Not {
	return Not{Child: child}
}

// FieldPaths returns the sorted, distinct field paths an expression references
func FieldPaths(expr Expression) []string {
	seen := make(map[string]bool)
	walk(expr, func(c Comparison) {
		seen[c.Field] = true
	})
	return sortedKeys(seen)
}

// JoinPaths returns the field paths that need joins. A null comparison
// tests its final segment in place, so only its parent path is joined.
func JoinPaths(expr Expression) []string {
	seen := make(map[string]bool)
	walk(expr, func(c Comparison) {
		if !isNullComparison(c) {
			seen[c.Field] = true
			return
		}
		if i := strings.LastIndexByte(c.Field, '.'); i > 0 {
			seen[c.Field[:i]] = true
		}
	})
	return sortedKeys(seen)
}

// HasKeyword reports whether any comparison in expr uses a keyword, so its
// meaning depends on when it runs
func HasKeyword(expr Expression) bool {
	found := false
	walk(expr, func(c Comparison) {
		switch v := c.Value.(type) {
		case Keyword:
			found = true
		case []any:
			for _, item := range v {
				if _, ok := item.(Keyword); ok {
					found = true
				}
			}
		}
	})
	return found
}

func isNullComparison(c Comparison) bool {
	switch c.Operator {
	case OpEquals:
		return IsNull(c.Value)
	case OpIn:
		values, ok := c.Value.([]any)
		return ok && len(values) == 1 && IsNull(values[0])
	}
	return false
}

// walk visits every comparison under expr, depth first
func walk(expr Expression, visit func(Comparison)) {
	switch e := expr.(type) {
	case Comparison:
		visit(e)
	case *Comparison:
		if e != nil {
			visit(*e)
		}
	case Logical:
		for _, child := range e.Children {
			walk(child, visit)
		}
	case *Logical:
		if e != nil {
			walk(*e, visit)
		}
	case Not:
		walk(e.Child, visit)
	case *Not:
		if e != nil {
			walk(e.Child, visit)
		}
	}
}

// isNil reports a missing expression, including typed nil pointers
func isNil(expr Expression) bool {
	switch e := expr.(type) {
	case nil:
		return true
	case *Comparison:
		return e == nil
	case *Logical:
		return e == nil
	case *Not:
		return e == nil
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Format renders an expression for diagnostics
func Format(expr Expression) string {
	var b strings.Builder
	format(&b, expr)
	return b.String()
}

// format writes the canonical text form of expr
func format(b *strings.Builder, expr Expression) {
	if isNil(expr) {
		b.WriteString("<nil>")
		return
	}
	switch e := expr.(type) {
	case Comparison:
		fmt.Fprintf(b, "%s(%s, %s)", e.Operator, e.Field, formatValue(e.Value))
	case *Comparison:
		format(b, *e)
	case Logical:
		b.WriteString(e.Operator.String())
		b.WriteByte('(')
		for i, child := range e.Children {
			if i > 0 {
				b.WriteString(", ")
			}
			format(b, child)
		}
		b.WriteByte(')')
	case *Logical:
		format(b, *e)
	case Not:
		b.WriteString("NOT(")
		format(b, e.Child)
		b.WriteByte(')')
	case *Not:
		format(b, *e)
	default:
		fmt.Fprintf(b, "%T", expr)
	}
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprint(val)
	}
}
