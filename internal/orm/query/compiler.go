package query

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// Compiler turns expression trees into backend predicates
type Compiler struct {
	registry *schema.Registry
	logger   *zap.Logger
}

// CompilerOption configures a Compiler
type CompilerOption func(*Compiler)

// WithLogger sets the compiler logger
func WithLogger(logger *zap.Logger) CompilerOption {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCompiler creates a compiler over a metamodel registry
func NewCompiler(registry *schema.Registry, opts ...CompilerOption) *Compiler {
	c := &Compiler{
		registry: registry,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile attaches the graph's fetch joins to the builder root, then
// walks the expression emitting builder calls. Logical children are
// folded pairwise from left to right.
func (c *Compiler) Compile(expr Expression, graph *relationships.JoinGraph, b PredicateBuilder) (Predicate, error) {
	if isNil(expr) {
		return nil, &CompileError{Fragment: Format(expr), Err: ErrInvalidExpression}
	}
	if err := graph.MaterializeFetches(c.registry, b.Root()); err != nil {
		return nil, &CompileError{Fragment: "fetch joins", Err: err}
	}

	pred, err := c.compile(expr, graph, b)
	if err != nil {
		c.logger.Debug("compilation failed", zap.String("expression", Format(expr)), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("compiled expression", zap.String("expression", Format(expr)), zap.Int("joins", graph.Len()))
	return pred, nil
}

func (c *Compiler) compile(expr Expression, graph *relationships.JoinGraph, b PredicateBuilder) (Predicate, error) {
	if isNil(expr) {
		return nil, &CompileError{Fragment: Format(expr), Err: ErrInvalidExpression}
	}
	switch e := expr.(type) {
	case Comparison:
		return c.comparison(e, graph, b)
	case *Comparison:
		return c.comparison(*e, graph, b)
	case Logical:
		return c.logical(e, graph, b)
	case *Logical:
		return c.logical(*e, graph, b)
	case Not:
		return c.not(e, graph, b)
	case *Not:
		return c.not(*e, graph, b)
	default:
		return nil, &CompileError{Fragment: Format(expr), Err: ErrInvalidExpression}
	}
}

func (c *Compiler) not(e Not, graph *relationships.JoinGraph, b PredicateBuilder) (Predicate, error) {
	if isNil(e.Child) {
		return nil, &CompileError{Fragment: Format(e), Err: ErrInvalidExpression}
	}
	inner, err := c.compile(e.Child, graph, b)
	if err != nil {
		return nil, err
	}
	return b.Not(inner), nil
}

// logical folds the children left to right with And or Or
func (c *Compiler) logical(e Logical, graph *relationships.JoinGraph, b PredicateBuilder) (Predicate, error) {
	if len(e.Children) == 0 {
		return nil, &CompileError{Fragment: Format(e), Err: ErrEmptyLogical}
	}

	var acc Predicate
	for i, child := range e.Children {
		pred, err := c.compile(child, graph, b)
		if err != nil {
			return nil, err
		}
		switch {
		case i == 0:
			acc = pred
		case e.Operator == Or:
			acc = b.Or(acc, pred)
		default:
			acc = b.And(acc, pred)
		}
	}
	return acc, nil
}

func (c *Compiler) comparison(e Comparison, graph *relationships.JoinGraph, b PredicateBuilder) (Predicate, error) {
	fail := func(err error) error {
		return &CompileError{Path: e.Field, Fragment: Format(e), Err: err}
	}

	// A singleton IN compiles exactly like EQUALS
	if e.Operator == OpIn {
		values, ok := e.Value.([]any)
		if !ok {
			return nil, fail(fmt.Errorf("%w: IN expects a list, got %T", ErrInvalidOperand, e.Value))
		}
		switch len(values) {
		case 0:
			return nil, fail(ErrEmptyInList)
		case 1:
			return c.comparison(Equals(e.Field, values[0]), graph, b)
		}
	}

	if IsNull(e.Value) {
		if e.Operator != OpEquals {
			return nil, fail(fmt.Errorf("%w: %s does not accept null", ErrInvalidOperand, e.Operator))
		}
		info, err := graph.AttributeFor(c.registry, e.Field, b.Root())
		if err != nil {
			return nil, fail(err)
		}
		var pred Predicate
		if info.Property.IsEmptiable() {
			pred, err = b.IsEmpty(info)
		} else {
			pred, err = b.IsNull(info)
		}
		if err != nil {
			return nil, fail(err)
		}
		return pred, nil
	}

	info, err := graph.PathFor(c.registry, e.Field, b.Root())
	if err != nil {
		return nil, fail(err)
	}
	if err := ValidateOperator(e.Operator, info.Property, e.Value); err != nil {
		return nil, fail(err)
	}

	pred, err := c.dispatch(e, info, b)
	if err != nil {
		return nil, fail(err)
	}
	return pred, nil
}

// dispatch maps a validated comparison onto the builder
func (c *Compiler) dispatch(e Comparison, info relationships.PathInfo, b PredicateBuilder) (Predicate, error) {
	switch e.Operator {
	case OpEquals:
		return b.Equal(info, e.Value)
	case OpContains:
		pattern, err := likePattern(e.Value)
		if err != nil {
			return nil, err
		}
		return b.Like(info, pattern)
	case OpIContains:
		pattern, err := likePattern(e.Value)
		if err != nil {
			return nil, err
		}
		return b.ILike(info, strings.ToLower(pattern))
	case OpGreaterThan:
		return b.GreaterThan(info, e.Value)
	case OpGreaterThanOrEquals:
		return b.GreaterThanOrEquals(info, e.Value)
	case OpLessThan:
		return b.LessThan(info, e.Value)
	case OpLessThanOrEquals:
		return b.LessThanOrEquals(info, e.Value)
	case OpIn:
		return c.in(info, e.Value.([]any), b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperator, int(e.Operator))
	}
}

// in compiles the literal members as one IN (or EQUALS when only one is
// left) and ORs an EQUALS per keyword after it, so backends resolve
// keywords exactly as they do for EQUALS
func (c *Compiler) in(info relationships.PathInfo, values []any, b PredicateBuilder) (Predicate, error) {
	var literals, keywords []any
	for _, v := range values {
		if _, ok := v.(Keyword); ok {
			keywords = append(keywords, v)
		} else {
			literals = append(literals, v)
		}
	}
	if len(keywords) == 0 {
		return b.In(info, values)
	}

	var preds []Predicate
	switch len(literals) {
	case 0:
	case 1:
		pred, err := b.Equal(info, literals[0])
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	default:
		pred, err := b.In(info, literals)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	for _, k := range keywords {
		pred, err := b.Equal(info, k)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}

	acc := preds[0]
	for _, pred := range preds[1:] {
		acc = b.Or(acc, pred)
	}
	return acc, nil
}

// likePattern wraps a substring in wildcards; * inside the value is
// also a wildcard
func likePattern(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: substring match expects a string, got %T", ErrInvalidOperand, v)
	}
	return "%" + strings.ReplaceAll(s, "*", "%") + "%", nil
}
