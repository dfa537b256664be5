package query

import (
	"fmt"
	"sort"
	"sync"
)

// Param is a placeholder inside a scope expression, replaced by an
// argument when the scope is bound
type Param string

// String returns the placeholder form of the parameter
func (p Param) String() string {
	return ":" + string(p)
}

// Scope is a named, reusable expression fragment
type Scope struct {
	Name      string
	Arguments []string
	Expr      Expression
}

// NewScope creates a scope whose expression refers to args through Param
// placeholders
func NewScope(name string, expr Expression, args ...string) *Scope {
	return &Scope{
		Name:      name,
		Arguments: args,
		Expr:      expr,
	}
}

// Bind substitutes positional arguments and returns the bound expression
func (s *Scope) Bind(args ...any) (Expression, error) {
	if len(args) != len(s.Arguments) {
		return nil, fmt.Errorf("%w: scope %s expects %d arguments, got %d",
			ErrInvalidOperand, s.Name, len(s.Arguments), len(args))
	}

	values := make(map[string]any, len(args))
	for i, name := range s.Arguments {
		values[name] = args[i]
	}

	expr, err := substitute(s.Expr, values)
	if err != nil {
		return nil, fmt.Errorf("scope %s: %w", s.Name, err)
	}
	return expr, nil
}

// substitute replaces every Param under expr by its bound value
func substitute(expr Expression, values map[string]any) (Expression, error) {
	if isNil(expr) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpression, Format(expr))
	}
	switch e := expr.(type) {
	case Comparison:
		v, err := substituteValue(e.Value, values)
		if err != nil {
			return nil, err
		}
		e.Value = v
		return e, nil
	case *Comparison:
		return substitute(*e, values)
	case Logical:
		children := make([]Expression, len(e.Children))
		for i, child := range e.Children {
			c, err := substitute(child, values)
			if err != nil {
				return nil, err
			}
			children[i] = c
		}
		return Logical{Operator: e.Operator, Children: children}, nil
	case *Logical:
		return substitute(*e, values)
	case Not:
		child, err := substitute(e.Child, values)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil
	case *Not:
		return substitute(*e, values)
	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidExpression, expr)
	}
}

func substituteValue(v any, values map[string]any) (any, error) {
	switch val := v.(type) {
	case Param:
		bound, ok := values[string(val)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnboundParameter, val)
		}
		return bound, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			b, err := substituteValue(item, values)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return out, nil
	default:
		return v, nil
	}
}

// ScopeRegistry holds the scopes of one entity
type ScopeRegistry struct {
	mu     sync.RWMutex
	scopes map[string]*Scope
}

// NewScopeRegistry creates an empty scope registry
func NewScopeRegistry() *ScopeRegistry {
	return &ScopeRegistry{
		scopes: make(map[string]*Scope),
	}
}

// Register adds a scope, replacing any scope of the same name
func (sr *ScopeRegistry) Register(scope *Scope) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.scopes[scope.Name] = scope
}

// Get retrieves a scope by name
func (sr *ScopeRegistry) Get(name string) (*Scope, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	scope, ok := sr.scopes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, name)
	}
	return scope, nil
}

// Has checks if a scope exists
func (sr *ScopeRegistry) Has(name string) bool {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	_, ok := sr.scopes[name]
	return ok
}

// List returns the registered scope names in order
func (sr *ScopeRegistry) List() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.scopes))
	for name := range sr.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ScopeChain collects bound scopes to AND into a search
type ScopeChain struct {
	scopes []Expression
}

// NewScopeChain creates an empty chain
func NewScopeChain() *ScopeChain {
	return &ScopeChain{}
}

// Add appends a bound scope to the chain
func (sc *ScopeChain) Add(expr Expression) {
	sc.scopes = append(sc.scopes, expr)
}

// Len returns the number of scopes in the chain
func (sc *ScopeChain) Len() int {
	return len(sc.scopes)
}

// Apply ANDs the chained scopes after expr. A nil expr yields the scopes
// alone; an empty chain returns expr unchanged.
func (sc *ScopeChain) Apply(expr Expression) Expression {
	children := make([]Expression, 0, len(sc.scopes)+1)
	if expr != nil {
		children = append(children, expr)
	}
	children = append(children, sc.scopes...)

	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	default:
		return AllOf(children...)
	}
}
