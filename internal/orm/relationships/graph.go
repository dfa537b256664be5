package relationships

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// JoinGraph holds the deduplicated joins of one search request. It is
// not safe for concurrent use; every request builds its own graph.
type JoinGraph struct {
	root   reflect.Type
	strict bool
	logger *zap.Logger

	joins map[string]*JoinSpec
	order []string
}

// GraphOption configures a JoinGraph
type GraphOption func(*JoinGraph)

// WithStrictWidening rejects requests that would narrow an existing join
func WithStrictWidening(strict bool) GraphOption {
	return func(g *JoinGraph) {
		g.strict = strict
	}
}

// WithGraphLogger sets the graph logger
func WithGraphLogger(logger *zap.Logger) GraphOption {
	return func(g *JoinGraph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewJoinGraph creates an empty graph rooted at the given entity type
func NewJoinGraph(root reflect.Type, opts ...GraphOption) *JoinGraph {
	for root != nil && root.Kind() == reflect.Pointer {
		root = root.Elem()
	}
	g := &JoinGraph{
		root:   root,
		logger: zap.NewNop(),
		joins:  make(map[string]*JoinSpec),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Root returns the root entity type
func (g *JoinGraph) Root() reflect.Type {
	return g.root
}

// Add inserts a join edge. An edge whose key already exists is widened
// in place and returned; no duplicate is ever stored. A request narrower
// than the stored edge is ignored, or rejected in strict mode.
func (g *JoinGraph) Add(spec *JoinSpec) (*JoinSpec, error) {
	existing, ok := g.joins[spec.Key]
	if !ok {
		stored := *spec
		g.joins[spec.Key] = &stored
		g.order = append(g.order, spec.Key)

		g.logger.Debug("added join",
			zap.String("key", spec.Key),
			zap.String("path", stored.Path()),
			zap.Stringer("hint", stored.Hint()),
		)
		return &stored, nil
	}

	current := existing.Hint()
	requested := spec.Hint()
	if g.strict && !requested.Covers(current) {
		return existing, &WideningError{Key: spec.Key, Existing: current, Requested: requested}
	}

	widened := current.Wider(requested)
	if widened != current {
		existing.Kind = widened.Kind
		existing.Fetch = widened.Fetch
		g.logger.Debug("widened join",
			zap.String("key", spec.Key),
			zap.Stringer("from", current),
			zap.Stringer("to", widened),
		)
	}
	return existing, nil
}

// Get returns the edge stored under a key
func (g *JoinGraph) Get(key string) (*JoinSpec, bool) {
	spec, ok := g.joins[key]
	return spec, ok
}

// Edge returns the edge joining exactly the given owner and field
func (g *JoinGraph) Edge(owner reflect.Type, field string) (*JoinSpec, bool) {
	for _, key := range g.order {
		spec := g.joins[key]
		if spec.OwnerType == owner && spec.Property.FieldName == field {
			return spec, true
		}
	}
	return nil, false
}

// Keys returns the join keys in insertion order
func (g *JoinGraph) Keys() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Joins returns the edges accepted by filter in insertion order. A nil
// filter accepts every edge.
func (g *JoinGraph) Joins(filter func(*JoinSpec) bool) []*JoinSpec {
	out := make([]*JoinSpec, 0, len(g.order))
	for _, key := range g.order {
		spec := g.joins[key]
		if filter == nil || filter(spec) {
			out = append(out, spec)
		}
	}
	return out
}

// Len returns the number of edges
func (g *JoinGraph) Len() int {
	return len(g.order)
}

// AlreadyProcessed reports whether the join for a property needs no
// further work: it points back at the root, it hangs off the root and
// its key is present, or the exact edge exists.
func (g *JoinGraph) AlreadyProcessed(owner reflect.Type, prop *schema.PropertyDescriptor) bool {
	if g.refersToRoot(prop) {
		return true
	}
	if owner == g.root {
		if _, ok := g.joins[prop.QualifiedName]; ok {
			return true
		}
	}
	_, ok := g.Edge(owner, prop.FieldName)
	return ok
}

// refersToRoot reports whether prop points back at the root entity
func (g *JoinGraph) refersToRoot(prop *schema.PropertyDescriptor) bool {
	return prop.QualifiedName == schema.CanonicalName(g.root)
}

// covers reports whether the edge under key is at least as wide as hint
func (g *JoinGraph) covers(key string, hint JoinHint) bool {
	spec, ok := g.joins[key]
	return ok && spec.Hint().Covers(hint)
}

// IsFetched is a Joins filter selecting fetch joins
func IsFetched(spec *JoinSpec) bool {
	return spec.Fetch
}
