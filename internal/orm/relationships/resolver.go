package relationships

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/orm/schema"
)

const defaultMaxDepth = 10

// Resolver turns requested field paths into a join graph
type Resolver struct {
	registry *schema.Registry
	chain    *Chain
	strict   bool
	maxDepth int
	logger   *zap.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithStrict makes graphs built by the resolver reject join narrowing
func WithStrict(strict bool) ResolverOption {
	return func(r *Resolver) {
		r.strict = strict
	}
}

// WithMaxDepth bounds fetch traversal depth
func WithMaxDepth(depth int) ResolverOption {
	return func(r *Resolver) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithLogger sets the resolver logger
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver. A nil chain resolves every join with
// the default handler.
func NewResolver(registry *schema.Registry, chain *Chain, opts ...ResolverOption) *Resolver {
	if chain == nil {
		chain = NewChain()
	}
	r := &Resolver{
		registry: registry,
		chain:    chain,
		maxDepth: defaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the metamodel registry used by the resolver
func (r *Resolver) Registry() *schema.Registry {
	return r.registry
}

// NewGraph creates an empty graph configured like the resolver
func (r *Resolver) NewGraph(root reflect.Type) *JoinGraph {
	return NewJoinGraph(root, WithStrictWidening(r.strict), WithGraphLogger(r.logger))
}

// Resolve builds the join graph needed to reach every requested path
func (r *Resolver) Resolve(root reflect.Type, paths []string) (*JoinGraph, error) {
	g := r.NewGraph(root)
	if err := r.ResolveInto(g, paths); err != nil {
		return nil, err
	}
	return g, nil
}

// ResolveInto adds the joins of the requested paths to an existing graph.
// Paths are processed in sorted order so the result does not depend on
// the order they were requested in.
func (r *Resolver) ResolveInto(g *JoinGraph, paths []string) error {
	sorted := make([]string, len(paths))
	copy(sorted, paths)
	sort.Strings(sorted)

	for i, path := range sorted {
		if i > 0 && path == sorted[i-1] {
			continue
		}
		if err := r.resolvePath(g, path); err != nil {
			return err
		}
	}
	return nil
}

// resolvePath adds one edge per navigable segment of path
func (r *Resolver) resolvePath(g *JoinGraph, path string) error {
	if path == "" {
		return invalidPath(path, "", g.root, nil)
	}

	segments := strings.Split(path, ".")
	owner := g.root
	joinName := ""
	var prev *schema.PropertyDescriptor

	for i, segment := range segments {
		if segment == "" {
			return invalidPath(path, segment, owner, nil)
		}
		last := i == len(segments)-1

		// Map entries ride on the join of their map
		if followsMap(prev, segment) {
			entry, err := mapEntry(r.registry, prev, path, segment, owner, last)
			if err != nil || last {
				return err
			}
			prev = entry
			continue
		}

		prop, err := r.registry.Describe(owner, segment)
		if err != nil {
			return invalidPath(path, segment, owner, err)
		}

		if !prop.IsNavigable() {
			if !last {
				return invalidPath(path, segment, owner,
					fmt.Errorf("%w: cannot traverse %s field", ErrInvalidFieldPath, prop.Kind))
			}
			return nil
		}

		// Back-references to the root get no edge; navigation joins
		// them with the default hint.
		if !g.refersToRoot(prop) {
			hint := r.chain.Resolve(prop)
			spec := &JoinSpec{
				Key:       prop.QualifiedName,
				OwnerType: owner,
				JoinName:  joinName,
				Property:  prop,
				Kind:      hint.Kind,
				Fetch:     hint.Fetch,
			}
			if _, err := g.Add(spec); err != nil {
				return &PathError{Path: path, Segment: segment, Owner: owner, Err: err}
			}
		}

		joinName = joinPath(joinName, prop.FieldName)
		owner = prop.ElementType()
		prev = prop
	}
	return nil
}

// ResolveFetches walks every relation reachable from the root and adds
// the joins the chain wants fetched. Relations pointing back at the root
// or at an already visited type are not followed again.
func (r *Resolver) ResolveFetches(g *JoinGraph) error {
	visited := map[reflect.Type]bool{g.root: true}
	return r.fetchFrom(g, g.root, "", visited, 0)
}

// fetchFrom adds the fetch joins of owner and recurses into unvisited
// entities
func (r *Resolver) fetchFrom(g *JoinGraph, owner reflect.Type, joinName string, visited map[reflect.Type]bool, depth int) error {
	if depth >= r.maxDepth {
		return fmt.Errorf("%s: %w", joinName, ErrMaxDepthExceeded)
	}

	props, err := r.registry.AllProperties(owner)
	if err != nil {
		return err
	}

	for _, prop := range props {
		if !prop.IsNavigable() {
			continue
		}
		hint := r.chain.Resolve(prop)
		if !hint.Fetch || g.refersToRoot(prop) {
			continue
		}

		if !g.AlreadyProcessed(owner, prop) || !g.covers(prop.QualifiedName, hint) {
			spec := &JoinSpec{
				Key:       prop.QualifiedName,
				OwnerType: owner,
				JoinName:  joinName,
				Property:  prop,
				Kind:      hint.Kind,
				Fetch:     true,
			}
			if _, err := g.Add(spec); err != nil {
				return err
			}
		}

		next := prop.ElementType()
		if prop.Kind == schema.KindMap || !r.registry.IsEntity(next) || visited[next] {
			continue
		}
		visited[next] = true
		if err := r.fetchFrom(g, next, joinPath(joinName, prop.FieldName), visited, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(parent, field string) string {
	if parent == "" {
		return field
	}
	return parent + "." + field
}
