// Package search wires the metamodel, join resolution and compilation into
// a single entry point used by the CLI and the HTTP API
package search

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/orm/convert"
	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// ErrUnknownEntity is returned when a search names an unregistered entity
var ErrUnknownEntity = errors.New("unknown entity")

// Backend creates predicate builders and executes compiled predicates
type Backend interface {
	NewBuilder(root reflect.Type) (query.PredicateBuilder, error)
	Execute(ctx context.Context, b query.PredicateBuilder, pred query.Predicate) ([]map[string]any, error)
}

// Plan is an expression with the join graph resolved for it
type Plan struct {
	ID         string
	Root       reflect.Type
	Expression query.Expression
	Graph      *relationships.JoinGraph
}

// Service resolves, compiles and runs searches
type Service struct {
	registry  *schema.Registry
	chain     *relationships.Chain
	converter *convert.TemporalConverter
	logger    *zap.Logger
	strict    bool
	fetchAll  bool
	clock     query.Clock

	scopesMu sync.Mutex
	scopes   map[reflect.Type]*query.ScopeRegistry

	resolver *relationships.Resolver
	compiler *query.Compiler
}

// Option configures a Service
type Option func(*Service)

// WithChain sets the join handler chain
func WithChain(chain *relationships.Chain) Option {
	return func(s *Service) {
		s.chain = chain
	}
}

// WithConverter sets the converter for temporal literals
func WithConverter(c *convert.TemporalConverter) Option {
	return func(s *Service) {
		if c != nil {
			s.converter = c
		}
	}
}

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStrictJoins rejects searches whose join requirements conflict
func WithStrictJoins(strict bool) Option {
	return func(s *Service) {
		s.strict = strict
	}
}

// WithFetchAll eagerly fetches every relation reachable from the root
func WithFetchAll(fetchAll bool) Option {
	return func(s *Service) {
		s.fetchAll = fetchAll
	}
}

// WithClock sets the clock used when binding relative values
func WithClock(clock query.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a search service over a registry
func New(registry *schema.Registry, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		logger:   zap.NewNop(),
		clock:    time.Now,
		scopes:   make(map[reflect.Type]*query.ScopeRegistry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.converter == nil {
		s.converter = convert.NewTemporalConverter(convert.WithLogger(s.logger))
	}

	chain := s.chain
	if s.fetchAll {
		var handlers []relationships.Handler
		handlers = append(handlers, relationships.FetchAllHandler{})
		if chain != nil {
			handlers = append(handlers, chain.Handlers()...)
		}
		chain = relationships.NewChain(handlers...)
	}
	s.chain = chain

	s.resolver = relationships.NewResolver(registry, chain,
		relationships.WithStrict(s.strict),
		relationships.WithLogger(s.logger),
	)
	s.compiler = query.NewCompiler(registry, query.WithLogger(s.logger))
	return s
}

// Registry returns the metamodel registry
func (s *Service) Registry() *schema.Registry {
	return s.registry
}

// Clock returns the service clock
func (s *Service) Clock() query.Clock {
	return s.clock
}

// Entity looks up a registered entity by canonical or simple name
func (s *Service) Entity(name string) (reflect.Type, error) {
	t, ok := s.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return t, nil
}

// Scopes returns the named scopes of an entity, creating the registry on
// first use
func (s *Service) Scopes(root reflect.Type) *query.ScopeRegistry {
	root = indirect(root)
	s.scopesMu.Lock()
	defer s.scopesMu.Unlock()
	sr, ok := s.scopes[root]
	if !ok {
		sr = query.NewScopeRegistry()
		s.scopes[root] = sr
	}
	return sr
}

// ApplyScopes ANDs the named scopes of root after expr. Scopes taking
// arguments cannot be applied by name.
func (s *Service) ApplyScopes(root reflect.Type, expr query.Expression, names ...string) (query.Expression, error) {
	if len(names) == 0 {
		return expr, nil
	}
	chain := query.NewScopeChain()
	for _, name := range names {
		scope, err := s.Scopes(root).Get(name)
		if err != nil {
			return nil, err
		}
		bound, err := scope.Bind()
		if err != nil {
			return nil, err
		}
		chain.Add(bound)
	}
	return chain.Apply(expr), nil
}

// Plan resolves the joins an expression needs. With fetch-all enabled
// every reachable relation is added as a fetch join.
func (s *Service) Plan(root reflect.Type, expr query.Expression) (*Plan, error) {
	root = indirect(root)
	if root == nil || !s.registry.IsEntity(root) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEntity, root)
	}

	plan := &Plan{
		ID:         uuid.NewString(),
		Root:       root,
		Expression: expr,
	}
	logger := s.logger.With(zap.String("request_id", plan.ID))

	paths := query.JoinPaths(expr)
	graph, err := s.resolver.Resolve(root, paths)
	if err != nil {
		logger.Debug("join resolution failed", zap.Error(err))
		return nil, err
	}
	if s.fetchAll {
		if err := s.resolver.ResolveFetches(graph); err != nil {
			return nil, err
		}
	}
	plan.Graph = graph

	logger.Debug("planned search",
		zap.String("entity", schema.CanonicalName(root)),
		zap.Strings("paths", paths),
		zap.Strings("joins", graph.Keys()),
	)
	return plan, nil
}

// Compile compiles a planned expression with a backend builder
func (s *Service) Compile(plan *Plan, b query.PredicateBuilder) (query.Predicate, error) {
	pred, err := s.compiler.Compile(plan.Expression, plan.Graph, b)
	if err != nil {
		s.logger.Debug("search compilation failed", zap.String("request_id", plan.ID), zap.Error(err))
		return nil, err
	}
	return pred, nil
}

// Find plans, compiles and executes a search on a backend
func (s *Service) Find(ctx context.Context, root reflect.Type, expr query.Expression, backend Backend) ([]map[string]any, error) {
	plan, err := s.Plan(root, expr)
	if err != nil {
		return nil, err
	}

	b, err := backend.NewBuilder(plan.Root)
	if err != nil {
		return nil, err
	}

	var pred query.Predicate
	if expr != nil {
		if pred, err = s.Compile(plan, b); err != nil {
			return nil, err
		}
	} else if err := plan.Graph.MaterializeFetches(s.registry, b.Root()); err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := backend.Execute(ctx, b, pred)
	if err != nil {
		s.logger.Error("search failed", zap.String("request_id", plan.ID), zap.Error(err))
		return nil, err
	}
	s.logger.Info("search completed",
		zap.String("request_id", plan.ID),
		zap.String("entity", plan.Root.Name()),
		zap.Int("results", len(rows)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return rows, nil
}

func indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}
