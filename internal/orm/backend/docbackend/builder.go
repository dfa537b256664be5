// Package docbackend compiles search predicates to document-store filters
// and aggregation pipelines.
//
// Embedded entities and collections are addressed with dot notation.
// Relations annotated with `ref` live in their own collection and are
// joined with $lookup. Maps are stored as arrays of {k, v} documents: a
// predicate on a map compares its values, the key and value segments
// address k and v, and paths through a map continue below v.
package docbackend

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

const idField = "_id"

// CollectionName returns the collection of an entity type: its
// CollectionName method, or the snake_case plural of the type name
func CollectionName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if d, ok := reflect.Zero(t).Interface().(schema.Documenter); ok {
		return d.CollectionName()
	}
	if d, ok := reflect.New(t).Interface().(schema.Documenter); ok {
		return d.CollectionName()
	}
	return schema.Pluralize(schema.SnakeCase(t.Name()))
}

// Builder renders compiled predicates as bson filters over one root
// collection
type Builder struct {
	registry *schema.Registry
	clock    func() time.Time
	logger   *zap.Logger

	root    *node
	lookups bson.A
}

// Option configures a Builder
type Option func(*Builder)

// WithClock sets the clock keywords are resolved against
func WithClock(clock func() time.Time) Option {
	return func(b *Builder) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithLogger sets the builder logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBuilder creates a builder rooted at the collection of an entity type
func NewBuilder(registry *schema.Registry, root reflect.Type, opts ...Option) (*Builder, error) {
	for root != nil && root.Kind() == reflect.Pointer {
		root = root.Elem()
	}
	if root == nil || !registry.IsEntity(root) {
		return nil, fmt.Errorf("%w: %v", schema.ErrNotEntity, root)
	}

	b := &Builder{
		registry: registry,
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.root = &node{builder: b, typ: root, joins: make(map[string]*node)}
	return b, nil
}

// Root implements query.PredicateBuilder
func (b *Builder) Root() relationships.Navigator {
	return b.root
}

// Collection returns the root collection name
func (b *Builder) Collection() string {
	return CollectionName(b.root.typ)
}

// Pipeline returns the $lookup stages followed by a $match on pred. A nil
// pred matches every document.
func (b *Builder) Pipeline(pred any) (bson.A, error) {
	pipeline := make(bson.A, 0, len(b.lookups)+1)
	pipeline = append(pipeline, b.lookups...)

	match := bson.D{}
	if pred != nil {
		d, err := document(pred)
		if err != nil {
			return nil, err
		}
		match = d
	}
	return append(pipeline, bson.D{{Key: "$match", Value: match}}), nil
}

// Field is a dotted document path
type Field string

// node is the root document, an embedded document or a looked-up one
type node struct {
	builder *Builder
	typ     reflect.Type
	// base is the path of the node itself, prefix the path its fields
	// hang off
	base   string
	prefix string
	prop   *schema.PropertyDescriptor
	joins  map[string]*node
}

// Type returns the Go type stored at this node
func (n *node) Type() reflect.Type {
	return n.typ
}

func (n *node) path(prop *schema.PropertyDescriptor) string {
	return n.prefix + prop.FieldName
}

// Get returns the document path of prop. Map entries resolve to the k or
// v field of the map's entry documents.
func (n *node) Get(prop *schema.PropertyDescriptor) any {
	switch prop.Entry {
	case schema.EntryKey:
		return Field(n.base + ".k")
	case schema.EntryValue:
		return Field(n.base + ".v")
	default:
		return Field(n.path(prop))
	}
}

// Existing returns the child already descended into through prop
func (n *node) Existing(prop *schema.PropertyDescriptor) (relationships.Navigator, bool) {
	child, ok := n.joins[prop.FieldName]
	if !ok {
		return nil, false
	}
	return child, true
}

// Join descends into prop. Embedded values need no stage; `ref`
// relations add a $lookup, and an inner join also drops documents
// without a match.
func (n *node) Join(prop *schema.PropertyDescriptor, hint relationships.JoinHint) relationships.Navigator {
	b := n.builder
	path := n.path(prop)
	child := &node{
		builder: b,
		typ:     prop.ElementType(),
		base:    path,
		prefix:  path + ".",
		prop:    prop,
		joins:   make(map[string]*node),
	}
	if prop.Kind == schema.KindMap {
		child.prefix = path + ".v."
	}

	if prop.HasAnnotation("ref") {
		local, foreign := lookupFields(n, prop)
		b.lookups = append(b.lookups, bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: CollectionName(prop.ElementType())},
			{Key: "localField", Value: local},
			{Key: "foreignField", Value: foreign},
			{Key: "as", Value: path},
		}}})
		if hint.Kind == relationships.InnerJoin {
			b.lookups = append(b.lookups, bson.D{{Key: "$match", Value: bson.D{
				{Key: path, Value: bson.D{{Key: "$ne", Value: bson.A{}}}},
			}}})
		}
		b.logger.Debug("added lookup",
			zap.String("property", prop.QualifiedName),
			zap.String("as", path),
			zap.Stringer("hint", hint),
		)
	}

	n.joins[prop.FieldName] = child
	return child
}

// lookupFields returns the local and foreign fields of a $lookup. A to-one
// reference stores the target id on the owner; collections are found by
// the owner id stored on the targets.
func lookupFields(n *node, prop *schema.PropertyDescriptor) (string, string) {
	if prop.Kind == schema.KindEntity && !prop.HasAnnotation("has_one") {
		return n.path(prop) + "Id", idField
	}
	owner := prop.OwnerType
	for owner.Kind() == reflect.Pointer {
		owner = owner.Elem()
	}
	name := owner.Name()
	return n.prefix + idField, strings.ToLower(name[:1]) + name[1:] + "Id"
}

// valueField is the path compared when the node itself is the target of
// a predicate
func (n *node) valueField() Field {
	path := strings.TrimSuffix(n.prefix, ".")
	if n.builder.registry.IsEntity(n.typ) {
		return Field(path + "." + idField)
	}
	return Field(path)
}
