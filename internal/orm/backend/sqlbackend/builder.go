package sqlbackend

import (
	"fmt"
	"reflect"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// Column is a qualified column reference
type Column struct {
	Table string
	Name  string
}

// String returns the qualified column name
func (c Column) String() string {
	return c.Table + "." + c.Name
}

// joinClause is one rendered JOIN
type joinClause struct {
	kind  relationships.JoinKind
	table string
	alias string
	on    string
	fetch bool
}

func (j joinClause) String() string {
	return fmt.Sprintf("%s JOIN %s %s ON %s", j.kind, j.table, j.alias, j.on)
}

// Builder renders compiled predicates as squirrel expressions over one
// root table. It is single use: joins accumulate as paths are resolved.
type Builder struct {
	registry *schema.Registry
	dialect  Dialect
	arrayIn  bool
	clock    func() time.Time
	logger   *zap.Logger

	root    *node
	joins   []joinClause
	aliases int
}

// Option configures a Builder
type Option func(*Builder)

// WithDialect sets the SQL dialect
func WithDialect(d Dialect) Option {
	return func(b *Builder) {
		b.dialect = d
	}
}

// WithArrayIn renders IN lists as = ANY(array) on Postgres
func WithArrayIn(enabled bool) Option {
	return func(b *Builder) {
		b.arrayIn = enabled
	}
}

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

// NewBuilder creates a builder whose root is the table of an entity type
func NewBuilder(registry *schema.Registry, root reflect.Type, opts ...Option) (*Builder, error) {
	for root != nil && root.Kind() == reflect.Pointer {
		root = root.Elem()
	}
	if root == nil || !registry.IsEntity(root) {
		return nil, fmt.Errorf("%w: %v", schema.ErrNotEntity, root)
	}

	b := &Builder{
		registry: registry,
		dialect:  Postgres,
		clock:    time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}

	table := TableName(root)
	b.root = &node{
		builder: b,
		typ:     root,
		table:   table,
		alias:   table,
		rel:     relColumn,
		joins:   make(map[string]*node),
	}
	return b, nil
}

// Root implements query.PredicateBuilder
func (b *Builder) Root() relationships.Navigator {
	return b.root
}

// Dialect returns the builder's SQL dialect
func (b *Builder) Dialect() Dialect {
	return b.dialect
}

// Joins returns the rendered JOIN clauses in creation order
func (b *Builder) Joins() []string {
	out := make([]string, len(b.joins))
	for i, j := range b.joins {
		out[i] = j.String()
	}
	return out
}

// Fetches returns the aliases of fetch joins
func (b *Builder) Fetches() []string {
	var out []string
	for _, j := range b.joins {
		if j.fetch {
			out = append(out, j.alias)
		}
	}
	return out
}

func (b *Builder) nextAlias() string {
	b.aliases++
	return fmt.Sprintf("j%d", b.aliases)
}

// addJoin records a JOIN under a fresh alias. on is a format string
// receiving the alias.
func (b *Builder) addJoin(kind relationships.JoinKind, table, on string, fetch bool) string {
	alias := b.nextAlias()
	b.joins = append(b.joins, joinClause{
		kind:  kind,
		table: table,
		alias: alias,
		on:    fmt.Sprintf(on, alias),
		fetch: fetch,
	})
	return alias
}

// SelectBuilder returns SELECT DISTINCT root.* with every join created so
// far and pred as the WHERE clause. A nil pred selects all rows.
func (b *Builder) SelectBuilder(pred any) (sq.SelectBuilder, error) {
	sel := sq.StatementBuilder.
		PlaceholderFormat(b.dialect.Placeholder).
		Select(b.root.alias + ".*").
		Distinct().
		From(b.root.table)

	for _, j := range b.joins {
		sel = sel.JoinClause(j.String())
	}

	if pred != nil {
		where, err := sqlizer(pred)
		if err != nil {
			return sel, err
		}
		sel = sel.Where(where)
	}
	return sel, nil
}

// ToSQL renders the full statement for pred
func (b *Builder) ToSQL(pred any) (string, []any, error) {
	sel, err := b.SelectBuilder(pred)
	if err != nil {
		return "", nil, err
	}
	return sel.ToSql()
}

// node is the root table or a joined table
type node struct {
	builder *Builder
	typ     reflect.Type
	table   string
	alias   string
	rel     relation
	joins   map[string]*node
}

// Type returns the Go type mapped to this table
func (n *node) Type() reflect.Type {
	return n.typ
}

// Get returns the column holding prop on this node. To-one references
// resolve to their foreign key column.
func (n *node) Get(prop *schema.PropertyDescriptor) any {
	if relationOf(prop, n.builder.registry.IsEntity) == relBelongsTo {
		return Column{Table: n.alias, Name: ownerColumn(prop)}
	}
	return Column{Table: n.alias, Name: prop.Column}
}

// Existing returns the table already joined through prop
func (n *node) Existing(prop *schema.PropertyDescriptor) (relationships.Navigator, bool) {
	child, ok := n.joins[prop.FieldName]
	if !ok {
		return nil, false
	}
	return child, true
}

// Join adds the JOIN clauses reaching prop from this table. Many-to-many
// relations go through their link table.
func (n *node) Join(prop *schema.PropertyDescriptor, hint relationships.JoinHint) relationships.Navigator {
	b := n.builder
	rel := relationOf(prop, b.registry.IsEntity)
	target := prop.ElementType()
	child := &node{
		builder: b,
		typ:     target,
		rel:     rel,
		joins:   make(map[string]*node),
	}

	switch rel {
	case relBelongsTo:
		child.table = TableName(target)
		child.alias = b.addJoin(hint.Kind, child.table,
			"%s."+primaryKey+" = "+n.alias+"."+ownerColumn(prop), hint.Fetch)
	case relHasOne, relHasMany:
		child.table = TableName(target)
		child.alias = b.addJoin(hint.Kind, child.table,
			"%s."+inverseColumn(prop)+" = "+n.alias+"."+primaryKey, hint.Fetch)
	case relManyToMany:
		link := b.addJoin(hint.Kind, throughTable(prop),
			"%s."+foreignKey(prop.OwnerType)+" = "+n.alias+"."+primaryKey, hint.Fetch)
		child.table = TableName(target)
		child.alias = b.addJoin(hint.Kind, child.table,
			"%s."+primaryKey+" = "+link+"."+foreignKey(target), hint.Fetch)
	default:
		child.table = sideTable(prop)
		child.alias = b.addJoin(hint.Kind, child.table,
			"%s."+foreignKey(prop.OwnerType)+" = "+n.alias+"."+primaryKey, hint.Fetch)
	}

	b.logger.Debug("joined table",
		zap.String("property", prop.QualifiedName),
		zap.String("table", child.table),
		zap.String("alias", child.alias),
		zap.Stringer("hint", hint),
	)
	n.joins[prop.FieldName] = child
	return child
}

// valueColumn is the column compared when the joined node itself is the
// target of a predicate
func (n *node) valueColumn() Column {
	if n.rel == relElements {
		return Column{Table: n.alias, Name: "value"}
	}
	return Column{Table: n.alias, Name: primaryKey}
}
