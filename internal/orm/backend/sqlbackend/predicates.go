package sqlbackend

import (
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// ErrNotSQL is returned when a predicate from another backend reaches
// this one
var ErrNotSQL = errors.New("predicate is not a SQL expression")

// sqlizer unwraps an expression built by this backend
func sqlizer(p query.Predicate) (sq.Sqlizer, error) {
	s, ok := p.(sq.Sqlizer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrNotSQL, p)
	}
	return s, nil
}

// notExpr negates a nested expression
type notExpr struct {
	inner sq.Sqlizer
}

// ToSql implements squirrel.Sqlizer
func (n notExpr) ToSql() (string, []any, error) {
	s, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + s + ")", args, nil
}

// errExpr defers a combinator error to rendering time
type errExpr struct {
	err error
}

// ToSql returns the deferred error
func (e errExpr) ToSql() (string, []any, error) {
	return "", nil, e.err
}

// column returns the qualified column a predicate compares
func (b *Builder) column(p relationships.PathInfo) (string, error) {
	switch ref := p.Ref.(type) {
	case Column:
		return ref.String(), nil
	case *node:
		return ref.valueColumn().String(), nil
	default:
		return "", fmt.Errorf("unexpected path reference %T for %s", p.Ref, p.Path)
	}
}

// ordering builds lt/lte/gt/gte comparisons. CURRENT_DATE compares
// against the bounds of today: greater means from tomorrow on, less
// means before today.
func (b *Builder) ordering(p relationships.PathInfo, op query.Operator, value any) (query.Predicate, error) {
	col, err := b.column(p)
	if err != nil {
		return nil, err
	}

	if k, ok := value.(query.Keyword); ok {
		now := b.clock()
		if k == query.CurrentDate {
			start, end := query.DayBounds(now)
			if op == query.OpGreaterThan || op == query.OpGreaterThanOrEquals {
				return sq.GtOrEq{col: end}, nil
			}
			return sq.Lt{col: start}, nil
		}
		value = now
	}

	switch op {
	case query.OpGreaterThan:
		return sq.Gt{col: value}, nil
	case query.OpGreaterThanOrEquals:
		return sq.GtOrEq{col: value}, nil
	case query.OpLessThan:
		return sq.Lt{col: value}, nil
	default:
		return sq.LtOrEq{col: value}, nil
	}
}

// Equal compares the column with a value. CURRENT_DATE matches the
// whole day.
func (b *Builder) Equal(p relationships.PathInfo, value any) (query.Predicate, error) {
	col, err := b.column(p)
	if err != nil {
		return nil, err
	}
	if k, ok := value.(query.Keyword); ok {
		now := b.clock()
		if k == query.CurrentDate {
			start, end := query.DayBounds(now)
			return sq.And{sq.GtOrEq{col: start}, sq.Lt{col: end}}, nil
		}
		return sq.Eq{col: now}, nil
	}
	return sq.Eq{col: value}, nil
}

// Like renders a LIKE pattern
func (b *Builder) Like(p relationships.PathInfo, pattern string) (query.Predicate, error) {
	col, err := b.column(p)
	if err != nil {
		return nil, err
	}
	return sq.Like{col: pattern}, nil
}

// ILike renders ILIKE where the dialect has it and LOWER() LIKE elsewhere
func (b *Builder) ILike(p relationships.PathInfo, pattern string) (query.Predicate, error) {
	col, err := b.column(p)
	if err != nil {
		return nil, err
	}
	if b.dialect.NativeILike {
		return sq.ILike{col: pattern}, nil
	}
	return sq.Like{"LOWER(" + col + ")": pattern}, nil
}

// LessThan renders <
func (b *Builder) LessThan(p relationships.PathInfo, value any) (query.Predicate, error) {
	return b.ordering(p, query.OpLessThan, value)
}

// LessThanOrEquals renders <=
func (b *Builder) LessThanOrEquals(p relationships.PathInfo, value any) (query.Predicate, error) {
	return b.ordering(p, query.OpLessThanOrEquals, value)
}

// GreaterThan renders >
func (b *Builder) GreaterThan(p relationships.PathInfo, value any) (query.Predicate, error) {
	return b.ordering(p, query.OpGreaterThan, value)
}

// GreaterThanOrEquals renders >=
func (b *Builder) GreaterThanOrEquals(p relationships.PathInfo, value any) (query.Predicate, error) {
	return b.ordering(p, query.OpGreaterThanOrEquals, value)
}

// In renders an IN list, or = ANY(array) when enabled on Postgres
func (b *Builder) In(p relationships.PathInfo, values []any) (query.Predicate, error) {
	for _, v := range values {
		if k, ok := v.(query.Keyword); ok {
			return nil, fmt.Errorf("%w: keyword %s in IN list", query.ErrInvalidOperand, k)
		}
	}
	col, err := b.column(p)
	if err != nil {
		return nil, err
	}
	if b.arrayIn && b.dialect.Name == Postgres.Name {
		return sq.Expr(col+" = ANY(?)", pq.Array(values)), nil
	}
	return sq.Eq{col: values}, nil
}

// IsNull tests a column for NULL. A to-one reference held by the target
// table is null when no target row points back.
func (b *Builder) IsNull(p relationships.PathInfo) (query.Predicate, error) {
	parent, ok := p.Parent.(*node)
	if !ok {
		return nil, fmt.Errorf("unexpected parent %T for %s", p.Parent, p.Path)
	}
	if relationOf(p.Property, b.registry.IsEntity) == relHasOne {
		return b.notExists(parent, p.Property)
	}
	col, err := b.column(p)
	if err != nil {
		return nil, err
	}
	return sq.Eq{col: nil}, nil
}

// IsEmpty tests that a collection or map has no element rows
func (b *Builder) IsEmpty(p relationships.PathInfo) (query.Predicate, error) {
	parent, ok := p.Parent.(*node)
	if !ok {
		return nil, fmt.Errorf("unexpected parent %T for %s", p.Parent, p.Path)
	}
	return b.notExists(parent, p.Property)
}

func (b *Builder) notExists(parent *node, prop *schema.PropertyDescriptor) (query.Predicate, error) {
	var table, fk string
	switch relationOf(prop, b.registry.IsEntity) {
	case relHasOne, relHasMany:
		table, fk = TableName(prop.ElementType()), inverseColumn(prop)
	case relManyToMany:
		table, fk = throughTable(prop), foreignKey(prop.OwnerType)
	case relElements:
		table, fk = sideTable(prop), foreignKey(prop.OwnerType)
	default:
		return nil, fmt.Errorf("%s is not stored in a separate table", prop)
	}
	return sq.Expr(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s sub WHERE sub.%s = %s.%s)",
		table, fk, parent.alias, primaryKey)), nil
}

// Not wraps an expression in NOT (...)
func (b *Builder) Not(p query.Predicate) query.Predicate {
	inner, err := sqlizer(p)
	if err != nil {
		return errExpr{err: err}
	}
	return notExpr{inner: inner}
}

// And joins expressions with AND
func (b *Builder) And(preds ...query.Predicate) query.Predicate {
	out := make(sq.And, 0, len(preds))
	for _, p := range preds {
		s, err := sqlizer(p)
		if err != nil {
			return errExpr{err: err}
		}
		out = append(out, s)
	}
	return out
}

// Or joins expressions with OR
func (b *Builder) Or(preds ...query.Predicate) query.Predicate {
	out := make(sq.Or, 0, len(preds))
	for _, p := range preds {
		s, err := sqlizer(p)
		if err != nil {
			return errExpr{err: err}
		}
		out = append(out, s)
	}
	return out
}

var _ query.PredicateBuilder = (*Builder)(nil)
