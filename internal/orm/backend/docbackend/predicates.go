package docbackend

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/relationships"
)

// ErrNotDocument is returned when a predicate from another backend
// reaches this one
var ErrNotDocument = errors.New("predicate is not a document filter")

// errFilter defers a combinator error to pipeline rendering
type errFilter struct {
	err error
}

// document unwraps a filter built by this backend
func document(p query.Predicate) (bson.D, error) {
	switch d := p.(type) {
	case bson.D:
		return d, nil
	case errFilter:
		return nil, d.err
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotDocument, p)
	}
}

// field returns the document path a predicate compares
func (b *Builder) field(p relationships.PathInfo) (string, error) {
	switch ref := p.Ref.(type) {
	case Field:
		return string(ref), nil
	case *node:
		return string(ref.valueField()), nil
	default:
		return "", fmt.Errorf("unexpected path reference %T for %s", p.Ref, p.Path)
	}
}

func cond(field string, op string, value any) bson.D {
	return bson.D{{Key: field, Value: bson.D{{Key: op, Value: value}}}}
}

// likeRegex translates a % wildcard pattern into an anchored regex
func likeRegex(pattern string) string {
	parts := strings.Split(pattern, "%")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}

func (b *Builder) ordering(p relationships.PathInfo, op query.Operator, value any) (query.Predicate, error) {
	field, err := b.field(p)
	if err != nil {
		return nil, err
	}

	if k, ok := value.(query.Keyword); ok {
		now := b.clock()
		if k == query.CurrentDate {
			start, end := query.DayBounds(now)
			if op == query.OpGreaterThan || op == query.OpGreaterThanOrEquals {
				return cond(field, "$gte", end), nil
			}
			return cond(field, "$lt", start), nil
		}
		value = now
	}

	switch op {
	case query.OpGreaterThan:
		return cond(field, "$gt", value), nil
	case query.OpGreaterThanOrEquals:
		return cond(field, "$gte", value), nil
	case query.OpLessThan:
		return cond(field, "$lt", value), nil
	default:
		return cond(field, "$lte", value), nil
	}
}

// Equal matches the field against a value. CURRENT_DATE matches the
// whole day.
func (b *Builder) Equal(p relationships.PathInfo, value any) (query.Predicate, error) {
	field, err := b.field(p)
	if err != nil {
		return nil, err
	}
	if k, ok := value.(query.Keyword); ok {
		now := b.clock()
		if k == query.CurrentDate {
			start, end := query.DayBounds(now)
			return bson.D{{Key: field, Value: bson.D{
				{Key: "$gte", Value: start},
				{Key: "$lt", Value: end},
			}}}, nil
		}
		value = now
	}
	return cond(field, "$eq", value), nil
}

// Like matches a % wildcard pattern as an anchored regex
func (b *Builder) Like(p relationships.PathInfo, pattern string) (query.Predicate, error) {
	field, err := b.field(p)
	if err != nil {
		return nil, err
	}
	return cond(field, "$regex", likeRegex(pattern)), nil
}

// ILike is the case-insensitive form of Like
func (b *Builder) ILike(p relationships.PathInfo, pattern string) (query.Predicate, error) {
	field, err := b.field(p)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: field, Value: bson.D{
		{Key: "$regex", Value: likeRegex(pattern)},
		{Key: "$options", Value: "i"},
	}}}, nil
}

// LessThan renders $lt
func (b *Builder) LessThan(p relationships.PathInfo, value any) (query.Predicate, error) {
	return b.ordering(p, query.OpLessThan, value)
}

// LessThanOrEquals renders $lte
func (b *Builder) LessThanOrEquals(p relationships.PathInfo, value any) (query.Predicate, error) {
	return b.ordering(p, query.OpLessThanOrEquals, value)
}

// GreaterThan renders $gt
func (b *Builder) GreaterThan(p relationships.PathInfo, value any) (query.Predicate, error) {
	return b.ordering(p, query.OpGreaterThan, value)
}

// GreaterThanOrEquals renders $gte
func (b *Builder) GreaterThanOrEquals(p relationships.PathInfo, value any) (query.Predicate, error) {
	return b.ordering(p, query.OpGreaterThanOrEquals, value)
}

// In renders $in over literal values only
func (b *Builder) In(p relationships.PathInfo, values []any) (query.Predicate, error) {
	for _, v := range values {
		if k, ok := v.(query.Keyword); ok {
			return nil, fmt.Errorf("%w: keyword %s in IN list", query.ErrInvalidOperand, k)
		}
	}
	field, err := b.field(p)
	if err != nil {
		return nil, err
	}
	return cond(field, "$in", bson.A(values)), nil
}

// IsNull matches documents where the field is null or missing
func (b *Builder) IsNull(p relationships.PathInfo) (query.Predicate, error) {
	field, err := b.field(p)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: field, Value: nil}}, nil
}

// IsEmpty matches documents where the array is missing, null or empty.
// A joined node is tested as a whole, not through its value field.
func (b *Builder) IsEmpty(p relationships.PathInfo) (query.Predicate, error) {
	field, err := b.field(p)
	if err != nil {
		return nil, err
	}
	if n, ok := p.Ref.(*node); ok {
		field = n.base
	}
	return bson.D{{Key: "$or", Value: bson.A{
		cond(field, "$exists", false),
		bson.D{{Key: field, Value: nil}},
		cond(field, "$size", 0),
	}}}, nil
}

// Not negates a filter with $nor
func (b *Builder) Not(p query.Predicate) query.Predicate {
	d, err := document(p)
	if err != nil {
		return errFilter{err: err}
	}
	return bson.D{{Key: "$nor", Value: bson.A{d}}}
}

func (b *Builder) combine(op string, preds []query.Predicate) query.Predicate {
	children := make(bson.A, 0, len(preds))
	for _, p := range preds {
		d, err := document(p)
		if err != nil {
			return errFilter{err: err}
		}
		children = append(children, d)
	}
	return bson.D{{Key: op, Value: children}}
}

// And combines filters with $and
func (b *Builder) And(preds ...query.Predicate) query.Predicate {
	return b.combine("$and", preds)
}

// Or combines filters with $or
func (b *Builder) Or(preds ...query.Predicate) query.Predicate {
	return b.combine("$or", preds)
}

var _ query.PredicateBuilder = (*Builder)(nil)
