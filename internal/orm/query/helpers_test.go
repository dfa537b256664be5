package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
	"github.com/conduit-lang/searchy/internal/sample"
)

var personType = reflect.TypeOf(sample.Person{})

// recordingNav is a navigation node that names joins by path
type recordingNav struct {
	typ   reflect.Type
	name  string
	hint  relationships.JoinHint
	joins map[string]*recordingNav
	calls *[]string
}

func (n *recordingNav) Type() reflect.Type { return n.typ }

func (n *recordingNav) Get(prop *schema.PropertyDescriptor) any {
	return n.name + "." + prop.FieldName
}

func (n *recordingNav) Existing(prop *schema.PropertyDescriptor) (relationships.Navigator, bool) {
	j, ok := n.joins[prop.FieldName]
	if !ok {
		return nil, false
	}
	return j, true
}

func (n *recordingNav) Join(prop *schema.PropertyDescriptor, hint relationships.JoinHint) relationships.Navigator {
	child := &recordingNav{
		typ:   prop.ElementType(),
		name:  n.name + "." + prop.FieldName,
		hint:  hint,
		joins: make(map[string]*recordingNav),
		calls: n.calls,
	}
	n.joins[prop.FieldName] = child
	*n.calls = append(*n.calls, fmt.Sprintf("join(%s, %s)", child.name, hint))
	return child
}

// recordingBuilder renders every predicate as a string and logs each call
type recordingBuilder struct {
	root  *recordingNav
	calls []string
}

func newRecordingBuilder(root reflect.Type) *recordingBuilder {
	b := &recordingBuilder{}
	b.root = &recordingNav{typ: root, name: "root", joins: make(map[string]*recordingNav), calls: &b.calls}
	return b
}

func (b *recordingBuilder) Root() relationships.Navigator { return b.root }

func ref(p relationships.PathInfo) string {
	if nav, ok := p.Ref.(*recordingNav); ok {
		return nav.name
	}
	return fmt.Sprint(p.Ref)
}

func (b *recordingBuilder) leaf(name string, p relationships.PathInfo, value any) (Predicate, error) {
	var s string
	if value == nil {
		s = fmt.Sprintf("%s(%s)", name, ref(p))
	} else {
		s = fmt.Sprintf("%s(%s, %v)", name, ref(p), value)
	}
	b.calls = append(b.calls, s)
	return s, nil
}

func (b *recordingBuilder) Equal(p relationships.PathInfo, v any) (Predicate, error) {
	return b.leaf("equal", p, v)
}

func (b *recordingBuilder) Like(p relationships.PathInfo, pattern string) (Predicate, error) {
	return b.leaf("like", p, pattern)
}

func (b *recordingBuilder) ILike(p relationships.PathInfo, pattern string) (Predicate, error) {
	return b.leaf("ilike", p, pattern)
}

func (b *recordingBuilder) LessThan(p relationships.PathInfo, v any) (Predicate, error) {
	return b.leaf("lessThan", p, v)
}

func (b *recordingBuilder) LessThanOrEquals(p relationships.PathInfo, v any) (Predicate, error) {
	return b.leaf("lessThanOrEquals", p, v)
}

func (b *recordingBuilder) GreaterThan(p relationships.PathInfo, v any) (Predicate, error) {
	return b.leaf("greaterThan", p, v)
}

func (b *recordingBuilder) GreaterThanOrEquals(p relationships.PathInfo, v any) (Predicate, error) {
	return b.leaf("greaterThanOrEquals", p, v)
}

func (b *recordingBuilder) In(p relationships.PathInfo, values []any) (Predicate, error) {
	return b.leaf("in", p, values)
}

func (b *recordingBuilder) IsNull(p relationships.PathInfo) (Predicate, error) {
	return b.leaf("isNull", p, nil)
}

func (b *recordingBuilder) IsEmpty(p relationships.PathInfo) (Predicate, error) {
	return b.leaf("isEmpty", p, nil)
}

func (b *recordingBuilder) Not(p Predicate) Predicate {
	s := fmt.Sprintf("not(%v)", p)
	b.calls = append(b.calls, "not")
	return s
}

func (b *recordingBuilder) combine(name string, preds []Predicate) Predicate {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = fmt.Sprint(p)
	}
	b.calls = append(b.calls, name)
	return name + "(" + strings.Join(parts, ", ") + ")"
}

func (b *recordingBuilder) And(preds ...Predicate) Predicate { return b.combine("and", preds) }

func (b *recordingBuilder) Or(preds ...Predicate) Predicate { return b.combine("or", preds) }
