package relationships

import (
	"reflect"

	"github.com/conduit-lang/searchy/internal/orm/schema"
	"github.com/conduit-lang/searchy/internal/sample"
)

var (
	personType  = reflect.TypeOf(sample.Person{})
	addressType = reflect.TypeOf(sample.Address{})
	vehicleType = reflect.TypeOf(sample.Vehicle{})
	featureType = reflect.TypeOf(sample.Feature{})
	jobType     = reflect.TypeOf(sample.Job{})

	travellerType = reflect.TypeOf(traveller{})
)

type spot struct {
	City   string
	Rating int
}

type traveller struct {
	ID    int64
	Spots map[string]spot
	Tags  map[string]string
}

func (traveller) TableName() string { return "travellers" }

// fakeNav records navigation calls
type fakeNav struct {
	typ   reflect.Type
	name  string
	hint  JoinHint
	joins map[string]*fakeNav
	log   *[]string
}

func newFakeRoot(t reflect.Type) *fakeNav {
	var log []string
	return &fakeNav{typ: t, name: "root", joins: make(map[string]*fakeNav), log: &log}
}

func (n *fakeNav) Type() reflect.Type { return n.typ }

func (n *fakeNav) Get(prop *schema.PropertyDescriptor) any {
	ref := n.name + "." + prop.FieldName
	*n.log = append(*n.log, "get "+ref)
	return ref
}

func (n *fakeNav) Existing(prop *schema.PropertyDescriptor) (Navigator, bool) {
	j, ok := n.joins[prop.FieldName]
	if !ok {
		return nil, false
	}
	return j, true
}

func (n *fakeNav) Join(prop *schema.PropertyDescriptor, hint JoinHint) Navigator {
	child := &fakeNav{
		typ:   prop.ElementType(),
		name:  n.name + "." + prop.FieldName,
		hint:  hint,
		joins: make(map[string]*fakeNav),
		log:   n.log,
	}
	n.joins[prop.FieldName] = child
	*n.log = append(*n.log, "join "+child.name+" "+hint.String())
	return child
}

func (n *fakeNav) calls() []string {
	return *n.log
}

func describe(r *schema.Registry, owner reflect.Type, field string) *schema.PropertyDescriptor {
	desc, err := r.Describe(owner, field)
	if err != nil {
		panic(err)
	}
	return desc
}
