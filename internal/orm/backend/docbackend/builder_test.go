package docbackend

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
	"github.com/conduit-lang/searchy/internal/sample"
)

var (
	personType    = reflect.TypeOf(sample.Person{})
	travellerType = reflect.TypeOf(traveller{})
)

type spot struct {
	City   string
	Rating int
}

type traveller struct {
	ID    int64
	Spots map[string]spot
}

func (traveller) CollectionName() string { return "travellers" }

func compile(t *testing.T, b query.PredicateBuilder, registry *schema.Registry, expr query.Expression) query.Predicate {
	t.Helper()

	graph, err := relationships.NewResolver(registry, nil).Resolve(personType, query.JoinPaths(expr))
	require.NoError(t, err)

	pred, err := query.NewCompiler(registry).Compile(expr, graph, b)
	require.NoError(t, err)
	return pred
}

func pipeline(t *testing.T, expr query.Expression, opts ...Option) bson.A {
	t.Helper()

	registry := schema.NewRegistry()
	b, err := NewBuilder(registry, personType, opts...)
	require.NoError(t, err)

	out, err := b.Pipeline(compile(t, b, registry, expr))
	require.NoError(t, err)
	return out
}

func match(filter bson.D) bson.D {
	return bson.D{{Key: "$match", Value: filter}}
}

func eq(field string, v any) bson.D {
	return bson.D{{Key: field, Value: bson.D{{Key: "$eq", Value: v}}}}
}

func TestBuilder_Filters(t *testing.T) {
	tests := []struct {
		name string
		expr query.Expression
		want bson.D
	}{
		{"equals", query.Equals("firstName", "John"), eq("firstName", "John")},
		{"embedded", query.Equals("addresses.city", "Paris"), eq("addresses.city", "Paris")},
		{"embedded entity", query.Equals("job.title", "Engineer"), eq("job.title", "Engineer")},
		{"scalar set", query.Equals("nickNames", "Johnny"), eq("nickNames", "Johnny")},
		{"map value", query.Equals("characteristics", "tall"), eq("characteristics.v", "tall")},
		{"map key segment", query.Equals("characteristics.key", "eyes"), eq("characteristics.k", "eyes")},
		{"map value segment", query.Equals("characteristics.value", "tall"), eq("characteristics.v", "tall")},
		{
			"contains",
			query.Contains("lastName", "o*e."),
			bson.D{{Key: "lastName", Value: bson.D{{Key: "$regex", Value: `^.*o.*e\..*$`}}}},
		},
		{
			"icontains",
			query.IContains("email", "DOE"),
			bson.D{{Key: "email", Value: bson.D{{Key: "$regex", Value: "^.*doe.*$"}, {Key: "$options", Value: "i"}}}},
		},
		{
			"in",
			query.In("firstName", "John", "Jane"),
			bson.D{{Key: "firstName", Value: bson.D{{Key: "$in", Value: bson.A{"John", "Jane"}}}}},
		},
		{
			"between",
			query.Between("height", 1, 2),
			bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "height", Value: bson.D{{Key: "$gt", Value: 1}}}},
				bson.D{{Key: "height", Value: bson.D{{Key: "$lt", Value: 2}}}},
			}}},
		},
		{
			"not",
			query.Negate(query.Equals("firstName", "John")),
			bson.D{{Key: "$nor", Value: bson.A{eq("firstName", "John")}}},
		},
		{
			"or",
			query.AnyOf(query.Equals("firstName", "A"), query.LessThanOrEquals("weight", 80)),
			bson.D{{Key: "$or", Value: bson.A{
				eq("firstName", "A"),
				bson.D{{Key: "weight", Value: bson.D{{Key: "$lte", Value: 80}}}},
			}}},
		},
		{"null", query.Equals("job", nil), bson.D{{Key: "job", Value: nil}}},
		{
			"empty map",
			query.Equals("characteristics", nil),
			bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "characteristics", Value: bson.D{{Key: "$exists", Value: false}}}},
				bson.D{{Key: "characteristics", Value: nil}},
				bson.D{{Key: "characteristics", Value: bson.D{{Key: "$size", Value: 0}}}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, bson.A{match(tt.want)}, pipeline(t, tt.expr))
		})
	}
}

func TestBuilder_MapOfStructs(t *testing.T) {
	registry := schema.NewRegistry()
	b, err := NewBuilder(registry, travellerType)
	require.NoError(t, err)

	expr := query.AllOf(
		query.Equals("spots.key", "home"),
		query.AnyOf(query.Equals("spots.city", "Paris"), query.GreaterThan("spots.value.rating", 3)),
	)
	graph, err := relationships.NewResolver(registry, nil).Resolve(travellerType, query.JoinPaths(expr))
	require.NoError(t, err)
	pred, err := query.NewCompiler(registry).Compile(expr, graph, b)
	require.NoError(t, err)

	got, err := b.Pipeline(pred)
	require.NoError(t, err)
	assert.Equal(t, bson.A{match(bson.D{{Key: "$and", Value: bson.A{
		eq("spots.k", "home"),
		bson.D{{Key: "$or", Value: bson.A{
			eq("spots.v.city", "Paris"),
			bson.D{{Key: "spots.v.rating", Value: bson.D{{Key: "$gt", Value: 3}}}},
		}}},
	}}})}, got)
}

func TestBuilder_Lookup(t *testing.T) {
	got := pipeline(t, query.Equals("vehicles.brand", "VW"))

	assert.Equal(t, bson.A{
		bson.D{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "vehicles"},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "personId"},
			{Key: "as", Value: "vehicles"},
		}}},
		match(bson.D{{Key: "vehicles", Value: bson.D{{Key: "$ne", Value: bson.A{}}}}}),
		match(eq("vehicles.brand", "VW")),
	}, got)
}

func TestBuilder_LeftLookupKeepsUnmatched(t *testing.T) {
	registry := schema.NewRegistry()
	b, err := NewBuilder(registry, personType)
	require.NoError(t, err)

	expr := query.Equals("vehicles.brand", "VW")
	graph, err := relationships.NewResolver(registry, relationships.FetchAllChain()).Resolve(personType, query.JoinPaths(expr))
	require.NoError(t, err)
	pred, err := query.NewCompiler(registry).Compile(expr, graph, b)
	require.NoError(t, err)

	got, err := b.Pipeline(pred)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "$lookup", got[0].(bson.D)[0].Key)
}

func TestBuilder_Keywords(t *testing.T) {
	now := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)
	start := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC)
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := WithClock(func() time.Time { return now })

	tests := []struct {
		name string
		expr query.Expression
		want bson.D
	}{
		{
			"today",
			query.Equals("birthday", query.CurrentDate),
			bson.D{{Key: "birthday", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lt", Value: end}}}},
		},
		{"after today", query.GreaterThan("birthday", query.CurrentDate), bson.D{{Key: "birthday", Value: bson.D{{Key: "$gte", Value: end}}}}},
		{"before today", query.LessThanOrEquals("birthday", query.CurrentDate), bson.D{{Key: "birthday", Value: bson.D{{Key: "$lt", Value: start}}}}},
		{"now", query.Equals("createdOn", query.CurrentDateTime), eq("createdOn", now)},
		{"before now", query.LessThan("createdOn", query.CurrentTime), bson.D{{Key: "createdOn", Value: bson.D{{Key: "$lt", Value: now}}}}},
		{
			"today in list",
			query.In("birthday", past, query.CurrentDate),
			bson.D{{Key: "$or", Value: bson.A{
				eq("birthday", past),
				bson.D{{Key: "birthday", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lt", Value: end}}}},
			}}},
		},
		{
			"today among literals",
			query.In("birthday", past, end, query.CurrentDate),
			bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "birthday", Value: bson.D{{Key: "$in", Value: bson.A{past, end}}}}},
				bson.D{{Key: "birthday", Value: bson.D{{Key: "$gte", Value: start}, {Key: "$lt", Value: end}}}},
			}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, bson.A{match(tt.want)}, pipeline(t, tt.expr, clock))
		})
	}
}

func TestBuilder_ForeignPredicate(t *testing.T) {
	b, err := NewBuilder(schema.NewRegistry(), personType)
	require.NoError(t, err)

	_, err = b.Pipeline("x")
	assert.ErrorIs(t, err, ErrNotDocument)

	_, err = b.Pipeline(b.Or(bson.D{}, "x"))
	assert.ErrorIs(t, err, ErrNotDocument)

	got, err := b.Pipeline(nil)
	require.NoError(t, err)
	assert.Equal(t, bson.A{match(bson.D{})}, got)
}

func TestBuilder_InRejectsKeywords(t *testing.T) {
	b, err := NewBuilder(schema.NewRegistry(), personType)
	require.NoError(t, err)

	_, err = b.In(relationships.PathInfo{Path: "birthday"}, []any{query.CurrentTime})
	assert.ErrorIs(t, err, query.ErrInvalidOperand)
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "persons", CollectionName(personType))
	assert.Equal(t, "line_items", CollectionName(reflect.TypeOf(lineItem{})))
}

type lineItem struct{}

type fakeFinder struct {
	collection string
	pipeline   bson.A
	docs       []bson.M
	err        error
}

func (f *fakeFinder) Aggregate(_ context.Context, collection string, pipeline bson.A) ([]bson.M, error) {
	f.collection = collection
	f.pipeline = pipeline
	return f.docs, f.err
}

func TestExecutor(t *testing.T) {
	registry := schema.NewRegistry()
	finder := &fakeFinder{docs: []bson.M{{"_id": 1, "firstName": "John"}}}
	e := NewExecutor(finder, registry, nil)

	b, err := e.NewBuilder(personType)
	require.NoError(t, err)
	pred := compile(t, b, registry, query.Equals("firstName", "John"))

	rows, err := e.Execute(context.Background(), b, pred)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"_id": 1, "firstName": "John"}}, rows)
	assert.Equal(t, "persons", finder.collection)
	assert.Equal(t, bson.A{match(eq("firstName", "John"))}, finder.pipeline)

	finder.err = errors.New("no reachable servers")
	_, err = e.Execute(context.Background(), b, pred)
	assert.ErrorIs(t, err, finder.err)
}
