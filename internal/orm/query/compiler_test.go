package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

func compileWith(t *testing.T, chain *relationships.Chain, expr Expression) (Predicate, *recordingBuilder, error) {
	t.Helper()

	registry := schema.NewRegistry()
	graph, err := relationships.NewResolver(registry, chain).Resolve(personType, JoinPaths(expr))
	require.NoError(t, err)

	b := newRecordingBuilder(personType)
	pred, err := NewCompiler(registry).Compile(expr, graph, b)
	return pred, b, err
}

func compile(t *testing.T, expr Expression) (Predicate, *recordingBuilder, error) {
	t.Helper()
	return compileWith(t, nil, expr)
}

func TestCompile_Comparisons(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		want string
	}{
		{"equals", Equals("firstName", "John"), "equal(root.firstName, John)"},
		{"contains", Contains("lastName", "oe"), "like(root.lastName, %oe%)"},
		{"contains wildcard", Contains("lastName", "D*e"), "like(root.lastName, %D%e%)"},
		{"icontains", IContains("email", "DOE"), "ilike(root.email, %doe%)"},
		{"greater than", GreaterThan("height", 1.8), "greaterThan(root.height, 1.8)"},
		{"greater than or equals", GreaterThanOrEquals("height", 1.8), "greaterThanOrEquals(root.height, 1.8)"},
		{"less than", LessThan("weight", 80), "lessThan(root.weight, 80)"},
		{"less than or equals", LessThanOrEquals("weight", 80), "lessThanOrEquals(root.weight, 80)"},
		{"in", In("firstName", "John", "Jane"), "in(root.firstName, [John Jane])"},
		{"nested", Equals("addresses.city", "Paris"), "equal(root.addresses.city, Paris)"},
		{"scalar collection", Equals("nickNames", "Johnny"), "equal(root.nickNames, Johnny)"},
		{"keyword", Equals("birthday", CurrentDate), "equal(root.birthday, CURRENT_DATE)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, _, err := compile(t, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred)
		})
	}
}

func TestCompile_BetweenIsAndOfBounds(t *testing.T) {
	lo := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	hi := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	between, b1, err := compile(t, Between("birthday", lo, hi))
	require.NoError(t, err)
	expanded, b2, err := compile(t, AllOf(GreaterThan("birthday", lo), LessThan("birthday", hi)))
	require.NoError(t, err)

	assert.Equal(t, expanded, between)
	assert.Equal(t, b2.calls, b1.calls)
	assert.Equal(t, []string{
		"greaterThan(root.birthday, " + lo.String() + ")",
		"lessThan(root.birthday, " + hi.String() + ")",
		"and",
	}, b1.calls)
}

func TestCompile_SingletonInIsEquals(t *testing.T) {
	in, b1, err := compile(t, In("addresses.city", "Paris"))
	require.NoError(t, err)
	eq, b2, err := compile(t, Equals("addresses.city", "Paris"))
	require.NoError(t, err)

	assert.Equal(t, eq, in)
	assert.Equal(t, b2.calls, b1.calls)
	assert.Equal(t, "equal(root.addresses.city, Paris)", in)
}

func TestCompile_KeywordsInInList(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		want string
	}{
		{
			"literals and keyword",
			In("birthday", "2020-01-01", CurrentDate, "2021-01-01"),
			"or(in(root.birthday, [2020-01-01 2021-01-01]), equal(root.birthday, CURRENT_DATE))",
		},
		{
			"one literal",
			In("birthday", "2020-01-01", CurrentDate),
			"or(equal(root.birthday, 2020-01-01), equal(root.birthday, CURRENT_DATE))",
		},
		{
			"keywords only",
			In("createdOn", CurrentDate, CurrentDateTime),
			"or(equal(root.createdOn, CURRENT_DATE), equal(root.createdOn, CURRENT_DATE_TIME))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, _, err := compile(t, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred)
		})
	}
}

func TestCompile_EmptyIn(t *testing.T) {
	_, _, err := compile(t, In("firstName"))
	assert.ErrorIs(t, err, ErrEmptyInList)

	_, _, err = compile(t, Comparison{Field: "firstName", Operator: OpIn, Value: "John"})
	assert.ErrorIs(t, err, ErrInvalidOperand)
}

func TestCompile_DoubleNegation(t *testing.T) {
	pred, b, err := compile(t, Negate(Negate(Equals("firstName", "John"))))
	require.NoError(t, err)

	assert.Equal(t, "not(not(equal(root.firstName, John)))", pred)
	assert.Equal(t, []string{"equal(root.firstName, John)", "not", "not"}, b.calls)
}

func TestCompile_LogicalFoldsLeftToRight(t *testing.T) {
	a := Equals("firstName", "A")
	bb := Equals("lastName", "B")
	c := Equals("email", "C")

	pred, _, err := compile(t, AllOf(a, bb, c))
	require.NoError(t, err)
	assert.Equal(t, "and(and(equal(root.firstName, A), equal(root.lastName, B)), equal(root.email, C))", pred)

	pred, _, err = compile(t, AnyOf(a, bb, c))
	require.NoError(t, err)
	assert.Equal(t, "or(or(equal(root.firstName, A), equal(root.lastName, B)), equal(root.email, C))", pred)

	pred, b, err := compile(t, AnyOf(a))
	require.NoError(t, err)
	assert.Equal(t, "equal(root.firstName, A)", pred)
	assert.NotContains(t, b.calls, "or")

	_, _, err = compile(t, AllOf())
	assert.ErrorIs(t, err, ErrEmptyLogical)
}

func TestCompile_NullSemantics(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
		want string
	}{
		{"map", Equals("characteristics", nil), "isEmpty(root.characteristics)"},
		{"map explicit null", Equals("characteristics", Null), "isEmpty(root.characteristics)"},
		{"set", Equals("nickNames", Null), "isEmpty(root.nickNames)"},
		{"entity list", Equals("addresses", nil), "isEmpty(root.addresses)"},
		{"scalar", Equals("email", nil), "isNull(root.email)"},
		{"entity", Equals("job", nil), "isNull(root.job)"},
		{"nested scalar", Equals("addresses.city", nil), "isNull(root.addresses.city)"},
		{"singleton in", In("characteristics", nil), "isEmpty(root.characteristics)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, b, err := compile(t, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred)
			for _, call := range b.calls {
				assert.NotContains(t, call, "equal(")
			}
		})
	}

	_, _, err := compile(t, GreaterThan("height", nil))
	assert.ErrorIs(t, err, ErrInvalidOperand)
}

func TestCompile_MapNullIsNeverJoined(t *testing.T) {
	_, b, err := compileWith(t, nil, Equals("characteristics", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"isEmpty(root.characteristics)"}, b.calls)
}

func TestCompile_UnsupportedOperatorForType(t *testing.T) {
	tests := []struct {
		name string
		expr Expression
	}{
		{"contains on number", Contains("height", "1")},
		{"icontains on temporal", IContains("birthday", "2020")},
		{"ordering on entity", GreaterThan("job", 1)},
		{"ordering on entity list", LessThan("addresses", 1)},
		{"keyword on string", Equals("firstName", CurrentDate)},
		{"keyword in list on string", In("firstName", CurrentDate, "x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, b, err := compile(t, tt.expr)
			require.Error(t, err)
			assert.True(t, IsUnsupportedOperator(err))

			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.expr.(Comparison).Field, ce.Path)
			assert.Equal(t, Format(tt.expr), ce.Fragment)

			for _, call := range b.calls {
				assert.Contains(t, call, "join(")
			}
		})
	}
}

func TestCompile_InvalidFieldPath(t *testing.T) {
	registry := schema.NewRegistry()
	graph := relationships.NewJoinGraph(personType)

	_, err := NewCompiler(registry).Compile(Equals("firstName.first", "J"), graph, newRecordingBuilder(personType))
	require.Error(t, err)
	assert.True(t, relationships.IsInvalidFieldPath(err))

	_, err = NewCompiler(registry).Compile(Equals("salary", 1), graph, newRecordingBuilder(personType))
	assert.True(t, relationships.IsInvalidFieldPath(err))
}

func TestCompile_InvalidExpression(t *testing.T) {
	registry := schema.NewRegistry()
	graph := relationships.NewJoinGraph(personType)

	_, err := NewCompiler(registry).Compile(nil, graph, newRecordingBuilder(personType))
	assert.ErrorIs(t, err, ErrInvalidExpression)

	_, err = NewCompiler(registry).Compile(Not{}, graph, newRecordingBuilder(personType))
	assert.ErrorIs(t, err, ErrInvalidExpression)

	typedNils := []Expression{(*Logical)(nil), (*Comparison)(nil), (*Not)(nil), AllOf(Equals("firstName", "J"), (*Not)(nil))}
	for _, expr := range typedNils {
		assert.NotPanics(t, func() {
			_, err = NewCompiler(registry).Compile(expr, graph, newRecordingBuilder(personType))
			assert.ErrorIs(t, err, ErrInvalidExpression, Format(expr))
			JoinPaths(expr)
		})
	}
	assert.Equal(t, "<nil>", Format((*Logical)(nil)))
	assert.Equal(t, "NOT(<nil>)", Format(Not{Child: (*Comparison)(nil)}))
}

func TestCompile_JoinsFollowTheGraph(t *testing.T) {
	expr := AllOf(Equals("addresses.city", "Paris"), Equals("addresses.country", "FR"))

	t.Run("default chain", func(t *testing.T) {
		_, b, err := compile(t, expr)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"join(root.addresses, INNER)",
			"equal(root.addresses.city, Paris)",
			"equal(root.addresses.country, FR)",
			"and",
		}, b.calls)
	})

	t.Run("fetch chain", func(t *testing.T) {
		_, b, err := compileWith(t, relationships.FetchAllChain(), expr)
		require.NoError(t, err)
		assert.Equal(t, "join(root.addresses, LEFT FETCH)", b.calls[0])
	})
}

func TestCompile_PointerNodes(t *testing.T) {
	eq := Equals("firstName", "John")
	pred, _, err := compile(t, &Not{Child: &eq})
	require.NoError(t, err)
	assert.Equal(t, "not(equal(root.firstName, John))", pred)
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2024, 2, 29, 15, 4, 5, 6, loc)

	start, end := DayBounds(now)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, loc), start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, loc), end)

	assert.Equal(t, start, KeywordTime(CurrentDate, now))
	assert.Equal(t, now, KeywordTime(CurrentDateTime, now))
	assert.Equal(t, now, KeywordTime(CurrentTime, now))
}
