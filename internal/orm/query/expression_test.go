package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/searchy/internal/orm/schema"
)

func TestParseOperator(t *testing.T) {
	tests := []struct {
		in   string
		want Operator
	}{
		{"EQUALS", OpEquals},
		{"equals", OpEquals},
		{" = ", OpEquals},
		{"contains", OpContains},
		{"~*", OpIContains},
		{"GREATER_THAN", OpGreaterThan},
		{">=", OpGreaterThanOrEquals},
		{"less_than", OpLessThan},
		{"<=", OpLessThanOrEquals},
		{"in", OpIn},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			op, err := ParseOperator(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}

	_, err := ParseOperator("LIKE")
	assert.ErrorIs(t, err, ErrUnknownOperator)
}

func TestOperator_String(t *testing.T) {
	for op := OpEquals; op <= OpIn; op++ {
		parsed, err := ParseOperator(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, parsed)
	}
	assert.Equal(t, "GREATER_THAN_OR_EQUALS", OpGreaterThanOrEquals.String())
	assert.Equal(t, "UNKNOWN", Operator(99).String())
	assert.True(t, OpLessThan.IsOrdering())
	assert.False(t, OpIn.IsOrdering())
}

func TestParseKeyword(t *testing.T) {
	k, ok := ParseKeyword("current_date")
	assert.True(t, ok)
	assert.Equal(t, CurrentDate, k)

	k, ok = ParseKeyword("CURRENT_DATE_TIME")
	assert.True(t, ok)
	assert.Equal(t, CurrentDateTime, k)

	_, ok = ParseKeyword("tomorrow")
	assert.False(t, ok)

	assert.Equal(t, "CURRENT_TIME", CurrentTime.String())
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull(Null))
	assert.True(t, IsNull(&NullValue{}))
	assert.False(t, IsNull(""))
	assert.False(t, IsNull(0))
}

func TestBetween(t *testing.T) {
	assert.Equal(t,
		Logical{Operator: And, Children: []Expression{
			Comparison{Field: "height", Operator: OpGreaterThan, Value: 1},
			Comparison{Field: "height", Operator: OpLessThan, Value: 2},
		}},
		Between("height", 1, 2))
}

func TestIn_CopiesValues(t *testing.T) {
	values := []any{"a", "b"}
	c := In("firstName", values...)
	values[0] = "z"
	assert.Equal(t, []any{"a", "b"}, c.Value)
}

func TestFieldPaths(t *testing.T) {
	expr := AllOf(
		Equals("firstName", "John"),
		AnyOf(Equals("addresses.city", "Paris"), Negate(Equals("firstName", "Jack"))),
		Equals("job", nil),
	)
	assert.Equal(t, []string{"addresses.city", "firstName", "job"}, FieldPaths(expr))
	assert.Empty(t, FieldPaths(nil))
}

func TestJoinPaths(t *testing.T) {
	expr := AllOf(
		Equals("characteristics", nil),
		Equals("job.person.addresses", Null),
		In("vehicles", nil),
		GreaterThan("addresses.city", "A"),
		Equals("email", "x"),
	)
	assert.Equal(t, []string{"addresses.city", "email", "job.person"}, JoinPaths(expr))
}

func TestHasKeyword(t *testing.T) {
	assert.False(t, HasKeyword(nil))
	assert.False(t, HasKeyword(AllOf(Equals("firstName", "John"), In("lastName", "Doe", "Roe"))))
	assert.True(t, HasKeyword(Negate(Equals("birthday", CurrentDate))))
	assert.True(t, HasKeyword(AnyOf(Equals("firstName", "John"), In("createdOn", "2020-01-01", CurrentDateTime))))
	assert.False(t, HasKeyword((*Logical)(nil)))
}

func TestFormat(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	expr := AllOf(
		Equals("firstName", "John"),
		Negate(AnyOf(In("lastName", "Doe", "Roe"), Equals("job", nil))),
		GreaterThan("birthday", at),
		LessThan("createdOn", CurrentDate),
	)

	assert.Equal(t,
		`AND(EQUALS(firstName, "John"), NOT(OR(IN(lastName, ["Doe" "Roe"]), EQUALS(job, null))), `+
			`GREATER_THAN(birthday, 2024-01-02T03:04:05Z), LESS_THAN(createdOn, CURRENT_DATE))`,
		Format(expr))
	assert.Equal(t, "<nil>", Format(nil))
}

func TestValidateOperator(t *testing.T) {
	text := &schema.PropertyDescriptor{FieldName: "name", ValueType: schema.ValueString}
	number := &schema.PropertyDescriptor{FieldName: "age", ValueType: schema.ValueNumber}
	temporal := &schema.PropertyDescriptor{FieldName: "at", ValueType: schema.ValueTemporal}
	flag := &schema.PropertyDescriptor{FieldName: "active", ValueType: schema.ValueBool}

	assert.NoError(t, ValidateOperator(OpContains, text, "x"))
	assert.NoError(t, ValidateOperator(OpGreaterThan, text, "x"))
	assert.NoError(t, ValidateOperator(OpLessThan, number, 3))
	assert.NoError(t, ValidateOperator(OpEquals, temporal, CurrentDate))
	assert.NoError(t, ValidateOperator(OpEquals, flag, true))

	assert.ErrorIs(t, ValidateOperator(OpIContains, number, "3"), ErrUnsupportedOperatorForType)
	assert.ErrorIs(t, ValidateOperator(OpGreaterThanOrEquals, flag, true), ErrUnsupportedOperatorForType)
	assert.ErrorIs(t, ValidateOperator(OpEquals, number, CurrentTime), ErrUnsupportedOperatorForType)
}
