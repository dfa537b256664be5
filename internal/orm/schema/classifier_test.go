package schema

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/conduit-lang/searchy/internal/sample"
)

type nilCollection struct{}

func (nilCollection) ElementType() reflect.Type { return nil }

type valueObject struct {
	Label string
}

func TestElementKind_String(t *testing.T) {
	tests := []struct {
		kind ElementKind
		want string
	}{
		{KindScalar, "SCALAR"},
		{KindEntity, "ENTITY"},
		{KindList, "LIST"},
		{KindSet, "SET"},
		{KindMap, "MAP"},
		{KindCollection, "COLLECTION"},
		{KindArray, "ARRAY"},
		{ElementKind(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestElementKind_Navigable(t *testing.T) {
	assert.True(t, KindEntity.IsNavigable())
	assert.True(t, KindMap.IsNavigable())
	assert.True(t, KindCollection.IsNavigable())
	assert.False(t, KindArray.IsNavigable())
	assert.False(t, KindScalar.IsNavigable())
	assert.False(t, KindEntity.IsContainer())
}

func TestClassify(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name  string
		value any
		want  ElementKind
	}{
		{"string", "", KindScalar},
		{"int pointer", new(int), KindScalar},
		{"time", time.Time{}, KindScalar},
		{"bytes", []byte{}, KindScalar},
		{"raw json", json.RawMessage{}, KindScalar},
		{"plain struct", valueObject{}, KindScalar},
		{"entity", sample.Person{}, KindEntity},
		{"entity pointer", &sample.Person{}, KindEntity},
		{"string slice", []string{}, KindList},
		{"entity slice", []*sample.Address{}, KindList},
		{"struct set", map[string]struct{}{}, KindSet},
		{"bool set", map[int]bool{}, KindSet},
		{"entity set", map[*sample.Address]struct{}{}, KindSet},
		{"map", map[string]string{}, KindMap},
		{"array", [3]int{}, KindArray},
		{"custom collection", sample.FeatureSet{}, KindCollection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(reflect.TypeOf(tt.value), r.IsEntity))
			assert.Equal(t, tt.want, r.Classify(reflect.TypeOf(tt.value)))
		})
	}
}

func TestClassify_EntityTakesPriority(t *testing.T) {
	type Tags []string

	marker := NewTypeSetMarker("explicit", Tags{})
	r := NewRegistry(WithMarkers(marker))

	assert.Equal(t, KindEntity, r.Classify(reflect.TypeOf(Tags{})))
	assert.Equal(t, KindList, r.Classify(reflect.TypeOf([]string{})))
}

func TestClassify_NilType(t *testing.T) {
	assert.Equal(t, KindScalar, Classify(nil, nil))
}

func TestParameterizedTypes(t *testing.T) {
	assert.Equal(t, []reflect.Type{reflect.TypeOf("")}, parameterizedTypes(reflect.TypeOf([]string{}), KindList))
	assert.Equal(t, []reflect.Type{reflect.TypeOf(0)}, parameterizedTypes(reflect.TypeOf(map[int]bool{}), KindSet))
	assert.Equal(t,
		[]reflect.Type{reflect.TypeOf(""), reflect.TypeOf(0.0)},
		parameterizedTypes(reflect.TypeOf(map[string]float64{}), KindMap))
	assert.Equal(t,
		[]reflect.Type{reflect.TypeOf(&sample.Feature{})},
		parameterizedTypes(reflect.TypeOf(sample.FeatureSet{}), KindCollection))
	assert.Nil(t, parameterizedTypes(reflect.TypeOf([2]int{}), KindArray))
	assert.Nil(t, parameterizedTypes(reflect.TypeOf(nilCollection{}), KindCollection)[0])
}

func TestValueType(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name  string
		value any
		want  ValueType
	}{
		{"string", "", ValueString},
		{"int", 0, ValueNumber},
		{"uint8", uint8(0), ValueNumber},
		{"float pointer", new(float64), ValueNumber},
		{"bool", false, ValueBool},
		{"time", time.Time{}, ValueTemporal},
		{"entity", sample.Job{}, ValueEntity},
		{"array", [2]string{}, ValueArray},
		{"struct", valueObject{}, ValueComparable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, valueTypeOf(reflect.TypeOf(tt.value), r.IsEntity))
		})
	}

	assert.True(t, ValueTemporal.Orderable())
	assert.True(t, ValueString.Textual())
	assert.False(t, ValueBool.Orderable())
	assert.False(t, ValueNumber.Textual())
}
