package search

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/conduit-lang/searchy/internal/orm/query"
	"github.com/conduit-lang/searchy/internal/orm/relationships"
	"github.com/conduit-lang/searchy/internal/orm/schema"
)

// ErrInvalidValue is returned when a document value does not fit the type
// of the field it is compared with
var ErrInvalidValue = errors.New("invalid value")

// Bind converts a decoded expression document into an expression rooted
// at root. Values are converted to the value type of their field.
func (s *Service) Bind(root reflect.Type, n *query.Node) (query.Expression, error) {
	root = indirect(root)
	if root == nil || !s.registry.IsEntity(root) {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEntity, root)
	}
	return n.Expression(s.binder(root))
}

// binder types raw values against the property their path targets
func (s *Service) binder(root reflect.Type) query.ValueBinder {
	return func(field string, op query.Operator, raw any) (any, error) {
		prop, err := relationships.DescribePath(s.registry, root, field)
		if err != nil {
			return nil, err
		}
		if op == query.OpContains || op == query.OpIContains {
			return raw, nil
		}

		v, err := s.convert(prop, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
		}
		return v, nil
	}
}

// convert coerces one raw value to the value type of prop
func (s *Service) convert(prop *schema.PropertyDescriptor, raw any) (any, error) {
	switch prop.ValueType {
	case schema.ValueTemporal:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case string:
			return s.converter.Convert(v)
		}
	case schema.ValueNumber:
		return number(prop.ElementType().Kind(), raw)
	case schema.ValueEntity:
		// entities compare by identifier
		return number(reflect.Int64, raw)
	case schema.ValueBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(v)
		}
	case schema.ValueString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		}
	default:
		return raw, nil
	}
	return nil, fmt.Errorf("cannot use %T as %s", raw, prop.ValueType)
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// number normalizes JSON numbers and numeric strings to int64 for integer
// fields and float64 otherwise
func number(kind reflect.Kind, raw any) (any, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		if isInteger(kind) {
			return v, nil
		}
		f = float64(v)
	case string:
		if isInteger(kind) {
			return strconv.ParseInt(v, 10, 64)
		}
		return strconv.ParseFloat(v, 64)
	default:
		return nil, fmt.Errorf("cannot use %T as number", raw)
	}

	if !isInteger(kind) {
		return f, nil
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}
