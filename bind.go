// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Gergilcan/wirej/schema"
)

var (
	valuerType  = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
	bytesType   = reflect.TypeOf([]byte(nil))
)

// isPrimitiveType reports whether values of t are bound as a single query
// argument.
func isPrimitiveType(t reflect.Type) bool {
	if t.Implements(valuerType) {
		return true
	}
	switch t {
	case timeType, decimalType, bytesType:
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Pointer:
		return isPrimitiveType(t.Elem())
	}
	return false
}

// isPrimitive reports whether v is bound as a single query argument. nil is
// primitive and binds NULL.
func isPrimitive(v any) bool {
	if v == nil {
		return true
	}
	return isPrimitiveType(reflect.TypeOf(v))
}

// isList reports whether v is a slice or array bound element by element.
func isList(v any) bool {
	if v == nil || isPrimitive(v) {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// listValue returns the elements of v if v is a slice or array of primitive
// values, which are bound as a list of arguments.
func listValue(v any) ([]any, bool) {
	if !isList(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	elem := rv.Type().Elem()
	if elem.Kind() != reflect.Interface && !isPrimitiveType(elem) {
		return nil, false
	}
	elems := make([]any, rv.Len())
	for i := range elems {
		e := rv.Index(i).Interface()
		if !isPrimitive(e) {
			return nil, false
		}
		elems[i] = e
	}
	return elems, true
}

// paramSetter is the part of a Statement used to bind arguments.
type paramSetter interface {
	SetParameter(name string, value any)
}

// binder binds the arguments of one invocation of an operation.
type binder struct {
	op       *Operation
	entities func(t reflect.Type) (*schema.Entity, bool)
}

func (b *binder) errorf(p Param, format string, args ...any) error {
	return &BindingError{Operation: b.op.Name, Param: p.Name, Reason: fmt.Sprintf(format, args...)}
}

// entityFor returns the entity used to expand values of type t.
func (b *binder) entityFor(p Param, t reflect.Type) (*schema.Entity, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if p.Entity != nil {
		if p.Entity.Type != t {
			return nil, b.errorf(p, "need %s, got %s", p.Entity.Name, t)
		}
		return p.Entity, nil
	}
	if e, ok := b.entities(t); ok {
		return e, nil
	}
	return nil, b.errorf(p, "no entity registered for %s", t)
}

// bind sets the parameters for the argument v of p. Primitive values and
// lists of primitives are bound under the parameter name. Composite values
// are expanded into one parameter per entity field, and a list of composite
// values binds one list per entity field.
func (b *binder) bind(s paramSetter, p Param, v any) error {
	if isPrimitive(v) {
		s.SetParameter(p.paramName(), v)
		return nil
	}
	if _, ok := listValue(v); ok {
		s.SetParameter(p.paramName(), v)
		return nil
	}
	if isList(v) {
		return b.bindColumns(s, p, reflect.ValueOf(v))
	}
	e, err := b.entityFor(p, reflect.TypeOf(v))
	if err != nil {
		return err
	}
	bindings, err := e.Values(v)
	if err != nil {
		return b.errorf(p, "%v", err)
	}
	for _, bv := range bindings {
		s.SetParameter(bv.Name, bv.Value)
	}
	return nil
}

// bindColumns expands a list of composite values column by column: every
// entity field is bound to the list of its values.
func (b *binder) bindColumns(s paramSetter, p Param, list reflect.Value) error {
	e, err := b.entityFor(p, list.Type().Elem())
	if err != nil {
		return err
	}
	columns := map[string][]any{}
	for _, f := range e.Fields() {
		columns[f.ParamName()] = make([]any, 0, list.Len())
	}
	for i := 0; i < list.Len(); i++ {
		bindings, err := e.Values(list.Index(i).Interface())
		if err != nil {
			return b.errorf(p, "element %d: %v", i, err)
		}
		for _, bv := range bindings {
			columns[bv.Name] = append(columns[bv.Name], bv.Value)
		}
	}
	for name, values := range columns {
		s.SetParameter(name, values)
	}
	return nil
}
