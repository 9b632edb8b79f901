// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

// Field represents a single field of an entity.
type Field struct {
	// Name is the name used for the field in filter and sort expressions.
	Name string

	// GoName is the name of the struct field. It is empty for fields
	// declared with New.
	GoName string

	// Alias is the optional column alias of the field.
	Alias string

	// index locates the field in its struct for reflect.Value.FieldByIndex.
	index []int
}

// Column returns the column the field is stored in: its alias if it has one,
// otherwise its name.
func (f Field) Column() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// ParamName returns the name the field value is bound under when a
// composite argument is expanded: its alias if it has one, otherwise the
// snake_case form of its Go name.
func (f Field) ParamName() string {
	if f.Alias != "" {
		return f.Alias
	}
	if f.GoName != "" {
		return SnakeCase(f.GoName)
	}
	return SnakeCase(f.Name)
}

// Binding is a named value extracted from a composite argument.
type Binding struct {
	Name  string
	Value any
}

// Entity describes the fields of an entity or composite argument type.
// Entities are immutable once built and safe for concurrent use.
type Entity struct {
	// Name is the name of the entity, usually the Go type name.
	Name string

	// Type is the struct type described. It is nil for entities declared
	// with New, which can resolve columns but not expand values.
	Type reflect.Type

	fields  []Field
	byName  map[string]int
	byAlias map[string]int
}

// New declares an entity by hand. Such entities can resolve filter fields to
// columns but cannot extract values from Go structs.
func New(name string, fields ...Field) *Entity {
	e := &Entity{Name: name}
	for _, f := range fields {
		f.index = nil
		e.add(f)
	}
	return e
}

func (e *Entity) add(f Field) {
	if e.byName == nil {
		e.byName = map[string]int{}
		e.byAlias = map[string]int{}
	}
	e.fields = append(e.fields, f)
	i := len(e.fields) - 1
	e.byName[f.Name] = i
	if f.Alias != "" {
		e.byAlias[f.Alias] = i
	}
}

// Fields returns a copy of the entity fields in declaration order.
func (e *Entity) Fields() []Field {
	fields := make([]Field, len(e.fields))
	copy(fields, e.fields)
	return fields
}

// Field returns the field with the given filter name.
func (e *Entity) Field(name string) (Field, bool) {
	i, ok := e.byName[name]
	if !ok {
		return Field{}, false
	}
	return e.fields[i], true
}

// ResolveColumn maps a name found in a filter or sort expression to a column
// name. A field with that name resolves to its column alias, or to its name
// if it has no alias. Otherwise, if the name is the alias of some field, the
// name of that field is returned. Any other name is returned unchanged.
func (e *Entity) ResolveColumn(name string) string {
	if e == nil {
		return name
	}
	if i, ok := e.byName[name]; ok {
		return e.fields[i].Column()
	}
	if i, ok := e.byAlias[name]; ok {
		return e.fields[i].Name
	}
	return name
}

// Values extracts one binding per field from v, which must be a value of, or
// a pointer to, the entity type.
func (e *Entity) Values(v any) ([]Binding, error) {
	if e.Type == nil {
		return nil, fmt.Errorf("entity %q has no Go type", e.Name)
	}
	if v == nil {
		return nil, fmt.Errorf("need %s, got nil", e.Type.Name())
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("need %s, got nil pointer", e.Type.Name())
		}
		rv = rv.Elem()
	}
	if rv.Type() != e.Type {
		return nil, fmt.Errorf("need %s, got %s", e.Type.String(), rv.Type().String())
	}
	bindings := make([]Binding, 0, len(e.fields))
	for _, f := range e.fields {
		fv, err := rv.FieldByIndexErr(f.index)
		if err != nil {
			// A nil embedded pointer leaves its promoted fields unset.
			bindings = append(bindings, Binding{Name: f.ParamName()})
			continue
		}
		bindings = append(bindings, Binding{Name: f.ParamName(), Value: fv.Interface()})
	}
	return bindings, nil
}

// Option customises how Of builds an entity.
type Option func(*options)

type options struct {
	aliases map[string]string
	names   map[string]string
	omit    map[string]bool
}

// WithAlias sets the column alias of the Go field goName, overriding its
// `db` tag.
func WithAlias(goName, alias string) Option {
	return func(o *options) { o.aliases[goName] = alias }
}

// WithName sets the filter name of the Go field goName, overriding its
// `json` tag.
func WithName(goName, name string) Option {
	return func(o *options) { o.names[goName] = name }
}

// Omit leaves the Go field goName out of the entity.
func Omit(goName string) Option {
	return func(o *options) { o.omit[goName] = true }
}

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Entity)

// Of returns the entity describing T, which must be a struct type. Entities
// built without options are cached per type.
func Of[T any](opts ...Option) (*Entity, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return ForType(t, opts...)
}

// MustOf is the same as Of except that it panics on error.
func MustOf[T any](opts ...Option) *Entity {
	e, err := Of[T](opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// ForType returns the entity describing the struct type t.
func ForType(t reflect.Type, opts ...Option) (*Entity, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot describe nil type")
	}
	if len(opts) == 0 {
		cacheMutex.RLock()
		e, found := cache[t]
		cacheMutex.RUnlock()
		if found {
			return e, nil
		}
	}

	o := &options{aliases: map[string]string{}, names: map[string]string{}, omit: map[string]bool{}}
	for _, opt := range opts {
		opt(o)
	}
	e, err := generate(t, o)
	if err != nil {
		return nil, err
	}

	if len(opts) == 0 {
		cacheMutex.Lock()
		cache[t] = e
		cacheMutex.Unlock()
	}
	return e, nil
}

// generate produces the entity for the struct type t.
func generate(t reflect.Type, o *options) (*Entity, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("need struct type, got %s", t.Kind())
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("cannot use anonymous struct")
	}

	e := &Entity{Name: t.Name(), Type: t}
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() || o.omit[sf.Name] {
			continue
		}
		// Fields of embedded structs are promoted, the embedded struct
		// itself is not a field.
		if sf.Anonymous && isStructOrPtr(sf.Type) {
			continue
		}
		alias, skip, err := parseTag(sf.Tag.Get("db"))
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name(), sf.Name, err)
		}
		if skip {
			continue
		}
		if a, ok := o.aliases[sf.Name]; ok {
			alias = a
		}
		name := jsonName(sf.Tag.Get("json"))
		if name == "" {
			name = lowerCamel(sf.Name)
		}
		if n, ok := o.names[sf.Name]; ok {
			name = n
		}
		if _, dup := e.byName[name]; dup {
			return nil, fmt.Errorf("field name %q declared twice in %s", name, t.Name())
		}
		e.add(Field{Name: name, GoName: sf.Name, Alias: alias, index: sf.Index})
	}
	return e, nil
}

func isStructOrPtr(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// This expression should match the identifiers the filter compiler accepts
// as columns.
var validColNameRx = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// parseTag parses a `db` tag. It returns the column alias and whether the
// field is excluded with "-".
func parseTag(tag string) (string, bool, error) {
	if tag == "" {
		return "", false, nil
	}
	if tag == "-" {
		return "", true, nil
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return "", false, fmt.Errorf("empty db tag")
	}
	if !validColNameRx.MatchString(name) {
		return "", false, fmt.Errorf("invalid column name %q in 'db' tag", name)
	}
	return name, false, nil
}

// jsonName returns the name part of a `json` tag, or "" if there is none.
func jsonName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}
