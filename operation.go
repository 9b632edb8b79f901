// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/Gergilcan/wirej/schema"
)

// ResultKind is the declared result of an operation.
type ResultKind int

const (
	ResultVoid ResultKind = iota
	ResultOne
	ResultMany
	ResultScalar
	ResultScalars
)

var resultKindNames = [...]string{"void", "one", "many", "scalar", "scalars"}

func (k ResultKind) String() string {
	if int(k) < len(resultKindNames) {
		return resultKindNames[k]
	}
	return fmt.Sprintf("ResultKind(%d)", int(k))
}

// ResultShape describes what an operation returns.
type ResultShape struct {
	Kind ResultKind
	// Entity is the entity returned by ResultOne and ResultMany.
	Entity *schema.Entity
	// Type is the Go type of one result element. It is nil for ResultVoid.
	Type reflect.Type
}

// Void declares an operation returning nothing but the sql.Result of its
// execution.
func Void() ResultShape {
	return ResultShape{Kind: ResultVoid}
}

// One declares an operation returning at most one entity, as a pointer.
func One(e *schema.Entity) ResultShape {
	return ResultShape{Kind: ResultOne, Entity: e, Type: entityType(e)}
}

// Many declares an operation returning a slice of entities.
func Many(e *schema.Entity) ResultShape {
	return ResultShape{Kind: ResultMany, Entity: e, Type: entityType(e)}
}

// Scalar declares an operation returning the first column of the first row.
func Scalar[T any]() ResultShape {
	return ResultShape{Kind: ResultScalar, Type: reflect.TypeFor[T]()}
}

// Scalars declares an operation returning the first column of every row.
func Scalars[T any]() ResultShape {
	return ResultShape{Kind: ResultScalars, Type: reflect.TypeFor[T]()}
}

func entityType(e *schema.Entity) reflect.Type {
	if e == nil {
		return nil
	}
	return e.Type
}

// ParamKind says how an operation argument is used.
type ParamKind int

const (
	// ParamValue arguments are bound to placeholders, composite values
	// being expanded field by field.
	ParamValue ParamKind = iota
	// ParamFilters arguments are *Filters compiled into :filters and
	// :sorting.
	ParamFilters
	// ParamPagination arguments are *Pagination bound to
	// :initialPosition and :pageSize.
	ParamPagination
)

// Param declares one argument of an operation.
type Param struct {
	Name string
	// Alias, if set, is the placeholder the value is bound to instead of
	// the snake_case form of Name.
	Alias string
	Kind  ParamKind
	// Entity, if set, expands composite values of the argument. Otherwise
	// the entity registered for the argument type is used.
	Entity *schema.Entity
}

// ValueParam declares an argument bound to placeholders.
func ValueParam(name string) Param {
	return Param{Name: name}
}

// EntityParam declares a composite argument expanded with e.
func EntityParam(name string, e *schema.Entity) Param {
	return Param{Name: name, Entity: e}
}

// FiltersParam declares the filters argument.
func FiltersParam(name string) Param {
	return Param{Name: name, Kind: ParamFilters}
}

// PaginationParam declares the pagination argument.
func PaginationParam(name string) Param {
	return Param{Name: name, Kind: ParamPagination}
}

// WithAlias returns p bound to the placeholder alias.
func (p Param) WithAlias(alias string) Param {
	p.Alias = alias
	return p
}

// paramName returns the placeholder a primitive value of p is bound to.
func (p Param) paramName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return schema.SnakeCase(p.Name)
}

// Operation describes a named database operation: the template it runs,
// its arguments and its result.
type Operation struct {
	Name     string
	Template string
	Batch    bool
	Params   []Param
	Result   ResultShape
	// Entity resolves the fields of filter and sort expressions. It
	// defaults to the result entity.
	Entity *schema.Entity
}

// NewOperation returns an operation named name running the template key,
// taking no arguments and returning nothing.
func NewOperation(name, key string) *Operation {
	return &Operation{Name: name, Template: key}
}

// WithParams appends argument declarations.
func (op *Operation) WithParams(params ...Param) *Operation {
	op.Params = append(op.Params, params...)
	return op
}

// Returning sets the result shape.
func (op *Operation) Returning(r ResultShape) *Operation {
	op.Result = r
	return op
}

// InBatch makes the operation run its template once per element of its
// slice arguments, on a single prepared statement.
func (op *Operation) InBatch() *Operation {
	op.Batch = true
	return op
}

// ForEntity sets the entity resolving filter and sort fields.
func (op *Operation) ForEntity(e *schema.Entity) *Operation {
	op.Entity = e
	return op
}

// filterEntity returns the entity resolving filter and sort fields.
func (op *Operation) filterEntity() *schema.Entity {
	if op.Entity != nil {
		return op.Entity
	}
	return op.Result.Entity
}

// mode is the way an operation runs its statement.
type mode int

const (
	modeFetch mode = iota
	modeCount
	modeExecute
	modeBatch
)

var modeNames = [...]string{"fetch", "count", "execute", "batch"}

func (m mode) String() string {
	return modeNames[m]
}

// classify returns the mode of the operation. Names starting with "get" or
// "find" fetch, names containing "count" in any case fetch a scalar, and
// anything else executes, in batch if so declared. A write declaring a
// result fetches the rows it returns.
func (op *Operation) classify() mode {
	switch {
	case strings.HasPrefix(op.Name, "get"), strings.HasPrefix(op.Name, "find"):
		return modeFetch
	case strings.Contains(strings.ToLower(op.Name), "count"):
		return modeCount
	case op.Batch:
		return modeBatch
	case op.Result.Kind == ResultVoid:
		return modeExecute
	}
	return modeFetch
}

// validate checks that the declaration is consistent and fills in defaults.
func (op *Operation) validate() error {
	if op.Name == "" {
		return fmt.Errorf("operation without name")
	}
	if op.Template == "" {
		return fmt.Errorf("operation %s: no template", op.Name)
	}
	seen := map[ParamKind]bool{}
	for _, p := range op.Params {
		if p.Name == "" {
			return fmt.Errorf("operation %s: parameter without name", op.Name)
		}
		if p.Kind != ParamValue {
			if seen[p.Kind] {
				return fmt.Errorf("operation %s: parameter %s: more than one %s parameter", op.Name, p.Name, p.Kind)
			}
			seen[p.Kind] = true
		}
		if p.Entity != nil && p.Entity.Type == nil {
			return fmt.Errorf("operation %s: parameter %s: entity %s has no Go type", op.Name, p.Name, p.Entity.Name)
		}
	}
	switch op.Result.Kind {
	case ResultOne, ResultMany:
		if op.Result.Type == nil {
			return fmt.Errorf("operation %s: %s result needs an entity with a Go type", op.Name, op.Result.Kind)
		}
	case ResultScalar, ResultScalars:
		if op.Result.Type == nil {
			return fmt.Errorf("operation %s: %s result without type", op.Name, op.Result.Kind)
		}
	}
	switch op.classify() {
	case modeFetch:
		if op.Result.Kind == ResultVoid {
			return fmt.Errorf("operation %s: fetch needs a result", op.Name)
		}
	case modeCount:
		switch op.Result.Kind {
		case ResultVoid:
			op.Result = Scalar[int64]()
		case ResultScalar:
		default:
			return fmt.Errorf("operation %s: count needs a scalar result, got %s", op.Name, op.Result.Kind)
		}
	}
	return nil
}

func (k ParamKind) String() string {
	switch k {
	case ParamFilters:
		return "filters"
	case ParamPagination:
		return "pagination"
	}
	return "value"
}
