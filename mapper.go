// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"database/sql"
	"reflect"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"

	"github.com/Gergilcan/wirej/schema"
)

// RowMapper maps result rows onto Go values. It is used by the fetch modes
// of a Statement that return entities.
type RowMapper interface {
	// MapRows reads every row of rows into dest, a pointer to a slice, and
	// appends one element per row. It may close rows.
	MapRows(rows *sqlx.Rows, dest any) error
}

// RowMapperFunc adapts a function to the RowMapper interface.
type RowMapperFunc func(rows *sqlx.Rows, dest any) error

// MapRows implements RowMapper.
func (f RowMapperFunc) MapRows(rows *sqlx.Rows, dest any) error {
	return f(rows, dest)
}

// StructMapper is the default RowMapper. It matches columns to struct fields
// by their `db` tag, or by the snake_case form of the field name when there
// is no tag. Slices of scannable values, such as []int64 or []time.Time,
// receive the first column of each row.
var StructMapper RowMapper = RowMapperFunc(func(rows *sqlx.Rows, dest any) error {
	sv, err := slicePointer(dest)
	if err != nil {
		return err
	}
	if scannable(sv.Type().Elem()) {
		return appendFirstColumn(rows, sv)
	}
	return sqlx.StructScan(rows, dest)
})

var scannerType = reflect.TypeFor[sql.Scanner]()

// newFieldMapper returns the sqlx field mapper that matches columns to struct
// fields by their `db` tag, or by the snake_case form of the field name.
func newFieldMapper() *reflectx.Mapper {
	return reflectx.NewMapperFunc("db", schema.SnakeCase)
}

// scannable reports whether values of t are scanned whole from one column
// rather than field by field.
func scannable(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return true
	}
	return t == timeType || reflect.PointerTo(t).Implements(scannerType)
}

// appendFirstColumn appends the first column of every row of rows to the
// slice sv.
func appendFirstColumn(rows *sqlx.Rows, sv reflect.Value) error {
	for rows.Next() {
		v := reflect.New(sv.Type().Elem())
		if err := scanFirstColumn(rows, v.Interface()); err != nil {
			return err
		}
		sv.Set(reflect.Append(sv, v.Elem()))
	}
	return rows.Err()
}

// holdsInsertID reports whether t can hold the last insert id of an
// execution.
func holdsInsertID(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64,
		reflect.Float64, reflect.Interface:
		return true
	}
	return false
}

// appendInsertID appends id, converted to the element type of sv, to sv.
func appendInsertID(sv reflect.Value, id int64) {
	sv.Set(reflect.Append(sv, reflect.ValueOf(id).Convert(sv.Type().Elem())))
}
