// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package filter compiles filter and sort expressions into SQL fragments.
//
// A filter expression is a list of AND-groups separated by ";". Each group is
// a list of atoms separated by "," that are joined with OR. An atom has the
// form field<op>value where op is one of
//
//	==  !=  >=  >  <=  <  =in=  =out=
//
// The values of =in= and =out= are separated by "|". A sort expression is a
// list of field==ASC or field==DESC atoms separated by ";".
//
// Atoms that cannot be compiled are dropped and reported in
// Fragment.Dropped. They are never an error.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Gergilcan/wirej/dialect"
	"github.com/Gergilcan/wirej/schema"
)

// ParamPrefix prefixes the names generated for filter values.
const ParamPrefix = "filter_value_"

// operator maps a filter operator to its SQL form.
type operator struct {
	token string
	sql   string
	list  bool
}

// operators is tested in order, so that every operator comes before the
// operators it contains.
var operators = []operator{
	{token: "==", sql: "="},
	{token: "!=", sql: "<>"},
	{token: ">=", sql: ">="},
	{token: ">", sql: ">"},
	{token: "<=", sql: "<="},
	{token: "<", sql: "<"},
	{token: "=in=", sql: "IN", list: true},
	{token: "=out=", sql: "NOT IN", list: true},
}

// findOperator returns the first operator of the table that the atom
// contains.
func findOperator(atom string) (operator, bool) {
	for _, op := range operators {
		if strings.Contains(atom, op.token) {
			return op, true
		}
	}
	return operator{}, false
}

var identifierRx = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// Param is a value bound to a generated placeholder name.
type Param struct {
	Name  string
	Value any
}

// Fragment is a compiled filter expression.
type Fragment struct {
	// Clauses holds one parenthesised clause per AND-group.
	Clauses []string
	// Params holds the values referenced by the clauses, in order.
	Params []Param
	// Dropped holds the atoms that could not be compiled.
	Dropped []string
}

// SQL returns the clauses joined with AND.
func (f Fragment) SQL() string {
	return strings.Join(f.Clauses, " AND ")
}

// Empty reports whether the fragment has no clauses.
func (f Fragment) Empty() bool {
	return len(f.Clauses) == 0
}

// Compiler compiles filter and sort expressions for a SQL dialect. It holds
// no state between calls and is safe for concurrent use.
type Compiler struct {
	Dialect dialect.Dialect
}

// NewCompiler returns a compiler for the dialect d. If d is nil the SQLite
// dialect is used.
func NewCompiler(d dialect.Dialect) *Compiler {
	if d == nil {
		d = dialect.SQLite
	}
	return &Compiler{Dialect: d}
}

// Compile compiles a filter expression. Field names are resolved to columns
// with entity, which may be nil. Generated parameter names are numbered from
// 1 across the whole expression, so compiling the same expression twice
// gives the same fragment.
//
// A field that is not known to entity is used as the column name, but only
// if it is a plain identifier: letters, digits, underscores and dots, not
// starting with a digit. Atoms on any other field, e.g. "home-town" or
// "año", are dropped so that field text never reaches the SQL.
func (c *Compiler) Compile(expr string, entity *schema.Entity) Fragment {
	var frag Fragment
	counter := 0
	for _, group := range strings.Split(expr, ";") {
		group = strings.NewReplacer("(", "", ")", "").Replace(group)
		var ors []string
		for _, atom := range strings.Split(group, ",") {
			atom = strings.TrimSpace(atom)
			if atom == "" {
				continue
			}
			clause, params, ok := c.compileAtom(atom, entity, &counter)
			if !ok {
				frag.Dropped = append(frag.Dropped, atom)
				continue
			}
			ors = append(ors, clause)
			frag.Params = append(frag.Params, params...)
		}
		if len(ors) > 0 {
			frag.Clauses = append(frag.Clauses, "("+strings.Join(ors, " OR ")+")")
		}
	}
	return frag
}

// compileAtom compiles a single field<op>value atom.
func (c *Compiler) compileAtom(atom string, entity *schema.Entity, counter *int) (string, []Param, bool) {
	op, ok := findOperator(atom)
	if !ok {
		return "", nil, false
	}
	field, raw, _ := strings.Cut(atom, op.token)
	field = strings.TrimSpace(field)
	raw = strings.TrimSpace(raw)
	if !identifierRx.MatchString(field) {
		return "", nil, false
	}
	column := entity.ResolveColumn(field)

	if op.list {
		return c.compileList(column, op, raw, counter)
	}

	value, k := coerce(raw)
	*counter++
	switch k {
	case kindNull:
		if op.token == "!=" {
			return column + " IS NOT NULL", nil, true
		}
		return column + " IS NULL", nil, true
	case kindDate:
		column = c.Dialect.TruncateDay(column)
		value = c.Dialect.DateValue(value.(time.Time))
	}
	name := paramName(*counter)
	return fmt.Sprintf("%s %s :%s", column, op.sql, name), []Param{{Name: name, Value: value}}, true
}

// compileList compiles the "|" separated values of =in= and =out=.
func (c *Compiler) compileList(column string, op operator, raw string, counter *int) (string, []Param, bool) {
	var names []string
	var params []Param
	truncate := false
	for _, elem := range strings.Split(raw, "|") {
		value, k := coerce(strings.TrimSpace(elem))
		if k == kindDate {
			truncate = true
			value = c.Dialect.DateValue(value.(time.Time))
		}
		*counter++
		name := paramName(*counter)
		names = append(names, ":"+name)
		params = append(params, Param{Name: name, Value: value})
	}
	if truncate {
		column = c.Dialect.TruncateDay(column)
	}
	return fmt.Sprintf("%s %s (%s)", column, op.sql, strings.Join(names, ", ")), params, true
}

func paramName(n int) string {
	return fmt.Sprintf("%s%d", ParamPrefix, n)
}

// CompileSort compiles a sort expression into an ORDER BY clause. It returns
// the empty string if no atom can be compiled.
func (c *Compiler) CompileSort(expr string, entity *schema.Entity) string {
	var terms []string
	for _, atom := range strings.Split(expr, ";") {
		atom = strings.TrimSpace(atom)
		if atom == "" {
			continue
		}
		op, ok := findOperator(atom)
		if !ok {
			continue
		}
		field, direction, _ := strings.Cut(atom, op.token)
		field = strings.TrimSpace(field)
		direction = strings.TrimSpace(direction)
		if !identifierRx.MatchString(field) {
			continue
		}
		if direction != "ASC" && direction != "DESC" {
			continue
		}
		terms = append(terms, entity.ResolveColumn(field)+" "+direction)
	}
	if len(terms) == 0 {
		return ""
	}
	return "ORDER BY " + strings.Join(terms, ", ")
}

var whereFiltersRx = regexp.MustCompile(`(?i)\bwhere\s+:filters\b`)
var whereRx = regexp.MustCompile(`(?i)\bwhere\b`)

// MergeWhere returns the text that replaces the :filters placeholder of
// text. If the template reads "WHERE :filters" the fragment is used as is,
// or an always true condition if it is empty. Otherwise an empty fragment
// gives the empty string, and a non-empty one is prefixed with "WHERE " if
// the template has no WHERE keyword and with "AND " if it has.
func MergeWhere(text, fragment string) string {
	switch {
	case whereFiltersRx.MatchString(text):
		if fragment == "" {
			return "1 = 1"
		}
		return fragment
	case fragment == "":
		return ""
	case !whereRx.MatchString(text):
		return "WHERE " + fragment
	default:
		return "AND " + fragment
	}
}
