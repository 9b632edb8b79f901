// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package dialect handles the differences between the SQL databases wirej
// can run statements on.
package dialect

import (
	"strconv"
	"strings"
	"time"
)

// Dialect describes how a database expects positional parameters and
// day-level date comparisons to be written.
type Dialect interface {
	// Name returns the name of the dialect, e.g. "postgres".
	Name() string

	// Placeholder returns the positional marker for the n-th (1-based)
	// query parameter. Most databases use "?", PostgreSQL uses "$n".
	Placeholder(n int) string

	// TruncateDay wraps a column expression so that it compares at day
	// granularity.
	TruncateDay(column string) string

	// DateValue converts a date-at-midnight into the value bound against a
	// column wrapped with TruncateDay.
	DateValue(t time.Time) any

	// Returning reports whether INSERT statements can return the generated
	// keys with a RETURNING clause. If not, generated keys are read from
	// the last insert id of each execution.
	Returning() bool
}

// Pre-defined dialects.
var (
	SQLite   Dialect = sqlite{}
	Postgres Dialect = postgres{}
	MySQL    Dialect = mysql{}
)

// ForDriver returns the dialect matching a database/sql driver name. The
// second return value is false when the driver is unknown.
func ForDriver(driverName string) (Dialect, bool) {
	name := strings.ToLower(driverName)
	switch {
	case strings.HasPrefix(name, "sqlite"):
		return SQLite, true
	case strings.HasPrefix(name, "postgres"), name == "pgx", name == "pq":
		return Postgres, true
	case strings.HasPrefix(name, "mysql"):
		return MySQL, true
	}
	return nil, false
}

type sqlite struct{}

func (sqlite) Name() string { return "sqlite" }

func (sqlite) Placeholder(int) string { return "?" }

func (sqlite) TruncateDay(column string) string { return "DATE(" + column + ")" }

// DateValue returns the date as text, which is what DATE() produces in
// SQLite.
func (sqlite) DateValue(t time.Time) any { return t.Format(time.DateOnly) }

func (sqlite) Returning() bool { return true }

type postgres struct{}

func (postgres) Name() string { return "postgres" }

func (postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgres) TruncateDay(column string) string { return "DATE(" + column + ")" }

func (postgres) DateValue(t time.Time) any { return t }

func (postgres) Returning() bool { return true }

type mysql struct{}

func (mysql) Name() string { return "mysql" }

func (mysql) Placeholder(int) string { return "?" }

func (mysql) TruncateDay(column string) string { return "DATE(" + column + ")" }

func (mysql) DateValue(t time.Time) any { return t }

func (mysql) Returning() bool { return false }
