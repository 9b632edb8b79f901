// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/Gergilcan/wirej/dialect"
	"github.com/Gergilcan/wirej/internal/filter"
	"github.com/Gergilcan/wirej/templates"
)

// DB runs templated statements on a database. It is safe for concurrent use;
// each Statement it creates holds its own connection.
type DB struct {
	sqldb    *sqlx.DB
	dialect  dialect.Dialect
	compiler *filter.Compiler
	cache    *templateCache
	mapper   RowMapper
	logger   *slog.Logger
	strict   bool
}

// Option configures a DB.
type Option func(*options)

type options struct {
	dialect   dialect.Dialect
	mapper    RowMapper
	logger    *slog.Logger
	strict    bool
	cacheSize int
}

// WithDialect sets the SQL dialect. By default it is derived from the
// driver name.
func WithDialect(d dialect.Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithMapper sets the row mapper used by entity fetches. The default is
// StructMapper.
func WithMapper(m RowMapper) Option {
	return func(o *options) { o.mapper = m }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStrictPlaceholders makes a placeholder without a value an error
// instead of binding NULL.
func WithStrictPlaceholders(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithCacheSize sets how many parsed templates are kept.
func WithCacheSize(size int) Option {
	return func(o *options) { o.cacheSize = size }
}

// NewDB returns a DB running statements on sqldb, which was opened with the
// database/sql driver driverName. Templates are loaded from source.
func NewDB(sqldb *sql.DB, driverName string, source templates.Source, opts ...Option) (*DB, error) {
	if sqldb == nil {
		return nil, fmt.Errorf("cannot create DB: nil sql.DB")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialect == nil {
		d, ok := dialect.ForDriver(driverName)
		if !ok {
			return nil, fmt.Errorf("cannot create DB: unknown dialect for driver %q", driverName)
		}
		o.dialect = d
	}
	if o.mapper == nil {
		o.mapper = StructMapper
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	cache, err := newTemplateCache(source, o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("cannot create DB: %w", err)
	}

	xdb := sqlx.NewDb(sqldb, driverName)
	xdb.Mapper = newFieldMapper()
	return &DB{
		sqldb:    xdb,
		dialect:  o.dialect,
		compiler: filter.NewCompiler(o.dialect),
		cache:    cache,
		mapper:   o.mapper,
		logger:   o.logger,
		strict:   o.strict,
	}, nil
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb.DB
}

// Dialect returns the SQL dialect of the database.
func (db *DB) Dialect() dialect.Dialect {
	return db.dialect
}

// Placeholders loads the template key and returns its placeholder names in
// order of appearance.
func (db *DB) Placeholders(key string) ([]string, error) {
	t, err := db.cache.get(key)
	if err != nil {
		return nil, err
	}
	return t.Placeholders(), nil
}

// Invalidate drops the cached copy of the template key so that the next
// statement reloads it from the source.
func (db *DB) Invalidate(key string) {
	db.cache.invalidate(key)
	db.logger.Debug("template invalidated", "template", normaliseKey(key))
}

// InvalidateAll drops every cached template.
func (db *DB) InvalidateAll() {
	db.cache.purge()
}
