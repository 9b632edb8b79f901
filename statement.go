// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Gergilcan/wirej/internal/filter"
	"github.com/Gergilcan/wirej/internal/template"
	"github.com/Gergilcan/wirej/schema"
)

// Placeholder names bound by filters and pagination.
const (
	SearchParam          = "search"
	InitialPositionParam = "initialPosition"
	PageSizeParam        = "pageSize"
)

// Reserved placeholders replaced by the compiled filter and sort clauses.
const (
	filtersPlaceholder = "filters"
	sortingPlaceholder = "sorting"
)

// Statement is a template loaded for a single execution. Parameters are set
// by name, then exactly one of the terminal methods runs it: Result,
// ResultList, SingleValue, SingleValueList, Execute, or AddBatch followed by
// ExecuteBatch. A second run returns ErrStatementUsed.
//
// A Statement holds one database connection, which is released when the
// terminal method returns or when Close is called. A Statement is not safe
// for concurrent use.
type Statement struct {
	id     uuid.UUID
	db     *DB
	key    string
	final  *template.Template
	query  template.Query
	params map[string]any

	conn  *sqlx.Conn
	stmt  *sqlx.Stmt
	batch [][]any

	used   bool
	closed bool
}

// StatementOption configures a Statement.
type StatementOption func(*statementOptions)

type statementOptions struct {
	filters    *Filters
	entity     *schema.Entity
	pagination *Pagination
	batch      bool
}

// WithFilters compiles the filter and sort expressions of f into the
// :filters and :sorting placeholders and binds :search. Field names are
// resolved to columns with entity, which may be nil.
func WithFilters(f *Filters, entity *schema.Entity) StatementOption {
	return func(o *statementOptions) {
		o.filters = f
		o.entity = entity
	}
}

// WithPagination binds :initialPosition and :pageSize.
func WithPagination(p *Pagination) StatementOption {
	return func(o *statementOptions) { o.pagination = p }
}

// ForBatch defers acquiring a connection until the first AddBatch.
func ForBatch() StatementOption {
	return func(o *statementOptions) { o.batch = true }
}

// Statement loads the template key and returns a statement ready to have
// its parameters set. Unless ForBatch is given, a connection is acquired
// from the pool before Statement returns.
func (db *DB) Statement(ctx context.Context, key string, opts ...StatementOption) (*Statement, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var o statementOptions
	for _, opt := range opts {
		opt(&o)
	}

	tmpl, err := db.cache.get(key)
	if err != nil {
		return nil, err
	}
	s := &Statement{
		id:     uuid.New(),
		db:     db,
		key:    tmpl.Key,
		params: map[string]any{},
	}
	if s.final, err = s.merge(tmpl, &o); err != nil {
		return nil, err
	}
	s.query = s.final.Render(db.dialect.Placeholder)

	if !o.batch {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}
	db.logger.Debug("statement opened", "statement", s.id, "template", s.key)
	return s, nil
}

// merge binds the filter and pagination parameters and replaces the
// :filters and :sorting placeholders of tmpl.
func (s *Statement) merge(tmpl *template.Template, o *statementOptions) (*template.Template, error) {
	subst := map[string]string{}
	fragment, sorting := "", ""
	if o.filters != nil {
		s.params[SearchParam] = o.filters.SearchPattern()
		frag := s.db.compiler.Compile(o.filters.Filters, o.entity)
		if len(frag.Dropped) > 0 {
			s.db.logger.Debug("filter atoms dropped", "statement", s.id, "template", tmpl.Key, "atoms", frag.Dropped)
		}
		for _, p := range frag.Params {
			s.params[p.Name] = p.Value
		}
		fragment = frag.SQL()
		sorting = s.db.compiler.CompileSort(o.filters.Sort, o.entity)
	}
	if tmpl.Has(filtersPlaceholder) {
		subst[filtersPlaceholder] = filter.MergeWhere(tmpl.Text, fragment)
	}
	if tmpl.Has(sortingPlaceholder) {
		subst[sortingPlaceholder] = sorting
	}
	if o.pagination != nil {
		s.params[InitialPositionParam] = o.pagination.InitialPosition()
		s.params[PageSizeParam] = o.pagination.size()
	}

	final, err := tmpl.Substitute(subst)
	if err != nil {
		return nil, &TemplateError{Key: tmpl.Key, Kind: ErrTemplateSyntax, Err: err}
	}
	return final, nil
}

// connect acquires the connection of the statement if it has none yet.
func (s *Statement) connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	conn, err := s.db.sqldb.Connx(ctx)
	if err != nil {
		return &StorageError{Op: "connect", Template: s.key, Err: err}
	}
	s.conn = conn
	return nil
}

// ID returns the identifier of the statement used in log records.
func (s *Statement) ID() string {
	return s.id.String()
}

// SQL returns the SQL text sent to the database, with positional markers.
func (s *Statement) SQL() string {
	return s.query.SQL
}

// Placeholders returns the placeholder names of the final text in order of
// appearance.
func (s *Statement) Placeholders() []string {
	return s.final.Placeholders()
}

// SetParameter sets the value bound to every occurrence of the placeholder
// name.
func (s *Statement) SetParameter(name string, value any) {
	s.params[name] = value
}

// Parameter returns the value set for name.
func (s *Statement) Parameter(name string) (any, bool) {
	v, ok := s.params[name]
	return v, ok
}

// args returns the SQL text and the arguments for the current parameters.
// List values of placeholders are expanded into one marker per element
// unless batch is set.
func (s *Statement) args(batch bool) (string, []any, error) {
	names := s.query.Placeholders
	args := make([]any, 0, len(names))
	sizes := make([]int, len(names))
	expand := false
	for i, name := range names {
		v, ok := s.params[name]
		if !ok && s.db.strict {
			return "", nil, &BindingError{Param: name, Reason: "no value set"}
		}
		if elems, ok := listValue(v); ok {
			if batch {
				return "", nil, &BindingError{Param: name, Reason: "cannot bind a list in a batch"}
			}
			sizes[i] = len(elems)
			args = append(args, elems...)
			expand = true
			continue
		}
		sizes[i] = 1
		args = append(args, v)
	}
	if !expand {
		return s.query.SQL, args, nil
	}
	return s.final.RenderLists(sizes, s.db.dialect.Placeholder), args, nil
}

// begin marks the statement as used. A statement can only be run once.
func (s *Statement) begin(ctx context.Context) error {
	if s.used || s.closed {
		return ErrStatementUsed
	}
	if s.batch != nil || s.stmt != nil {
		return fmt.Errorf("%w: batch in progress", ErrStatementUsed)
	}
	s.used = true
	return s.connect(ctx)
}

// release closes the statement and adds any close error to err.
func (s *Statement) release(err *error) {
	if cerr := s.Close(); cerr != nil {
		*err = errors.Join(*err, cerr)
	}
}

func (s *Statement) queryRows(ctx context.Context) (*sqlx.Rows, error) {
	query, args, err := s.args(false)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := s.conn.QueryxContext(ctx, query, args...)
	s.db.logger.Debug("query executed", "statement", s.id, "template", s.key, "elapsed", time.Since(start))
	if err != nil {
		return nil, &StorageError{Op: "query", Template: s.key, Err: err}
	}
	return rows, nil
}

// fetch maps every row returned into dest, a pointer to a slice.
func (s *Statement) fetch(ctx context.Context, dest any) error {
	rows, err := s.queryRows(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()
	return s.mapRows(rows, dest)
}

// mapRows maps rows into dest with the row mapper of the DB. Slices of
// scannable values always receive the first column of each row.
func (s *Statement) mapRows(rows *sqlx.Rows, dest any) error {
	mapper := s.db.mapper
	if sv, err := slicePointer(dest); err == nil && scannable(sv.Type().Elem()) {
		mapper = StructMapper
	}
	if err := mapper.MapRows(rows, dest); err != nil {
		return &StorageError{Op: "scan", Template: s.key, Err: err}
	}
	if err := rows.Err(); err != nil {
		return &StorageError{Op: "query", Template: s.key, Err: err}
	}
	return nil
}

// Result runs the statement and maps the first row into dest, which must be
// a pointer. It returns false, leaving dest untouched, if no rows were
// returned.
func (s *Statement) Result(ctx context.Context, dest any) (found bool, err error) {
	if err := s.begin(ctx); err != nil {
		return false, err
	}
	defer s.release(&err)

	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return false, fmt.Errorf("cannot get result: need non-nil pointer, got %T", dest)
	}
	list := reflect.New(reflect.SliceOf(dv.Elem().Type()))
	if err := s.fetch(ctx, list.Interface()); err != nil {
		return false, err
	}
	if list.Elem().Len() == 0 {
		return false, nil
	}
	dv.Elem().Set(list.Elem().Index(0))
	return true, nil
}

// ResultList runs the statement and maps every row into dest, which must be
// a pointer to a slice. dest is set to an empty slice if no rows were
// returned.
func (s *Statement) ResultList(ctx context.Context, dest any) (err error) {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.release(&err)

	sv, err := slicePointer(dest)
	if err != nil {
		return fmt.Errorf("cannot get results: %w", err)
	}
	sv.Set(reflect.Zero(sv.Type()))
	if err := s.fetch(ctx, dest); err != nil {
		return err
	}
	if sv.IsNil() {
		sv.Set(reflect.MakeSlice(sv.Type(), 0, 0))
	}
	return nil
}

// SingleValue runs the statement and scans the first column of the first
// row into dest. It returns ErrNoRows if no rows were returned.
func (s *Statement) SingleValue(ctx context.Context, dest any) (err error) {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.release(&err)

	rows, err := s.queryRows(ctx)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return &StorageError{Op: "query", Template: s.key, Err: err}
		}
		return ErrNoRows
	}
	if err := scanFirstColumn(rows, dest); err != nil {
		return &StorageError{Op: "scan", Template: s.key, Err: err}
	}
	return nil
}

// SingleValueList runs the statement and collects the first column of every
// row into dest, which must be a pointer to a slice. If the query fails,
// dest is set to an empty slice and the failure is logged, not returned.
func (s *Statement) SingleValueList(ctx context.Context, dest any) (err error) {
	if err := s.begin(ctx); err != nil {
		return err
	}
	defer s.release(&err)

	sv, err := slicePointer(dest)
	if err != nil {
		return fmt.Errorf("cannot get values: %w", err)
	}
	values, err := s.collectFirstColumn(ctx, sv.Type())
	if err != nil {
		s.db.logger.Warn("value list query failed, returning no values", "statement", s.id, "template", s.key, "error", err)
		sv.Set(reflect.MakeSlice(sv.Type(), 0, 0))
		return nil
	}
	sv.Set(values)
	return nil
}

func (s *Statement) collectFirstColumn(ctx context.Context, sliceType reflect.Type) (reflect.Value, error) {
	values := reflect.MakeSlice(sliceType, 0, 0)
	rows, err := s.queryRows(ctx)
	if err != nil {
		return values, err
	}
	defer rows.Close()
	for rows.Next() {
		v := reflect.New(sliceType.Elem())
		if err := scanFirstColumn(rows, v.Interface()); err != nil {
			return values, &StorageError{Op: "scan", Template: s.key, Err: err}
		}
		values = reflect.Append(values, v.Elem())
	}
	if err := rows.Err(); err != nil {
		return values, &StorageError{Op: "query", Template: s.key, Err: err}
	}
	return values, nil
}

// scanFirstColumn scans the first column of the current row into dest and
// discards the others.
func scanFirstColumn(rows *sqlx.Rows, dest any) error {
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("query returned no columns")
	}
	ptrs := make([]any, len(cols))
	ptrs[0] = dest
	for i := 1; i < len(ptrs); i++ {
		ptrs[i] = new(any)
	}
	return rows.Scan(ptrs...)
}

// Execute runs the statement and discards any rows.
func (s *Statement) Execute(ctx context.Context) (res sql.Result, err error) {
	if err := s.begin(ctx); err != nil {
		return nil, err
	}
	defer s.release(&err)

	query, args, err := s.args(false)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err = s.conn.ExecContext(ctx, query, args...)
	s.db.logger.Debug("statement executed", "statement", s.id, "template", s.key, "elapsed", time.Since(start))
	if err != nil {
		return nil, &StorageError{Op: "exec", Template: s.key, Err: err}
	}
	return res, nil
}

// AddBatch records the current parameter values as one execution of the
// batch. The first call acquires the connection, if needed, and prepares the
// statement. A failed AddBatch releases the statement.
func (s *Statement) AddBatch(ctx context.Context) (err error) {
	if s.used || s.closed {
		return ErrStatementUsed
	}
	defer func() {
		if err != nil {
			s.used = true
			s.release(&err)
		}
	}()

	query, args, err := s.args(true)
	if err != nil {
		return err
	}
	if s.stmt == nil {
		if err := s.connect(ctx); err != nil {
			return err
		}
		stmt, err := s.conn.PreparexContext(ctx, query)
		if err != nil {
			return &StorageError{Op: "prepare", Template: s.key, Err: err}
		}
		// Statements prepared on a connection do not inherit its mapper.
		stmt.Mapper = s.conn.Mapper
		s.stmt = stmt
	}
	s.batch = append(s.batch, args)
	return nil
}

// ExecuteBatch runs every execution recorded by AddBatch on the prepared
// statement and releases the statement.
//
// If dest is not nil it must be a pointer to a slice. Each execution is then
// run as a query, e.g. an INSERT with a RETURNING clause, and the rows it
// returns are the generated keys mapped into dest. On dialects without
// RETURNING, such as MySQL, dest must be a slice of numbers and receives the
// last insert id of each execution. dest is set to an empty slice if no keys
// were returned.
func (s *Statement) ExecuteBatch(ctx context.Context, dest any) (err error) {
	if s.used || s.closed {
		return ErrStatementUsed
	}
	s.used = true
	defer s.release(&err)

	var sv, keys reflect.Value
	if dest != nil {
		if sv, err = slicePointer(dest); err != nil {
			return fmt.Errorf("cannot get generated keys: %w", err)
		}
		if !s.db.dialect.Returning() && !holdsInsertID(sv.Type().Elem()) {
			return fmt.Errorf("cannot get generated keys: need slice of numbers for %s, got %s", s.db.dialect.Name(), sv.Type())
		}
		keys = reflect.New(sv.Type()).Elem()
		keys.Set(reflect.MakeSlice(sv.Type(), 0, len(s.batch)))
	}

	start := time.Now()
	for _, args := range s.batch {
		if dest == nil {
			if _, err := s.stmt.ExecContext(ctx, args...); err != nil {
				return &StorageError{Op: "exec", Template: s.key, Err: err}
			}
			continue
		}
		if !s.db.dialect.Returning() {
			if err := s.execBatchKey(ctx, args, keys); err != nil {
				return err
			}
			continue
		}
		part := reflect.New(sv.Type())
		if err := s.queryBatchKeys(ctx, args, part.Interface()); err != nil {
			return err
		}
		keys.Set(reflect.AppendSlice(keys, part.Elem()))
	}
	s.db.logger.Debug("batch executed", "statement", s.id, "template", s.key, "size", len(s.batch), "elapsed", time.Since(start))

	if dest != nil {
		sv.Set(keys)
	}
	return nil
}

// execBatchKey runs one execution of the batch and appends its last insert
// id to keys.
func (s *Statement) execBatchKey(ctx context.Context, args []any, keys reflect.Value) error {
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return &StorageError{Op: "exec", Template: s.key, Err: err}
	}
	id, err := res.LastInsertId()
	if err != nil {
		return &StorageError{Op: "exec", Template: s.key, Err: err}
	}
	appendInsertID(keys, id)
	return nil
}

func (s *Statement) queryBatchKeys(ctx context.Context, args []any, dest any) error {
	rows, err := s.stmt.QueryxContext(ctx, args...)
	if err != nil {
		return &StorageError{Op: "query", Template: s.key, Err: err}
	}
	defer rows.Close()
	return s.mapRows(rows, dest)
}

// Close releases the prepared statement and the connection held by the
// statement. Close can be called multiple times; only the first call
// releases anything.
func (s *Statement) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.stmt != nil {
		if err := s.stmt.Close(); err != nil {
			errs = append(errs, err)
		}
		s.stmt = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		s.conn = nil
	}
	s.db.logger.Debug("statement closed", "statement", s.id, "template", s.key)
	return errors.Join(errs...)
}

// slicePointer checks that dest is a non-nil pointer to a slice and returns
// the slice.
func slicePointer(dest any) (reflect.Value, error) {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer {
		return reflect.Value{}, fmt.Errorf("need pointer to slice, got %T", dest)
	}
	if dv.IsNil() {
		return reflect.Value{}, fmt.Errorf("need pointer to slice, got nil")
	}
	sv := dv.Elem()
	if sv.Kind() != reflect.Slice {
		return reflect.Value{}, fmt.Errorf("need pointer to slice, got pointer to %s", sv.Kind())
	}
	return sv, nil
}
