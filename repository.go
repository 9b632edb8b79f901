// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Gergilcan/wirej/internal/filter"
	"github.com/Gergilcan/wirej/schema"
)

// Repository runs registered operations by name. The dispatch table is
// built by NewRepository and Register; once built, a Repository is safe for
// concurrent use.
type Repository struct {
	db *DB

	mu           sync.RWMutex
	ops          map[string]*Operation
	entityByType map[reflect.Type]*schema.Entity
	entityByName map[string]*schema.Entity

	closers []io.Closer
}

// NewRepository returns a repository running ops on db.
func NewRepository(db *DB, ops ...*Operation) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("cannot create repository: nil DB")
	}
	r := &Repository{
		db:           db,
		ops:          map[string]*Operation{},
		entityByType: map[reflect.Type]*schema.Entity{},
		entityByName: map[string]*schema.Entity{},
	}
	if err := r.Register(ops...); err != nil {
		return nil, err
	}
	return r, nil
}

// DB returns the database the repository runs on.
func (r *Repository) DB() *DB {
	return r.db
}

// RegisterEntity makes entities available for expanding composite
// arguments of their Go type and, by name, to operations declared with
// RegisterConfig.
func (r *Repository) RegisterEntity(entities ...*schema.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entities {
		r.registerEntity(e)
	}
}

func (r *Repository) registerEntity(e *schema.Entity) {
	if e == nil {
		return
	}
	r.entityByName[e.Name] = e
	if e.Type != nil {
		r.entityByType[e.Type] = e
	}
}

// Register adds operations to the dispatch table. Entities named by the
// operations are registered as well.
func (r *Repository) Register(ops ...*Operation) error {
	checked := make([]*Operation, 0, len(ops))
	for _, o := range ops {
		if o == nil {
			return fmt.Errorf("cannot register operation: nil operation")
		}
		op := *o
		op.Params = slices.Clone(o.Params)
		if err := op.validate(); err != nil {
			return fmt.Errorf("cannot register operation: %w", err)
		}
		checked = append(checked, &op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range checked {
		if _, ok := r.ops[op.Name]; ok {
			return fmt.Errorf("cannot register operation: %s already registered", op.Name)
		}
	}
	for _, op := range checked {
		r.ops[op.Name] = op
		r.registerEntity(op.Result.Entity)
		r.registerEntity(op.Entity)
		for _, p := range op.Params {
			r.registerEntity(p.Entity)
		}
	}
	return nil
}

// Operation returns the registered operation name.
func (r *Repository) Operation(name string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Operations returns the names of the registered operations, sorted.
func (r *Repository) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

func (r *Repository) entity(t reflect.Type) (*schema.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entityByType[t]
	return e, ok
}

// Invoke runs the operation name with args, one per declared parameter.
//
// The result depends on the declared result shape: a *T, nil if no row was
// found, for One; a []T for Many and Scalars; a T for Scalar. Operations
// declaring no result return the sql.Result of the execution, except batch
// operations which return nil. Batch operations declaring a result return
// a []T of the rows returned by every execution.
func (r *Repository) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	op, ok := r.Operation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	if len(args) != len(op.Params) {
		return nil, &BindingError{Operation: op.Name, Reason: fmt.Sprintf("need %d arguments, got %d", len(op.Params), len(args))}
	}

	var stmtOpts []StatementOption
	values := make([]int, 0, len(args))
	for i, p := range op.Params {
		switch v := args[i].(type) {
		case *Filters:
			if v != nil {
				stmtOpts = append(stmtOpts, WithFilters(v, op.filterEntity()))
			}
			continue
		case Filters:
			stmtOpts = append(stmtOpts, WithFilters(&v, op.filterEntity()))
			continue
		case *Pagination:
			if v != nil {
				stmtOpts = append(stmtOpts, WithPagination(v))
			}
			continue
		case Pagination:
			stmtOpts = append(stmtOpts, WithPagination(&v))
			continue
		}
		if p.Kind != ParamValue {
			if args[i] == nil {
				continue
			}
			return nil, &BindingError{Operation: op.Name, Param: p.Name, Reason: fmt.Sprintf("need %s, got %T", p.Kind, args[i])}
		}
		values = append(values, i)
	}

	m := op.classify()
	if m == modeBatch {
		stmtOpts = append(stmtOpts, ForBatch())
	}
	stmt, err := r.db.Statement(ctx, op.Template, stmtOpts...)
	if err != nil {
		return nil, err
	}
	r.db.logger.Debug("invoking operation", "operation", op.Name, "mode", m, "statement", stmt.id)

	b := &binder{op: op, entities: r.entity}
	if m == modeBatch {
		return r.runBatch(ctx, stmt, b, values, args)
	}
	for _, i := range values {
		if err := b.bind(stmt, op.Params[i], args[i]); err != nil {
			return nil, errors.Join(err, stmt.Close())
		}
	}
	switch m {
	case modeExecute:
		return stmt.Execute(ctx)
	case modeCount:
		return fetchScalar(ctx, stmt, op.Result.Type)
	}
	return fetch(ctx, stmt, op.Result)
}

// runBatch binds the non-list arguments once, then adds one batch entry per
// element of every list argument.
func (r *Repository) runBatch(ctx context.Context, stmt *Statement, b *binder, values []int, args []any) (any, error) {
	op := b.op
	var lists []int
	for _, i := range values {
		if isList(args[i]) {
			lists = append(lists, i)
			continue
		}
		if err := b.bind(stmt, op.Params[i], args[i]); err != nil {
			return nil, errors.Join(err, stmt.Close())
		}
	}

	if len(lists) == 0 {
		if err := stmt.AddBatch(ctx); err != nil {
			return nil, err
		}
	}
	for _, i := range lists {
		list := reflect.ValueOf(args[i])
		for j := 0; j < list.Len(); j++ {
			if err := b.bind(stmt, op.Params[i], list.Index(j).Interface()); err != nil {
				return nil, errors.Join(err, stmt.Close())
			}
			if err := stmt.AddBatch(ctx); err != nil {
				return nil, err
			}
		}
	}

	if op.Result.Kind == ResultVoid {
		if stmt.stmt == nil {
			// Nothing was added.
			return nil, stmt.Close()
		}
		return nil, stmt.ExecuteBatch(ctx, nil)
	}
	keys := reflect.New(reflect.SliceOf(op.Result.Type))
	keys.Elem().Set(reflect.MakeSlice(keys.Elem().Type(), 0, 0))
	if stmt.stmt == nil {
		return keys.Elem().Interface(), stmt.Close()
	}
	if err := stmt.ExecuteBatch(ctx, keys.Interface()); err != nil {
		return nil, err
	}
	return keys.Elem().Interface(), nil
}

// fetch runs a fetching statement according to the result shape.
func fetch(ctx context.Context, stmt *Statement, result ResultShape) (any, error) {
	switch result.Kind {
	case ResultOne:
		dest := reflect.New(result.Type)
		found, err := stmt.Result(ctx, dest.Interface())
		if err != nil {
			return nil, err
		}
		if !found {
			return reflect.Zero(dest.Type()).Interface(), nil
		}
		return dest.Interface(), nil
	case ResultMany, ResultScalars:
		dest := reflect.New(reflect.SliceOf(result.Type))
		var err error
		if result.Kind == ResultMany {
			err = stmt.ResultList(ctx, dest.Interface())
		} else {
			err = stmt.SingleValueList(ctx, dest.Interface())
		}
		if err != nil {
			return nil, err
		}
		return dest.Elem().Interface(), nil
	}
	return fetchScalar(ctx, stmt, result.Type)
}

func fetchScalar(ctx context.Context, stmt *Statement, t reflect.Type) (any, error) {
	dest := reflect.New(t)
	if err := stmt.SingleValue(ctx, dest.Interface()); err != nil {
		return nil, err
	}
	return dest.Elem().Interface(), nil
}

// Exec runs the operation name and discards its result.
func (r *Repository) Exec(ctx context.Context, name string, args ...any) error {
	_, err := r.Invoke(ctx, name, args...)
	return err
}

// Call runs the operation name on r and returns its result as a T.
func Call[T any](ctx context.Context, r *Repository, name string, args ...any) (T, error) {
	var zero T
	res, err := r.Invoke(ctx, name, args...)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("cannot call %s: result is %T, not %s", name, res, reflect.TypeFor[T]())
	}
	return v, nil
}

// validateLimit bounds the number of templates loaded at once by Validate.
const validateLimit = 8

// Validate loads the template of every registered operation and reports
// the templates that are missing or cannot be parsed. Template placeholders
// no argument of the operation can bind are logged as warnings.
func (r *Repository) Validate(ctx context.Context) error {
	r.mu.RLock()
	ops := make([]*Operation, 0, len(r.ops))
	for _, name := range r.sortedNames() {
		ops = append(ops, r.ops[name])
	}
	r.mu.RUnlock()

	errs := make([]error, len(ops))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(validateLimit)
	for i, op := range ops {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			placeholders, err := r.db.Placeholders(op.Template)
			if err != nil {
				errs[i] = fmt.Errorf("operation %s: %w", op.Name, err)
				return nil
			}
			if unbound := r.unbound(op, placeholders); len(unbound) > 0 {
				r.db.logger.Warn("template placeholders not bound by operation arguments",
					"operation", op.Name, "template", op.Template, "placeholders", unbound)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (r *Repository) sortedNames() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// unbound returns the placeholders of the template of op that none of its
// declared arguments binds.
func (r *Repository) unbound(op *Operation, placeholders []string) []string {
	bound := map[string]bool{}
	for _, p := range op.Params {
		switch p.Kind {
		case ParamFilters:
			bound[SearchParam] = true
			bound[filtersPlaceholder] = true
			bound[sortingPlaceholder] = true
			continue
		case ParamPagination:
			bound[InitialPositionParam] = true
			bound[PageSizeParam] = true
			continue
		}
		bound[p.paramName()] = true
		e := p.Entity
		if e == nil {
			e = op.Result.Entity
		}
		if e != nil {
			for _, f := range e.Fields() {
				bound[f.ParamName()] = true
			}
		}
	}
	var unbound []string
	for _, name := range placeholders {
		if bound[name] || strings.HasPrefix(name, filter.ParamPrefix) || slices.Contains(unbound, name) {
			continue
		}
		unbound = append(unbound, name)
	}
	return unbound
}

// Close releases the resources opened for the repository by Open. It does
// nothing for repositories built with NewRepository.
func (r *Repository) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
