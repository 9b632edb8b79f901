// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrTemplateNotFound is returned when a template key has no text in the
	// template source.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateSyntax is returned when template text cannot be parsed.
	ErrTemplateSyntax = errors.New("invalid template")

	// ErrParameterBinding is returned when the arguments of an operation do
	// not match its declared parameters, or a placeholder has no value in
	// strict mode.
	ErrParameterBinding = errors.New("cannot bind parameters")

	// ErrStorage is returned when the database fails to prepare or run a
	// statement.
	ErrStorage = errors.New("storage error")

	// ErrStatementUsed is returned when a statement is run a second time.
	ErrStatementUsed = errors.New("statement already used")

	// ErrUnknownOperation is returned when invoking an operation that has
	// not been registered.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrNoRows is returned by SingleValue when the query returns no rows.
	ErrNoRows = sql.ErrNoRows
)

// TemplateError reports a template that cannot be loaded or parsed.
type TemplateError struct {
	Key string
	// Kind is ErrTemplateNotFound or ErrTemplateSyntax.
	Kind error
	Err  error
}

func (e *TemplateError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cannot load template %q: %s", e.Key, e.Kind)
	}
	return fmt.Sprintf("cannot load template %q: %s: %s", e.Key, e.Kind, e.Err)
}

// Is reports whether the target is the kind of the error.
func (e *TemplateError) Is(target error) bool {
	return target == e.Kind
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// BindingError reports arguments that cannot be bound to a statement.
type BindingError struct {
	// Operation is the operation being invoked. It is empty for errors
	// raised by a Statement used directly.
	Operation string
	// Param is the parameter or placeholder at fault, if any.
	Param  string
	Reason string
}

func (e *BindingError) Error() string {
	var msg string
	switch {
	case e.Operation != "" && e.Param != "":
		msg = fmt.Sprintf("cannot bind parameter %q of %s: %s", e.Param, e.Operation, e.Reason)
	case e.Operation != "":
		msg = fmt.Sprintf("cannot bind parameters of %s: %s", e.Operation, e.Reason)
	case e.Param != "":
		msg = fmt.Sprintf("cannot bind parameter %q: %s", e.Param, e.Reason)
	default:
		msg = "cannot bind parameters: " + e.Reason
	}
	return msg
}

// Is reports whether the target error matches BindingError. This allows
// errors.Is(err, ErrParameterBinding) to return true.
func (e *BindingError) Is(target error) bool {
	return target == ErrParameterBinding
}

// StorageError wraps an error returned by the database.
type StorageError struct {
	// Op is the step that failed: "connect", "prepare", "query", "exec" or
	// "scan".
	Op       string
	Template string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("cannot %s statement %q: %s", e.Op, e.Template, e.Err)
}

// Is reports whether the target error matches StorageError. This allows
// errors.Is(err, ErrStorage) to return true.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
