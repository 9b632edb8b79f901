// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"github.com/mattn/go-sqlite3"
)

// This file contains a wrapper sql.Driver over the SQLite driver which
// records the prepared statements created and closed on each test database,
// and counts the executions run through them. Batches are the only path that
// prepares statements explicitly, so a test can check that a batch prepared
// its statement once, ran it once per entry and closed it.

const checkedDriverName = "sqlite3_stmtChecked"

// testNameTag is the DSN parameter naming the test database.
const testNameTag = "testName"

type stmtRecord struct {
	prepared int
	closed   int
	execs    int
	queries  []string
}

var stmtRecords = map[string]*stmtRecord{}
var stmtRecordsMutex sync.Mutex

func record(testName string, f func(r *stmtRecord)) {
	stmtRecordsMutex.Lock()
	defer stmtRecordsMutex.Unlock()
	r, ok := stmtRecords[testName]
	if !ok {
		r = &stmtRecord{}
		stmtRecords[testName] = r
	}
	f(r)
}

// stmtStats returns a copy of the record of testName.
func stmtStats(testName string) stmtRecord {
	stmtRecordsMutex.Lock()
	defer stmtRecordsMutex.Unlock()
	if r, ok := stmtRecords[testName]; ok {
		return *r
	}
	return stmtRecord{}
}

type checkedDriver struct {
	driver.Driver
}

type checkedConn struct {
	testName string
	*sqlite3.SQLiteConn
}

type checkedStmt struct {
	testName string
	*sqlite3.SQLiteStmt
}

func (s *checkedStmt) Close() error {
	record(s.testName, func(r *stmtRecord) { r.closed++ })
	return s.SQLiteStmt.Close()
}

func (s *checkedStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	record(s.testName, func(r *stmtRecord) { r.execs++ })
	return s.SQLiteStmt.ExecContext(ctx, args)
}

func (s *checkedStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	record(s.testName, func(r *stmtRecord) { r.execs++ })
	return s.SQLiteStmt.QueryContext(ctx, args)
}

func (c *checkedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	s, err := c.SQLiteConn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	sm, ok := s.(*sqlite3.SQLiteStmt)
	if !ok {
		panic(fmt.Sprintf("internal error: base driver is not SQLite, got %T", s))
	}
	record(c.testName, func(r *stmtRecord) {
		r.prepared++
		r.queries = append(r.queries, query)
	})
	return &checkedStmt{SQLiteStmt: sm, testName: c.testName}, nil
}

func (c *checkedConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

// Open expects the DSN to contain the test name in the testName parameter.
func (d *checkedDriver) Open(name string) (driver.Conn, error) {
	var testName string
	if _, params, ok := strings.Cut(name, "?"); ok {
		for _, p := range strings.Split(params, "&") {
			if v, ok := strings.CutPrefix(p, testNameTag+"="); ok {
				testName = v
			}
		}
	}
	if testName == "" {
		panic("internal error: testName is not found in the db DSN")
	}

	baseConn, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	conn, ok := baseConn.(*sqlite3.SQLiteConn)
	if !ok {
		panic("internal error: base driver is not SQLite")
	}
	return &checkedConn{SQLiteConn: conn, testName: testName}, nil
}

func init() {
	sql.Register(checkedDriverName, &checkedDriver{&sqlite3.SQLiteDriver{}})
}
