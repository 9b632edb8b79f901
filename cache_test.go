// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej_test

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	. "gopkg.in/check.v1"

	"github.com/Gergilcan/wirej"
	"github.com/Gergilcan/wirej/templates"
)

type CacheSuite struct {
	sqldb *sql.DB
}

var _ = Suite(&CacheSuite{})

func (s *CacheSuite) SetUpTest(c *C) {
	var err error
	s.sqldb, err = sql.Open("sqlite3", ":memory:")
	c.Assert(err, IsNil)
}

func (s *CacheSuite) TearDownTest(c *C) {
	c.Check(s.sqldb.Close(), IsNil)
}

// countingSource counts the loads of every key.
type countingSource struct {
	templates.Map
	mu    sync.Mutex
	loads map[string]int
}

func newCountingSource(m templates.Map) *countingSource {
	return &countingSource{Map: m, loads: map[string]int{}}
}

func (s *countingSource) Load(key string) (string, error) {
	s.mu.Lock()
	s.loads[key]++
	s.mu.Unlock()
	return s.Map.Load(key)
}

func (s *countingSource) count(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[key]
}

func (s *CacheSuite) TestLoadedOnce(c *C) {
	source := newCountingSource(templates.Map{"a.sql": "SELECT :x"})
	db, err := wirej.NewDB(s.sqldb, "sqlite3", source)
	c.Assert(err, IsNil)

	for i := 0; i < 3; i++ {
		names, err := db.Placeholders("a.sql")
		c.Assert(err, IsNil)
		c.Assert(names, DeepEquals, []string{"x"})
	}
	_, err = db.Placeholders("/a.sql")
	c.Assert(err, IsNil)
	c.Assert(source.count("a.sql"), Equals, 1)
	c.Assert(db.CachedTemplates(), Equals, 1)
}

func (s *CacheSuite) TestFailuresNotCached(c *C) {
	source := newCountingSource(templates.Map{"bad.sql": "SELECT 'x"})
	db, err := wirej.NewDB(s.sqldb, "sqlite3", source)
	c.Assert(err, IsNil)

	for i := 0; i < 2; i++ {
		_, err = db.Placeholders("missing.sql")
		c.Assert(errors.Is(err, wirej.ErrTemplateNotFound), Equals, true)
		_, err = db.Placeholders("bad.sql")
		c.Assert(errors.Is(err, wirej.ErrTemplateSyntax), Equals, true)
	}
	c.Assert(source.count("missing.sql"), Equals, 2)
	c.Assert(source.count("bad.sql"), Equals, 2)
	c.Assert(db.CachedTemplates(), Equals, 0)
}

func (s *CacheSuite) TestCacheSize(c *C) {
	m := templates.Map{}
	for i := 0; i < 5; i++ {
		m[fmt.Sprintf("q%d.sql", i)] = fmt.Sprintf("SELECT %d", i)
	}
	source := newCountingSource(m)
	db, err := wirej.NewDB(s.sqldb, "sqlite3", source, wirej.WithCacheSize(2))
	c.Assert(err, IsNil)

	for i := 0; i < 5; i++ {
		_, err := db.Placeholders(fmt.Sprintf("q%d.sql", i))
		c.Assert(err, IsNil)
	}
	c.Assert(db.CachedTemplates(), Equals, 2)

	// The least recently used templates were evicted.
	_, err = db.Placeholders("q0.sql")
	c.Assert(err, IsNil)
	c.Assert(source.count("q0.sql"), Equals, 2)
	_, err = db.Placeholders("q4.sql")
	c.Assert(err, IsNil)
	c.Assert(source.count("q4.sql"), Equals, 1)
}

func (s *CacheSuite) TestConcurrentLoads(c *C) {
	source := newCountingSource(templates.Map{"a.sql": "SELECT :x, :y"})
	db, err := wirej.NewDB(s.sqldb, "sqlite3", source)
	c.Assert(err, IsNil)

	var wg sync.WaitGroup
	results := make([][]string, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = db.Placeholders("a.sql")
		}()
	}
	wg.Wait()
	for _, names := range results {
		c.Check(names, DeepEquals, []string{"x", "y"})
	}
	c.Assert(db.CachedTemplates(), Equals, 1)
	c.Assert(source.count("a.sql") >= 1, Equals, true)
}

func (s *CacheSuite) TestNormaliseKey(c *C) {
	c.Assert(wirej.NormaliseKey("/queries/User/findById.sql"), Equals, "queries/User/findById.sql")
	c.Assert(wirej.NormaliseKey("User/findById.sql"), Equals, "User/findById.sql")
}

// blockingSource signals loading when a load starts and waits for release
// before returning the text of its key.
type blockingSource struct {
	text    string
	loading chan struct{}
	release chan struct{}
}

func (s *blockingSource) Load(key string) (string, error) {
	s.loading <- struct{}{}
	<-s.release
	return s.text, nil
}

func (s *CacheSuite) TestInvalidateDuringLoad(c *C) {
	source := &blockingSource{
		text:    "SELECT :old",
		loading: make(chan struct{}),
		release: make(chan struct{}),
	}
	db, err := wirej.NewDB(s.sqldb, "sqlite3", source)
	c.Assert(err, IsNil)

	type result struct {
		names []string
		err   error
	}
	done := make(chan result)
	go func() {
		names, err := db.Placeholders("a.sql")
		done <- result{names, err}
	}()
	<-source.loading
	// The template changes while the old text is being loaded.
	db.Invalidate("a.sql")
	close(source.release)
	r := <-done
	c.Assert(r.err, IsNil)
	c.Assert(r.names, DeepEquals, []string{"old"})
	c.Assert(db.CachedTemplates(), Equals, 0)

	source.text = "SELECT :new"
	go func() { <-source.loading }()
	names, err := db.Placeholders("a.sql")
	c.Assert(err, IsNil)
	c.Assert(names, DeepEquals, []string{"new"})
	c.Assert(db.CachedTemplates(), Equals, 1)
}
