// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	. "gopkg.in/check.v1"

	"github.com/Gergilcan/wirej"
	"github.com/Gergilcan/wirej/templates"
)

type RepositorySuite struct{}

var _ = Suite(&RepositorySuite{})

type Team struct {
	Name string
}

var repoTemplates = templates.Map{
	"User/matchColumns.sql": "SELECT * FROM users WHERE first_name IN (:first_name) AND age IN (:age) ORDER BY id",
}

func init() {
	for k, v := range userTemplates {
		repoTemplates[k] = v
	}
}

func userOperations() []*wirej.Operation {
	return []*wirej.Operation{
		wirej.NewOperation("findById", "User/findById.sql").
			WithParams(wirej.ValueParam("id")).
			Returning(wirej.One(userEntity)),
		wirej.NewOperation("findAll", "User/findAll.sql").
			WithParams(wirej.FiltersParam("filters"), wirej.PaginationParam("page")).
			Returning(wirej.Many(userEntity)),
		wirej.NewOperation("countUsers", "User/count.sql").
			WithParams(wirej.FiltersParam("filters")).
			ForEntity(userEntity),
		wirej.NewOperation("getNames", "User/names.sql").
			Returning(wirej.Scalars[string]()),
		wirej.NewOperation("getBrokenNames", "User/broken.sql").
			Returning(wirej.Scalars[string]()),
		wirej.NewOperation("findByIds", "User/byIds.sql").
			WithParams(wirej.ValueParam("ids")).
			Returning(wirej.Many(userEntity)),
		wirej.NewOperation("findByColumns", "User/matchColumns.sql").
			WithParams(wirej.ValueParam("users")).
			Returning(wirej.Many(userEntity)),
		wirej.NewOperation("updateStatus", "User/updateStatus.sql").
			WithParams(wirej.ValueParam("id"), wirej.ValueParam("newStatus").WithAlias("status")),
		wirej.NewOperation("insertOne", "User/insert.sql").
			WithParams(wirej.ValueParam("user")).
			Returning(wirej.Scalar[int64]()),
		wirej.NewOperation("save", "User/insert.sql").
			WithParams(wirej.EntityParam("users", userEntity)).
			InBatch().
			Returning(wirej.Scalars[int64]()),
		wirej.NewOperation("saveAll", "User/insertNoKeys.sql").
			WithParams(wirej.ValueParam("users")).
			InBatch(),
		wirej.NewOperation("deleteAll", "User/delete.sql").
			WithParams(wirej.ValueParam("ids").WithAlias("id")).
			InBatch(),
	}
}

func newTestRepository(c *C, opts ...wirej.Option) (*testDB, *wirej.Repository) {
	t := newTestDB(c, repoTemplates, opts...)
	repo, err := wirej.NewRepository(t.db, userOperations()...)
	c.Assert(err, IsNil)
	return t, repo
}

func (s *RepositorySuite) TestFindOne(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	u, err := wirej.Call[*User](ctx, repo, "findById", 2)
	c.Assert(err, IsNil)
	c.Assert(u, NotNil)
	c.Assert(u.FirstName, Equals, "Alan")

	res, err := repo.Invoke(ctx, "findById", 42)
	c.Assert(err, IsNil)
	c.Assert(res, FitsTypeOf, (*User)(nil))
	c.Assert(res.(*User), IsNil)
	t.checkReleased(c)
}

func (s *RepositorySuite) TestFindWithFiltersAndPagination(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	users, err := wirej.Call[[]User](ctx, repo, "findAll", wirej.NewFilters("status==active"), &wirej.Pagination{PageSize: 1})
	c.Assert(err, IsNil)
	c.Assert(users, HasLen, 1)
	c.Assert(users[0].FirstName, Equals, "Alan")

	// Values are accepted as well as pointers.
	users, err = wirej.Call[[]User](ctx, repo, "findAll", wirej.Filters{Filters: "age>=40", Sort: "age==ASC"}, wirej.Pagination{PageNumber: 1, PageSize: 2})
	c.Assert(err, IsNil)
	c.Assert(users, HasLen, 1)
	c.Assert(users[0].FirstName, Equals, "Grace")

	// No filters.
	users, err = wirej.Call[[]User](ctx, repo, "findAll", nil, wirej.NewPagination())
	c.Assert(err, IsNil)
	c.Assert(users, HasLen, 4)
	t.checkReleased(c)
}

func (s *RepositorySuite) TestCount(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	n, err := wirej.Call[int64](ctx, repo, "countUsers", wirej.NewFilters("status=in=active|banned"))
	c.Assert(err, IsNil)
	c.Assert(n, Equals, int64(3))

	n, err = wirej.Call[int64](ctx, repo, "countUsers", (*wirej.Filters)(nil))
	c.Assert(err, IsNil)
	c.Assert(n, Equals, int64(4))

	op, ok := repo.Operation("countUsers")
	c.Assert(ok, Equals, true)
	c.Assert(op.Result.Kind, Equals, wirej.ResultScalar)
	t.checkReleased(c)
}

func (s *RepositorySuite) TestScalars(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	names, err := wirej.Call[[]string](ctx, repo, "getNames")
	c.Assert(err, IsNil)
	c.Assert(names, DeepEquals, []string{"Ada", "Alan", "Grace", "Edsger"})

	names, err = wirej.Call[[]string](ctx, repo, "getBrokenNames")
	c.Assert(err, IsNil)
	c.Assert(names, NotNil)
	c.Assert(names, HasLen, 0)
	t.checkReleased(c)
}

func (s *RepositorySuite) TestListArgument(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	users, err := wirej.Call[[]User](ctx, repo, "findByIds", []int64{3, 2})
	c.Assert(err, IsNil)
	c.Assert(users, HasLen, 2)
	c.Assert(users[0].FirstName, Equals, "Alan")
	c.Assert(users[1].FirstName, Equals, "Grace")
	t.checkReleased(c)
}

func (s *RepositorySuite) TestCompositeListExpandedByColumn(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	users, err := wirej.Call[[]User](ctx, repo, "findByColumns", []User{{FirstName: "Grace", Age: 85}, {FirstName: "Ada", Age: 36}})
	c.Assert(err, IsNil)
	c.Assert(users, HasLen, 2)
	c.Assert(users[0].FirstName, Equals, "Ada")
	c.Assert(users[1].FirstName, Equals, "Grace")
	t.checkReleased(c)
}

func (s *RepositorySuite) TestExecute(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	res, err := wirej.Call[sql.Result](ctx, repo, "updateStatus", 4, "active")
	c.Assert(err, IsNil)
	n, err := res.RowsAffected()
	c.Assert(err, IsNil)
	c.Assert(n, Equals, int64(1))

	c.Assert(repo.Exec(ctx, "updateStatus", 3, "active"), IsNil)
	count, err := wirej.Call[int64](ctx, repo, "countUsers", wirej.NewFilters("status==active"))
	c.Assert(err, IsNil)
	c.Assert(count, Equals, int64(4))
	t.checkReleased(c)
}

func (s *RepositorySuite) TestWriteReturningRows(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	id, err := wirej.Call[int64](ctx, repo, "insertOne", &User{Status: "active", FirstName: "Barbara", Age: 50, Created: "2024-05-01"})
	c.Assert(err, IsNil)
	c.Assert(id, Equals, int64(5))

	u, err := wirej.Call[*User](ctx, repo, "findById", id)
	c.Assert(err, IsNil)
	c.Assert(u.FirstName, Equals, "Barbara")
	t.checkReleased(c)
}

func (s *RepositorySuite) TestBatchWithGeneratedKeys(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	users := []User{
		{Status: "active", FirstName: "Barbara", Age: 50, Created: "2024-05-01"},
		{Status: "active", FirstName: "Donald", Age: 86, Created: "2024-05-02"},
		{Status: "inactive", FirstName: "Ken", Age: 81, Created: "2024-05-03"},
	}
	ids, err := wirej.Call[[]int64](ctx, repo, "save", users)
	c.Assert(err, IsNil)
	c.Assert(ids, DeepEquals, []int64{5, 6, 7})

	// One statement prepared, run once per element.
	stats := stmtStats(t.name)
	c.Assert(stats.prepared, Equals, 1)
	c.Assert(stats.execs, Equals, 3)
	t.checkReleased(c)
}

func (s *RepositorySuite) TestBatchEmpty(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	ids, err := wirej.Call[[]int64](ctx, repo, "save", []User{})
	c.Assert(err, IsNil)
	c.Assert(ids, NotNil)
	c.Assert(ids, HasLen, 0)

	res, err := repo.Invoke(ctx, "saveAll", []User{})
	c.Assert(err, IsNil)
	c.Assert(res, IsNil)

	c.Assert(stmtStats(t.name).prepared, Equals, 0)
	t.checkReleased(c)
}

func (s *RepositorySuite) TestBatchVoid(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	res, err := repo.Invoke(ctx, "saveAll", []*User{
		{Status: "active", FirstName: "Barbara", Age: 50, Created: "2024-05-01"},
		{Status: "active", FirstName: "Donald", Age: 86, Created: "2024-05-02"},
	})
	c.Assert(err, IsNil)
	c.Assert(res, IsNil)

	c.Assert(repo.Exec(ctx, "deleteAll", []int64{1, 2, 5}), IsNil)

	names, err := wirej.Call[[]string](ctx, repo, "getNames")
	c.Assert(err, IsNil)
	c.Assert(names, DeepEquals, []string{"Grace", "Edsger", "Donald"})
	t.checkReleased(c)
}

func (s *RepositorySuite) TestBindingErrors(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	tests := []struct {
		summary string
		op      string
		args    []any
		err     string
	}{{
		summary: "too few arguments",
		op:      "findById",
		err:     "cannot bind parameters of findById: need 1 arguments, got 0",
	}, {
		summary: "too many arguments",
		op:      "getNames",
		args:    []any{1},
		err:     "cannot bind parameters of getNames: need 0 arguments, got 1",
	}, {
		summary: "unknown composite",
		op:      "findById",
		args:    []any{Team{Name: "x"}},
		err:     `cannot bind parameter "id" of findById: no entity registered for wirej_test.Team`,
	}, {
		summary: "composite of the wrong entity",
		op:      "save",
		args:    []any{[]Team{{Name: "x"}}},
		err:     `cannot bind parameter "users" of save: need User, got wirej_test.Team`,
	}, {
		summary: "wrong filters argument",
		op:      "countUsers",
		args:    []any{"status==active"},
		err:     `cannot bind parameter "filters" of countUsers: need filters, got string`,
	}, {
		summary: "nil composite in list",
		op:      "findByColumns",
		args:    []any{[]*User{nil}},
		err:     `cannot bind parameter "users" of findByColumns: element 0: need User, got nil pointer`,
	}}
	for _, test := range tests {
		_, err := repo.Invoke(ctx, test.op, test.args...)
		c.Check(err, ErrorMatches, test.err, Commentf(test.summary))
		c.Check(errors.Is(err, wirej.ErrParameterBinding), Equals, true, Commentf(test.summary))
	}
	t.checkReleased(c)
}

func (s *RepositorySuite) TestUnknownOperation(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)

	_, err := repo.Invoke(context.Background(), "dropEverything")
	c.Assert(errors.Is(err, wirej.ErrUnknownOperation), Equals, true)
	c.Assert(err, ErrorMatches, "unknown operation: dropEverything")
}

func (s *RepositorySuite) TestCallWrongType(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)

	_, err := wirej.Call[string](context.Background(), repo, "getNames")
	c.Assert(err, ErrorMatches, `cannot call getNames: result is \[\]string, not string`)
	t.checkReleased(c)
}

func (s *RepositorySuite) TestRegisterErrors(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)

	tests := []struct {
		op  *wirej.Operation
		err string
	}{{
		op:  wirej.NewOperation("findById", "User/findById.sql").Returning(wirej.One(userEntity)),
		err: "cannot register operation: findById already registered",
	}, {
		op:  wirej.NewOperation("findNothing", "User/findById.sql"),
		err: "cannot register operation: operation findNothing: fetch needs a result",
	}, {
		op:  wirej.NewOperation("countMany", "User/count.sql").Returning(wirej.Many(userEntity)),
		err: "cannot register operation: operation countMany: count needs a scalar result, got many",
	}, {
		op:  wirej.NewOperation("noTemplate", ""),
		err: "cannot register operation: operation noTemplate: no template",
	}, {
		op:  wirej.NewOperation("getOne", "User/findById.sql").Returning(wirej.One(nil)),
		err: "cannot register operation: operation getOne: one result needs an entity with a Go type",
	}, {
		op: wirej.NewOperation("findPaged", "User/findAll.sql").
			WithParams(wirej.PaginationParam("a"), wirej.PaginationParam("b")).
			Returning(wirej.Many(userEntity)),
		err: "cannot register operation: operation findPaged: parameter b: more than one pagination parameter",
	}, {
		op:  nil,
		err: "cannot register operation: nil operation",
	}}
	for _, test := range tests {
		c.Check(repo.Register(test.op), ErrorMatches, test.err)
	}
	c.Assert(repo.Operations(), HasLen, len(userOperations()))
}

func (s *RepositorySuite) TestRegisterCopiesOperation(c *C) {
	t := newTestDB(c, repoTemplates)
	defer t.close(c)

	op := wirej.NewOperation("countAll", "User/count.sql")
	repo, err := wirej.NewRepository(t.db, op)
	c.Assert(err, IsNil)
	c.Assert(op.Result.Kind, Equals, wirej.ResultVoid)

	registered, ok := repo.Operation("countAll")
	c.Assert(ok, Equals, true)
	c.Assert(registered.Result.Kind, Equals, wirej.ResultScalar)
}

func (s *RepositorySuite) TestValidate(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	c.Assert(repo.Validate(ctx), IsNil)

	err := repo.Register(
		wirej.NewOperation("findGhost", "User/ghost.sql").Returning(wirej.Many(userEntity)),
		wirej.NewOperation("renameUser", "User/updateStatus.sql").WithParams(wirej.ValueParam("id")),
	)
	c.Assert(err, IsNil)
	err = repo.Validate(ctx)
	c.Assert(errors.Is(err, wirej.ErrTemplateNotFound), Equals, true)
	c.Assert(err, ErrorMatches, `operation findGhost: cannot load template "User/ghost.sql": .*`)
	c.Assert(t.logs.String(), Matches, `(?s).*msg="template placeholders not bound by operation arguments" operation=renameUser template=User/updateStatus.sql placeholders=\[status\].*`)
}

func (s *RepositorySuite) TestValidateCancelled(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(repo.Validate(ctx), Equals, context.Canceled)
}

func (s *RepositorySuite) TestConcurrentInvocations(c *C) {
	t, repo := newTestRepository(c)
	defer t.close(c)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := wirej.Call[*User](ctx, repo, "findById", i%4+1)
			if err == nil && u == nil {
				err = errors.New("user not found")
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	for _, err := range errs {
		c.Check(err, IsNil)
	}
	t.checkReleased(c)
}
