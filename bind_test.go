// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej_test

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	. "gopkg.in/check.v1"

	"github.com/Gergilcan/wirej"
)

type BindSuite struct{}

var _ = Suite(&BindSuite{})

// setter records the parameters bound to it.
type setter map[string]any

func (s setter) SetParameter(name string, value any) {
	s[name] = value
}

type celsius float64

func (s *BindSuite) TestPrimitives(c *C) {
	name := "Ada"
	var nilName *string
	tests := []struct {
		value     any
		primitive bool
	}{
		{nil, true},
		{1, true},
		{uint8(1), true},
		{"Ada", true},
		{true, true},
		{3.5, true},
		{celsius(21), true},
		{&name, true},
		{nilName, true},
		{time.Now(), true},
		{decimal.RequireFromString("1.25"), true},
		{[]byte("raw"), true},
		{[]int{1}, false},
		{User{}, false},
		{&User{}, false},
		{map[string]any{}, false},
	}
	for i, t := range tests {
		c.Check(wirej.IsPrimitive(t.value), Equals, t.primitive, Commentf("test %d: %#v", i, t.value))
	}
}

func (s *BindSuite) TestListValue(c *C) {
	values, ok := wirej.ListValue([]int{1, 2})
	c.Assert(ok, Equals, true)
	c.Assert(values, DeepEquals, []any{1, 2})

	values, ok = wirej.ListValue([2]string{"a", "b"})
	c.Assert(ok, Equals, true)
	c.Assert(values, DeepEquals, []any{"a", "b"})

	values, ok = wirej.ListValue([]any{1, "a", nil})
	c.Assert(ok, Equals, true)
	c.Assert(values, DeepEquals, []any{1, "a", nil})

	values, ok = wirej.ListValue([]int{})
	c.Assert(ok, Equals, true)
	c.Assert(values, HasLen, 0)

	for _, v := range []any{nil, 1, []byte("raw"), []User{{}}, []any{User{}}} {
		_, ok := wirej.ListValue(v)
		c.Check(ok, Equals, false, Commentf("%#v", v))
	}
}

func (s *BindSuite) TestBindPrimitive(c *C) {
	op := wirej.NewOperation("findByFirstName", "User/q.sql")
	bound := setter{}
	err := wirej.BindArgument(bound, op, wirej.ValueParam("firstName"), "Ada")
	c.Assert(err, IsNil)
	err = wirej.BindArgument(bound, op, wirej.ValueParam("ids"), []int64{1, 2})
	c.Assert(err, IsNil)
	err = wirej.BindArgument(bound, op, wirej.ValueParam("statusCode").WithAlias("status"), nil)
	c.Assert(err, IsNil)
	c.Assert(bound, DeepEquals, setter{
		"first_name": "Ada",
		"ids":        []int64{1, 2},
		"status":     nil,
	})
}

func (s *BindSuite) TestBindComposite(c *C) {
	op := wirej.NewOperation("insert", "User/insert.sql")
	u := User{ID: 1, Status: "active", FirstName: "Ada", Age: 36}

	for _, v := range []any{u, &u} {
		bound := setter{}
		err := wirej.BindArgument(bound, op, wirej.ValueParam("user"), v, userEntity)
		c.Assert(err, IsNil)
		c.Assert(bound, DeepEquals, setter{
			"id":          int64(1),
			"status_code": "active",
			"first_name":  "Ada",
			"age":         int64(36),
			"created":     "",
		})
	}
}

func (s *BindSuite) TestBindCompositeList(c *C) {
	op := wirej.NewOperation("findByColumns", "User/matchColumns.sql")
	users := []User{
		{ID: 1, Status: "active", FirstName: "Ada"},
		{ID: 2, Status: "banned", FirstName: "Alan"},
	}
	bound := setter{}
	err := wirej.BindArgument(bound, op, wirej.EntityParam("users", userEntity), users)
	c.Assert(err, IsNil)
	c.Assert(bound["id"], DeepEquals, []any{int64(1), int64(2)})
	c.Assert(bound["status_code"], DeepEquals, []any{"active", "banned"})
	c.Assert(bound["first_name"], DeepEquals, []any{"Ada", "Alan"})
	c.Assert(bound, HasLen, 5)

	bound = setter{}
	err = wirej.BindArgument(bound, op, wirej.EntityParam("users", userEntity), []User{})
	c.Assert(err, IsNil)
	c.Assert(bound["id"], DeepEquals, []any{})
}

func (s *BindSuite) TestBindErrors(c *C) {
	op := wirej.NewOperation("insert", "User/insert.sql")
	tests := []struct {
		param wirej.Param
		value any
		err   string
	}{{
		param: wirej.ValueParam("user"),
		value: User{},
		err:   `cannot bind parameter "user" of insert: no entity registered for wirej_test.User`,
	}, {
		param: wirej.EntityParam("user", userEntity),
		value: Team{Name: "x"},
		err:   `cannot bind parameter "user" of insert: need User, got wirej_test.Team`,
	}, {
		param: wirej.EntityParam("users", userEntity),
		value: []*User{{ID: 1}, nil},
		err:   `cannot bind parameter "users" of insert: element 1: need User, got nil pointer`,
	}, {
		param: wirej.ValueParam("attrs"),
		value: map[string]any{"a": 1},
		err:   `cannot bind parameter "attrs" of insert: no entity registered for map\[string\]interface \{\}`,
	}}
	for i, t := range tests {
		err := wirej.BindArgument(setter{}, op, t.param, t.value)
		c.Check(err, ErrorMatches, t.err, Commentf("test %d", i))
		c.Check(errors.Is(err, wirej.ErrParameterBinding), Equals, true, Commentf("test %d", i))
	}
}
