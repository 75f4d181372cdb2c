// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo_test

import (
	"database/sql"
	"strings"
	"sync"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlcpo/internal/typeinfo"
)

// Hook up gocheck into the "go test" runner.
func TestTypeInfo(t *testing.T) { TestingT(t) }

type TypeInfoSuite struct{}

var _ = Suite(&TypeInfoSuite{})

type Base struct {
	ID int64 `db:"id"`
}

type Person struct {
	Base
	Fullname   string `db:"name,omitempty"`
	PostalCode int    `db:"address_id"`
	NotInDB    string
}

func (s *TypeInfoSuite) TestLookupStruct(c *C) {
	r := typeinfo.NewRegistry()
	e, err := r.Lookup(&Person{})
	c.Assert(err, IsNil)
	c.Assert(e.Name(), Equals, "Person")
	c.Assert(e.Columns(), DeepEquals, []string{"id", "name", "address_id"})

	attr, ok, err := e.ResolveColumn("Fullname")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(attr.Column, Equals, "name")
	c.Assert(attr.OmitEmpty, Equals, true)

	attr, ok, err = e.ResolveColumn("address_id")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(attr.Name, Equals, "PostalCode")

	attr, ok, err = e.ResolveColumn("ID")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(attr.Index, DeepEquals, []int{0, 0})

	_, ok, err = e.ResolveColumn("NotInDB")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, false)
}

func (s *TypeInfoSuite) TestLookupErrors(c *C) {
	type noTagName struct {
		F int `db:",omitempty"`
	}
	type badOption struct {
		F int `db:"f,nope"`
	}
	type badColumn struct {
		F int `db:"f-g"`
	}
	type duplicate struct {
		A int `db:"a"`
		B int `db:"a"`
	}
	type unexported struct {
		f int `db:"f"`
	}
	var tests = []struct {
		summary string
		sample  any
		err     string
	}{{
		summary: "nil",
		sample:  nil,
		err:     "cannot reflect nil value",
	}, {
		summary: "not a struct",
		sample:  map[string]any{},
		err:     "can only reflect struct type, got map",
	}, {
		summary: "empty tag name",
		sample:  noTagName{},
		err:     `cannot reflect type noTagName: field "F": empty db tag`,
	}, {
		summary: "bad option",
		sample:  badOption{},
		err:     `cannot reflect type badOption: field "F": unexpected tag value "nope"`,
	}, {
		summary: "bad column",
		sample:  badColumn{},
		err:     `cannot reflect type badColumn: field "F": invalid column name in 'db' tag`,
	}, {
		summary: "duplicate",
		sample:  duplicate{},
		err:     `cannot reflect type duplicate: fields "A" and "B" have the same tag "a"`,
	}, {
		summary: "unexported",
		sample:  unexported{f: 1},
		err:     `cannot reflect type unexported: field "f" is not exported`,
	}}
	r := typeinfo.NewRegistry()
	for _, t := range tests {
		_, err := r.Lookup(t.sample)
		c.Assert(err, NotNil, Commentf("test %q", t.summary))
		c.Assert(err.Error(), Equals, t.err, Commentf("test %q", t.summary))
	}
	c.Assert(r.Len(), Equals, 0)
}

func (s *TypeInfoSuite) TestInvalidate(c *C) {
	r := typeinfo.NewRegistry()
	first, err := r.Lookup(Person{})
	c.Assert(err, IsNil)
	second, err := r.Lookup(&Person{})
	c.Assert(err, IsNil)
	c.Assert(first == second, Equals, true)
	c.Assert(r.Len(), Equals, 1)

	r.Invalidate(Person{})
	c.Assert(r.Len(), Equals, 0)
	third, err := r.Lookup(Person{})
	c.Assert(err, IsNil)
	c.Assert(first == third, Equals, false)

	_, err = r.Lookup(Base{})
	c.Assert(err, IsNil)
	c.Assert(r.Len(), Equals, 2)
	r.InvalidateAll()
	c.Assert(r.Len(), Equals, 0)
}

func (s *TypeInfoSuite) TestRegisterTransform(c *C) {
	r := typeinfo.NewRegistry()
	_, err := r.Lookup(Person{})
	c.Assert(err, IsNil)

	err = r.RegisterTransform(Person{}, "Fullname", func(v any) (any, error) {
		return strings.ToUpper(v.(string)), nil
	})
	c.Assert(err, IsNil)

	e, err := r.Lookup(Person{})
	c.Assert(err, IsNil)
	attr, _, _ := e.ResolveColumn("Fullname")
	c.Assert(attr.Transform, NotNil)
	out, err := attr.Transform("fred")
	c.Assert(err, IsNil)
	c.Assert(out, Equals, "FRED")

	// Transforms survive invalidation.
	r.InvalidateAll()
	e, err = r.Lookup(Person{})
	c.Assert(err, IsNil)
	attr, _, _ = e.ResolveColumn("Fullname")
	c.Assert(attr.Transform, NotNil)

	err = r.RegisterTransform(Person{}, "Missing", nil)
	c.Assert(err, ErrorMatches, `type Person has no field "Missing"`)
}

func (s *TypeInfoSuite) TestTransformRegisteredLater(c *C) {
	r := typeinfo.NewRegistry()
	e, err := r.Lookup(Person{})
	c.Assert(err, IsNil)
	attr, ok, err := e.ResolveColumn("Fullname")
	c.Assert(err, IsNil)
	c.Assert(ok, Equals, true)
	c.Assert(attr.CurrentTransform(), IsNil)

	err = r.RegisterTransform(Person{}, "Fullname", func(v any) (any, error) {
		return strings.ToLower(v.(string)), nil
	})
	c.Assert(err, IsNil)

	// The attribute looked up before registration sees the transform.
	f := attr.CurrentTransform()
	c.Assert(f, NotNil)
	out, err := f("FRED")
	c.Assert(err, IsNil)
	c.Assert(out, Equals, "fred")

	// Attributes built by hand keep their own transform.
	plain := &typeinfo.Attribute{Name: "Fullname", Column: "name"}
	c.Assert(plain.CurrentTransform(), IsNil)
}

func (s *TypeInfoSuite) TestConcurrentLookup(c *C) {
	r := typeinfo.NewRegistry()
	var wg sync.WaitGroup
	entities := make([]*typeinfo.Entity, 8)
	for i := range entities {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entities[i], _ = r.Lookup(Person{})
		}(i)
	}
	wg.Wait()
	for _, e := range entities {
		c.Assert(e == entities[0], Equals, true)
	}
}

func (s *TypeInfoSuite) TestScanArgsStruct(c *C) {
	r := typeinfo.NewRegistry()
	p := Person{PostalCode: 7}
	ptrs, onSuccess, err := r.ScanArgs([]string{"name", "extra", "address_id"}, &p)
	c.Assert(err, IsNil)
	c.Assert(ptrs, HasLen, 3)

	name := "Fred"
	*(ptrs[0].(**string)) = &name
	*(ptrs[1].(*any)) = "ignored"
	// A NULL column leaves the pointer nil and zeroes the field.
	onSuccess()
	c.Assert(p.Fullname, Equals, "Fred")
	c.Assert(p.PostalCode, Equals, 0)
}

func (s *TypeInfoSuite) TestScanArgsMap(c *C) {
	type M map[string]any
	r := typeinfo.NewRegistry()
	m := M{}
	ptrs, onSuccess, err := r.ScanArgs([]string{"a", "b"}, m)
	c.Assert(err, IsNil)
	*(ptrs[0].(*any)) = int64(1)
	*(ptrs[1].(*any)) = "two"
	onSuccess()
	c.Assert(m, DeepEquals, M{"a": int64(1), "b": "two"})

	var nilMap M
	_, onSuccess, err = r.ScanArgs([]string{"a"}, &nilMap)
	c.Assert(err, IsNil)
	onSuccess()
	c.Assert(nilMap, HasLen, 1)
}

func (s *TypeInfoSuite) TestScanArgsScanner(c *C) {
	type withNull struct {
		Name sql.NullString `db:"name"`
	}
	r := typeinfo.NewRegistry()
	var w withNull
	ptrs, _, err := r.ScanArgs([]string{"name"}, &w)
	c.Assert(err, IsNil)
	_, ok := ptrs[0].(*sql.NullString)
	c.Assert(ok, Equals, true)
}

func (s *TypeInfoSuite) TestScanArgsErrors(c *C) {
	r := typeinfo.NewRegistry()
	_, _, err := r.ScanArgs(nil, nil)
	c.Assert(err, ErrorMatches, "need map or pointer to struct, got nil")
	_, _, err = r.ScanArgs(nil, Person{})
	c.Assert(err, ErrorMatches, "need map or pointer to struct, got struct")
	i := 0
	_, _, err = r.ScanArgs(nil, &i)
	c.Assert(err, ErrorMatches, "need map or pointer to struct, got pointer to int")
	_, _, err = r.ScanArgs([]string{"a"}, map[int]any{})
	c.Assert(err, ErrorMatches, "map type  must have key type string, found type int")
}
