// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package request reads sqlcpo requests from YAML files.
//
// A request file looks like:
//
//	template: SELECT * FROM person __CPO_WHERE__ ORDER BY id __LIMIT__
//	args: []
//	columns:
//	  Name: name
//	  Age: age
//	where:
//	  - attribute: Age
//	    comparison: ">="
//	    value: 18
//	  - logical: and
//	    children:
//	      - attribute: Name
//	        comparison: like
//	        value: A%
//	      - logical: or
//	        attribute: Name
//	        comparison: like
//	        value: B%
//	native:
//	  - marker: __LIMIT__
//	    text: LIMIT 10
//
// A list of nodes under "where" is a single filter whose root groups the
// listed nodes. Filters with their own marker are listed under "filters".
package request

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlcpo"
	"github.com/canonical/sqlcpo/criteria"
)

// File is the YAML form of a request.
type File struct {
	Template string            `yaml:"template"`
	Args     []any             `yaml:"args,omitempty"`
	Columns  map[string]string `yaml:"columns,omitempty"`

	// Where is the filter spliced at the default marker.
	Where []Node `yaml:"where,omitempty"`
	// Filters are additional filters, usually with their own marker.
	Filters []Filter  `yaml:"filters,omitempty"`
	OrderBy []OrderBy `yaml:"orderBy,omitempty"`
	Native  []Native  `yaml:"native,omitempty"`
}

// Filter is a filter tree with its marker.
type Filter struct {
	Marker string `yaml:"marker,omitempty"`
	Not    bool   `yaml:"not,omitempty"`
	Nodes  []Node `yaml:"nodes"`
}

// Node is a filter node. A node with children is a group, otherwise it is a
// comparison.
type Node struct {
	Logical string `yaml:"logical,omitempty"`
	Not     bool   `yaml:"not,omitempty"`

	Attribute      string `yaml:"attribute,omitempty"`
	Comparison     string `yaml:"comparison,omitempty"`
	Value          any    `yaml:"value,omitempty"`
	RightAttribute string `yaml:"rightAttribute,omitempty"`
	StaticValue    string `yaml:"staticValue,omitempty"`

	AttributeFunction      string `yaml:"attributeFunction,omitempty"`
	ValueFunction          string `yaml:"valueFunction,omitempty"`
	RightAttributeFunction string `yaml:"rightAttributeFunction,omitempty"`

	Children []Node `yaml:"children,omitempty"`
}

// OrderBy is a sort specification.
type OrderBy struct {
	Attribute  string `yaml:"attribute"`
	Descending bool   `yaml:"descending,omitempty"`
	Function   string `yaml:"function,omitempty"`
	Marker     string `yaml:"marker,omitempty"`
}

// Native is a raw text fragment.
type Native struct {
	Marker string `yaml:"marker,omitempty"`
	Text   string `yaml:"text"`
}

// Load reads the request file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read request: %w", err)
	}
	return Decode(bytes.NewReader(data))
}

// Decode reads a request from r. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("cannot parse request: %w", err)
	}
	if f.Template == "" {
		return nil, fmt.Errorf("cannot parse request: missing template")
	}
	return &f, nil
}

// Request builds the sqlcpo request described by the file.
func (f *File) Request() (sqlcpo.Request, error) {
	req := sqlcpo.Request{
		Template: f.Template,
		Args:     f.Args,
		Columns:  f.Columns,
	}
	if len(f.Where) > 0 {
		t, err := group(criteria.LogicNone, false, f.Where)
		if err != nil {
			return sqlcpo.Request{}, fmt.Errorf("where: %w", err)
		}
		req.Where = append(req.Where, t)
	}
	for i, flt := range f.Filters {
		t, err := group(criteria.LogicNone, flt.Not, flt.Nodes)
		if err != nil {
			return sqlcpo.Request{}, fmt.Errorf("filter %d: %w", i, err)
		}
		if flt.Marker != "" {
			t = t.WithMarker(flt.Marker)
		}
		req.Where = append(req.Where, t)
	}
	for _, o := range f.OrderBy {
		if o.Attribute == "" && o.Function == "" {
			return sqlcpo.Request{}, fmt.Errorf("order by: missing attribute")
		}
		req.OrderBy = append(req.OrderBy, criteria.OrderBy{
			Attribute: o.Attribute,
			Ascending: !o.Descending,
			Function:  o.Function,
			Marker:    o.Marker,
		})
	}
	for _, n := range f.Native {
		req.Native = append(req.Native, criteria.NewNative(n.Marker, n.Text))
	}
	return req, nil
}

// group returns a tree whose root joins the trees of nodes. A single
// comparison is returned as a tree of its own.
func group(logical criteria.Logical, not bool, nodes []Node) (*criteria.Tree, error) {
	if logical == criteria.LogicNone && !not && len(nodes) == 1 && len(nodes[0].Children) == 0 {
		return tree(nodes[0])
	}
	t := criteria.New(criteria.Where{Logical: logical, Negate: not})
	for i, n := range nodes {
		sub, err := tree(n)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		t.Append(sub)
	}
	return t, nil
}

func tree(n Node) (*criteria.Tree, error) {
	logical, err := criteria.ParseLogical(n.Logical)
	if err != nil {
		return nil, err
	}
	if len(n.Children) > 0 {
		if n.Attribute != "" || n.Comparison != "" {
			return nil, fmt.Errorf("group with attribute %q", n.Attribute)
		}
		return group(logical, n.Not, n.Children)
	}
	if n.Attribute == "" && n.AttributeFunction == "" {
		return nil, fmt.Errorf("comparison without attribute")
	}
	cmp, err := criteria.ParseComparison(n.Comparison)
	if err != nil {
		return nil, err
	}
	return criteria.New(criteria.Where{
		Logical:                logical,
		Comparison:             cmp,
		Negate:                 n.Not,
		Attribute:              n.Attribute,
		RightAttribute:         n.RightAttribute,
		Value:                  n.Value,
		StaticValue:            n.StaticValue,
		AttributeFunction:      n.AttributeFunction,
		ValueFunction:          n.ValueFunction,
		RightAttributeFunction: n.RightAttributeFunction,
	}), nil
}
