// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"reflect"

	"github.com/puzpuzpuz/xsync/v3"
)

// TransformFunc converts an attribute value into the value written to the
// datasource, for example an enum into its code.
type TransformFunc func(value any) (any, error)

// Attribute represents a single tagged field of an entity struct.
type Attribute struct {
	// Name is the name of the struct field.
	Name string

	// Column is the column name from the "db" tag.
	Column string

	// Index of this field for reflect.Value.FieldByIndex.
	Index []int

	Type reflect.Type

	// OmitEmpty is true when "omitempty" is
	// a property of the field's "db" tag.
	OmitEmpty bool

	// Transform is applied to bind values of this attribute. It is nil for
	// most attributes.
	Transform TransformFunc

	// owner and transforms locate the transforms of the registry the
	// attribute was generated by.
	owner      reflect.Type
	transforms *xsync.MapOf[transformKey, TransformFunc]
}

// CurrentTransform returns the transform applied to bind values of the
// attribute. For attributes generated by a [Registry] the transform is
// looked up on each call, so transforms registered after a query was
// compiled apply to it.
func (a *Attribute) CurrentTransform() TransformFunc {
	if a.transforms != nil {
		if f, ok := a.transforms.Load(transformKey{t: a.owner, field: a.Name}); ok {
			return f
		}
	}
	return a.Transform
}

// String returns the attribute in the form Type.Field for error messages.
func (a *Attribute) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.Name + " (" + a.Column + ")"
}

// Entity represents reflected information about an entity struct type.
type Entity struct {
	Type reflect.Type

	// Attributes lists the tagged fields in declaration order.
	Attributes []*Attribute

	byName   map[string]*Attribute
	byColumn map[string]*Attribute
}

// ResolveColumn finds the attribute for a logical field name. The field
// name is matched first, then the column name. ok is false when the entity
// has no such attribute, in which case callers use the name as literal SQL.
func (e *Entity) ResolveColumn(name string) (attr *Attribute, ok bool, err error) {
	if e == nil {
		return nil, false, nil
	}
	if a, ok := e.byName[name]; ok {
		return a, true, nil
	}
	if a, ok := e.byColumn[name]; ok {
		return a, true, nil
	}
	return nil, false, nil
}

// AttributeForColumn returns the attribute stored in the column.
func (e *Entity) AttributeForColumn(column string) (*Attribute, bool) {
	a, ok := e.byColumn[column]
	return a, ok
}

// Columns returns the column names in declaration order.
func (e *Entity) Columns() []string {
	cols := make([]string, 0, len(e.Attributes))
	for _, a := range e.Attributes {
		cols = append(cols, a.Column)
	}
	return cols
}

// Name returns the name of the entity type.
func (e *Entity) Name() string {
	return e.Type.Name()
}
