// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"

	"github.com/canonical/sqlcpo/internal/typeinfo"
)

// BindValue is a value bound to a single placeholder of the compiled query.
type BindValue struct {
	// Attribute is the entity attribute the value belongs to. It is nil when
	// the name was not known to the entity metadata, or for template
	// arguments.
	Attribute *typeinfo.Attribute
	// Name is the logical name the value was bound under.
	Name  string
	Value any
}

func (bv BindValue) String() string {
	return fmt.Sprintf("%s=%v", bv.Name, bv.Value)
}

// ColumnResolver resolves logical field names to entity attributes. ok is
// false when the name is unknown, the name is then used as literal SQL. An
// error is only returned when the metadata itself cannot be read.
type ColumnResolver interface {
	ResolveColumn(name string) (attr *typeinfo.Attribute, ok bool, err error)
}

// ColumnMap is a ColumnResolver over a fixed map of field names to columns.
type ColumnMap map[string]string

// ResolveColumn implements ColumnResolver.
func (m ColumnMap) ResolveColumn(name string) (*typeinfo.Attribute, bool, error) {
	col, ok := m[name]
	if !ok {
		return nil, false, nil
	}
	return &typeinfo.Attribute{Name: name, Column: col}, true, nil
}

type noColumns struct{}

func (noColumns) ResolveColumn(string) (*typeinfo.Attribute, bool, error) {
	return nil, false, nil
}
