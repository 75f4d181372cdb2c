// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package bind writes the values of a compiled query into the parameter
// slots of a prepared statement.
package bind

import (
	"fmt"
	"reflect"

	"github.com/canonical/sqlcpo/internal/expr"
	"github.com/canonical/sqlcpo/internal/typeinfo"
)

// Statement is a prepared statement with indexed parameter slots.
type Statement interface {
	SetParameter(index int, value any) error
}

// Encoder converts a value into one the datasource's driver accepts.
type Encoder func(v any) (any, error)

// Datasource describes how a database numbers its parameters and encodes
// values.
type Datasource interface {
	// StartIndex is the index of the first parameter slot.
	StartIndex() int
	// Encoder returns the encoder for values of type t.
	Encoder(t reflect.Type) (Encoder, bool)
	// WriteComplex writes a value that has no encoder.
	WriteComplex(stmt Statement, index int, bv expr.BindValue) error
}

// Resolve writes binds into stmt. The Nth bind value goes to the slot
// StartIndex()+N. Attribute transforms run before the encoder is chosen.
func Resolve(ds Datasource, stmt Statement, binds []expr.BindValue) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot bind parameters: %w", err)
		}
	}()

	start := ds.StartIndex()
	for i, bv := range binds {
		index := start + i
		if transform := attributeTransform(bv.Attribute); transform != nil {
			bv.Value, err = transform(bv.Value)
			if err != nil {
				return fmt.Errorf("parameter %d (%s): transform: %w", index, bv.Name, err)
			}
		}
		if bv.Value == nil {
			if err := stmt.SetParameter(index, nil); err != nil {
				return fmt.Errorf("parameter %d (%s): %w", index, bv.Name, err)
			}
			continue
		}
		enc, ok := ds.Encoder(reflect.TypeOf(bv.Value))
		if !ok {
			if err := ds.WriteComplex(stmt, index, bv); err != nil {
				return fmt.Errorf("parameter %d (%s): %w", index, bv.Name, err)
			}
			continue
		}
		v, err := enc(bv.Value)
		if err != nil {
			return fmt.Errorf("parameter %d (%s): %w", index, bv.Name, err)
		}
		if err := stmt.SetParameter(index, v); err != nil {
			return fmt.Errorf("parameter %d (%s): %w", index, bv.Name, err)
		}
	}
	return nil
}

// Args is a Statement collecting parameters into an argument list for
// database/sql.
type Args struct {
	start int
	args  []any
}

// NewArgs returns an argument list with n slots numbered from start.
func NewArgs(start, n int) *Args {
	return &Args{start: start, args: make([]any, n)}
}

// SetParameter implements Statement.
func (a *Args) SetParameter(index int, value any) error {
	i := index - a.start
	if i < 0 || i >= len(a.args) {
		return fmt.Errorf("parameter index %d out of range [%d, %d)", index, a.start, a.start+len(a.args))
	}
	a.args[i] = value
	return nil
}

// Values returns the arguments in slot order.
func (a *Args) Values() []any {
	return a.args
}

// ArgList resolves binds into an argument list for database/sql.
func ArgList(ds Datasource, binds []expr.BindValue) ([]any, error) {
	args := NewArgs(ds.StartIndex(), len(binds))
	if err := Resolve(ds, args, binds); err != nil {
		return nil, err
	}
	return args.Values(), nil
}

func attributeTransform(attr *typeinfo.Attribute) typeinfo.TransformFunc {
	if attr == nil {
		return nil
	}
	return attr.CurrentTransform()
}
