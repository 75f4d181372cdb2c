// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package bind

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/canonical/sqlcpo/internal/expr"
)

var valuerInterface = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// SQL is the datasource of database/sql drivers. Parameters are numbered
// from 1. Values without an encoder are written as MessagePack blobs.
type SQL struct {
	encoders *xsync.MapOf[reflect.Type, Encoder]
}

var _ Datasource = (*SQL)(nil)

func identity(v any) (any, error) {
	return v, nil
}

// NewSQL returns a datasource that encodes the types drivers accept
// natively.
func NewSQL() *SQL {
	s := &SQL{encoders: xsync.NewMapOf[reflect.Type, Encoder]()}
	for _, v := range []any{
		"", []byte(nil), false, time.Time{},
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0),
		float32(0), float64(0),
	} {
		s.encoders.Store(reflect.TypeOf(v), identity)
	}
	// uint64 values above math.MaxInt64 are rejected by database/sql.
	s.encoders.Store(reflect.TypeOf(uint64(0)), func(v any) (any, error) {
		u := v.(uint64)
		if u > 1<<63-1 {
			return nil, fmt.Errorf("uint64 value %d overflows int64", u)
		}
		return int64(u), nil
	})
	return s
}

// Register sets the encoder for values of type t.
func (s *SQL) Register(t reflect.Type, e Encoder) {
	s.encoders.Store(t, e)
}

// StartIndex implements Datasource.
func (s *SQL) StartIndex() int {
	return 1
}

// Encoder implements Datasource. Types implementing driver.Valuer and
// named types over a natively supported kind are encoded too.
func (s *SQL) Encoder(t reflect.Type) (Encoder, bool) {
	if e, ok := s.encoders.Load(t); ok {
		return e, true
	}
	if t.Implements(valuerInterface) {
		return func(v any) (any, error) {
			return v.(driver.Valuer).Value()
		}, true
	}
	if base, ok := kindTypes[t.Kind()]; ok && t != base {
		if e, ok := s.encoders.Load(base); ok {
			return func(v any) (any, error) {
				return e(reflect.ValueOf(v).Convert(base).Interface())
			}, true
		}
	}
	return nil, false
}

var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.String:  reflect.TypeOf(""),
	reflect.Bool:    reflect.TypeOf(false),
	reflect.Int:     reflect.TypeOf(int(0)),
	reflect.Int8:    reflect.TypeOf(int8(0)),
	reflect.Int16:   reflect.TypeOf(int16(0)),
	reflect.Int32:   reflect.TypeOf(int32(0)),
	reflect.Int64:   reflect.TypeOf(int64(0)),
	reflect.Uint:    reflect.TypeOf(uint(0)),
	reflect.Uint8:   reflect.TypeOf(uint8(0)),
	reflect.Uint16:  reflect.TypeOf(uint16(0)),
	reflect.Uint32:  reflect.TypeOf(uint32(0)),
	reflect.Uint64:  reflect.TypeOf(uint64(0)),
	reflect.Float32: reflect.TypeOf(float32(0)),
	reflect.Float64: reflect.TypeOf(float64(0)),
}

// WriteComplex implements Datasource by writing the MessagePack encoding of
// the value.
func (s *SQL) WriteComplex(stmt Statement, index int, bv expr.BindValue) error {
	data, err := msgpack.Marshal(bv.Value)
	if err != nil {
		return fmt.Errorf("cannot encode %T: %w", bv.Value, err)
	}
	return stmt.SetParameter(index, data)
}
