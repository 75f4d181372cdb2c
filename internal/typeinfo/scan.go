// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"fmt"
	"reflect"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// ScanProxy is a shim for scanning query results
// into types for which we have information.
type ScanProxy struct {
	original reflect.Value
	scan     reflect.Value
	key      reflect.Value
}

// OnSuccess copies the scanned value into its destination. It must only be
// called after rows.Scan returned without error.
func (sp ScanProxy) OnSuccess() {
	if sp.key.IsValid() {
		sp.original.SetMapIndex(sp.key, sp.scan)
	} else {
		var val reflect.Value
		if !sp.scan.IsNil() {
			val = sp.scan.Elem()
		} else {
			val = reflect.Zero(sp.original.Type())
		}
		sp.original.Set(val)
	}
}

// ScanArgs returns the pointers to pass to rows.Scan for the result columns
// and a function to run once the scan succeeded. out must be a pointer to a
// struct or a map with string keys. Struct fields are matched to columns by
// their "db" tag; columns without a matching field are discarded.
func (r *Registry) ScanArgs(columns []string, out any) (ptrs []any, onSuccess func(), err error) {
	v, err := validateOutput(out)
	if err != nil {
		return nil, nil, err
	}
	var proxies []ScanProxy
	if v.Kind() == reflect.Map {
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		ptrs, proxies, err = mapTargets(columns, v)
	} else {
		var e *Entity
		e, err = r.LookupType(v.Type())
		if err != nil {
			return nil, nil, err
		}
		ptrs, proxies = structTargets(e, columns, v)
	}
	if err != nil {
		return nil, nil, err
	}
	return ptrs, func() {
		for _, sp := range proxies {
			sp.OnSuccess()
		}
	}, nil
}

func mapTargets(columns []string, m reflect.Value) ([]any, []ScanProxy, error) {
	if m.Type().Key().Kind() != reflect.String {
		return nil, nil, fmt.Errorf("map type %s must have key type string, found type %s", m.Type().Name(), m.Type().Key().Kind())
	}
	ptrs := make([]any, 0, len(columns))
	proxies := make([]ScanProxy, 0, len(columns))
	for _, col := range columns {
		scanVal := reflect.New(m.Type().Elem()).Elem()
		ptrs = append(ptrs, scanVal.Addr().Interface())
		proxies = append(proxies, ScanProxy{original: m, scan: scanVal, key: reflect.ValueOf(col).Convert(m.Type().Key())})
	}
	return ptrs, proxies, nil
}

// structTargets locates the field of each column. rows.Scan will return an
// error if it tries to scan NULL into a type that cannot be set to nil, so
// for types that are not a pointer and do not implement sql.Scanner, a
// pointer to them is scanned into instead and the field is zeroed by
// ScanProxy.OnSuccess if the column was NULL.
func structTargets(e *Entity, columns []string, s reflect.Value) ([]any, []ScanProxy) {
	ptrs := make([]any, 0, len(columns))
	var proxies []ScanProxy
	for _, col := range columns {
		attr, ok := e.AttributeForColumn(col)
		if !ok {
			var discard any
			ptrs = append(ptrs, &discard)
			continue
		}
		val := s.FieldByIndex(attr.Index)
		if val.Kind() == reflect.Pointer || val.Addr().Type().Implements(scannerInterface) {
			ptrs = append(ptrs, val.Addr().Interface())
			continue
		}
		pval := reflect.New(reflect.PointerTo(val.Type())).Elem()
		ptrs = append(ptrs, pval.Addr().Interface())
		proxies = append(proxies, ScanProxy{original: val, scan: pval})
	}
	return ptrs, proxies
}
