// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
)

// validateEntity checks that sample is a struct, or a pointer to one, and
// returns the struct type.
func validateEntity(sample any) (reflect.Type, error) {
	if isInvalidNil(reflect.ValueOf(sample)) {
		return nil, fmt.Errorf("cannot reflect nil value")
	}
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("can only reflect struct type, got %s", t.Kind())
	}
	return t, nil
}

// validateOutput checks that out is a map or a pointer to a struct or map,
// and returns the struct or map value rows are scanned into.
func validateOutput(out any) (reflect.Value, error) {
	v := reflect.ValueOf(out)
	if isInvalidNil(v) {
		return reflect.Value{}, fmt.Errorf("need map or pointer to struct, got nil")
	}
	k := v.Kind()
	if k != reflect.Map && k != reflect.Pointer {
		return reflect.Value{}, fmt.Errorf("need map or pointer to struct, got %s", k)
	}
	if k == reflect.Pointer {
		v = v.Elem()
		k = v.Kind()
		if k != reflect.Struct && k != reflect.Map {
			return reflect.Value{}, fmt.Errorf("need map or pointer to struct, got pointer to %s", k)
		}
	}
	return v, nil
}

func isInvalidNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Pointer, reflect.Map:
		return v.IsNil()
	}
	return false
}
