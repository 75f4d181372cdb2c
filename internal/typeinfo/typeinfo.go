// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

type transformKey struct {
	t     reflect.Type
	field string
}

// Registry caches entity metadata by type. It is safe for concurrent use.
type Registry struct {
	entities   *xsync.MapOf[reflect.Type, *Entity]
	transforms *xsync.MapOf[transformKey, TransformFunc]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:   xsync.NewMapOf[reflect.Type, *Entity](),
		transforms: xsync.NewMapOf[transformKey, TransformFunc](),
	}
}

// Lookup returns the Entity of the type of sample, generating and caching it
// as required. sample may be a struct or a pointer to one.
func (r *Registry) Lookup(sample any) (*Entity, error) {
	t, err := validateEntity(sample)
	if err != nil {
		return nil, err
	}
	return r.LookupType(t)
}

// LookupType is Lookup by type.
func (r *Registry) LookupType(t reflect.Type) (*Entity, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if e, ok := r.entities.Load(t); ok {
		return e, nil
	}
	e, err := r.generate(t)
	if err != nil {
		return nil, err
	}
	// Someone else may have generated the same type since we checked.
	e, _ = r.entities.LoadOrStore(t, e)
	return e, nil
}

// Invalidate drops the cached metadata of the type of sample.
func (r *Registry) Invalidate(sample any) {
	t, err := validateEntity(sample)
	if err != nil {
		return
	}
	r.entities.Delete(t)
}

// InvalidateAll drops all cached metadata. Registered transforms are kept.
func (r *Registry) InvalidateAll() {
	r.entities.Clear()
}

// Len returns the number of cached entities.
func (r *Registry) Len() int {
	return r.entities.Size()
}

// RegisterTransform sets the transform applied to bind values of the named
// field of the type of sample. The cached metadata of the type is
// invalidated.
func (r *Registry) RegisterTransform(sample any, field string, f TransformFunc) error {
	t, err := validateEntity(sample)
	if err != nil {
		return err
	}
	if _, ok := t.FieldByName(field); !ok {
		return fmt.Errorf("type %s has no field %q", t.Name(), field)
	}
	r.transforms.Store(transformKey{t: t, field: field}, f)
	r.entities.Delete(t)
	return nil
}

// generate produces the Entity of a struct type.
func (r *Registry) generate(t reflect.Type) (*Entity, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("can only reflect struct type, got %s", t.Kind())
	}
	e := &Entity{
		Type:     t,
		byName:   map[string]*Attribute{},
		byColumn: map[string]*Attribute{},
	}
	if err := r.addFields(e, t, nil); err != nil {
		return nil, fmt.Errorf("cannot reflect type %s: %w", t.Name(), err)
	}
	return e, nil
}

func (r *Registry) addFields(e *Entity, t reflect.Type, index []int) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldIndex := append(append([]int(nil), index...), i)
		tag := field.Tag.Get("db")
		// Untagged embedded structs contribute their own tagged fields.
		if tag == "" {
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				if err := r.addFields(e, field.Type, fieldIndex); err != nil {
					return err
				}
			}
			continue
		}
		if !field.IsExported() {
			return fmt.Errorf("field %q is not exported", field.Name)
		}
		column, omitEmpty, err := parseTag(tag)
		if err != nil {
			return fmt.Errorf("field %q: %w", field.Name, err)
		}
		if dup, ok := e.byColumn[column]; ok {
			return fmt.Errorf("fields %q and %q have the same tag %q", dup.Name, field.Name, column)
		}
		attr := &Attribute{
			Name:      field.Name,
			Column:    column,
			Index:     fieldIndex,
			Type:      field.Type,
			OmitEmpty: omitEmpty,

			owner:      e.Type,
			transforms: r.transforms,
		}
		if f, ok := r.transforms.Load(transformKey{t: e.Type, field: field.Name}); ok {
			attr.Transform = f
		}
		e.Attributes = append(e.Attributes, attr)
		e.byName[field.Name] = attr
		e.byColumn[column] = attr
	}
	return nil
}

// This expression should be aligned with the characters the compiler treats
// as part of a column name.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses the input tag string and returns its
// name and whether it contains the "omitempty" option.
func parseTag(tag string) (string, bool, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	// Refuse to parse if there are more than 2 items.
	if len(options) > 2 {
		return "", false, fmt.Errorf("too many options in 'db' tag")
	}
	if len(options) == 2 {
		if strings.ToLower(options[1]) != "omitempty" {
			return "", false, fmt.Errorf("unexpected tag value %q", options[1])
		}
		omitEmpty = true
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, fmt.Errorf("empty db tag")
	}

	if !validColNameRx.MatchString(name) {
		return "", false, fmt.Errorf("invalid column name in 'db' tag")
	}

	return name, omitEmpty, nil
}
