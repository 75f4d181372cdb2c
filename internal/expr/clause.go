// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"database/sql/driver"
	"fmt"
	"reflect"

	"github.com/canonical/sqlcpo/criteria"
	"github.com/canonical/sqlcpo/internal/typeinfo"
)

// clauseBuilder compiles a filter tree into SQL text and the values bound to
// its placeholders.
type clauseBuilder struct {
	resolver ColumnResolver
	// start is the node compilation started from.
	start criteria.NodeID
	b     sqlBuilder
	binds []BindValue
}

var _ criteria.Visitor = (*clauseBuilder)(nil)

// CompileWhere compiles the subtree rooted at id. The returned text starts
// with a single space unless it is empty. The Nth placeholder in the text
// corresponds to the Nth bind value.
func CompileWhere(t *criteria.Tree, id criteria.NodeID, resolver ColumnResolver) (string, []BindValue, error) {
	if resolver == nil {
		resolver = noColumns{}
	}
	cb := &clauseBuilder{resolver: resolver, start: id}
	if err := t.WalkFrom(id, cb); err != nil {
		return "", nil, err
	}
	sql := cb.b.getSQL()
	if sql == "" {
		return "", nil, nil
	}
	return " " + sql, cb.binds, nil
}

// outermost reports whether the node opens the whole WHERE clause.
func (cb *clauseBuilder) outermost(t *criteria.Tree, id criteria.NodeID, w criteria.Where) bool {
	return id == cb.start && !t.HasParent(id) && w.Logical == criteria.LogicNone
}

// prefix writes the keyword or logical operator that introduces a node.
func (cb *clauseBuilder) prefix(t *criteria.Tree, id criteria.NodeID, w criteria.Where) {
	if cb.outermost(t, id, w) {
		cb.b.writeToken("WHERE")
	} else if w.Logical != criteria.LogicNone {
		cb.b.writeToken(w.Logical.String())
	}
	if w.Negate {
		cb.b.writeToken("NOT")
	}
}

func parenthesised(t *criteria.Tree, id criteria.NodeID, w criteria.Where) bool {
	return t.HasParent(id) || w.Logical != criteria.LogicNone || w.Negate
}

// Begin opens a composite node.
func (cb *clauseBuilder) Begin(t *criteria.Tree, id criteria.NodeID) error {
	w := t.Get(id)
	cb.prefix(t, id, w)
	if parenthesised(t, id, w) {
		cb.b.writeToken("(")
	}
	return nil
}

// Middle writes nothing, children carry their own logical operator.
func (cb *clauseBuilder) Middle(*criteria.Tree, criteria.NodeID) error {
	return nil
}

// End closes a composite node.
func (cb *clauseBuilder) End(t *criteria.Tree, id criteria.NodeID) error {
	if parenthesised(t, id, t.Get(id)) {
		cb.b.write(")")
	}
	return nil
}

// Visit writes a single comparison.
func (cb *clauseBuilder) Visit(t *criteria.Tree, id criteria.NodeID) error {
	w := t.Get(id)
	cb.prefix(t, id, w)

	left, attr, err := resolveColumn(cb.resolver, w.Attribute, w.AttributeFunction)
	if err != nil {
		return err
	}
	cb.b.writeToken(left)
	if w.Comparison != criteria.CompareNone {
		cb.b.writeToken(w.Comparison.String())
	}

	switch {
	case w.Comparison == criteria.ISNULL:
	case w.Value != nil:
		return cb.value(w, attr)
	case w.RightAttribute != "":
		right, _, err := resolveColumn(cb.resolver, w.RightAttribute, w.RightAttributeFunction)
		if err != nil {
			return err
		}
		cb.b.writeToken(right)
	case w.StaticValue != "":
		cb.b.writeToken(w.StaticValue)
	case w.Comparison != criteria.CompareNone && w.Comparison != criteria.EXISTS:
		// A binary comparison without any right hand side binds NULL.
		return cb.value(w, attr)
	}
	return nil
}

// value writes the placeholders for the value of w and records a bind value
// for each of them.
func (cb *clauseBuilder) value(w criteria.Where, attr *typeinfo.Attribute) error {
	elems, isCollection := collection(w.Value)
	if isCollection && w.Comparison != criteria.IN {
		return fmt.Errorf("attribute %q: collection value used with comparison %q", w.Attribute, w.Comparison.String())
	}
	if w.Comparison != criteria.IN {
		text, err := cb.placeholder(w, attr, w.Value)
		if err != nil {
			return err
		}
		cb.b.writeToken(text)
		return nil
	}
	if !isCollection {
		elems = []any{w.Value}
	}
	if len(elems) == 0 {
		// IN () is not valid SQL, and no row matches an empty list.
		cb.b.writeList([]string{"NULL"})
		return nil
	}
	items := make([]string, len(elems))
	for i, e := range elems {
		text, err := cb.placeholder(w, attr, e)
		if err != nil {
			return err
		}
		items[i] = text
	}
	cb.b.writeList(items)
	return nil
}

// placeholder returns the text for a single value. Without a value function
// this is a single placeholder. With one, every occurrence of the attribute
// name in the function becomes a placeholder, and every unquoted placeholder
// in the result is bound to v.
func (cb *clauseBuilder) placeholder(w criteria.Where, attr *typeinfo.Attribute, v any) (string, error) {
	text, n := "?", 1
	if w.ValueFunction != "" {
		text, _ = replaceName(w.ValueFunction, w.Attribute, "?")
		n = countPlaceholders(text)
		if n == 0 {
			return "", fmt.Errorf("value function %q does not reference attribute %q", w.ValueFunction, w.Attribute)
		}
	}
	for i := 0; i < n; i++ {
		cb.binds = append(cb.binds, BindValue{Attribute: attr, Name: w.Attribute, Value: v})
	}
	return text, nil
}

// resolveColumn returns the column text for a field name, applying the
// function template if there is one. Unknown names are used as they are and
// yield a nil attribute.
func resolveColumn(resolver ColumnResolver, name, function string) (string, *typeinfo.Attribute, error) {
	if name == "" {
		return function, nil, nil
	}
	attr, ok, err := resolver.ResolveColumn(name)
	if err != nil {
		return "", nil, fmt.Errorf("attribute %q: %w", name, err)
	}
	col := name
	if ok {
		col = attr.Column
	} else {
		attr = nil
	}
	if function != "" {
		col, _ = replaceName(function, name, col)
	}
	return col, attr, nil
}

var valuerInterface = reflect.TypeOf((*driver.Valuer)(nil)).Elem()

// collection returns the elements of v if it is a slice or array. Byte
// slices and driver.Valuer implementations are scalars.
func collection(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type().Implements(valuerInterface) {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	case reflect.Array:
	default:
		return nil, false
	}
	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	return elems, true
}
