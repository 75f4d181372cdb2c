// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"

	"github.com/canonical/sqlcpo/criteria"
)

// Input holds everything a query is compiled from.
type Input struct {
	// Template is the SQL text fragments are spliced into. Its own
	// placeholders are bound to Args in order.
	Template string
	Args     []any
	// Resolver maps field names to columns. If nil, names are used as
	// literal SQL.
	Resolver ColumnResolver
	Where    []*criteria.Tree
	OrderBy  []criteria.OrderBy
	Native   []criteria.Native
}

// QueryExpr is SQL text with the values for its placeholders, in order.
type QueryExpr struct {
	sql   string
	binds []BindValue
}

// QuerySQL returns the SQL text.
func (qe *QueryExpr) QuerySQL() string {
	return qe.sql
}

// QueryBinds returns the bind values, one per placeholder.
func (qe *QueryExpr) QueryBinds() []BindValue {
	return qe.binds
}

// Compile turns in into a QueryExpr. Filter trees are spliced first, in
// order, then ORDER BY lists, then native fragments. Default markers left in
// the text are removed at the end.
func Compile(in Input) (qe *QueryExpr, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile query: %w", err)
		}
	}()

	resolver := in.Resolver
	if resolver == nil {
		resolver = noColumns{}
	}

	if n := countPlaceholders(in.Template); n != len(in.Args) {
		return nil, fmt.Errorf("template has %d placeholders but %d arguments were given", n, len(in.Args))
	}
	binds := make([]BindValue, 0, len(in.Args))
	for i, a := range in.Args {
		binds = append(binds, BindValue{Name: fmt.Sprintf("arg%d", i), Value: a})
	}

	var frags []fragment
	for i, t := range in.Where {
		if t == nil {
			continue
		}
		text, whereBinds, err := CompileWhere(t, t.Root(), resolver)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		if text == "" {
			continue
		}
		frags = append(frags, fragment{marker: t.Get(t.Root()).MarkerOrDefault(), text: text, binds: whereBinds})
	}
	orders, err := compileOrderBy(in.OrderBy, resolver)
	if err != nil {
		return nil, fmt.Errorf("order by: %w", err)
	}
	frags = append(frags, orders...)
	frags = append(frags, nativeFragments(in.Native)...)

	sql := in.Template
	for _, f := range frags {
		sql, binds = splice(sql, binds, f)
	}
	return &QueryExpr{sql: removeLegacyMarkers(sql), binds: binds}, nil
}
