// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"github.com/canonical/sqlcpo/criteria"
)

// fragment is compiled text waiting to be spliced into a template.
type fragment struct {
	marker string
	text   string
	binds  []BindValue
}

// compileOrderBy groups the sort specifications by marker, in order of first
// appearance, and returns one " ORDER BY ..." fragment per marker.
func compileOrderBy(orders []criteria.OrderBy, resolver ColumnResolver) ([]fragment, error) {
	var markers []string
	specs := map[string][]string{}
	for _, o := range orders {
		col, _, err := resolveColumn(resolver, o.Attribute, o.Function)
		if err != nil {
			return nil, err
		}
		dir := "DESC"
		if o.Ascending {
			dir = "ASC"
		}
		m := o.MarkerOrDefault()
		if _, ok := specs[m]; !ok {
			markers = append(markers, m)
		}
		specs[m] = append(specs[m], col+" "+dir)
	}

	frags := make([]fragment, 0, len(markers))
	for _, m := range markers {
		var b sqlBuilder
		b.write(" ORDER BY ")
		b.writeCommaSeparatedList(specs[m], func(_ int, s string) string { return s })
		frags = append(frags, fragment{marker: m, text: b.getSQL()})
	}
	return frags, nil
}

// nativeFragments skips natives with empty text.
func nativeFragments(natives []criteria.Native) []fragment {
	var frags []fragment
	for _, n := range natives {
		if n.Text == "" {
			continue
		}
		frags = append(frags, fragment{marker: n.Marker, text: n.Text})
	}
	return frags
}
