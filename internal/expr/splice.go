// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"slices"
	"strings"

	"github.com/canonical/sqlcpo/criteria"
)

// legacyMarkers are removed from the text once all fragments are spliced.
var legacyMarkers = []string{criteria.DefaultWhereMarker, criteria.DefaultOrderByMarker}

// splice merges f into sql. If the marker of f occurs in sql, every
// occurrence is replaced by the fragment text and the fragment binds are
// inserted into binds at the number of placeholders preceding the
// occurrence. Otherwise the text is appended after a space and the binds are
// appended.
func splice(sql string, binds []BindValue, f fragment) (string, []BindValue) {
	if f.marker == "" || !strings.Contains(sql, f.marker) {
		return sql + " " + f.text, append(binds, f.binds...)
	}
	pos := 0
	for {
		i := strings.Index(sql[pos:], f.marker)
		if i < 0 {
			break
		}
		i += pos
		// Placeholders of earlier fragments are already in sql and their
		// binds are already in binds, so the count is the insert index.
		at := countPlaceholders(sql[:i])
		sql = sql[:i] + f.text + sql[i+len(f.marker):]
		binds = slices.Insert(binds, at, f.binds...)
		pos = i + len(f.text)
	}
	return sql, binds
}

// removeLegacyMarkers deletes the default markers left in sql.
func removeLegacyMarkers(sql string) string {
	for _, m := range legacyMarkers {
		sql = strings.ReplaceAll(sql, m, "")
	}
	return sql
}
