// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"bytes"
)

// sqlBuilder is used to generate SQL string piece by piece using the struct
// methods.
type sqlBuilder struct {
	buf bytes.Buffer
}

// writeToken writes a SQL token separated from the previous one by a single
// space. No space is written at the start of the SQL or after an opening
// parenthesis.
func (b *sqlBuilder) writeToken(token string) {
	if token == "" {
		return
	}
	if n := b.buf.Len(); n > 0 {
		last := b.buf.Bytes()[n-1]
		if last != ' ' && last != '(' {
			b.buf.WriteByte(' ')
		}
	}
	b.buf.WriteString(token)
}

// writeList writes a parenthesised, comma separated list.
func (b *sqlBuilder) writeList(items []string) {
	b.writeToken("(")
	b.writeCommaSeparatedList(items, func(_ int, s string) string {
		return s
	})
	b.buf.WriteString(")")
}

// writeCommaSeparatedList writes out the provided list using the writer to
// write each element into the SQL.
func (b *sqlBuilder) writeCommaSeparatedList(list []string, writer func(i int, s string) string) {
	for i, s := range list {
		if i != 0 {
			b.buf.WriteString(", ")
		}
		b.buf.WriteString(writer(i, s))
	}
}

// write writes the SQL to the sqlBuilder.
func (b *sqlBuilder) write(sql string) {
	b.buf.WriteString(sql)
}

// getSQL returns the generated SQL string
func (b *sqlBuilder) getSQL() string {
	return b.buf.String()
}
