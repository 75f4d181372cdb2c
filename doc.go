// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
sqlcpo compiles declarative requests on Go structs into parameterized SQL
queries and runs them over database/sql.

A request is a base query template plus criteria: filter trees, sort
specifications and native fragments built with the criteria package. The
compiler turns the criteria into query text and splices it into the
template, producing the final SQL and the list of values bound to its
placeholders. The Nth value of the list is always bound to the Nth "?" of
the query, wherever the criteria text ends up.

# Basics

Given the tagged struct "Person":

	type Person struct {
		ID   int    `db:"id"`
		Name string `db:"name"`
		Age  int    `db:"age"`
	}

the request

	compiled, err := sqlcpo.Compile(sqlcpo.Request{
		Template: "SELECT * FROM person",
		Entity:   Person{},
		Where: []*criteria.Tree{
			criteria.NewWhere(criteria.LogicNone, "Age", criteria.GTEQ, 18),
		},
		OrderBy: []criteria.OrderBy{criteria.NewOrderBy("Name", true)},
	})

compiles to

	SELECT * FROM person  WHERE age >= ?  ORDER BY name ASC

with the single bind 18. Field names in the criteria are looked up in the
`db` tags of the entity. A name the entity does not know, such as "age"
above if Person had no Age field, is written into the query as it is.

# Markers

Criteria text is appended to the template unless the template contains
the marker of the criteria. __CPO_WHERE__ and __CPO_ORDERBY__ are the
default markers of filters and sort specifications; any other marker can
be set with WithMarker. Every occurrence of a marker is replaced, and the
binds of the spliced text are inserted among the binds of the template so
that placeholder order is kept:

	SELECT * FROM t WHERE owner = ? __CPO_WHERE__ AND id IN (SELECT id FROM u __U__)

Default markers that no criteria used are removed from the query.

# Running queries

A [Compiled] query is run on a [DB] or a [TX]:

	var adults []Person
	err := db.Query(ctx, compiled).GetAll(&adults)

[Query.Get], [Query.Iter] and [Query.Run] read a single row, iterate over
the rows and discard the results respectively. Rows are scanned into
structs by their `db` tags, or into maps with string keys such as [M].

Large results can be streamed through a bounded channel with [Stream]. The
query runs in its own goroutine and pauses while the channel is full:

	ch, err := sqlcpo.Stream[Person](ctx, db, compiled, 100)
	for {
		p, err := ch.Take(ctx)
		if err == io.EOF {
			break
		}
		...
	}

A consumer that stops taking before the end of the rows must call Cancel
on the channel.
*/
package sqlcpo
