// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package criteria contains the declarative building blocks of a sqlcpo
request: filter trees, sort specifications and native fragments.

A filter is a [Tree] of nodes. Leaf nodes hold a single comparison, for
example "Age > 30", and composite nodes group their children under a logical
operator:

	adults := criteria.NewWhere(criteria.LogicNone, "Age", criteria.GTEQ, 18)
	names := criteria.NewGroup(criteria.And,
		criteria.NewWhere(criteria.LogicNone, "Name", criteria.LIKE, "A%"),
		criteria.NewWhere(criteria.Or, "Name", criteria.LIKE, "B%"),
	)
	filter := criteria.NewGroup(criteria.LogicNone, adults, names)

compiles to

	WHERE age >= ? AND (name LIKE ? OR name LIKE ?)

The tree is stored as an arena: nodes are addressed by [NodeID] and every
node keeps the id of its parent and the ordered ids of its children. Adding
a subtree copies its nodes into the arena, so trees never share nodes.

Each child carries the logical operator that joins it to its preceding
sibling; the first child of a group normally has [LogicNone].
*/
package criteria
