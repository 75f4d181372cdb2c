// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeinfo contains the entity metadata used by sqlcpo. As much as
possible, reflection code is limited to this package. It reads the `db` tags
of entity structs into [Entity] descriptions, resolves logical field names to
columns for the compiler and scans query results back into structs and maps.

Metadata is cached in a [Registry] which is passed explicitly to the
components that need it. Cached entries are loaded once per type and dropped
with [Registry.Invalidate] or [Registry.InvalidateAll].
*/
package typeinfo
