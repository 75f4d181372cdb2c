// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package expr compiles sqlcpo requests into SQL text and the ordered list of
values bound to its placeholders. It does not interact with databases.

Compilation runs in three stages.

# Clause stage

Each filter tree is walked depth first. Composite nodes write their logical
operator and parentheses, leaf nodes write a single comparison. Values are
never written into the text: every value produces a "?" placeholder and a
BindValue, appended in the same order the placeholders are written.

# Fragment stage

Sort specifications are grouped by marker into ORDER BY lists and native
fragments are taken as they are.

# Splice stage

Every fragment is merged into the template. When the fragment's marker occurs
in the text, each occurrence is replaced and the fragment's bind values are
inserted into the global list at the number of unquoted placeholders that
precede the occurrence. Otherwise the fragment is appended and its bind
values are appended too. After splicing, the Nth placeholder of the text
always corresponds to the Nth bind value.

The stages hold no state between calls, so compilations may run
concurrently.
*/
package expr
