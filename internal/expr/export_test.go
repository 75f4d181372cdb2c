// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

var (
	CountPlaceholders = countPlaceholders
	ReplaceName       = replaceName
)
