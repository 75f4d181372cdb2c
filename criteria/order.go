// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package criteria

// DefaultOrderByMarker is the marker sort specifications are spliced into
// when they do not set one.
const DefaultOrderByMarker = "__CPO_ORDERBY__"

// OrderBy is a single sort specification. Specifications sharing a marker
// are rendered together as one ORDER BY list, in the order they were given.
type OrderBy struct {
	Attribute string
	Ascending bool
	// Function is a template containing Attribute, e.g. "LOWER(Name)".
	Function string
	Marker   string
}

// NewOrderBy returns a sort specification using the default marker.
func NewOrderBy(attribute string, ascending bool) OrderBy {
	return OrderBy{Attribute: attribute, Ascending: ascending}
}

// WithFunction returns a copy of o sorting on the function template.
func (o OrderBy) WithFunction(function string) OrderBy {
	o.Function = function
	return o
}

// WithMarker returns a copy of o spliced into marker.
func (o OrderBy) WithMarker(marker string) OrderBy {
	o.Marker = marker
	return o
}

// MarkerOrDefault returns the marker of o or DefaultOrderByMarker.
func (o OrderBy) MarkerOrDefault() string {
	if o.Marker == "" {
		return DefaultOrderByMarker
	}
	return o.Marker
}

// Native is raw query text spliced into a template at Marker, or appended
// when the marker is empty or absent. Native text is never parameterized.
type Native struct {
	Marker string
	Text   string
}

// NewNative returns a native fragment.
func NewNative(marker, text string) Native {
	return Native{Marker: marker, Text: text}
}
