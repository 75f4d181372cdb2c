// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package criteria

import (
	"fmt"
	"strings"
)

// DefaultWhereMarker is the marker a compiled filter is spliced into when the
// root node of the filter does not set one.
const DefaultWhereMarker = "__CPO_WHERE__"

// Logical is the operator joining a node to its preceding sibling.
type Logical int

const (
	LogicNone Logical = iota
	And
	Or
)

var logicalNames = map[Logical]string{
	LogicNone: "",
	And:       "AND",
	Or:        "OR",
}

// String returns the SQL keyword of the operator. LogicNone is the empty
// string.
func (l Logical) String() string {
	return logicalNames[l]
}

// ParseLogical parses "and", "or" and "none" (or the empty string),
// ignoring case.
func ParseLogical(s string) (Logical, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return LogicNone, nil
	case "and":
		return And, nil
	case "or":
		return Or, nil
	}
	return LogicNone, fmt.Errorf("unknown logical operator %q", s)
}

// Comparison is the operator of a leaf node.
type Comparison int

const (
	CompareNone Comparison = iota
	EQ
	LT
	GT
	NEQ
	IN
	LIKE
	LTEQ
	GTEQ
	EXISTS
	ISNULL
)

var comparisonTokens = map[Comparison]string{
	CompareNone: "",
	EQ:          "=",
	LT:          "<",
	GT:          ">",
	NEQ:         "<>",
	IN:          "IN",
	LIKE:        "LIKE",
	LTEQ:        "<=",
	GTEQ:        ">=",
	EXISTS:      "EXISTS",
	ISNULL:      "IS NULL",
}

var comparisonNames = map[string]Comparison{
	"":        CompareNone,
	"none":    CompareNone,
	"eq":      EQ,
	"lt":      LT,
	"gt":      GT,
	"neq":     NEQ,
	"in":      IN,
	"like":    LIKE,
	"lteq":    LTEQ,
	"gteq":    GTEQ,
	"exists":  EXISTS,
	"isnull":  ISNULL,
	"is null": ISNULL,
}

// String returns the SQL token of the comparison.
func (c Comparison) String() string {
	return comparisonTokens[c]
}

// ParseComparison accepts both the names ("gteq") and the SQL tokens (">=")
// of the comparisons, ignoring case.
func ParseComparison(s string) (Comparison, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if c, ok := comparisonNames[key]; ok {
		return c, nil
	}
	for c, token := range comparisonTokens {
		if token != "" && strings.EqualFold(token, key) {
			return c, nil
		}
	}
	return CompareNone, fmt.Errorf("unknown comparison %q", s)
}

// Where holds the state of a single node. Composite nodes only use Logical,
// Negate and Marker.
type Where struct {
	Logical    Logical
	Comparison Comparison
	// Negate prefixes the node with NOT.
	Negate bool

	// Attribute is the field on the left of the comparison. Names unknown to
	// the entity metadata are used as literal SQL.
	Attribute string
	// RightAttribute is a field compared against when Value is nil.
	RightAttribute string
	// Value is a scalar, or a slice or array when Comparison is IN.
	Value any
	// StaticValue is written verbatim as the right hand side. Value and
	// RightAttribute take precedence over it.
	StaticValue string

	// AttributeFunction, ValueFunction and RightAttributeFunction are
	// templates such as "UPPER(Name)". Every occurrence of the referenced
	// field name is replaced by its column, or by a placeholder for
	// ValueFunction.
	AttributeFunction      string
	ValueFunction          string
	RightAttributeFunction string

	// Marker names the template position the compiled filter is spliced
	// into. Only the marker of the root node is used.
	Marker string
}

// MarkerOrDefault returns the marker of the node or DefaultWhereMarker.
func (w Where) MarkerOrDefault() string {
	if w.Marker == "" {
		return DefaultWhereMarker
	}
	return w.Marker
}

func (w Where) String() string {
	var b strings.Builder
	if w.Logical != LogicNone {
		b.WriteString(w.Logical.String() + " ")
	}
	if w.Negate {
		b.WriteString("NOT ")
	}
	b.WriteString(w.Attribute)
	if w.Comparison != CompareNone {
		b.WriteString(" " + w.Comparison.String())
	}
	switch {
	case w.Value != nil:
		fmt.Fprintf(&b, " %v", w.Value)
	case w.RightAttribute != "":
		b.WriteString(" " + w.RightAttribute)
	case w.StaticValue != "":
		b.WriteString(" " + w.StaticValue)
	}
	return strings.TrimSpace(b.String())
}
