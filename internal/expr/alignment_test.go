// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr_test

import (
	"math/rand"

	. "gopkg.in/check.v1"

	"github.com/canonical/sqlcpo/criteria"
	"github.com/canonical/sqlcpo/internal/expr"
)

// treeGen builds random filter trees whose values are increasing integers,
// so that the expected bind order is the order values were generated in.
type treeGen struct {
	r      *rand.Rand
	next   int
	values []any
}

func (g *treeGen) value() int {
	g.next++
	g.values = append(g.values, g.next)
	return g.next
}

func (g *treeGen) leaf(logical criteria.Logical) *criteria.Tree {
	w := criteria.Where{Logical: logical, Attribute: "f"}
	switch g.r.Intn(7) {
	case 0:
		w.Comparison = criteria.IN
		vs := make([]int, g.r.Intn(4))
		for i := range vs {
			vs[i] = g.value()
		}
		w.Value = vs
	case 1:
		w.Comparison = criteria.ISNULL
	case 2:
		w.Comparison = criteria.EQ
		w.ValueFunction = "f || f"
		v := g.value()
		// The function repeats the value.
		g.values = append(g.values, v)
		w.Value = v
	case 3:
		w.Comparison = criteria.LIKE
		w.StaticValue = "'%?%'"
	case 4:
		w.Comparison = criteria.EQ
		w.ValueFunction = "UPPER(?)"
		w.Value = g.value()
	case 5:
		w.Comparison = criteria.NEQ
		w.ValueFunction = "COALESCE(f, ?, '?')"
		v := g.value()
		g.values = append(g.values, v)
		w.Value = v
	default:
		w.Comparison = criteria.GT
		w.Value = g.value()
	}
	w.Negate = g.r.Intn(4) == 0
	return criteria.New(w)
}

func (g *treeGen) tree(logical criteria.Logical, depth int) *criteria.Tree {
	if depth == 0 || g.r.Intn(3) == 0 {
		return g.leaf(logical)
	}
	t := criteria.New(criteria.Where{Logical: logical, Negate: g.r.Intn(4) == 0})
	n := 1 + g.r.Intn(3)
	for i := 0; i < n; i++ {
		childLogical := criteria.And
		if g.r.Intn(2) == 0 {
			childLogical = criteria.Or
		}
		if i == 0 {
			childLogical = criteria.LogicNone
		}
		t.Append(g.tree(childLogical, depth-1))
	}
	return t
}

// orderBy returns up to two sort specifications spliced at marker.
func (g *treeGen) orderBy(marker string) []criteria.OrderBy {
	var specs []criteria.OrderBy
	for i := g.r.Intn(3); i > 0; i-- {
		o := criteria.NewOrderBy("f", g.r.Intn(2) == 0).WithMarker(marker)
		if g.r.Intn(2) == 0 {
			o = o.WithFunction("LOWER(f)")
		}
		specs = append(specs, o)
	}
	return specs
}

var nativeTexts = []string{"", "LIMIT 10", "AND y <> '?'", "OFFSET 0"}

// native returns a fragment spliced at marker. Some fragments are empty and
// some hold quoted question marks.
func (g *treeGen) native(marker string) criteria.Native {
	return criteria.NewNative(marker, nativeTexts[g.r.Intn(len(nativeTexts))])
}

func (s *ExprSuite) TestRandomTreesStayAligned(c *C) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		g := &treeGen{r: r}
		before := g.value()
		inner := g.tree(criteria.LogicNone, 4).WithMarker("__INNER__")
		middle := g.value()
		outer := g.tree(criteria.And, 3)
		after := g.value()

		// Template values are taken out of the generated sequence and placed
		// where the template placeholders are.
		expected := append([]any{}, g.values...)
		args := []any{before, middle, after}

		where := []*criteria.Tree{inner, outer}
		if r.Intn(2) == 0 {
			where[0], where[1] = outer, inner
		}
		var orderBy []criteria.OrderBy
		orderBy = append(orderBy, g.orderBy("__INNER_ORDER__")...)
		orderBy = append(orderBy, g.orderBy("")...)
		natives := []criteria.Native{g.native("__HEAD__"), g.native("__MID__"), g.native("__TAIL__"), g.native("")}
		r.Shuffle(len(natives), func(i, j int) { natives[i], natives[j] = natives[j], natives[i] })

		qe, err := expr.Compile(expr.Input{
			Template: "SELECT * FROM t __HEAD__ WHERE a = ? AND b IN (SELECT b FROM u __INNER__ AND c = ? __INNER_ORDER__) " +
				"AND x = '?' __MID__ __CPO_WHERE__ AND d = ? __CPO_ORDERBY__ __TAIL__",
			Args:    args,
			Where:   where,
			OrderBy: orderBy,
			Native:  natives,
		})
		c.Assert(err, IsNil)

		binds := qe.QueryBinds()
		c.Assert(expr.CountPlaceholders(qe.QuerySQL()), Equals, len(binds), Commentf("iteration %d: %s", i, qe.QuerySQL()))
		values := make([]any, len(binds))
		for j, bv := range binds {
			values[j] = bv.Value
		}
		c.Assert(values, DeepEquals, expected, Commentf("iteration %d: %s", i, qe.QuerySQL()))
	}
}
