// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package criteria

// Visitor is called by Walk for every node of a tree in depth-first order.
// Composite nodes get Begin, then Middle between consecutive children, then
// End. Leaf nodes get a single Visit. Returning an error stops the walk.
type Visitor interface {
	Begin(t *Tree, id NodeID) error
	Middle(t *Tree, id NodeID) error
	End(t *Tree, id NodeID) error
	Visit(t *Tree, id NodeID) error
}

// Walk visits the tree from its root.
func (t *Tree) Walk(v Visitor) error {
	return t.WalkFrom(t.root, v)
}

// WalkFrom visits the subtree rooted at id. The node keeps its position in
// the tree, so HasParent reports true for a node that is not the root.
func (t *Tree) WalkFrom(id NodeID, v Visitor) error {
	if err := t.check(id); err != nil {
		return err
	}
	children := t.nodes[id].children
	if len(children) == 0 {
		return v.Visit(t, id)
	}
	if err := v.Begin(t, id); err != nil {
		return err
	}
	for i, c := range children {
		if i > 0 {
			if err := v.Middle(t, id); err != nil {
				return err
			}
		}
		if err := t.WalkFrom(c, v); err != nil {
			return err
		}
	}
	return v.End(t, id)
}

// VisitorFuncs adapts plain functions to a Visitor. Nil functions are
// skipped.
type VisitorFuncs struct {
	BeginFunc  func(t *Tree, id NodeID) error
	MiddleFunc func(t *Tree, id NodeID) error
	EndFunc    func(t *Tree, id NodeID) error
	VisitFunc  func(t *Tree, id NodeID) error
}

func (v VisitorFuncs) Begin(t *Tree, id NodeID) error  { return call(v.BeginFunc, t, id) }
func (v VisitorFuncs) Middle(t *Tree, id NodeID) error { return call(v.MiddleFunc, t, id) }
func (v VisitorFuncs) End(t *Tree, id NodeID) error    { return call(v.EndFunc, t, id) }
func (v VisitorFuncs) Visit(t *Tree, id NodeID) error  { return call(v.VisitFunc, t, id) }

func call(f func(*Tree, NodeID) error, t *Tree, id NodeID) error {
	if f == nil {
		return nil
	}
	return f(t, id)
}
