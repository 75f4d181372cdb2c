// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package criteria

import (
	"fmt"
	"strings"
)

// NodeID addresses a node inside a Tree.
type NodeID int

// NoNode is returned by navigation methods when there is no such node.
const NoNode NodeID = -1

type node struct {
	where    Where
	parent   NodeID
	children []NodeID
}

// Tree is a filter tree. The zero value is not usable, trees are built with
// New, NewWhere and NewGroup.
type Tree struct {
	nodes []node
	root  NodeID
}

// New returns a tree holding a single root node.
func New(w Where) *Tree {
	return &Tree{
		nodes: []node{{where: w, parent: NoNode}},
		root:  0,
	}
}

// NewWhere returns a tree holding a single comparison.
func NewWhere(logical Logical, attribute string, comparison Comparison, value any) *Tree {
	return New(Where{
		Logical:    logical,
		Attribute:  attribute,
		Comparison: comparison,
		Value:      value,
	})
}

// NewGroup returns a tree whose root joins copies of the children with the
// logical operator.
func NewGroup(logical Logical, children ...*Tree) *Tree {
	t := New(Where{Logical: logical})
	for _, c := range children {
		t.Append(c)
	}
	return t
}

// Root returns the id of the root node.
func (t *Tree) Root() NodeID {
	return t.root
}

// Len returns the number of nodes reachable from the root.
func (t *Tree) Len() int {
	n := 0
	var count func(id NodeID)
	count = func(id NodeID) {
		n++
		for _, c := range t.nodes[id].children {
			count(c)
		}
	}
	count(t.root)
	return n
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

func (t *Tree) check(id NodeID) error {
	if !t.valid(id) {
		return fmt.Errorf("node %d not in tree", id)
	}
	return nil
}

// Get returns the state of the node.
func (t *Tree) Get(id NodeID) Where {
	if !t.valid(id) {
		return Where{}
	}
	return t.nodes[id].where
}

// Set replaces the state of the node.
func (t *Tree) Set(id NodeID, w Where) error {
	if err := t.check(id); err != nil {
		return err
	}
	t.nodes[id].where = w
	return nil
}

// Update applies f to the state of the node.
func (t *Tree) Update(id NodeID, f func(w *Where)) error {
	if err := t.check(id); err != nil {
		return err
	}
	f(&t.nodes[id].where)
	return nil
}

// Parent returns the parent of the node.
func (t *Tree) Parent(id NodeID) (NodeID, bool) {
	if !t.valid(id) || t.nodes[id].parent == NoNode {
		return NoNode, false
	}
	return t.nodes[id].parent, true
}

// HasParent reports whether the node is attached below another node.
func (t *Tree) HasParent(id NodeID) bool {
	_, ok := t.Parent(id)
	return ok
}

// IsLeaf reports whether the node has no children.
func (t *Tree) IsLeaf(id NodeID) bool {
	return t.valid(id) && len(t.nodes[id].children) == 0
}

// Children returns the ids of the children of the node in order.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	return append([]NodeID(nil), t.nodes[id].children...)
}

// FirstChild returns the first child of the node.
func (t *Tree) FirstChild(id NodeID) (NodeID, bool) {
	if !t.valid(id) || len(t.nodes[id].children) == 0 {
		return NoNode, false
	}
	return t.nodes[id].children[0], true
}

// NextSibling returns the sibling following the node.
func (t *Tree) NextSibling(id NodeID) (NodeID, bool) {
	return t.sibling(id, 1)
}

// PrevSibling returns the sibling preceding the node.
func (t *Tree) PrevSibling(id NodeID) (NodeID, bool) {
	return t.sibling(id, -1)
}

func (t *Tree) sibling(id NodeID, step int) (NodeID, bool) {
	parent, ok := t.Parent(id)
	if !ok {
		return NoNode, false
	}
	siblings := t.nodes[parent].children
	for i, s := range siblings {
		if s == id {
			j := i + step
			if j < 0 || j >= len(siblings) {
				return NoNode, false
			}
			return siblings[j], true
		}
	}
	return NoNode, false
}

// Append adds a copy of sub as the last child of the root and returns the
// id of the copied root of sub.
func (t *Tree) Append(sub *Tree) NodeID {
	id, _ := t.AddChild(t.root, sub)
	return id
}

// AddChild adds a copy of sub as the last child of parent and returns the id
// of the copied root of sub. Later changes to sub do not affect t.
func (t *Tree) AddChild(parent NodeID, sub *Tree) (NodeID, error) {
	if err := t.check(parent); err != nil {
		return NoNode, err
	}
	if sub == nil {
		return NoNode, fmt.Errorf("cannot add nil tree")
	}
	id := t.copyFrom(sub, sub.root, parent)
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id, nil
}

// copyFrom copies the subtree of src rooted at id into t below parent.
func (t *Tree) copyFrom(src *Tree, id NodeID, parent NodeID) NodeID {
	newID := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{where: src.nodes[id].where, parent: parent})
	for _, c := range src.nodes[id].children {
		cid := t.copyFrom(src, c, newID)
		t.nodes[newID].children = append(t.nodes[newID].children, cid)
	}
	return newID
}

// Detach removes the node from its parent and returns its subtree as a new
// tree. The root cannot be detached.
func (t *Tree) Detach(id NodeID) (*Tree, error) {
	if err := t.check(id); err != nil {
		return nil, err
	}
	parent, ok := t.Parent(id)
	if !ok {
		return nil, fmt.Errorf("cannot detach node %d: node has no parent", id)
	}
	siblings := t.nodes[parent].children
	for i, s := range siblings {
		if s == id {
			t.nodes[parent].children = append(siblings[:i:i], siblings[i+1:]...)
			break
		}
	}
	sub := &Tree{}
	sub.root = sub.copyFrom(t, id, NoNode)
	// The detached nodes stay in the arena but are no longer reachable.
	t.nodes[id].parent = NoNode
	return sub, nil
}

// Subtree returns a copy of the subtree rooted at id. The copy has no parent.
func (t *Tree) Subtree(id NodeID) (*Tree, error) {
	if err := t.check(id); err != nil {
		return nil, err
	}
	sub := &Tree{}
	sub.root = sub.copyFrom(t, id, NoNode)
	return sub, nil
}

// Clone returns a compact copy of the reachable part of the tree.
func (t *Tree) Clone() *Tree {
	c, _ := t.Subtree(t.root)
	return c
}

// With applies f to the root node and returns the tree, for use when
// building trees inline.
func (t *Tree) With(f func(w *Where)) *Tree {
	f(&t.nodes[t.root].where)
	return t
}

// Not negates the root node.
func (t *Tree) Not() *Tree {
	return t.With(func(w *Where) { w.Negate = true })
}

// WithMarker sets the marker the tree is spliced into.
func (t *Tree) WithMarker(marker string) *Tree {
	return t.With(func(w *Where) { w.Marker = marker })
}

// String renders the tree structure for debugging, one node per line.
func (t *Tree) String() string {
	var b strings.Builder
	var write func(id NodeID, depth int)
	write = func(id NodeID, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		w := t.nodes[id].where
		if t.IsLeaf(id) {
			b.WriteString(w.String())
		} else {
			b.WriteString(strings.TrimSpace(fmt.Sprintf("%s group", w.Logical)))
		}
		b.WriteString("\n")
		for _, c := range t.nodes[id].children {
			write(c, depth+1)
		}
	}
	write(t.root, 0)
	return b.String()
}
