package depgraph

import (
	"fmt"
	"strings"
)

// TypeExpr describes a type by its shape: a head constructor and ordered constituent types.
// Two TypeExprs with the same shape always intern to the same node.
type TypeExpr struct {
	Head string
	Args []TypeExpr
}

// Named returns a type without constituents, such as a builtin or a nominal declaration.
func Named(name string) TypeExpr {
	return TypeExpr{Head: name}
}

// PointerTo returns the pointer type to elem.
func PointerTo(elem TypeExpr) TypeExpr {
	return TypeExpr{Head: "*", Args: []TypeExpr{elem}}
}

// SliceOf returns the slice type of elem.
func SliceOf(elem TypeExpr) TypeExpr {
	return TypeExpr{Head: "[]", Args: []TypeExpr{elem}}
}

// FuncType returns the signature type with the given parameters and results. Arity is
// part of the head so (A, B) -> C and (A) -> (B, C) stay distinct.
func FuncType(params, results []TypeExpr) TypeExpr {
	args := make([]TypeExpr, 0, len(params)+len(results))
	args = append(args, params...)
	args = append(args, results...)
	return TypeExpr{Head: fmt.Sprintf("func/%d/%d", len(params), len(results)), Args: args}
}

func (t TypeExpr) String() string {
	var np, nr int
	if _, err := fmt.Sscanf(t.Head, "func/%d/%d", &np, &nr); err == nil && np+nr == len(t.Args) {
		params := make([]string, np)
		for i := range params {
			params[i] = t.Args[i].String()
		}
		results := make([]string, nr)
		for i := range results {
			results[i] = t.Args[np+i].String()
		}
		out := "(" + strings.Join(params, ", ") + ") -> "
		if nr == 1 {
			return out + results[0]
		}
		return out + "(" + strings.Join(results, ", ") + ")"
	}
	switch t.Head {
	case "*":
		if len(t.Args) == 1 {
			return "*" + t.Args[0].String()
		}
	case "[]":
		if len(t.Args) == 1 {
			return "[]" + t.Args[0].String()
		}
	}
	if len(t.Args) == 0 {
		return t.Head
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	return t.Head + "[" + strings.Join(args, ", ") + "]"
}

// trieKey is one step of a prefix-tree path: the head for the first step, then
// the node id of each constituent.
type trieKey struct {
	head string
	id   NodeID
}

type trieNode struct {
	children map[trieKey]*trieNode
	id       NodeID
}

type typeTrie struct {
	root *trieNode
}

func newTypeTrie() *typeTrie {
	return &typeTrie{root: &trieNode{children: make(map[trieKey]*trieNode)}}
}

func (n *trieNode) child(k trieKey) *trieNode {
	c, ok := n.children[k]
	if !ok {
		c = &trieNode{children: make(map[trieKey]*trieNode)}
		n.children[k] = c
	}
	return c
}

// TypeNode returns the node for the structural type t, creating it and any constituent
// type nodes on first use.
func (g *DependencyGraph) TypeNode(t TypeExpr) NodeID {
	args := make([]NodeID, len(t.Args))
	for i, a := range t.Args {
		args[i] = g.TypeNode(a)
	}

	n := g.types.root.child(trieKey{head: t.Head})
	for _, id := range args {
		n = n.child(trieKey{id: id})
	}
	if n.id.IsValid() {
		return n.id
	}

	id := g.alloc(KindType, t.String())
	n.id = id
	for _, a := range args {
		g.Connect(id, a)
	}
	return id
}

// LookupType returns the node for t without creating anything.
func (g *DependencyGraph) LookupType(t TypeExpr) (NodeID, bool) {
	n := g.types.root.children[trieKey{head: t.Head}]
	if n == nil {
		return NoNode, false
	}
	for _, a := range t.Args {
		id, ok := g.LookupType(a)
		if !ok {
			return NoNode, false
		}
		n = n.children[trieKey{id: id}]
		if n == nil {
			return NoNode, false
		}
	}
	return n.id, n.id.IsValid()
}
