package depgraph

import "fmt"

// NodeID is a stable handle into the graph's node arena. The zero value is never issued.
type NodeID uint32

// NoNode is the invalid NodeID.
const NoNode NodeID = 0

// IsValid reports whether the handle was issued by a graph.
func (id NodeID) IsValid() bool { return id != NoNode }

// NodeKind distinguishes the three kinds of declaration nodes.
type NodeKind uint8

const (
	KindFunction NodeKind = iota + 1
	KindType
	KindGlobal
)

func (k NodeKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindType:
		return "type"
	case KindGlobal:
		return "global"
	default:
		return "unknown"
	}
}

// RelationKind is the kind of a "uses" edge. It is determined by the destination node.
type RelationKind uint8

const (
	UsesType RelationKind = iota + 1
	UsesFunction
	UsesGlobal
)

func (k RelationKind) String() string {
	switch k {
	case UsesType:
		return "uses-type"
	case UsesFunction:
		return "uses-function"
	case UsesGlobal:
		return "uses-global"
	default:
		return "unknown"
	}
}

func relationKindFor(k NodeKind) RelationKind {
	switch k {
	case KindType:
		return UsesType
	case KindGlobal:
		return UsesGlobal
	default:
		return UsesFunction
	}
}

// Symbol identifies a function or global declaration. Scope is the declaring file.
type Symbol struct {
	Scope string
	Name  string
}

// Key returns the canonical string form used by wait conditions and unit targets.
func (s Symbol) Key() string {
	return s.Scope + ":" + s.Name
}

func (s Symbol) String() string {
	return s.Name
}

// Relation is a directed uses-edge between two nodes.
type Relation struct {
	Kind RelationKind
	From NodeID
	To   NodeID
}

// Node is a single declaration in the graph.
type Node struct {
	ID        NodeID
	Kind      NodeKind
	Name      string
	Symbol    Symbol
	Relations []Relation

	stamp uint32
}

// Use is one entity a declaration was found to use. Symbol is set for functions, globals and
// declared types, Type for structural types.
type Use struct {
	Kind   NodeKind
	Symbol Symbol
	Type   TypeExpr
}

// FunctionUse reports a use of the function declared as sym.
func FunctionUse(sym Symbol) Use { return Use{Kind: KindFunction, Symbol: sym} }

// GlobalUse reports a use of the global declared as sym.
func GlobalUse(sym Symbol) Use { return Use{Kind: KindGlobal, Symbol: sym} }

// TypeUse reports a use of the structural type t.
func TypeUse(t TypeExpr) Use { return Use{Kind: KindType, Type: t} }

// DeclaredTypeUse reports a use of the type declared as sym.
func DeclaredTypeUse(sym Symbol) Use { return Use{Kind: KindType, Symbol: sym} }

type declKey struct {
	kind NodeKind
	sym  Symbol
}

type edgeKey struct {
	from NodeID
	to   NodeID
}

// DependencyGraph holds uses-relations between function, type and global declarations.
// Nodes are arena allocated and referenced by NodeID. It is not safe for concurrent use;
// the scheduler goroutine owns it.
type DependencyGraph struct {
	nodes      []Node
	decls      map[declKey]NodeID
	edges      map[edgeKey]struct{}
	types      *typeTrie
	generation uint32
}

// New returns an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		// slot 0 backs NoNode
		nodes: make([]Node, 1, 64),
		decls: make(map[declKey]NodeID),
		edges: make(map[edgeKey]struct{}),
		types: newTypeTrie(),
	}
}

// FunctionNode returns the node for the function declared as sym, creating it on first use.
func (g *DependencyGraph) FunctionNode(sym Symbol) NodeID {
	return g.declNode(KindFunction, sym)
}

// GlobalNode returns the node for the global declared as sym, creating it on first use.
func (g *DependencyGraph) GlobalNode(sym Symbol) NodeID {
	return g.declNode(KindGlobal, sym)
}

// DeclaredTypeNode returns the node for the type declared as sym. Declared types are nominal:
// the same name declared in two files gives two nodes, and neither is shared with structural
// types spelled the same way.
func (g *DependencyGraph) DeclaredTypeNode(sym Symbol) NodeID {
	return g.declNode(KindType, sym)
}

func (g *DependencyGraph) declNode(kind NodeKind, sym Symbol) NodeID {
	key := declKey{kind: kind, sym: sym}
	if id, ok := g.decls[key]; ok {
		return id
	}
	id := g.alloc(kind, sym.Name)
	g.nodes[id].Symbol = sym
	g.decls[key] = id
	return id
}

func (g *DependencyGraph) alloc(kind NodeKind, name string) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, Node{ID: id, Kind: kind, Name: name})
	return id
}

// Lookup returns the node of an existing function, global or declared type.
func (g *DependencyGraph) Lookup(kind NodeKind, sym Symbol) (NodeID, bool) {
	id, ok := g.decls[declKey{kind: kind, sym: sym}]
	return id, ok
}

// Connect adds a uses-relation from one node to another. The relation kind follows the
// destination. It returns false when the relation already existed.
func (g *DependencyGraph) Connect(from, to NodeID) (Relation, bool) {
	rel := Relation{Kind: relationKindFor(g.nodes[to].Kind), From: from, To: to}
	key := edgeKey{from: from, to: to}
	if _, ok := g.edges[key]; ok {
		return rel, false
	}
	g.edges[key] = struct{}{}
	g.nodes[from].Relations = append(g.nodes[from].Relations, rel)
	return rel, true
}

// Fold connects from to the node of every use, creating nodes as needed, and returns
// the number of relations that were new.
func (g *DependencyGraph) Fold(from NodeID, uses []Use) int {
	added := 0
	for _, u := range uses {
		var to NodeID
		switch u.Kind {
		case KindFunction:
			to = g.FunctionNode(u.Symbol)
		case KindGlobal:
			to = g.GlobalNode(u.Symbol)
		case KindType:
			if u.Symbol != (Symbol{}) {
				to = g.DeclaredTypeNode(u.Symbol)
			} else {
				to = g.TypeNode(u.Type)
			}
		default:
			continue
		}
		if _, ok := g.Connect(from, to); ok {
			added++
		}
	}
	return added
}

// Node returns a copy of the node for id.
func (g *DependencyGraph) Node(id NodeID) Node {
	return g.nodes[id]
}

// Has reports whether id was issued by this graph.
func (g *DependencyGraph) Has(id NodeID) bool {
	return id.IsValid() && int(id) < len(g.nodes)
}

// Relations returns the outgoing relations of id in insertion order.
func (g *DependencyGraph) Relations(id NodeID) []Relation {
	return append([]Relation(nil), g.nodes[id].Relations...)
}

// HasRelation reports whether from uses to.
func (g *DependencyGraph) HasRelation(from, to NodeID) bool {
	_, ok := g.edges[edgeKey{from: from, to: to}]
	return ok
}

// Len returns the number of nodes.
func (g *DependencyGraph) Len() int {
	return len(g.nodes) - 1
}

// EdgeCount returns the number of relations.
func (g *DependencyGraph) EdgeCount() int {
	return len(g.edges)
}

// Nodes returns every node in ID order.
func (g *DependencyGraph) Nodes() []Node {
	return append([]Node(nil), g.nodes[1:]...)
}

// Label returns a human readable label for id.
func (g *DependencyGraph) Label(id NodeID) string {
	n := g.nodes[id]
	if n.Kind == KindType {
		if n.Symbol != (Symbol{}) {
			return "type " + n.Name
		}
		return n.Name
	}
	return fmt.Sprintf("%s %s", n.Kind, n.Name)
}
