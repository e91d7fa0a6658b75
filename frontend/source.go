package frontend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	tsgolang "github.com/smacker/go-tree-sitter/golang"

	"github.com/LegacyCodeHQ/sequencer/depgraph"
)

// ErrSyntax is returned for files tree-sitter cannot parse cleanly.
var ErrSyntax = errors.New("syntax error")

const messageDirective = "//sequencer:message"

// declInfo is everything later phases need to know about one top-level declaration.
type declInfo struct {
	Name      string
	Kind      depgraph.NodeKind
	Signature depgraph.TypeExpr
	// Refs are identifiers the declaration references that are not local to it, in source order.
	Refs []string
	// TypeRefs are type names the declaration references.
	TypeRefs []string
	Awaits   []string
	AddFiles []string
	Overload bool
	Message  bool
}

// fileSummary is the result of parsing one file.
type fileSummary struct {
	Path    string
	Imports []string
	Decls   []*declInfo
}

func (s *fileSummary) decl(name string) *declInfo {
	for _, d := range s.Decls {
		if d.Name == name {
			return d
		}
	}
	return nil
}

var builtins = map[string]bool{
	"bool": true, "byte": true, "complex64": true, "complex128": true,
	"error": true, "float32": true, "float64": true, "int": true,
	"int8": true, "int16": true, "int32": true, "int64": true,
	"rune": true, "string": true, "uint": true, "uint8": true,
	"uint16": true, "uint32": true, "uint64": true, "uintptr": true, "any": true,
	"true": true, "false": true, "iota": true, "nil": true,
	"append": true, "cap": true, "close": true, "complex": true,
	"copy": true, "delete": true, "imag": true, "len": true,
	"make": true, "new": true, "panic": true, "print": true,
	"println": true, "real": true, "recover": true, "min": true, "max": true, "clear": true,
	// compiler intrinsics understood by the front end
	"await": true, "add_file": true, "overload": true,
}

// lex builds the syntax tree for content and rejects files with syntax errors.
func lex(ctx context.Context, path string, content []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(tsgolang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if bad := firstError(tree.RootNode()); bad != nil {
		tree.Close()
		p := bad.StartPoint()
		return nil, fmt.Errorf("%w: %s:%d:%d", ErrSyntax, path, p.Row+1, p.Column+1)
	}
	return tree, nil
}

func firstError(n *sitter.Node) *sitter.Node {
	if n == nil || !n.HasError() {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return n
}

const importQueryPattern = `
(import_spec
  path: (interpreted_string_literal) @import.path)
`

// summarize extracts imports and top-level declarations from a syntax tree.
func summarize(path string, tree *sitter.Tree, src []byte) (*fileSummary, error) {
	root := tree.RootNode()
	imports, packages, err := queryImports(root, src)
	if err != nil {
		return nil, err
	}
	summary := &fileSummary{Path: path, Imports: imports}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "function_declaration":
			summary.Decls = append(summary.Decls, functionDecl(node, src))
		case "type_declaration":
			for _, spec := range specs(node, "type_spec") {
				summary.Decls = append(summary.Decls, typeDecl(spec, src))
			}
		case "var_declaration":
			for _, spec := range specs(node, "var_spec") {
				summary.Decls = append(summary.Decls, valueDecls(spec, src)...)
			}
		case "const_declaration":
			for _, spec := range specs(node, "const_spec") {
				summary.Decls = append(summary.Decls, valueDecls(spec, src)...)
			}
		}
	}

	for _, d := range summary.Decls {
		refs := d.Refs[:0]
		for _, ref := range d.Refs {
			if !packages[ref] {
				refs = append(refs, ref)
			}
		}
		d.Refs = refs
	}
	return summary, nil
}

// queryImports returns the file imports and the names that package imports bind.
func queryImports(root *sitter.Node, src []byte) ([]string, map[string]bool, error) {
	query, err := sitter.NewQuery([]byte(importQueryPattern), tsgolang.GetLanguage())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create query: %w", err)
	}
	defer query.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, root)

	var files []string
	packages := make(map[string]bool)
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		match = cursor.FilterPredicates(match, src)
		for _, capture := range match.Captures {
			path := unquote(capture.Node.Content(src))
			// only file imports name other compilation inputs
			if strings.HasSuffix(path, ".go") {
				files = append(files, path)
				continue
			}
			name := path[strings.LastIndex(path, "/")+1:]
			if spec := capture.Node.Parent(); spec != nil {
				if alias := spec.ChildByFieldName("name"); alias != nil {
					name = alias.Content(src)
				}
			}
			packages[name] = true
		}
	}
	return files, packages, nil
}

// specs returns the nodes of the given type under a declaration, looking through grouping nodes.
func specs(n *sitter.Node, kind string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == kind {
			out = append(out, child)
			continue
		}
		out = append(out, specs(child, kind)...)
	}
	return out
}

func functionDecl(n *sitter.Node, src []byte) *declInfo {
	d := &declInfo{Kind: depgraph.KindFunction}
	if name := n.ChildByFieldName("name"); name != nil {
		d.Name = name.Content(src)
	}
	if prev := n.PrevNamedSibling(); prev != nil && prev.Type() == "comment" && prev.EndPoint().Row+1 >= n.StartPoint().Row {
		d.Message = strings.TrimSpace(prev.Content(src)) == messageDirective
	}

	var params, results []depgraph.TypeExpr
	if p := n.ChildByFieldName("parameters"); p != nil {
		params = parameterTypes(p, src)
	}
	if r := n.ChildByFieldName("result"); r != nil {
		if r.Type() == "parameter_list" {
			results = parameterTypes(r, src)
		} else {
			results = []depgraph.TypeExpr{typeExpr(r, src)}
		}
	}
	d.Signature = depgraph.FuncType(params, results)

	collectRefs(d, n, src)
	return d
}

func typeDecl(spec *sitter.Node, src []byte) *declInfo {
	d := &declInfo{Kind: depgraph.KindType}
	if name := spec.ChildByFieldName("name"); name != nil {
		d.Name = name.Content(src)
	}
	d.Signature = depgraph.Named(d.Name)
	collectRefs(d, spec, src)
	return d
}

func valueDecls(spec *sitter.Node, src []byte) []*declInfo {
	var names []string
	for i := 0; i < int(spec.NamedChildCount()); i++ {
		child := spec.NamedChild(i)
		if child.Type() == "identifier" {
			names = append(names, child.Content(src))
		}
	}
	var sig depgraph.TypeExpr
	if t := spec.ChildByFieldName("type"); t != nil {
		sig = typeExpr(t, src)
	}

	out := make([]*declInfo, 0, len(names))
	for _, name := range names {
		d := &declInfo{Name: name, Kind: depgraph.KindGlobal, Signature: sig}
		collectRefs(d, spec, src)
		out = append(out, d)
	}
	return out
}

func parameterTypes(list *sitter.Node, src []byte) []depgraph.TypeExpr {
	var out []depgraph.TypeExpr
	for i := 0; i < int(list.NamedChildCount()); i++ {
		param := list.NamedChild(i)
		t := param.ChildByFieldName("type")
		if t == nil {
			continue
		}
		te := typeExpr(t, src)
		if param.Type() == "variadic_parameter_declaration" {
			te = depgraph.SliceOf(te)
		}
		names := 0
		for j := 0; j < int(param.NamedChildCount()); j++ {
			if param.NamedChild(j).Type() == "identifier" {
				names++
			}
		}
		if names == 0 {
			names = 1
		}
		for ; names > 0; names-- {
			out = append(out, te)
		}
	}
	return out
}

func typeExpr(n *sitter.Node, src []byte) depgraph.TypeExpr {
	switch n.Type() {
	case "pointer_type":
		if n.NamedChildCount() > 0 {
			return depgraph.PointerTo(typeExpr(n.NamedChild(0), src))
		}
	case "slice_type":
		if elem := n.ChildByFieldName("element"); elem != nil {
			return depgraph.SliceOf(typeExpr(elem, src))
		}
	case "parenthesized_type":
		if n.NamedChildCount() > 0 {
			return typeExpr(n.NamedChild(0), src)
		}
	}
	return depgraph.Named(strings.Join(strings.Fields(n.Content(src)), " "))
}

// collectRefs records the identifiers a declaration references, skipping its own locals, and
// the front-end intrinsics it calls.
func collectRefs(d *declInfo, n *sitter.Node, src []byte) {
	locals := make(map[string]bool)
	collectLocals(n, src, locals, true)

	seen := make(map[string]bool)
	seenType := make(map[string]bool)
	var walk func(*sitter.Node, bool)
	walk = func(node *sitter.Node, top bool) {
		switch node.Type() {
		case "identifier":
			name := node.Content(src)
			// the declared name itself, as opposed to a use of it
			if top && isDeclName(node, n) {
				return
			}
			if name != "_" && !locals[name] && !builtins[name] && !seen[name] {
				seen[name] = true
				d.Refs = append(d.Refs, name)
			}
			return
		case "type_identifier":
			name := node.Content(src)
			if isDeclName(node, n) {
				return
			}
			if !builtins[name] && !seenType[name] {
				seenType[name] = true
				d.TypeRefs = append(d.TypeRefs, name)
			}
			return
		case "call_expression":
			intrinsic(d, node, src)
		case "selector_expression":
			// only the operand can name a declaration
			if operand := node.ChildByFieldName("operand"); operand != nil {
				walk(operand, false)
			}
			return
		case "keyed_element":
			// composite literal keys are field names
			if c := node.NamedChildCount(); c > 0 {
				walk(node.NamedChild(int(c)-1), false)
			}
			return
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i), top)
		}
	}
	walk(n, true)
}

func isDeclName(node, decl *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	if parent.Equal(decl) {
		if name := decl.ChildByFieldName("name"); name != nil && name.Equal(node) {
			return true
		}
		// value specs name their declarations with bare identifiers
		if decl.Type() == "var_spec" || decl.Type() == "const_spec" {
			return true
		}
	}
	return false
}

// collectLocals adds parameter and local variable names declared inside n.
func collectLocals(n *sitter.Node, src []byte, locals map[string]bool, top bool) {
	switch n.Type() {
	case "parameter_declaration", "variadic_parameter_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "identifier" {
				locals[c.Content(src)] = true
			}
		}
	case "short_var_declaration", "range_clause":
		if left := n.ChildByFieldName("left"); left != nil {
			for i := 0; i < int(left.NamedChildCount()); i++ {
				if c := left.NamedChild(i); c.Type() == "identifier" {
					locals[c.Content(src)] = true
				}
			}
		}
	case "var_spec", "const_spec":
		if !top {
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); c.Type() == "identifier" {
					locals[c.Content(src)] = true
				}
			}
		}
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		collectLocals(n.NamedChild(i), src, locals, false)
	}
}

func intrinsic(d *declInfo, call *sitter.Node, src []byte) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "identifier" {
		return
	}
	name := fn.Content(src)
	if name == "overload" {
		d.Overload = true
		return
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return
	}
	first := args.NamedChild(0)
	if first.Type() != "interpreted_string_literal" {
		return
	}
	arg := unquote(first.Content(src))
	switch name {
	case "await":
		d.Awaits = append(d.Awaits, arg)
	case "add_file":
		d.AddFiles = append(d.AddFiles, arg)
	}
}

func unquote(s string) string {
	if v, err := strconv.Unquote(s); err == nil {
		return v
	}
	return strings.Trim(s, "\"`")
}
