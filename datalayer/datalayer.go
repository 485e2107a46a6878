// Package datalayer resolves GraphQL page queries against nodes sourced at
// build time. It implements just enough of GraphQL execution for read-only
// page data: root collection and lookup fields, field selection, aliases and
// fragments. There is no schema; node shapes come from the sourced data.
package datalayer

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Node is one sourced record. Every node carries a string "id".
type Node map[string]any

// ID returns the node's id field.
func (n Node) ID() string {
	id, _ := n["id"].(string)
	return id
}

// Graph holds nodes grouped by type name, in sourcing order.
type Graph struct {
	mu    sync.RWMutex
	types map[string][]Node
	order []string
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{types: make(map[string][]Node)}
}

// Add appends nodes of the given type.
func (g *Graph) Add(typeName string, nodes ...Node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.types[typeName]; !ok {
		g.order = append(g.order, typeName)
		g.types[typeName] = []Node{}
	}
	g.types[typeName] = append(g.types[typeName], nodes...)
}

// Types returns the registered type names in registration order.
func (g *Graph) Types() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Nodes returns the nodes of a type.
func (g *Graph) Nodes(typeName string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.types[typeName]
}

// CollectionField is the root field listing every node of typeName,
// e.g. "ContentfulPost" -> "allContentfulPost".
func CollectionField(typeName string) string {
	return "all" + typeName
}

// LookupField is the root field fetching one node by id,
// e.g. "ContentfulPost" -> "contentfulPost".
func LookupField(typeName string) string {
	r, size := utf8.DecodeRuneInString(typeName)
	if r == utf8.RuneError {
		return typeName
	}
	return string(unicode.ToLower(r)) + typeName[size:]
}

// Resolve parses query and executes its single operation (or the one named
// operationName) against the graph. The result has the shape of the selection,
// keyed by alias.
func (g *Graph) Resolve(query, operationName string) (map[string]any, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, fmt.Errorf("datalayer: parse query: %w", err)
	}
	op, err := selectOperation(doc, operationName)
	if err != nil {
		return nil, err
	}
	if op.Operation != ast.Query {
		return nil, fmt.Errorf("datalayer: %s operations are not supported", op.Operation)
	}

	r := &resolver{
		graph:     g,
		fragments: make(map[string]*ast.FragmentDefinition, len(doc.Fragments)),
	}
	for _, f := range doc.Fragments {
		r.fragments[f.Name] = f
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	fields, err := r.collectFields(op.SelectionSet, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, err := r.resolveRoot(f)
		if err != nil {
			return nil, err
		}
		out[f.Alias] = v
	}
	return out, nil
}

func selectOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("datalayer: query has no operations")
	}
	if name == "" {
		if len(doc.Operations) > 1 {
			return nil, fmt.Errorf("datalayer: operation name required when the document has %d operations", len(doc.Operations))
		}
		return doc.Operations[0], nil
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("datalayer: unknown operation %q", name)
}

type resolver struct {
	graph     *Graph
	fragments map[string]*ast.FragmentDefinition
}

// collectFields flattens fragments into a list of fields. visited guards
// against fragment cycles.
func (r *resolver) collectFields(set ast.SelectionSet, visited map[string]bool) ([]*ast.Field, error) {
	var fields []*ast.Field
	for _, sel := range set {
		switch node := sel.(type) {
		case *ast.Field:
			fields = append(fields, node)
		case *ast.InlineFragment:
			sub, err := r.collectFields(node.SelectionSet, visited)
			if err != nil {
				return nil, err
			}
			fields = append(fields, sub...)
		case *ast.FragmentSpread:
			frag, ok := r.fragments[node.Name]
			if !ok {
				return nil, fmt.Errorf("datalayer: unknown fragment %q", node.Name)
			}
			if visited[node.Name] {
				return nil, fmt.Errorf("datalayer: fragment %q spreads itself", node.Name)
			}
			if visited == nil {
				visited = make(map[string]bool)
			}
			visited[node.Name] = true
			sub, err := r.collectFields(frag.SelectionSet, visited)
			delete(visited, node.Name)
			if err != nil {
				return nil, err
			}
			fields = append(fields, sub...)
		}
	}
	return fields, nil
}

func (r *resolver) resolveRoot(f *ast.Field) (any, error) {
	if f.Name == "__typename" {
		return "Query", nil
	}
	for _, typeName := range r.graph.order {
		nodes := r.graph.types[typeName]
		switch f.Name {
		case CollectionField(typeName):
			conn := map[string]any{
				"nodes":      nodesToList(nodes),
				"totalCount": len(nodes),
			}
			return r.project(conn, typeName+"Connection", f)
		case LookupField(typeName):
			id, err := stringArgument(f, "id")
			if err != nil {
				return nil, err
			}
			for _, n := range nodes {
				if n.ID() == id {
					return r.project(map[string]any(n), typeName, f)
				}
			}
			return nil, nil
		}
	}
	return nil, fmt.Errorf("datalayer: cannot query field %q on type Query", f.Name)
}

func nodesToList(nodes []Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = map[string]any(n)
	}
	return out
}

func stringArgument(f *ast.Field, name string) (string, error) {
	arg := f.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		return "", fmt.Errorf("datalayer: field %q requires argument %q", f.Name, name)
	}
	if arg.Value.Kind != ast.StringValue {
		return "", fmt.Errorf("datalayer: argument %q of %q must be a string literal", name, f.Name)
	}
	return arg.Value.Raw, nil
}

// project applies f's selection set to value. Fields without a selection
// return the value unchanged.
func (r *resolver) project(value any, typeName string, f *ast.Field) (any, error) {
	if len(f.SelectionSet) == 0 {
		switch value.(type) {
		case map[string]any, Node:
			return nil, fmt.Errorf("datalayer: field %q of type %s must have a selection of subfields", f.Name, typeName)
		}
		return value, nil
	}

	switch v := value.(type) {
	case nil:
		return nil, nil
	case Node:
		return r.projectObject(map[string]any(v), typeName, f)
	case map[string]any:
		return r.projectObject(v, typeName, f)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			p, err := r.project(item, typeName, f)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			p, err := r.projectObject(item, typeName, f)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	default:
		return nil, fmt.Errorf("datalayer: field %q is a scalar and cannot have a selection", f.Name)
	}
}

func (r *resolver) projectObject(obj map[string]any, typeName string, f *ast.Field) (map[string]any, error) {
	fields, err := r.collectFields(f.SelectionSet, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(fields))
	for _, sub := range fields {
		if sub.Name == "__typename" {
			out[sub.Alias] = objectTypeName(obj, typeName)
			continue
		}
		val, err := r.project(obj[sub.Name], childType(typeName, sub.Name), sub)
		if err != nil {
			return nil, err
		}
		out[sub.Alias] = val
	}
	return out, nil
}

func objectTypeName(obj map[string]any, fallback string) string {
	if internal, ok := obj["internal"].(map[string]any); ok {
		if t, ok := internal["type"].(string); ok && t != "" {
			return t
		}
	}
	return fallback
}

// childType derives a display type name for error messages and __typename;
// connection "nodes" fields carry the element type.
func childType(parent, field string) string {
	if field == "nodes" && strings.HasSuffix(parent, "Connection") {
		return strings.TrimSuffix(parent, "Connection")
	}
	return parent + upperFirst(field)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
