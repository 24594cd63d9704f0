package jsonlang

import (
	"github.com/dshills/jsonls/internal/jsonc"
	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
)

// Document is the result of parsing JSON text. Root is nil for empty
// input.
type Document struct {
	Root         Node
	SyntaxErrors []Diagnostic
	Comments     []jsonc.Range
}

// GetNodeFromOffset returns the innermost node containing offset.
func (d *Document) GetNodeFromOffset(offset int, includeRightBound bool) Node {
	if d.Root == nil {
		return nil
	}
	return findNodeAtOffset(d.Root, offset, includeRightBound)
}

func findNodeAtOffset(node Node, offset int, includeRightBound bool) Node {
	if !Contains(node, offset, includeRightBound) {
		return nil
	}
	for _, child := range node.Children() {
		if child.Offset() > offset {
			break
		}
		if found := findNodeAtOffset(child, offset, includeRightBound); found != nil {
			return found
		}
	}
	return node
}

// ContainsOffset reports whether offset falls inside the root value.
func (d *Document) ContainsOffset(offset int) bool {
	return d.Root != nil && Contains(d.Root, offset, false)
}

// FindNodeAtLocation follows path (string keys and int indices) from the
// root and returns the value node it ends at.
func (d *Document) FindNodeAtLocation(path []any) Node {
	node := d.Root
	for _, segment := range path {
		if node == nil {
			return nil
		}
		switch seg := segment.(type) {
		case string:
			obj, ok := node.(*ObjectNode)
			if !ok {
				return nil
			}
			prop := obj.Property(seg)
			if prop == nil || prop.ValueNode == nil {
				return nil
			}
			node = prop.ValueNode
		case int:
			arr, ok := node.(*ArrayNode)
			if !ok || seg < 0 || seg >= len(arr.Items) {
				return nil
			}
			node = arr.Items[seg]
		default:
			return nil
		}
	}
	return node
}

// Visit walks the tree depth first. Returning false from visit stops the
// walk.
func (d *Document) Visit(visit func(Node) bool) {
	if d.Root == nil {
		return
	}
	var walk func(Node) bool
	walk = func(n Node) bool {
		ok := visit(n)
		for _, child := range n.Children() {
			if !ok {
				break
			}
			ok = walk(child)
		}
		return ok
	}
	walk(d.Root)
}

// DeclaredSchema returns the `$schema` string of the root object.
func (d *Document) DeclaredSchema() (string, bool) {
	obj, ok := d.Root.(*ObjectNode)
	if !ok {
		return "", false
	}
	for _, p := range obj.Properties {
		if p.KeyNode.Content != "$schema" {
			continue
		}
		if s, ok := p.ValueNode.(*StringNode); ok {
			return s.Content, true
		}
	}
	return "", false
}

// Validate checks the document against schema. Problems without their own
// severity get severity. A zero draft is taken from the schema's `$schema`.
func (d *Document) Validate(schema *jsonschema.Schema, severity protocol.DiagnosticSeverity, draft jsonschema.Draft) []Diagnostic {
	if d.Root == nil || schema == nil {
		return nil
	}
	result := newValidationResult()
	v := &validator{draft: schemaDraft(schema, draft)}
	v.validate(d.Root, schema, result, noopCollector{})

	problems := make([]Diagnostic, 0, len(result.Problems)+len(result.Hints))
	for _, p := range result.Problems {
		if p.Severity == 0 {
			p.Severity = severity
		}
		problems = append(problems, p)
	}
	return append(problems, result.Hints...)
}

// MatchingSchemas returns every (node, schema) pair the validator applied.
// With focusOffset >= 0 only nodes containing the offset are visited;
// exclude, when non-nil, is skipped along with its subtree.
func (d *Document) MatchingSchemas(schema *jsonschema.Schema, focusOffset int, exclude Node) []MatchingSchema {
	if d.Root == nil || schema == nil {
		return nil
	}
	c := &schemaCollector{focusOffset: focusOffset, exclude: exclude}
	v := &validator{draft: schemaDraft(schema, jsonschema.DraftUnknown)}
	v.validate(d.Root, schema, newValidationResult(), c)
	return c.schemas
}

func schemaDraft(schema *jsonschema.Schema, draft jsonschema.Draft) jsonschema.Draft {
	if draft != jsonschema.DraftUnknown {
		return draft
	}
	return jsonschema.DraftFromURI(schema.SchemaURI)
}
