package jsonlang

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

// symbolNode is a DocumentSymbol under construction. Children are linked
// by pointer so the breadth-first walk can append to any level.
type symbolNode struct {
	symbol   protocol.DocumentSymbol
	children []*symbolNode
}

func (n *symbolNode) build() protocol.DocumentSymbol {
	s := n.symbol
	if len(n.children) > 0 {
		s.Children = make([]protocol.DocumentSymbol, len(n.children))
		for i, c := range n.children {
			s.Children[i] = c.build()
		}
	}
	return s
}

// FindDocumentSymbols returns the outline of doc: one symbol per property
// and array item, nested like the document. The walk is breadth first so
// a limit keeps the top levels; exceeded reports that symbols were
// dropped. A limit <= 0 means no limit.
func (ls *LanguageService) FindDocumentSymbols(td *textdoc.Document, doc *Document, limit int) (symbols []protocol.DocumentSymbol, exceeded bool) {
	if doc.Root == nil {
		return []protocol.DocumentSymbol{}, false
	}
	if limit <= 0 {
		limit = math.MaxInt
	}

	type visit struct {
		node   Node
		parent *symbolNode
	}
	root := &symbolNode{}
	queue := []visit{{node: doc.Root, parent: root}}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		switch n := next.node.(type) {
		case *ArrayNode:
			for i, item := range n.Items {
				if limit <= 0 {
					exceeded = true
					continue
				}
				limit--
				rng := td.RangeAt(item.Offset(), item.Length())
				child := &symbolNode{symbol: protocol.DocumentSymbol{
					Name:           strconv.Itoa(i),
					Kind:           symbolKind(item.Type()),
					Range:          rng,
					SelectionRange: rng,
				}}
				next.parent.children = append(next.parent.children, child)
				queue = append(queue, visit{node: item, parent: child})
			}
		case *ObjectNode:
			for _, p := range n.Properties {
				if p.ValueNode == nil {
					continue
				}
				if limit <= 0 {
					exceeded = true
					continue
				}
				limit--
				child := &symbolNode{symbol: protocol.DocumentSymbol{
					Name:           keyLabel(p),
					Detail:         symbolDetail(td.Text(), p.ValueNode),
					Kind:           symbolKind(p.ValueNode.Type()),
					Range:          td.RangeAt(p.Offset(), p.Length()),
					SelectionRange: td.RangeAt(p.KeyNode.Offset(), p.KeyNode.Length()),
				}}
				next.parent.children = append(next.parent.children, child)
				queue = append(queue, visit{node: p.ValueNode, parent: child})
			}
		}
	}

	symbols = make([]protocol.DocumentSymbol, len(root.children))
	for i, c := range root.children {
		symbols[i] = c.build()
	}
	return symbols, exceeded
}

func symbolKind(t NodeType) protocol.SymbolKind {
	switch t {
	case NodeObject:
		return protocol.SymbolKindModule
	case NodeString:
		return protocol.SymbolKindString
	case NodeNumber:
		return protocol.SymbolKindNumber
	case NodeArray:
		return protocol.SymbolKindArray
	case NodeBoolean:
		return protocol.SymbolKindBoolean
	}
	return protocol.SymbolKindVariable
}

// keyLabel renders a property key on one line. Blank keys are quoted.
func keyLabel(p *PropertyNode) string {
	name := strings.ReplaceAll(p.KeyNode.Content, "\n", "↵")
	if strings.TrimSpace(name) != "" {
		return name
	}
	return `"` + name + `"`
}

// symbolDetail shows scalar values and empty containers.
func symbolDetail(text string, node Node) string {
	switch n := node.(type) {
	case *StringNode:
		return n.Content
	case *NumberNode:
		return text[n.Offset():End(n)]
	case *BooleanNode:
		return strconv.FormatBool(n.Bool)
	case *NullNode:
		return "null"
	case *ArrayNode:
		if len(n.Items) == 0 {
			return "[]"
		}
	case *ObjectNode:
		if len(n.Properties) == 0 {
			return "{}"
		}
	}
	return ""
}

// FindDocumentColors locates string values whose schema has format
// `color` or `color-hex` and that hold a hex color.
func (ls *LanguageService) FindDocumentColors(ctx context.Context, td *textdoc.Document, doc *Document, limit int) ([]protocol.ColorInformation, error) {
	result := []protocol.ColorInformation{}
	schema, err := ls.schemas.GetSchemaForResource(ctx, string(td.URI), doc)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", td.URI, err)
	}
	if schema == nil || schema.Schema == nil {
		return result, nil
	}
	if limit <= 0 {
		limit = math.MaxInt
	}

	visited := map[int]bool{}
	for _, s := range doc.MatchingSchemas(schema.Schema, -1, nil) {
		if s.Inverted || s.Schema == nil || s.Schema.Format != "color" && s.Schema.Format != "color-hex" {
			continue
		}
		str, ok := s.Node.(*StringNode)
		if !ok || visited[str.Offset()] {
			continue
		}
		visited[str.Offset()] = true
		if color, ok := colorFromHex(str.Content); ok {
			result = append(result, protocol.ColorInformation{
				Range: td.RangeAt(str.Offset(), str.Length()),
				Color: color,
			})
		}
		limit--
		if limit <= 0 {
			break
		}
	}
	return result, nil
}

// GetColorPresentations renders color as a quoted hex string replacing
// rng. The alpha channel is written only when the color is translucent.
func (ls *LanguageService) GetColorPresentations(color protocol.Color, rng protocol.Range) []protocol.ColorPresentation {
	label := colorful.Color{R: color.Red, G: color.Green, B: color.Blue}.Clamped().Hex()
	if color.Alpha != 1 {
		label += fmt.Sprintf("%02x", uint8(math.Round(math.Max(0, math.Min(1, color.Alpha))*255)))
	}
	return []protocol.ColorPresentation{{
		Label:    label,
		TextEdit: &protocol.TextEdit{Range: rng, NewText: toJSON(label)},
	}}
}

// colorFromHex parses #RGB, #RGBA, #RRGGBB and #RRGGBBAA.
func colorFromHex(text string) (protocol.Color, bool) {
	if !strings.HasPrefix(text, "#") {
		return protocol.Color{}, false
	}
	var rgb, alpha string
	switch len(text) {
	case 4, 7:
		rgb = text
	case 5:
		rgb, alpha = text[:4], text[4:]+text[4:]
	case 9:
		rgb, alpha = text[:7], text[7:]
	default:
		return protocol.Color{}, false
	}

	c, err := colorful.Hex(rgb)
	if err != nil {
		return protocol.Color{}, false
	}
	a := 1.0
	if alpha != "" {
		v, err := strconv.ParseUint(alpha, 16, 8)
		if err != nil {
			return protocol.Color{}, false
		}
		a = float64(v) / 255
	}
	return protocol.Color{Red: c.R, Green: c.G, Blue: c.B, Alpha: a}, true
}
