package jsonlang

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

// singleLineBreak matches a line break between two non-empty lines.
var singleLineBreak = regexp.MustCompile(`([^\n\r])(\r?\n)([^\n\r])`)

const markdownSpecials = "\\`*_{}[]()#+-.!"

// DoHover describes the value at pos from the schemas that apply to it.
// Hovering a property key describes the property's value. It returns nil
// when no schema applies or the schemas say nothing about the value.
func (ls *LanguageService) DoHover(ctx context.Context, td *textdoc.Document, pos protocol.Position, doc *Document) (*protocol.Hover, error) {
	offset := td.OffsetAt(pos)
	node := doc.GetNodeFromOffset(offset, false)
	if node == nil {
		return nil, nil
	}
	if (node.Type() == NodeObject || node.Type() == NodeArray) && offset > node.Offset()+1 && offset < End(node)-1 {
		return nil, nil
	}

	rangeNode := node
	if str, ok := node.(*StringNode); ok {
		if prop, ok := str.Parent().(*PropertyNode); ok && prop.KeyNode == str {
			if prop.ValueNode == nil {
				return nil, nil
			}
			node = prop.ValueNode
		}
	}

	schema, err := ls.schemas.GetSchemaForResource(ctx, string(td.URI), doc)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", td.URI, err)
	}
	if schema == nil || schema.Schema == nil {
		return nil, nil
	}

	var title, description, enumDescription, enumValue string
	value := node.Value()
	for _, s := range doc.MatchingSchemas(schema.Schema, node.Offset(), nil) {
		if s.Node != node || s.Inverted || s.Schema == nil {
			continue
		}
		if title == "" {
			title = s.Schema.Title
		}
		if description == "" {
			description = s.Schema.MarkdownDescription
			if description == "" {
				description = toMarkdown(s.Schema.Description)
			}
		}
		if len(s.Schema.Enum) == 0 {
			continue
		}
		idx := -1
		for i, v := range s.Schema.Enum {
			if jsonEqual(v, value) {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		switch {
		case s.Schema.MarkdownEnumDescriptions != nil:
			if idx < len(s.Schema.MarkdownEnumDescriptions) {
				enumDescription = s.Schema.MarkdownEnumDescriptions[idx]
			}
		case idx < len(s.Schema.EnumDescriptions):
			enumDescription = toMarkdown(s.Schema.EnumDescriptions[idx])
		}
		if enumDescription != "" {
			if str, ok := s.Schema.Enum[idx].(string); ok {
				enumValue = str
			} else {
				enumValue = toJSON(s.Schema.Enum[idx])
			}
		}
	}

	var parts []string
	if title != "" {
		parts = append(parts, toMarkdown(title))
	}
	if description != "" {
		parts = append(parts, description)
	}
	if enumDescription != "" {
		parts = append(parts, "`"+toMarkdownCodeBlock(enumValue)+"`: "+enumDescription)
	}
	if len(parts) == 0 {
		return nil, nil
	}

	rng := td.RangeAt(rangeNode.Offset(), rangeNode.Length())
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: strings.Join(parts, "\n\n")},
		Range:    &rng,
	}, nil
}

// toMarkdown turns plain text into markdown: single line breaks become
// paragraph breaks and markdown syntax characters are escaped.
func toMarkdown(plain string) string {
	if plain == "" {
		return ""
	}
	text := singleLineBreak.ReplaceAllString(plain, "$1\n\n$3")
	var b strings.Builder
	for _, r := range text {
		if strings.ContainsRune(markdownSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toMarkdownCodeBlock(content string) string {
	if strings.Contains(content, "`") {
		return "`` " + content + " ``"
	}
	return content
}
