package jsonlang

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/jsonls/internal/jsonc"
	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

const maxLabelLength = 60

var triggerSuggest = &protocol.Command{Title: "Suggest", Command: "editor.action.triggerSuggest"}

// proposals collects completion items, keeping the first item per label.
type proposals struct {
	overwrite protocol.Range
	list      *protocol.CompletionList

	// byLabel maps a label to its index in list.Items. Keys of existing
	// properties map to -1 so they are never proposed.
	byLabel map[string]int
}

func newProposals(overwrite protocol.Range) *proposals {
	return &proposals{
		overwrite: overwrite,
		list:      &protocol.CompletionList{Items: []protocol.CompletionItem{}},
		byLabel:   map[string]int{},
	}
}

func (p *proposals) add(item protocol.CompletionItem) {
	label := strings.ReplaceAll(item.Label, "\n", "↵")
	if i, ok := p.byLabel[label]; ok {
		if i < 0 {
			return
		}
		existing := &p.list.Items[i]
		if existing.Documentation == nil {
			existing.Documentation = item.Documentation
		}
		if existing.Detail == "" {
			existing.Detail = item.Detail
		}
		return
	}

	if runes := []rune(label); len(runes) > maxLabelLength {
		shortened := strings.TrimSpace(string(runes[:maxLabelLength-3])) + "..."
		if _, ok := p.byLabel[shortened]; !ok {
			label = shortened
		}
	}
	item.Label = label
	item.TextEdit = &protocol.TextEdit{Range: p.overwrite, NewText: item.InsertText}
	p.byLabel[label] = len(p.list.Items)
	p.list.Items = append(p.list.Items, item)
}

func (p *proposals) reserve(label string) {
	p.byLabel[strings.ReplaceAll(label, "\n", "↵")] = -1
}

func (p *proposals) count() int {
	return len(p.list.Items)
}

// completionContext is the state of one DoComplete call.
type completionContext struct {
	ls     *LanguageService
	td     *textdoc.Document
	text   string
	doc    *Document
	offset int
	out    *proposals
}

// DoComplete proposes property keys and values at pos. Proposals come from
// the document's schema when one applies, else from similar values
// elsewhere in the document.
func (ls *LanguageService) DoComplete(ctx context.Context, td *textdoc.Document, pos protocol.Position, doc *Document) (*protocol.CompletionList, error) {
	text := td.Text()
	offset := td.OffsetAt(pos)

	node := doc.GetNodeFromOffset(offset, true)
	start := 0
	if node != nil {
		start = node.Offset()
	}
	if isInComment(text, start, offset) {
		return &protocol.CompletionList{Items: []protocol.CompletionItem{}}, nil
	}
	if node != nil && offset == End(node) && offset > 0 {
		ch := text[offset-1]
		if node.Type() == NodeObject && ch == '}' || node.Type() == NodeArray && ch == ']' {
			node = node.Parent()
		}
	}

	currentWord := currentWordAt(text, offset)
	var overwrite protocol.Range
	if isLeaf(node) {
		overwrite = td.RangeAt(node.Offset(), node.Length())
	} else {
		overwriteStart := offset - len(currentWord)
		if overwriteStart > 0 && text[overwriteStart-1] == '"' {
			overwriteStart--
		}
		overwrite = protocol.Range{Start: td.PositionAt(overwriteStart), End: pos}
	}

	schema, err := ls.schemas.GetSchemaForResource(ctx, string(td.URI), doc)
	if err != nil {
		return nil, fmt.Errorf("schema for %s: %w", td.URI, err)
	}
	if schema != nil && schema.Schema == nil {
		schema = nil
	}

	c := &completionContext{
		ls:     ls,
		td:     td,
		text:   text,
		doc:    doc,
		offset: offset,
		out:    newProposals(overwrite),
	}

	addValue := true
	currentKey := ""
	var currentProperty *PropertyNode
	if str, ok := node.(*StringNode); ok {
		if prop, ok := str.Parent().(*PropertyNode); ok && prop.KeyNode == str {
			addValue = prop.ValueNode == nil
			currentProperty = prop
			if str.Length() >= 2 {
				currentKey = text[str.Offset()+1 : End(str)-1]
			}
			node = prop.Parent()
		}
	}

	if obj, ok := node.(*ObjectNode); ok {
		if obj.Offset() == offset {
			return c.out.list, nil
		}
		for _, p := range obj.Properties {
			if p != currentProperty {
				c.out.reserve(p.KeyNode.Content)
			}
		}
		separatorAfter := ""
		if addValue {
			separatorAfter = separatorAfterOffset(text, td.OffsetAt(overwrite.End))
		}
		if schema != nil {
			c.propertyCompletions(schema.Schema, obj, addValue, separatorAfter)
		} else {
			c.schemaLessPropertyCompletions(obj, currentKey)
		}

		if before := offset - len(currentWord) - 1; schema == nil && currentWord != "" && (before < 0 || text[before] != '"') {
			c.out.add(protocol.CompletionItem{
				Kind:             protocol.CompletionItemKindProperty,
				Label:            labelForValue(currentWord),
				InsertText:       insertTextForProperty(currentWord, nil, false, separatorAfter),
				InsertTextFormat: protocol.InsertTextFormatSnippet,
			})
			c.out.list.IsIncomplete = true
		}
	}

	types := map[string]bool{}
	if schema != nil {
		c.valueCompletions(schema.Schema, node, types)
	} else {
		c.schemaLessValueCompletions(node)
	}

	if c.out.count() == 0 {
		offsetForSeparator := offset
		if isLeaf(node) {
			offsetForSeparator = End(node)
		}
		c.fillerValueCompletions(types, separatorAfterOffset(text, offsetForSeparator))
	}
	return c.out.list, nil
}

// DoResolve fills in lazily computed fields of a completion item. All
// fields are computed up front, so the item is returned unchanged.
func (ls *LanguageService) DoResolve(_ context.Context, item protocol.CompletionItem) protocol.CompletionItem {
	return item
}

func (c *completionContext) propertyCompletions(schema *jsonschema.Schema, obj *ObjectNode, addValue bool, separatorAfter string) {
	for _, s := range c.doc.MatchingSchemas(schema, obj.Offset(), nil) {
		if s.Node != obj || s.Inverted || s.Schema == nil {
			continue
		}
		for _, key := range s.Schema.PropertyNames() {
			propSchema := s.Schema.Properties[key]
			if propSchema == nil || propSchema.IsBoolean() || propSchema.DeprecationMessage != "" || propSchema.DoNotSuggest {
				continue
			}
			item := protocol.CompletionItem{
				Kind:             protocol.CompletionItemKindProperty,
				Label:            key,
				InsertText:       insertTextForProperty(key, propSchema, addValue, separatorAfter),
				InsertTextFormat: protocol.InsertTextFormatSnippet,
				FilterText:       filterTextForValue(key),
				Documentation:    c.ls.documentation(propSchema.MarkdownDescription, propSchema.Description),
				SortText:         propSchema.SuggestSortText,
			}
			if strings.HasSuffix(item.InsertText, "$1"+separatorAfter) {
				item.Command = triggerSuggest
			}
			c.out.add(item)
		}

		names := s.Schema.PropertyNames
		if names == nil || names.IsBoolean() || names.DeprecationMessage != "" || names.DoNotSuggest {
			continue
		}
		propertyName := func(name string, doc any) {
			if doc == nil {
				doc = c.ls.documentation(names.MarkdownDescription, names.Description)
			}
			item := protocol.CompletionItem{
				Kind:             protocol.CompletionItemKindProperty,
				Label:            name,
				InsertText:       insertTextForProperty(name, nil, addValue, separatorAfter),
				InsertTextFormat: protocol.InsertTextFormatSnippet,
				FilterText:       filterTextForValue(name),
				Documentation:    doc,
				SortText:         names.SuggestSortText,
			}
			if strings.HasSuffix(item.InsertText, "$1"+separatorAfter) {
				item.Command = triggerSuggest
			}
			c.out.add(item)
		}
		for i, v := range names.Enum {
			name, ok := v.(string)
			if !ok {
				continue
			}
			var doc any
			if i < len(names.MarkdownEnumDescriptions) {
				if md := c.ls.markup(names.MarkdownEnumDescriptions[i]); md != nil {
					doc = md
				}
			}
			if doc == nil && i < len(names.EnumDescriptions) && names.EnumDescriptions[i] != "" {
				doc = names.EnumDescriptions[i]
			}
			propertyName(name, doc)
		}
		if name, ok := names.Const.(string); ok && names.HasConst {
			propertyName(name, nil)
		}
	}
}

func (c *completionContext) schemaLessPropertyCompletions(obj *ObjectNode, currentKey string) {
	similar := func(other *ObjectNode) {
		for _, p := range other.Properties {
			key := p.KeyNode.Content
			c.out.add(protocol.CompletionItem{
				Kind:             protocol.CompletionItemKindProperty,
				Label:            key,
				InsertText:       insertTextForValue(key, ""),
				InsertTextFormat: protocol.InsertTextFormatSnippet,
				FilterText:       filterTextForValue(key),
			})
		}
	}

	switch parent := obj.Parent().(type) {
	case *PropertyNode:
		parentKey := parent.KeyNode.Content
		c.doc.Visit(func(n Node) bool {
			if p, ok := n.(*PropertyNode); ok && p != parent && p.KeyNode.Content == parentKey {
				if other, ok := p.ValueNode.(*ObjectNode); ok {
					similar(other)
				}
			}
			return true
		})
	case *ArrayNode:
		for _, item := range parent.Items {
			if other, ok := item.(*ObjectNode); ok && other != obj {
				similar(other)
			}
		}
	case nil:
		c.out.add(protocol.CompletionItem{
			Kind:             protocol.CompletionItemKindProperty,
			Label:            "$schema",
			InsertText:       insertTextForProperty("$schema", nil, true, ""),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			FilterText:       filterTextForValue("$schema"),
		})
	}
}

func (c *completionContext) schemaLessValueCompletions(node Node) {
	offsetForSeparator := c.offset
	if isLeaf(node) {
		offsetForSeparator = End(node)
		node = node.Parent()
	}
	if node == nil {
		c.out.add(protocol.CompletionItem{
			Kind:             suggestionKind(jsonschema.TypeNameObject),
			Label:            "Empty object",
			InsertText:       insertTextForValue(map[string]any{}, ""),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
		})
		c.out.add(protocol.CompletionItem{
			Kind:             suggestionKind(jsonschema.TypeNameArray),
			Label:            "Empty array",
			InsertText:       insertTextForValue([]any{}, ""),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
		})
		return
	}

	separatorAfter := separatorAfterOffset(c.text, offsetForSeparator)
	suggestValue := func(value Node) {
		if parent := value.Parent(); parent != nil && !Contains(parent, c.offset, true) {
			c.out.add(protocol.CompletionItem{
				Kind:             suggestionKind(string(value.Type())),
				Label:            c.labelForMatchingNode(value),
				InsertText:       c.insertTextForMatchingNode(value, separatorAfter),
				InsertTextFormat: protocol.InsertTextFormatSnippet,
			})
		}
		if b, ok := value.(*BooleanNode); ok {
			c.booleanValueCompletion(!b.Bool, separatorAfter)
		}
	}

	switch n := node.(type) {
	case *PropertyNode:
		if c.offset <= n.ColonOffset {
			return
		}
		if v := n.ValueNode; v != nil && (c.offset > End(v) || v.Type() == NodeObject || v.Type() == NodeArray) {
			return
		}
		key := n.KeyNode.Content
		c.doc.Visit(func(other Node) bool {
			if p, ok := other.(*PropertyNode); ok && p.KeyNode.Content == key && p.ValueNode != nil {
				suggestValue(p.ValueNode)
			}
			return true
		})
		if key == "$schema" && n.Parent() != nil && n.Parent().Parent() == nil {
			c.dollarSchemaCompletions(separatorAfter)
		}
	case *ArrayNode:
		if parent, ok := n.Parent().(*PropertyNode); ok {
			parentKey := parent.KeyNode.Content
			c.doc.Visit(func(other Node) bool {
				if p, ok := other.(*PropertyNode); ok && p.KeyNode.Content == parentKey {
					if arr, ok := p.ValueNode.(*ArrayNode); ok {
						for _, item := range arr.Items {
							suggestValue(item)
						}
					}
				}
				return true
			})
		} else {
			for _, item := range n.Items {
				suggestValue(item)
			}
		}
	}
}

func (c *completionContext) valueCompletions(schema *jsonschema.Schema, node Node, types map[string]bool) {
	offsetForSeparator := c.offset
	var valueNode Node
	if isLeaf(node) {
		offsetForSeparator = End(node)
		valueNode = node
		node = node.Parent()
	}
	if node == nil {
		c.schemaValueCompletions(schema, "", c.out.add, types, map[*jsonschema.Schema]bool{})
		return
	}

	parentKey, hasParentKey := "", false
	if prop, ok := node.(*PropertyNode); ok && c.offset > prop.ColonOffset {
		if v := prop.ValueNode; v != nil && c.offset > End(v) {
			return
		}
		parentKey, hasParentKey = prop.KeyNode.Content, true
		node = prop.Parent()
	}
	if node == nil || !hasParentKey && node.Type() != NodeArray {
		return
	}

	separatorAfter := separatorAfterOffset(c.text, offsetForSeparator)
	for _, s := range c.doc.MatchingSchemas(schema, node.Offset(), valueNode) {
		if s.Node != node || s.Inverted || s.Schema == nil {
			continue
		}
		if arr, ok := node.(*ArrayNode); ok && (s.Schema.Items != nil || s.Schema.TupleItems != nil || s.Schema.PrefixItems != nil) {
			add := c.out.add
			if s.Schema.UniqueItems {
				existing := map[string]bool{}
				for _, item := range arr.Items {
					if item.Type() != NodeArray && item.Type() != NodeObject {
						existing[labelForValue(item.Value())] = true
					}
				}
				add = func(item protocol.CompletionItem) {
					if !existing[item.Label] {
						c.out.add(item)
					}
				}
			}
			tuple := s.Schema.TupleItems
			if tuple == nil {
				tuple = s.Schema.PrefixItems
			}
			index := c.itemIndexAtOffset(arr)
			switch {
			case tuple != nil && index < len(tuple):
				c.schemaValueCompletions(tuple[index], separatorAfter, add, types, map[*jsonschema.Schema]bool{})
			case tuple == nil || s.Schema.PrefixItems != nil:
				if s.Schema.Items != nil {
					c.schemaValueCompletions(s.Schema.Items, separatorAfter, add, types, map[*jsonschema.Schema]bool{})
				}
			}
		}
		if !hasParentKey {
			continue
		}
		matched := false
		if propSchema, ok := s.Schema.Properties[parentKey]; ok && propSchema != nil {
			matched = true
			c.schemaValueCompletions(propSchema, separatorAfter, c.out.add, types, map[*jsonschema.Schema]bool{})
		}
		if !matched {
			for _, pattern := range s.Schema.PatternPropertyNames() {
				if re := extendedRegexp(pattern); re != nil && re.MatchString(parentKey) {
					matched = true
					c.schemaValueCompletions(s.Schema.PatternProperties[pattern], separatorAfter, c.out.add, types, map[*jsonschema.Schema]bool{})
				}
			}
		}
		if !matched && s.Schema.AdditionalProperties != nil {
			c.schemaValueCompletions(s.Schema.AdditionalProperties, separatorAfter, c.out.add, types, map[*jsonschema.Schema]bool{})
		}
	}

	if hasParentKey && parentKey == "$schema" && node.Parent() == nil {
		c.dollarSchemaCompletions(separatorAfter)
	}
	if types[jsonschema.TypeNameBoolean] {
		c.booleanValueCompletion(true, separatorAfter)
		c.booleanValueCompletion(false, separatorAfter)
	}
	if types[jsonschema.TypeNameNull] {
		c.nullValueCompletion(separatorAfter)
	}
}

// schemaValueCompletions proposes the values schema suggests and records
// its types. visited guards against schemas that reach themselves through
// allOf, anyOf or oneOf.
func (c *completionContext) schemaValueCompletions(schema *jsonschema.Schema, separatorAfter string, add func(protocol.CompletionItem), types map[string]bool, visited map[*jsonschema.Schema]bool) {
	if schema == nil || schema.IsBoolean() || visited[schema] {
		return
	}
	visited[schema] = true

	c.enumValueCompletions(schema, separatorAfter, add)
	c.defaultValueCompletions(schema, separatorAfter, add, 0)
	if len(schema.Enum) == 0 && !schema.HasConst {
		for _, t := range schema.Type.Types {
			types[t] = true
		}
	}
	for _, group := range [][]*jsonschema.Schema{schema.AllOf, schema.AnyOf, schema.OneOf} {
		for _, sub := range group {
			c.schemaValueCompletions(sub, separatorAfter, add, types, visited)
		}
	}
}

func (c *completionContext) enumValueCompletions(schema *jsonschema.Schema, separatorAfter string, add func(protocol.CompletionItem)) {
	if schema.HasConst {
		add(protocol.CompletionItem{
			Kind:             suggestionKind(schema.Type.Types...),
			Label:            labelForValue(schema.Const),
			InsertText:       insertTextForValue(schema.Const, separatorAfter),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			Documentation:    c.ls.documentation(schema.MarkdownDescription, schema.Description),
		})
	}
	for i, v := range schema.Enum {
		doc := c.ls.documentation(schema.MarkdownDescription, schema.Description)
		if md := c.enumMarkdown(schema, i); md != nil {
			doc = md
		} else if i < len(schema.EnumDescriptions) {
			doc = schema.EnumDescriptions[i]
		}
		add(protocol.CompletionItem{
			Kind:             suggestionKind(schema.Type.Types...),
			Label:            labelForValue(v),
			InsertText:       insertTextForValue(v, separatorAfter),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			Documentation:    doc,
		})
	}
}

func (c *completionContext) enumMarkdown(schema *jsonschema.Schema, i int) *protocol.MarkupContent {
	if i >= len(schema.MarkdownEnumDescriptions) {
		return nil
	}
	return c.ls.markup(schema.MarkdownEnumDescriptions[i])
}

// defaultValueCompletions proposes default, examples and defaultSnippets.
// Without any, the item schema's proposals are offered wrapped in arrays,
// up to five levels deep.
func (c *completionContext) defaultValueCompletions(schema *jsonschema.Schema, separatorAfter string, add func(protocol.CompletionItem), arrayDepth int) {
	wrap := func(v any) (any, protocol.CompletionItemKind) {
		kind := suggestionKind(schema.Type.Types...)
		for i := arrayDepth; i > 0; i-- {
			v = []any{v}
			kind = suggestionKind(jsonschema.TypeNameArray)
		}
		return v, kind
	}

	hasProposals := false
	if schema.HasDefault {
		value, kind := wrap(schema.Default)
		add(protocol.CompletionItem{
			Kind:             kind,
			Label:            labelForValue(value),
			InsertText:       insertTextForValue(value, separatorAfter),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			Detail:           "Default value",
		})
		hasProposals = true
	}
	for _, example := range schema.Examples {
		value, kind := wrap(example)
		add(protocol.CompletionItem{
			Kind:             kind,
			Label:            labelForValue(value),
			InsertText:       insertTextForValue(value, separatorAfter),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
		})
		hasProposals = true
	}
	for _, snippet := range schema.DefaultSnippets {
		label := snippet.Label
		var insertText, filterText string
		kind := suggestionKind(schema.Type.Types...)
		switch {
		case snippet.Body != nil:
			var value any
			value, kind = wrap(snippet.Body)
			insertText = insertTextForSnippetValue(value, separatorAfter)
			filterText = filterTextForSnippetValue(value)
			if label == "" {
				label = labelForSnippetValue(value)
			}
		case snippet.BodyText != "":
			var prefix, suffix, indent string
			for i := arrayDepth; i > 0; i-- {
				prefix = prefix + indent + "[\n"
				suffix = suffix + "\n" + indent + "]"
				indent += "\t"
				kind = suggestionKind(jsonschema.TypeNameArray)
			}
			insertText = prefix + indent + strings.ReplaceAll(snippet.BodyText, "\n", "\n"+indent) + suffix + separatorAfter
			if label == "" {
				label = insertText
			}
			filterText = strings.ReplaceAll(insertText, "\n", "")
		default:
			continue
		}
		add(protocol.CompletionItem{
			Kind:             kind,
			Label:            label,
			Documentation:    c.ls.documentation(snippet.MarkdownDescription, snippet.Description),
			InsertText:       insertText,
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			FilterText:       filterText,
		})
		hasProposals = true
	}

	if !hasProposals && schema.Items != nil && !schema.Items.IsBoolean() && schema.TupleItems == nil && arrayDepth < 5 {
		c.defaultValueCompletions(schema.Items, separatorAfter, add, arrayDepth+1)
	}
}

func (c *completionContext) fillerValueCompletions(types map[string]bool, separatorAfter string) {
	if types[jsonschema.TypeNameObject] {
		c.out.add(protocol.CompletionItem{
			Kind:             suggestionKind(jsonschema.TypeNameObject),
			Label:            "{}",
			InsertText:       insertTextForGuessedValue(map[string]any{}, separatorAfter),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			Detail:           "New object",
		})
	}
	if types[jsonschema.TypeNameArray] {
		c.out.add(protocol.CompletionItem{
			Kind:             suggestionKind(jsonschema.TypeNameArray),
			Label:            "[]",
			InsertText:       insertTextForGuessedValue([]any{}, separatorAfter),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
			Detail:           "New array",
		})
	}
}

func (c *completionContext) booleanValueCompletion(value bool, separatorAfter string) {
	c.out.add(protocol.CompletionItem{
		Kind:             suggestionKind(jsonschema.TypeNameBoolean),
		Label:            fmt.Sprint(value),
		InsertText:       insertTextForValue(value, separatorAfter),
		InsertTextFormat: protocol.InsertTextFormatSnippet,
	})
}

func (c *completionContext) nullValueCompletion(separatorAfter string) {
	c.out.add(protocol.CompletionItem{
		Kind:             suggestionKind(jsonschema.TypeNameNull),
		Label:            "null",
		InsertText:       "null" + separatorAfter,
		InsertTextFormat: protocol.InsertTextFormatSnippet,
	})
}

// dollarSchemaCompletions proposes the registered http(s) schema URIs as
// `$schema` values. Draft meta-schema ids get their canonical trailing '#'.
func (c *completionContext) dollarSchemaCompletions(separatorAfter string) {
	ids := c.ls.schemas.RegisteredSchemaIDs(func(scheme string) bool {
		return scheme == "http" || scheme == "https"
	})
	for _, id := range ids {
		if strings.HasPrefix(id, "http://json-schema.org/draft-") {
			id += "#"
		}
		c.out.add(protocol.CompletionItem{
			Kind:             protocol.CompletionItemKindModule,
			Label:            labelForValue(id),
			FilterText:       filterTextForValue(id),
			InsertText:       insertTextForValue(id, separatorAfter),
			InsertTextFormat: protocol.InsertTextFormatSnippet,
		})
	}
}

func (c *completionContext) labelForMatchingNode(node Node) string {
	switch node.Type() {
	case NodeArray:
		return "[]"
	case NodeObject:
		return "{}"
	}
	return c.text[node.Offset():End(node)]
}

func (c *completionContext) insertTextForMatchingNode(node Node, separatorAfter string) string {
	switch node.Type() {
	case NodeArray:
		return insertTextForValue([]any{}, separatorAfter)
	case NodeObject:
		return insertTextForValue(map[string]any{}, separatorAfter)
	}
	return plainTextSnippet(c.text[node.Offset():End(node)] + separatorAfter)
}

// itemIndexAtOffset returns the index of the array item at the cursor. A
// cursor after an item's trailing comma addresses the next item.
func (c *completionContext) itemIndexAtOffset(arr *ArrayNode) int {
	s := jsonc.NewScanner(c.text, true)
	for i := len(arr.Items) - 1; i >= 0; i-- {
		item := arr.Items[i]
		if c.offset > End(item) {
			s.SetPosition(End(item))
			if s.Scan() == jsonc.CommaToken && c.offset >= s.TokenOffset()+s.TokenLength() {
				return i + 1
			}
			return i
		}
		if c.offset >= item.Offset() {
			return i
		}
	}
	return 0
}

func isLeaf(node Node) bool {
	if node == nil {
		return false
	}
	switch node.Type() {
	case NodeString, NodeNumber, NodeBoolean, NodeNull:
		return true
	}
	return false
}

// currentWordAt returns the text between the last delimiter and offset.
func currentWordAt(text string, offset int) string {
	i := offset - 1
	for i >= 0 && !strings.ContainsRune(" \t\n\r\v\":{[,]}", rune(text[i])) {
		i--
	}
	return text[i+1 : offset]
}

// separatorAfterOffset returns "," unless the next token closes the
// container or already separates values.
func separatorAfterOffset(text string, offset int) string {
	s := jsonc.NewScanner(text, true)
	s.SetPosition(offset)
	switch s.Scan() {
	case jsonc.CommaToken, jsonc.CloseBraceToken, jsonc.CloseBracketToken, jsonc.EOF:
		return ""
	}
	return ","
}

// isInComment reports whether offset lies inside a comment, scanning from
// start.
func isInComment(text string, start, offset int) bool {
	s := jsonc.NewScanner(text, false)
	s.SetPosition(start)
	token := s.Scan()
	for token != jsonc.EOF && s.TokenOffset()+s.TokenLength() < offset {
		token = s.Scan()
	}
	return (token == jsonc.LineCommentTrivia || token == jsonc.BlockCommentTrivia) && s.TokenOffset() <= offset
}
