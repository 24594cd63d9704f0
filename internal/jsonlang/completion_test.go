package jsonlang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jsonls/internal/protocol"
)

func complete(t *testing.T, schema, text string) []protocol.CompletionItem {
	t.Helper()
	ls := newTestService(t, schema)
	td, doc, pos := openAt(t, ls, text)
	list, err := ls.DoComplete(context.Background(), td, pos, doc)
	require.NoError(t, err)
	require.NotNil(t, list)
	return list.Items
}

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Label
	}
	return out
}

func itemByLabel(t *testing.T, items []protocol.CompletionItem, label string) protocol.CompletionItem {
	t.Helper()
	for _, item := range items {
		if item.Label == label {
			return item
		}
	}
	t.Fatalf("no completion labelled %q in %v", label, labels(items))
	return protocol.CompletionItem{}
}

const propertySchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "description": "The name"},
		"count": {"type": "number"},
		"hidden": {"type": "string", "doNotSuggest": true},
		"old": {"type": "string", "deprecationMessage": "Use name"}
	}
}`

func TestDoComplete_Properties(t *testing.T) {
	items := complete(t, propertySchema, `{|}`)
	assert.Equal(t, []string{"name", "count"}, labels(items))

	name := itemByLabel(t, items, "name")
	assert.Equal(t, protocol.CompletionItemKindProperty, name.Kind)
	assert.Equal(t, `"name": "$1"`, name.InsertText)
	assert.Equal(t, protocol.InsertTextFormatSnippet, name.InsertTextFormat)
	assert.Equal(t, "The name", name.Documentation)
	require.NotNil(t, name.TextEdit)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 0, Character: 1},
		End:   protocol.Position{Line: 0, Character: 1},
	}, name.TextEdit.Range)

	assert.Equal(t, `"count": ${1:0}`, itemByLabel(t, items, "count").InsertText)
}

func TestDoComplete_SkipsExistingKeys(t *testing.T) {
	items := complete(t, propertySchema, `{"name": "x", |}`)
	assert.Equal(t, []string{"count"}, labels(items))
}

func TestDoComplete_Separator(t *testing.T) {
	items := complete(t, propertySchema, "{|\n\"name\": \"x\"}")
	assert.Equal(t, `"count": ${1:0},`, itemByLabel(t, items, "count").InsertText)
}

func TestDoComplete_EnumValues(t *testing.T) {
	schema := `{"properties": {"color": {"enum": ["red", "green"], "enumDescriptions": ["Red", "Green"]}}}`
	items := complete(t, schema, `{"color": |}`)
	require.Equal(t, []string{`"red"`, `"green"`}, labels(items))
	assert.Equal(t, `"red"`, items[0].InsertText)
	assert.Equal(t, protocol.CompletionItemKindValue, items[0].Kind)
	assert.Equal(t, "Red", items[0].Documentation)
}

func TestDoComplete_TypeValues(t *testing.T) {
	schema := `{"properties": {"flag": {"type": ["boolean", "null"]}}}`
	items := complete(t, schema, `{"flag": |}`)
	assert.Equal(t, []string{"true", "false", "null"}, labels(items))
}

func TestDoComplete_FillerValues(t *testing.T) {
	schema := `{"properties": {"obj": {"type": "object"}}}`
	items := complete(t, schema, `{"obj": |}`)
	require.Equal(t, []string{"{}"}, labels(items))
	assert.Equal(t, "{$1}", items[0].InsertText)
	assert.Equal(t, "New object", items[0].Detail)
}

func TestDoComplete_DefaultSnippets(t *testing.T) {
	schema := `{"properties": {"cfg": {"defaultSnippets": [{"label": "basic", "body": {"x": "^${1:val}"}}]}}}`
	items := complete(t, schema, `{"cfg": |}`)
	item := itemByLabel(t, items, "basic")
	assert.Equal(t, "{\n\t\"x\": ${1:val}\n}", item.InsertText)
	assert.Equal(t, protocol.InsertTextFormatSnippet, item.InsertTextFormat)
}

func TestDoComplete_UniqueItems(t *testing.T) {
	schema := `{"items": {"enum": ["a", "b"]}, "uniqueItems": true}`
	items := complete(t, schema, `["a", |]`)
	assert.Equal(t, []string{`"b"`}, labels(items))
}

func TestDoComplete_WithoutSchema(t *testing.T) {
	t.Run("root offers $schema", func(t *testing.T) {
		items := complete(t, "", `{|}`)
		require.Equal(t, []string{"$schema"}, labels(items))
		assert.Equal(t, `"\$schema": $1`, items[0].InsertText)
	})

	t.Run("keys of similar objects", func(t *testing.T) {
		items := complete(t, "", `[{"name": 1, "age": 2}, {|}]`)
		assert.Equal(t, []string{"name", "age"}, labels(items))
		assert.Equal(t, `"name"`, items[0].InsertText)
	})

	t.Run("known schema ids", func(t *testing.T) {
		items := complete(t, "", `{"$schema": |}`)
		assert.Contains(t, labels(items), `"http://json-schema.org/draft-07/schema#"`)
	})
}

func TestDoComplete_InComment(t *testing.T) {
	items := complete(t, propertySchema, "{ // |\n}")
	assert.Empty(t, items)
}

func TestProposals_Add(t *testing.T) {
	p := newProposals(protocol.Range{})
	p.reserve("taken")
	p.add(protocol.CompletionItem{Label: "taken"})
	p.add(protocol.CompletionItem{Label: "a\nb", InsertText: "x"})
	p.add(protocol.CompletionItem{Label: "a\nb", Detail: "filled"})

	require.Equal(t, 1, p.count())
	item := p.list.Items[0]
	assert.Equal(t, "a↵b", item.Label)
	assert.Equal(t, "filled", item.Detail)
	require.NotNil(t, item.TextEdit)
	assert.Equal(t, "x", item.TextEdit.NewText)
}

func TestDoResolve(t *testing.T) {
	ls := newTestService(t, "")
	item := protocol.CompletionItem{Label: "a", Detail: "b"}
	assert.Equal(t, item, ls.DoResolve(context.Background(), item))
}
