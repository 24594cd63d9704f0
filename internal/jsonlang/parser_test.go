package jsonlang

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jsonls/internal/jsonc"
	"github.com/dshills/jsonls/internal/protocol"
)

func problemCodes(problems []Diagnostic) []ErrorCode {
	codes := make([]ErrorCode, len(problems))
	for i, p := range problems {
		codes[i] = p.Code
	}
	return codes
}

func TestParse_Values(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{"object", `{"a": 1, "b": "x"}`, map[string]any{"a": 1.0, "b": "x"}},
		{"array", `[true, false, null]`, []any{true, false, nil}},
		{"nested", `{"a": [1, {"b": true}]}`, map[string]any{"a": []any{1.0, map[string]any{"b": true}}}},
		{"string escapes", `"a\nbA"`, "a\nbA"},
		{"number", `-1.5e2`, -150.0},
		{"comments", "// c\n{\"a\": /* x */ 1}", map[string]any{"a": 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.text, ParseOptions{})
			assert.Empty(t, doc.SyntaxErrors)
			require.NotNil(t, doc.Root)
			assert.Equal(t, tt.want, doc.Root.Value())
		})
	}
}

func TestParse_Empty(t *testing.T) {
	doc := Parse("  ", ParseOptions{})
	assert.Nil(t, doc.Root)
	assert.Empty(t, doc.SyntaxErrors)
}

func TestParse_TrailingComma(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		commaOffset int
	}{
		{"object", `{"a": 1,}`, 7},
		{"array", `[1, 2,]`, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.text, ParseOptions{})
			require.Len(t, doc.SyntaxErrors, 1)
			p := doc.SyntaxErrors[0]
			assert.Equal(t, TrailingComma, p.Code)
			assert.Equal(t, "Trailing comma", p.Message)
			assert.Equal(t, protocol.DiagnosticSeverityError, p.Severity)
			assert.Equal(t, tt.commaOffset, p.Offset)
			assert.Equal(t, 1, p.Length)

			allowed := Parse(tt.text, ParseOptions{AllowTrailingComma: true})
			assert.Empty(t, allowed.SyntaxErrors)
			assert.Equal(t, doc.Root.Value(), allowed.Root.Value())
		})
	}
}

func TestParse_DuplicateKeys(t *testing.T) {
	doc := Parse(`{"a": 1, "a": 2, "//": 1, "//": 2}`, ParseOptions{})
	require.Len(t, doc.SyntaxErrors, 2)
	for _, p := range doc.SyntaxErrors {
		assert.Equal(t, DuplicateKey, p.Code)
		assert.Equal(t, protocol.DiagnosticSeverityWarning, p.Severity)
		assert.Equal(t, 3, p.Length)
	}
	assert.Equal(t, 9, doc.SyntaxErrors[0].Offset)
	assert.Equal(t, 1, doc.SyntaxErrors[1].Offset)

	obj := doc.Root.(*ObjectNode)
	assert.Len(t, obj.Properties, 4)
	assert.Equal(t, 2.0, obj.Property("a").ValueNode.Value())
}

func TestParse_ColonRecovery(t *testing.T) {
	doc := Parse("{\n\"a\"\n\"b\": 1}", ParseOptions{})
	assert.Equal(t, []ErrorCode{ColonExpected}, problemCodes(doc.SyntaxErrors))

	obj, ok := doc.Root.(*ObjectNode)
	require.True(t, ok)
	require.Len(t, obj.Properties, 2)

	a := obj.Properties[0]
	assert.Equal(t, "a", a.KeyNode.Content)
	assert.Nil(t, a.ValueNode)
	assert.Equal(t, -1, a.ColonOffset)
	assert.Equal(t, a.KeyNode.Length(), a.Length())

	b := obj.Properties[1]
	assert.Equal(t, "b", b.KeyNode.Content)
	assert.Equal(t, 1.0, NodeValue(b.ValueNode))
}

func TestParse_Recovery(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		codes []ErrorCode
	}{
		{"missing value", `{"a": }`, []ErrorCode{ValueExpected}},
		{"missing comma", `[1 2]`, []ErrorCode{CommaExpected}},
		{"unclosed object", `{"a": 1`, []ErrorCode{CommaOrCloseBraceExpected}},
		{"unclosed array", `[1`, []ErrorCode{CommaOrCloseBacketExpected}},
		{"unquoted key", `{a: 1}`, []ErrorCode{PropertyKeysMustBeDoublequoted}},
		{"leading comma", `[,1]`, []ErrorCode{ValueExpected}},
		{"unterminated string", `"abc`, []ErrorCode{UnexpectedEndOfString}},
		{"trailing content", `1 2`, []ErrorCode{Undefined}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Parse(tt.text, ParseOptions{})
			assert.Equal(t, tt.codes, problemCodes(doc.SyntaxErrors))
			assert.NotNil(t, doc.Root)
		})
	}
}

func TestParse_UnquotedKeyKeepsProperty(t *testing.T) {
	doc := Parse(`{a: 1}`, ParseOptions{})
	assert.Equal(t, map[string]any{"a": 1.0}, doc.Root.Value())
}

func TestParse_OutOfRangeNumbers(t *testing.T) {
	doc := Parse(`[1e400, -1e400, 1e-400]`, ParseOptions{})
	require.Empty(t, doc.SyntaxErrors)

	arr := doc.Root.(*ArrayNode)
	require.Len(t, arr.Items, 3)
	assert.True(t, math.IsInf(arr.Items[0].(*NumberNode).Number, 1))
	assert.True(t, math.IsInf(arr.Items[1].(*NumberNode).Number, -1))
	assert.Zero(t, arr.Items[2].(*NumberNode).Number)
}

func TestParse_NumberIsInteger(t *testing.T) {
	doc := Parse(`[1, 1.0, 1e3]`, ParseOptions{})
	arr := doc.Root.(*ArrayNode)
	var ints []bool
	for _, item := range arr.Items {
		ints = append(ints, item.(*NumberNode).IsInteger)
	}
	assert.Equal(t, []bool{true, false, true}, ints)
}

func TestParse_CollectComments(t *testing.T) {
	text := "// c\n{\"a\": /* x */ 1}"
	doc := Parse(text, ParseOptions{CollectComments: true})
	assert.Equal(t, []jsonc.Range{{Offset: 0, Length: 4}, {Offset: 11, Length: 7}}, doc.Comments)

	assert.Nil(t, Parse(text, ParseOptions{}).Comments)
}

func TestDocument_Navigation(t *testing.T) {
	text := `{"a": [1, {"b": true}]}`
	doc := Parse(text, ParseOptions{})

	node := doc.FindNodeAtLocation([]any{"a", 1, "b"})
	require.NotNil(t, node)
	assert.Equal(t, NodeBoolean, node.Type())
	assert.Equal(t, []any{"a", 1, "b"}, NodePath(node))

	assert.Same(t, node, doc.GetNodeFromOffset(node.Offset()+1, false))
	assert.Nil(t, doc.FindNodeAtLocation([]any{"a", 5}))
	assert.Nil(t, doc.FindNodeAtLocation([]any{"x"}))

	key := doc.GetNodeFromOffset(2, false)
	require.NotNil(t, key)
	assert.Equal(t, NodeString, key.Type())
	assert.Equal(t, NodeProperty, key.Parent().Type())

	assert.True(t, doc.ContainsOffset(0))
	assert.False(t, doc.ContainsOffset(len(text)))
	assert.Same(t, doc.Root, doc.GetNodeFromOffset(len(text), true))
}

func TestDocument_Visit(t *testing.T) {
	doc := Parse(`{"a": [1, 2], "b": null}`, ParseOptions{})
	var types []NodeType
	doc.Visit(func(n Node) bool {
		types = append(types, n.Type())
		return true
	})
	assert.Equal(t, []NodeType{
		NodeObject,
		NodeProperty, NodeString, NodeArray, NodeNumber, NodeNumber,
		NodeProperty, NodeString, NodeNull,
	}, types)

	count := 0
	doc.Visit(func(n Node) bool {
		count++
		return n.Type() != NodeArray
	})
	assert.Equal(t, 4, count)
}

func TestDocument_DeclaredSchema(t *testing.T) {
	uri, ok := Parse(`{"x": 1, "$schema": "http://a/s.json"}`, ParseOptions{}).DeclaredSchema()
	assert.True(t, ok)
	assert.Equal(t, "http://a/s.json", uri)

	_, ok = Parse(`[{"$schema": "http://a/s.json"}]`, ParseOptions{}).DeclaredSchema()
	assert.False(t, ok)

	_, ok = Parse(`{"$schema": 1}`, ParseOptions{}).DeclaredSchema()
	assert.False(t, ok)
}
