package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jsonls/internal/jsonschema"
)

func TestParseSettings(t *testing.T) {
	raw := json.RawMessage(`{
		"json": {
			"validate": {"enable": false},
			"keepLines": {"enable": true},
			"resultLimit": 100,
			"jsonFoldingLimit": -1,
			"schemas": [
				{"url": "./schemas/a.json", "fileMatch": ["a.json"]},
				{"uri": "https://example.com/b.json", "fileMatch": "b.json", "folderUri": "file:///work/sub"},
				{"fileMatch": ["c.json"], "schema": {"type": "object"}},
				{"fileMatch": ["ignored.json"]}
			]
		}
	}`)
	cs := parseSettings(raw, "file:///work")

	assert.False(t, cs.validate)
	assert.True(t, cs.format)
	assert.True(t, cs.keepLines)
	assert.Equal(t, 100, cs.resultLimit)
	assert.Zero(t, cs.foldingLimit)

	require.Len(t, cs.schemas, 3)
	assert.Equal(t, jsonschema.SchemaConfiguration{
		URI:       "file:///work/schemas/a.json",
		FileMatch: []string{"a.json"},
	}, cs.schemas[0])
	assert.Equal(t, []string{"b.json"}, cs.schemas[1].FileMatch)
	assert.Equal(t, "file:///work/sub", cs.schemas[1].FolderURI)
	assert.Equal(t, "inmemory://schemas/custom/2", cs.schemas[2].URI)
	assert.JSONEq(t, `{"type": "object"}`, string(cs.schemas[2].Schema))
}

func TestParseSettings_Defaults(t *testing.T) {
	for _, raw := range []string{`null`, `{}`, `{"other": {"validate": false}}`} {
		cs := parseSettings(json.RawMessage(raw), "")
		assert.Equal(t, defaultClientSettings(), cs, raw)
	}
}

func TestParseAssociations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []jsonschema.SchemaConfiguration
	}{
		{
			name: "pattern map",
			raw:  `{"*.cfg.json": ["http://example.com/cfg.json"]}`,
			want: []jsonschema.SchemaConfiguration{
				{URI: "http://example.com/cfg.json", FileMatch: []string{"*.cfg.json"}},
			},
		},
		{
			name: "wrapped pattern map",
			raw:  `[{"*.a.json": ["http://example.com/a.json", "http://example.com/b.json"]}]`,
			want: []jsonschema.SchemaConfiguration{
				{URI: "http://example.com/a.json", FileMatch: []string{"*.a.json"}},
				{URI: "http://example.com/b.json", FileMatch: []string{"*.a.json"}},
			},
		},
		{
			name: "configuration list",
			raw:  `[{"uri": "http://example.com/a.json", "fileMatch": ["a.json"], "folderUri": "file:///w"}, {"fileMatch": ["x"]}]`,
			want: []jsonschema.SchemaConfiguration{
				{URI: "http://example.com/a.json", FileMatch: []string{"a.json"}, FolderURI: "file:///w"},
			},
		},
		{
			name: "wrapped configuration list",
			raw:  `[[{"uri": "http://example.com/a.json", "fileMatch": ["a.json"]}]]`,
			want: []jsonschema.SchemaConfiguration{
				{URI: "http://example.com/a.json", FileMatch: []string{"a.json"}},
			},
		},
		{
			name: "single configuration",
			raw:  `[{"uri": "http://example.com/a.json", "fileMatch": ["a.json"]}]`,
			want: []jsonschema.SchemaConfiguration{
				{URI: "http://example.com/a.json", FileMatch: []string{"a.json"}},
			},
		},
		{name: "empty", raw: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAssociations(json.RawMessage(tt.raw)))
		})
	}
}

func TestResolveSchemaURI(t *testing.T) {
	tests := []struct {
		uri  string
		root string
		want string
	}{
		{"./a.json", "file:///work", "file:///work/a.json"},
		{"../shared/a.json", "file:///work/project", "file:///work/shared/a.json"},
		{"./a.json", "", "./a.json"},
		{"https://example.com/a.json", "file:///work", "https://example.com/a.json"},
		{"/schemas/a.json", "file:///work", "file:///schemas/a.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveSchemaURI(tt.uri, tt.root), tt.uri)
	}
}

func TestLimitWarningKey(t *testing.T) {
	key := limitWarningKey("file:///a.json", "folding ranges")
	assert.Equal(t, "file:///a.json", string(limitWarningURI(key)))
}

func TestToResponseError(t *testing.T) {
	assert.Nil(t, toResponseError(nil))
	requireCode(t, toResponseError(ErrNotInitialized), -32002)
	requireCode(t, toResponseError(ErrShuttingDown), -32600)
	requireCode(t, toResponseError(invalidParams(methodHover, errMissingParams)), -32602)
}
