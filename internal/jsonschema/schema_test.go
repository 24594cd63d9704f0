package jsonschema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_BooleanSchemas(t *testing.T) {
	s, err := Parse([]byte(`{"properties": {"a": true, "b": false}, "additionalProperties": false}`))
	require.NoError(t, err)

	assert.True(t, s.Properties["a"].IsTrue())
	assert.True(t, s.Properties["b"].IsFalse())
	assert.True(t, s.AdditionalProperties.IsFalse())
	assert.False(t, s.IsBoolean())
}

func TestParse_PolymorphicKeywords(t *testing.T) {
	tests := []struct {
		name  string
		json  string
		check func(t *testing.T, s *Schema)
	}{
		{
			name: "uniform items",
			json: `{"items": {"type": "string"}}`,
			check: func(t *testing.T, s *Schema) {
				require.NotNil(t, s.Items)
				assert.True(t, s.Items.Type.Is("string"))
				assert.Nil(t, s.TupleItems)
			},
		},
		{
			name: "tuple items",
			json: `{"items": [{"type": "string"}, {"type": "number"}], "additionalItems": false}`,
			check: func(t *testing.T, s *Schema) {
				assert.Nil(t, s.Items)
				require.Len(t, s.TupleItems, 2)
				assert.True(t, s.TupleItems[1].Type.Is("number"))
				assert.True(t, s.AdditionalItems.IsFalse())
			},
		},
		{
			name: "numeric exclusive bounds",
			json: `{"exclusiveMinimum": 1, "exclusiveMaximum": 5.5}`,
			check: func(t *testing.T, s *Schema) {
				require.NotNil(t, s.ExclusiveMinimum)
				assert.Equal(t, 1.0, *s.ExclusiveMinimum)
				assert.Equal(t, 5.5, *s.ExclusiveMaximum)
				assert.False(t, s.ExclusiveMinimumFlag)
			},
		},
		{
			name: "draft-04 exclusive flags",
			json: `{"minimum": 1, "exclusiveMinimum": true, "exclusiveMaximum": false}`,
			check: func(t *testing.T, s *Schema) {
				assert.Nil(t, s.ExclusiveMinimum)
				assert.True(t, s.ExclusiveMinimumFlag)
				assert.False(t, s.ExclusiveMaximumFlag)
			},
		},
		{
			name: "null const is present",
			json: `{"const": null, "default": {"a": 1}}`,
			check: func(t *testing.T, s *Schema) {
				assert.True(t, s.HasConst)
				assert.Nil(t, s.Const)
				assert.True(t, s.HasDefault)
				assert.Equal(t, map[string]any{"a": 1.0}, s.Default)
			},
		},
		{
			name: "legacy dependencies",
			json: `{"dependencies": {"a": ["b", "c"], "d": {"required": ["e"]}}}`,
			check: func(t *testing.T, s *Schema) {
				assert.Equal(t, []string{"b", "c"}, s.Dependencies["a"].Required)
				assert.Nil(t, s.Dependencies["a"].Schema)
				require.NotNil(t, s.Dependencies["d"].Schema)
				assert.Equal(t, []string{"e"}, s.Dependencies["d"].Schema.Required)
			},
		},
		{
			name: "type list",
			json: `{"type": ["string", "null"]}`,
			check: func(t *testing.T, s *Schema) {
				assert.True(t, s.Type.Is("null"))
				assert.Equal(t, "string | null", s.Type.String())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.json))
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestParse_PropertyOrder(t *testing.T) {
	s, err := Parse([]byte(`{
		"properties": {"zeta": {}, "alpha": {}, "mid": {"properties": {"y": {}, "x": {}}}},
		"patternProperties": {"^z": {}, "^a": {}}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"zeta", "alpha", "mid"}, s.PropertyNames())
	assert.Equal(t, []string{"y", "x"}, s.Properties["mid"].PropertyNames())
	assert.Equal(t, []string{"^z", "^a"}, s.PatternPropertyNames())

	s.Properties["beta"] = &Schema{}
	assert.Equal(t, []string{"zeta", "alpha", "mid", "beta"}, s.PropertyNames())

	built := &Schema{Properties: map[string]*Schema{"b": {}, "a": {}}}
	assert.Equal(t, []string{"a", "b"}, built.PropertyNames())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte(`{"type": 5}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`42`))
	assert.Error(t, err)
}

func TestDraftFromURI(t *testing.T) {
	tests := []struct {
		uri  string
		want Draft
	}{
		{"http://json-schema.org/draft-04/schema#", Draft4},
		{"https://json-schema.org/draft-07/schema", Draft7},
		{"https://json-schema.org/draft/2020-12/schema", Draft2020_12},
		{"http://json-schema.org/draft/2019-09/schema#", Draft2019_09},
		{"http://json-schema.org/draft-03/schema", Draft3},
		{"https://example.com/my-own-dialect.json", DraftUnknown},
		{"", DraftUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DraftFromURI(tt.uri), tt.uri)
	}
}

func TestParseSchemaContent(t *testing.T) {
	u := ParseSchemaContent("file:///s.json", "{\n // comment\n \"type\": \"object\",\n}")
	assert.Empty(t, u.Errors)
	assert.True(t, u.Schema.Type.Is("object"))

	u = ParseSchemaContent("file:///s.json", "")
	assert.Equal(t, []string{"Unable to load schema from 'file:///s.json': No content."}, u.Errors)

	u = ParseSchemaContent("file:///s.json", `{"type": }`)
	require.NotEmpty(t, u.Errors)
	assert.Contains(t, u.Errors[0], "Parse error at offset 9")

	u = ParseSchemaContent("file:///s.json", `[1]`)
	assert.Equal(t, []string{"Schema content from 'file:///s.json' must be an object or boolean."}, u.Errors)
}
