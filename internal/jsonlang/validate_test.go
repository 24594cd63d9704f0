package jsonlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
)

func mustSchema(t *testing.T, text string) *jsonschema.Schema {
	t.Helper()
	s, err := jsonschema.Parse([]byte(text))
	require.NoError(t, err)
	return s
}

func validateText(t *testing.T, schema, text string, draft jsonschema.Draft) []Diagnostic {
	t.Helper()
	doc := Parse(text, ParseOptions{})
	require.Empty(t, doc.SyntaxErrors, "test document must parse cleanly")
	return doc.Validate(mustSchema(t, schema), protocol.DiagnosticSeverityWarning, draft)
}

func messages(problems []Diagnostic) []string {
	out := make([]string, len(problems))
	for i, p := range problems {
		out[i] = p.Message
	}
	return out
}

func TestValidate_RequiredAndType(t *testing.T) {
	schema := `{"type": "object", "required": ["a"], "properties": {"a": {"type": "string"}}}`

	t.Run("missing property", func(t *testing.T) {
		problems := validateText(t, schema, `{"b": 1}`, jsonschema.DraftUnknown)
		require.Len(t, problems, 1)
		p := problems[0]
		assert.Equal(t, `Missing property "a".`, p.Message)
		assert.Equal(t, MissingRequiredPropWarning, p.Code)
		assert.Equal(t, protocol.DiagnosticSeverityWarning, p.Severity)
		assert.Equal(t, 0, p.Offset)
		assert.Equal(t, 1, p.Length)
	})

	t.Run("type mismatch", func(t *testing.T) {
		problems := validateText(t, schema, `{"a": 1}`, jsonschema.DraftUnknown)
		require.Len(t, problems, 1)
		p := problems[0]
		assert.Equal(t, `Incorrect type. Expected "string".`, p.Message)
		assert.Equal(t, TypeMismatchWarning, p.Code)
		assert.Equal(t, 6, p.Offset)
		assert.Equal(t, 1, p.Length)
	})

	t.Run("valid", func(t *testing.T) {
		assert.Empty(t, validateText(t, schema, `{"a": "x"}`, jsonschema.DraftUnknown))
	})
}

func TestValidate_MissingPropertyAtParentKey(t *testing.T) {
	schema := `{"properties": {"outer": {"required": ["x"]}}}`
	problems := validateText(t, schema, `{"outer": {}}`, jsonschema.DraftUnknown)
	require.Len(t, problems, 1)
	assert.Equal(t, 1, problems[0].Offset)
	assert.Equal(t, 7, problems[0].Length)
}

func TestValidate_SeverityDefault(t *testing.T) {
	doc := Parse(`{"a": 1}`, ParseOptions{})
	schema := mustSchema(t, `{"properties": {"a": {"type": "string"}}}`)
	problems := doc.Validate(schema, protocol.DiagnosticSeverityError, jsonschema.DraftUnknown)
	require.Len(t, problems, 1)
	assert.Equal(t, protocol.DiagnosticSeverityError, problems[0].Severity)
}

func TestValidate_Alternatives(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		text   string
		want   []string
	}{
		{
			name:   "oneOf single match",
			schema: `{"oneOf": [{"type": "number"}, {"type": "string"}]}`,
			text:   `42`,
			want:   []string{},
		},
		{
			name:   "oneOf multiple matches",
			schema: `{"oneOf": [{"type": "number"}, {"minimum": 0}]}`,
			text:   `42`,
			want:   []string{"Matches multiple schemas when only one must validate."},
		},
		{
			name:   "anyOf reports best branch",
			schema: `{"anyOf": [{"type": "object", "properties": {"a": {"type": "string"}}}, {"type": "array"}]}`,
			text:   `{"a": 1}`,
			want:   []string{`Incorrect type. Expected "string".`},
		},
		{
			name:   "anyOf any match",
			schema: `{"anyOf": [{"type": "number"}, {"minimum": 0}]}`,
			text:   `42`,
			want:   []string{},
		},
		{
			name:   "enum branches merge values",
			schema: `{"anyOf": [{"enum": ["a"]}, {"enum": ["b"]}]}`,
			text:   `"c"`,
			want:   []string{`Value is not accepted. Valid values: "a", "b".`},
		},
		{
			name:   "allOf",
			schema: `{"allOf": [{"type": "number"}, {"minimum": 50}]}`,
			text:   `42`,
			want:   []string{"Value is below the minimum of 50."},
		},
		{
			name:   "not",
			schema: `{"not": {"type": "string"}}`,
			text:   `"x"`,
			want:   []string{"Matches a schema that is not allowed."},
		},
		{
			name:   "false schema",
			schema: `false`,
			text:   `1`,
			want:   []string{"Matches a schema that is not allowed."},
		},
		{
			name:   "if then",
			schema: `{"if": {"properties": {"kind": {"const": "n"}}}, "then": {"properties": {"v": {"type": "number"}}}, "else": {"properties": {"v": {"type": "string"}}}}`,
			text:   `{"kind": "n", "v": "x"}`,
			want:   []string{`Incorrect type. Expected "number".`},
		},
		{
			name:   "if else",
			schema: `{"if": {"properties": {"kind": {"const": "n"}}}, "then": {"properties": {"v": {"type": "number"}}}, "else": {"properties": {"v": {"type": "string"}}}}`,
			text:   `{"kind": "s", "v": 1}`,
			want:   []string{`Incorrect type. Expected "string".`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := validateText(t, tt.schema, tt.text, jsonschema.DraftUnknown)
			assert.Equal(t, tt.want, messages(problems))
		})
	}
}

func TestValidate_MultipleMatchLocation(t *testing.T) {
	problems := validateText(t, `{"oneOf": [{"type": "object"}, {"minProperties": 1}]}`, `{"a": 1}`, jsonschema.DraftUnknown)
	require.Len(t, problems, 1)
	assert.Equal(t, 0, problems[0].Offset)
	assert.Equal(t, 1, problems[0].Length)
}

func TestValidate_Scalars(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		text   string
		want   []string
	}{
		{"enum", `{"enum": ["a", "b"]}`, `"c"`, []string{`Value is not accepted. Valid values: "a", "b".`}},
		{"enum match", `{"enum": [1, {"x": [true]}]}`, `{"x": [true]}`, []string{}},
		{"const", `{"const": 1}`, `2`, []string{"Value must be 1."}},
		{"error message", `{"type": "string", "errorMessage": "Give me text"}`, `1`, []string{"Give me text"}},
		{"type list", `{"type": ["string", "boolean"]}`, `1`, []string{"Incorrect type. Expected one of string, boolean."}},
		{"integer", `{"type": "integer"}`, `1.5`, []string{`Incorrect type. Expected "integer".`}},
		{"integer is number", `{"type": "number"}`, `1`, []string{}},
		{"minimum", `{"minimum": 1, "maximum": 3}`, `0`, []string{"Value is below the minimum of 1."}},
		{"maximum", `{"minimum": 1, "maximum": 3}`, `4`, []string{"Value is above the maximum of 3."}},
		{"exclusive numeric", `{"exclusiveMinimum": 1}`, `1`, []string{"Value is below the exclusive minimum of 1."}},
		{"exclusive flag", `{"minimum": 1, "exclusiveMinimum": true}`, `1`, []string{"Value is below the exclusive minimum of 1."}},
		{"exclusive max flag", `{"maximum": 3, "exclusiveMaximum": true}`, `3`, []string{"Value is above the exclusive maximum of 3."}},
		{"multipleOf", `{"multipleOf": 2}`, `3`, []string{"Value is not divisible by 2."}},
		{"multipleOf decimal", `{"multipleOf": 0.1}`, `0.3`, []string{}},
		{"minLength code points", `{"minLength": 2}`, `"é"`, []string{"String is shorter than the minimum length of 2."}},
		{"maxLength", `{"maxLength": 2}`, `"abc"`, []string{"String is longer than the maximum length of 2."}},
		{"pattern", `{"pattern": "^\\d+$"}`, `"12a"`, []string{`String does not match the pattern of "^\d+$".`}},
		{"pattern message", `{"pattern": "^a", "patternErrorMessage": "Must start with a"}`, `"b"`, []string{"Must start with a"}},
		{"pattern lookahead", `{"pattern": "^(?!foo)"}`, `"foobar"`, []string{`String does not match the pattern of "^(?!foo)".`}},
		{"pattern case insensitive", `{"pattern": "(?i)^abc$"}`, `"ABC"`, []string{}},
		{"format email", `{"format": "email"}`, `"nope"`, []string{"String is not an e-mail address."}},
		{"format unknown", `{"format": "whatever"}`, `"x"`, []string{}},
		{"deprecated", `{"properties": {"a": {"deprecationMessage": "Use b"}}}`, `{"a": 1}`, []string{"Use b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := validateText(t, tt.schema, tt.text, jsonschema.DraftUnknown)
			assert.Equal(t, tt.want, messages(problems))
		})
	}
}

func TestValidate_PropertyDeclarationOrder(t *testing.T) {
	schema := `{
		"properties": {"z": {"type": "string"}, "a": {"type": "string"}},
		"patternProperties": {"^y": {"type": "boolean"}, "^b": {"type": "boolean"}}
	}`
	problems := validateText(t, schema, `{"a": 1, "b1": 2, "y1": 3, "z": 4}`, jsonschema.DraftUnknown)
	require.Len(t, problems, 4)

	offsets := make([]int, len(problems))
	for i, p := range problems {
		offsets[i] = p.Offset
	}
	// z, a, then y1 (^y), then b1 (^b)
	assert.Equal(t, []int{32, 6, 24, 15}, offsets)
}

func TestValidate_DeprecatedAtProperty(t *testing.T) {
	problems := validateText(t, `{"properties": {"a": {"deprecationMessage": "Use b"}}}`, `{"a": 1}`, jsonschema.DraftUnknown)
	require.Len(t, problems, 1)
	p := problems[0]
	assert.Equal(t, Deprecated, p.Code)
	assert.Equal(t, "Use b", p.Message)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, p.Severity)
	assert.Equal(t, 1, p.Offset)
	assert.Equal(t, 6, p.Length)
}

func TestValidate_DeprecatedFlagIsHint(t *testing.T) {
	problems := validateText(t, `{"properties": {"a": {"deprecated": true}}}`, `{"a": 1}`, jsonschema.DraftUnknown)
	require.Len(t, problems, 1)
	assert.Equal(t, Deprecated, problems[0].Code)
	assert.Equal(t, "Value is deprecated", problems[0].Message)
	assert.Equal(t, protocol.DiagnosticSeverityHint, problems[0].Severity)
}

func TestValidate_DeprecatedFlagDoesNotRankBranches(t *testing.T) {
	// The first branch only differs by being deprecated; it must still win
	// over the second, which has a real mismatch.
	schema := `{"anyOf": [
		{"type": "object", "properties": {"a": {"type": "number", "deprecated": true}}},
		{"type": "object", "properties": {"a": {"type": "string"}}}
	]}`

	doc := Parse(`{"a": 1}`, ParseOptions{})
	result := newValidationResult()
	v := &validator{draft: jsonschema.DraftUnknown}
	v.validate(doc.Root, mustSchema(t, schema), result, noopCollector{})

	assert.False(t, result.HasProblems())
	require.Len(t, result.Hints, 1)
	assert.Equal(t, Deprecated, result.Hints[0].Code)

	deprecated := newValidationResult()
	deprecated.Hints = append(deprecated.Hints, Diagnostic{Code: Deprecated})
	assert.Zero(t, deprecated.Compare(newValidationResult()))
}

func TestValidate_Arrays(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		text   string
		draft  jsonschema.Draft
		want   []string
	}{
		{"items", `{"items": {"type": "number"}}`, `[1, "a"]`, jsonschema.DraftUnknown, []string{`Incorrect type. Expected "number".`}},
		{"tuple additionalItems", `{"items": [{"type": "number"}], "additionalItems": false}`, `[1, 2]`, jsonschema.Draft7, []string{"Array has too many items according to schema. Expected 1 or fewer."}},
		{"tuple positions", `{"items": [{"type": "number"}, {"type": "string"}]}`, `[1, 2]`, jsonschema.Draft7, []string{`Incorrect type. Expected "string".`}},
		{"prefixItems", `{"prefixItems": [{"type": "number"}], "items": false}`, `[1, 2]`, jsonschema.Draft2020_12, []string{"Array has too many items according to schema. Expected 1 or fewer."}},
		{"prefixItems undeclared draft", `{"prefixItems": [{"type": "number"}], "items": {"type": "string"}}`, `[1, "a"]`, jsonschema.DraftUnknown, []string{}},
		{"contains", `{"contains": {"type": "string"}}`, `[1, 2]`, jsonschema.DraftUnknown, []string{"Array does not contain required item."}},
		{"minContains", `{"contains": {"type": "number"}, "minContains": 3}`, `[1, 2]`, jsonschema.DraftUnknown, []string{"Array has too few items that match the contains contraint. Expected 3 or more."}},
		{"minItems", `{"minItems": 3}`, `[1]`, jsonschema.DraftUnknown, []string{"Array has too few items. Expected 3 or more."}},
		{"maxItems", `{"maxItems": 1}`, `[1, 2]`, jsonschema.DraftUnknown, []string{"Array has too many items. Expected 1 or fewer."}},
		{"uniqueItems", `{"uniqueItems": true}`, `[1, {"a": 1}, {"a": 1}]`, jsonschema.DraftUnknown, []string{"Array has duplicate items."}},
		{"unevaluatedItems", `{"prefixItems": [{}], "unevaluatedItems": false}`, `[1, 2]`, jsonschema.Draft2020_12, []string{"Item does not match any validation rule from the array."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := validateText(t, tt.schema, tt.text, tt.draft)
			assert.Equal(t, tt.want, messages(problems))
		})
	}
}

func TestValidate_Objects(t *testing.T) {
	tests := []struct {
		name   string
		schema string
		text   string
		want   []string
	}{
		{"additionalProperties false", `{"properties": {"a": {}}, "additionalProperties": false}`, `{"a": 1, "b": 2}`, []string{"Property b is not allowed."}},
		{"additionalProperties schema", `{"additionalProperties": {"type": "string"}}`, `{"b": 2}`, []string{`Incorrect type. Expected "string".`}},
		{"patternProperties", `{"patternProperties": {"^x-": {"type": "string"}}, "additionalProperties": false}`, `{"x-a": "ok", "y": 1}`, []string{"Property y is not allowed."}},
		{"unevaluatedProperties", `{"properties": {"a": {}}, "unevaluatedProperties": false}`, `{"a": 1, "b": 2}`, []string{"Property b is not allowed."}},
		{"unevaluated through allOf", `{"allOf": [{"properties": {"a": {}}}], "unevaluatedProperties": false}`, `{"a": 1}`, []string{}},
		{"maxProperties", `{"maxProperties": 1}`, `{"a": 1, "b": 2}`, []string{"Object has more properties than limit of 1."}},
		{"minProperties", `{"minProperties": 2}`, `{"a": 1}`, []string{"Object has fewer properties than the required number of 2"}},
		{"dependentRequired", `{"dependentRequired": {"a": ["b"]}}`, `{"a": 1}`, []string{"Object is missing property b required by property a."}},
		{"dependencies array", `{"dependencies": {"a": ["b"]}}`, `{"a": 1}`, []string{"Object is missing property b required by property a."}},
		{"dependencies schema", `{"dependencies": {"a": {"required": ["c"]}}}`, `{"a": 1}`, []string{`Missing property "c".`}},
		{"dependentSchemas", `{"dependentSchemas": {"a": {"properties": {"b": {"type": "string"}}}}}`, `{"a": 1, "b": 1}`, []string{`Incorrect type. Expected "string".`}},
		{"propertyNames", `{"propertyNames": {"maxLength": 2}}`, `{"abc": 1}`, []string{"String is longer than the maximum length of 2."}},
		{"true property schema", `{"properties": {"a": true}, "additionalProperties": false}`, `{"a": 1}`, []string{}},
		{"false property schema", `{"properties": {"a": false}}`, `{"a": 1}`, []string{"Property a is not allowed."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problems := validateText(t, tt.schema, tt.text, jsonschema.DraftUnknown)
			assert.Equal(t, tt.want, messages(problems))
		})
	}
}

func TestValidate_NotAllowedAtKey(t *testing.T) {
	problems := validateText(t, `{"additionalProperties": false}`, `{"abc": 1}`, jsonschema.DraftUnknown)
	require.Len(t, problems, 1)
	assert.Equal(t, 1, problems[0].Offset)
	assert.Equal(t, 5, problems[0].Length)
}

func TestValidationResult_Compare(t *testing.T) {
	clean := newValidationResult()
	broken := newValidationResult()
	broken.Problems = []Diagnostic{{Message: "x"}}
	assert.Positive(t, clean.Compare(broken))
	assert.Negative(t, broken.Compare(clean))

	enum := newValidationResult()
	enum.EnumValueMatch = true
	assert.Positive(t, enum.Compare(clean))

	props := newValidationResult()
	props.PropertiesValueMatches = 2
	assert.Positive(t, props.Compare(clean))
	assert.Zero(t, clean.Compare(newValidationResult()))
}

func TestDocument_MatchingSchemas(t *testing.T) {
	schema := mustSchema(t, `{"properties": {"a": {"title": "A"}, "b": {"title": "B"}}}`)
	text := `{"a": 1, "b": 2}`
	doc := Parse(text, ParseOptions{})

	var titles []string
	for _, s := range doc.MatchingSchemas(schema, 6, nil) {
		if s.Schema.Title != "" {
			titles = append(titles, s.Schema.Title)
		}
	}
	assert.Equal(t, []string{"A"}, titles)

	all := doc.MatchingSchemas(schema, -1, nil)
	assert.Len(t, all, 3)

	notSchema := mustSchema(t, `{"not": {"title": "N"}}`)
	var inverted []bool
	for _, s := range doc.MatchingSchemas(notSchema, -1, nil) {
		if s.Schema.Title == "N" {
			inverted = append(inverted, s.Inverted)
		}
	}
	assert.Equal(t, []bool{true}, inverted)
}
