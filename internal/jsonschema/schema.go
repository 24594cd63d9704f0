package jsonschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Schema is a JSON Schema node. Boolean schemas (`true` / `false`) have
// Boolean set and no other fields.
//
// Keywords whose JSON form is polymorphic are split into separate fields:
// Items/TupleItems, ExclusiveMinimum/ExclusiveMinimumFlag and so on.
type Schema struct {
	Boolean *bool `json:"-"`

	ID        string `json:"$id,omitempty"`
	LegacyID  string `json:"id,omitempty"`
	SchemaURI string `json:"$schema,omitempty"`
	Ref       string `json:"$ref,omitempty"`
	Anchor    string `json:"$anchor,omitempty"`
	Comment   string `json:"$comment,omitempty"`

	// Meta-schema keywords the validator does not support. They are kept so
	// resolution can report them.
	RecursiveRef    string          `json:"$recursiveRef,omitempty"`
	RecursiveAnchor json.RawMessage `json:"$recursiveAnchor,omitempty"`
	DynamicRef      string          `json:"$dynamicRef,omitempty"`
	DynamicAnchor   string          `json:"$dynamicAnchor,omitempty"`

	Defs        map[string]*Schema `json:"$defs,omitempty"`
	Definitions map[string]*Schema `json:"definitions,omitempty"`

	Title               string `json:"title,omitempty"`
	Description         string `json:"description,omitempty"`
	MarkdownDescription string `json:"markdownDescription,omitempty"`
	Deprecated          bool   `json:"deprecated,omitempty"`
	DeprecationMessage  string `json:"deprecationMessage,omitempty"`
	ErrorMessage        string `json:"errorMessage,omitempty"`
	PatternErrorMessage string `json:"patternErrorMessage,omitempty"`
	DoNotSuggest        bool   `json:"doNotSuggest,omitempty"`
	SuggestSortText     string `json:"suggestSortText,omitempty"`
	AllowComments       *bool  `json:"allowComments,omitempty"`
	AllowTrailingCommas *bool  `json:"allowTrailingCommas,omitempty"`

	Type                     SchemaType       `json:"type,omitempty"`
	Enum                     []any            `json:"enum,omitempty"`
	Const                    any              `json:"-"`
	HasConst                 bool             `json:"-"`
	Default                  any              `json:"-"`
	HasDefault               bool             `json:"-"`
	Examples                 []any            `json:"examples,omitempty"`
	DefaultSnippets          []DefaultSnippet `json:"defaultSnippets,omitempty"`
	EnumDescriptions         []string         `json:"enumDescriptions,omitempty"`
	MarkdownEnumDescriptions []string         `json:"markdownEnumDescriptions,omitempty"`
	EnumSortTexts            []string         `json:"enumSortTexts,omitempty"`

	AllOf []*Schema `json:"allOf,omitempty"`
	AnyOf []*Schema `json:"anyOf,omitempty"`
	OneOf []*Schema `json:"oneOf,omitempty"`
	Not   *Schema   `json:"not,omitempty"`
	If    *Schema   `json:"if,omitempty"`
	Then  *Schema   `json:"then,omitempty"`
	Else  *Schema   `json:"else,omitempty"`

	MultipleOf       *float64 `json:"multipleOf,omitempty"`
	Minimum          *float64 `json:"minimum,omitempty"`
	Maximum          *float64 `json:"maximum,omitempty"`
	ExclusiveMinimum *float64 `json:"-"`
	ExclusiveMaximum *float64 `json:"-"`

	// Draft-04 boolean forms of exclusiveMinimum / exclusiveMaximum.
	ExclusiveMinimumFlag bool `json:"-"`
	ExclusiveMaximumFlag bool `json:"-"`

	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Format    string `json:"format,omitempty"`

	Items            *Schema   `json:"-"`
	TupleItems       []*Schema `json:"-"`
	PrefixItems      []*Schema `json:"prefixItems,omitempty"`
	AdditionalItems  *Schema   `json:"additionalItems,omitempty"`
	Contains         *Schema   `json:"contains,omitempty"`
	MinContains      *int      `json:"minContains,omitempty"`
	MaxContains      *int      `json:"maxContains,omitempty"`
	MinItems         *int      `json:"minItems,omitempty"`
	MaxItems         *int      `json:"maxItems,omitempty"`
	UniqueItems      bool      `json:"uniqueItems,omitempty"`
	UnevaluatedItems *Schema   `json:"unevaluatedItems,omitempty"`

	Properties            map[string]*Schema     `json:"properties,omitempty"`
	PatternProperties     map[string]*Schema     `json:"patternProperties,omitempty"`
	PropertyOrder         []string               `json:"-"`
	PatternPropertyOrder  []string               `json:"-"`
	AdditionalProperties  *Schema                `json:"additionalProperties,omitempty"`
	UnevaluatedProperties *Schema                `json:"unevaluatedProperties,omitempty"`
	PropertyNames         *Schema                `json:"propertyNames,omitempty"`
	Required              []string               `json:"required,omitempty"`
	MinProperties         *int                   `json:"minProperties,omitempty"`
	MaxProperties         *int                   `json:"maxProperties,omitempty"`
	DependentRequired     map[string][]string    `json:"dependentRequired,omitempty"`
	DependentSchemas      map[string]*Schema     `json:"dependentSchemas,omitempty"`
	Dependencies          map[string]*Dependency `json:"-"`
}

// DefaultSnippet is a completion template attached to a schema.
type DefaultSnippet struct {
	Label               string `json:"label,omitempty"`
	Description         string `json:"description,omitempty"`
	MarkdownDescription string `json:"markdownDescription,omitempty"`
	Body                any    `json:"body,omitempty"`
	BodyText            string `json:"bodyText,omitempty"`
}

// Dependency is one entry of the legacy `dependencies` keyword: either a
// list of required property names or a schema.
type Dependency struct {
	Required []string
	Schema   *Schema
}

// UnmarshalJSON accepts an array of names or a schema.
func (d *Dependency) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &d.Required)
	}
	d.Schema = &Schema{}
	return json.Unmarshal(data, d.Schema)
}

// True returns the schema that accepts everything.
func True() *Schema {
	b := true
	return &Schema{Boolean: &b}
}

// False returns the schema that accepts nothing.
func False() *Schema {
	b := false
	return &Schema{Boolean: &b}
}

// Parse decodes a schema document.
func Parse(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return s, nil
}

// UnmarshalJSON decodes object and boolean schemas.
func (s *Schema) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", "false":
		b := string(data) == "true"
		*s = Schema{Boolean: &b}
		return nil
	}

	type plain Schema
	aux := struct {
		*plain
		Const            json.RawMessage            `json:"const"`
		Default          json.RawMessage            `json:"default"`
		ExclusiveMinimum json.RawMessage            `json:"exclusiveMinimum"`
		ExclusiveMaximum json.RawMessage            `json:"exclusiveMaximum"`
		Items            json.RawMessage            `json:"items"`
		Dependencies     map[string]json.RawMessage `json:"dependencies"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Const != nil {
		s.HasConst = true
		if err := json.Unmarshal(aux.Const, &s.Const); err != nil {
			return fmt.Errorf("const: %w", err)
		}
	}
	if aux.Default != nil {
		s.HasDefault = true
		if err := json.Unmarshal(aux.Default, &s.Default); err != nil {
			return fmt.Errorf("default: %w", err)
		}
	}
	var err error
	if s.ExclusiveMinimum, s.ExclusiveMinimumFlag, err = numberOrFlag(aux.ExclusiveMinimum); err != nil {
		return fmt.Errorf("exclusiveMinimum: %w", err)
	}
	if s.ExclusiveMaximum, s.ExclusiveMaximumFlag, err = numberOrFlag(aux.ExclusiveMaximum); err != nil {
		return fmt.Errorf("exclusiveMaximum: %w", err)
	}
	if items := bytes.TrimSpace(aux.Items); len(items) > 0 {
		if items[0] == '[' {
			if err := json.Unmarshal(items, &s.TupleItems); err != nil {
				return fmt.Errorf("items: %w", err)
			}
		} else {
			s.Items = &Schema{}
			if err := json.Unmarshal(items, s.Items); err != nil {
				return fmt.Errorf("items: %w", err)
			}
		}
	}
	s.PropertyOrder = objectKeys(data, "properties")
	s.PatternPropertyOrder = objectKeys(data, "patternProperties")
	if len(aux.Dependencies) > 0 {
		s.Dependencies = make(map[string]*Dependency, len(aux.Dependencies))
		for name, raw := range aux.Dependencies {
			d := &Dependency{}
			if err := json.Unmarshal(raw, d); err != nil {
				return fmt.Errorf("dependencies.%s: %w", name, err)
			}
			s.Dependencies[name] = d
		}
	}
	return nil
}

// objectKeys returns the member names of the object at field in the order
// they appear in data.
func objectKeys(data []byte, field string) []string {
	v := gjson.GetBytes(data, field)
	if !v.IsObject() {
		return nil
	}
	var keys []string
	seen := map[string]bool{}
	v.ForEach(func(k, _ gjson.Result) bool {
		if name := k.String(); !seen[name] {
			seen[name] = true
			keys = append(keys, name)
		}
		return true
	})
	return keys
}

// PropertyNames returns the keys of Properties in declaration order.
// Keys added after parsing follow, sorted.
func (s *Schema) PropertyNames() []string {
	return orderedKeys(s.Properties, s.PropertyOrder)
}

// PatternPropertyNames returns the keys of PatternProperties in
// declaration order.
func (s *Schema) PatternPropertyNames() []string {
	return orderedKeys(s.PatternProperties, s.PatternPropertyOrder)
}

func orderedKeys(m map[string]*Schema, order []string) []string {
	keys := make([]string, 0, len(m))
	seen := make(map[string]bool, len(m))
	for _, k := range order {
		if _, ok := m[k]; ok && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func numberOrFlag(raw json.RawMessage) (*float64, bool, error) {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null":
		return nil, false, nil
	case "true":
		return nil, true, nil
	case "false":
		return nil, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false, err
	}
	return &f, false, nil
}

// IsBoolean reports whether s is a `true` or `false` schema.
func (s *Schema) IsBoolean() bool {
	return s != nil && s.Boolean != nil
}

// IsTrue reports whether s is the `true` schema.
func (s *Schema) IsTrue() bool {
	return s.IsBoolean() && *s.Boolean
}

// IsFalse reports whether s is the `false` schema.
func (s *Schema) IsFalse() bool {
	return s.IsBoolean() && !*s.Boolean
}

// IsRequired checks if a property is required.
func (s *Schema) IsRequired(name string) bool {
	for _, req := range s.Required {
		if req == name {
			return true
		}
	}
	return false
}

// SchemaType represents JSON Schema type(s).
// Can be a single type or an array of types.
type SchemaType struct {
	Types []string
}

// UnmarshalJSON handles both single type and array of types.
func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		t.Types = []string{single}
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("type must be string or array of strings: %w", err)
	}
	t.Types = arr
	return nil
}

// Is checks if the schema type includes the given type.
func (t SchemaType) Is(typ string) bool {
	for _, st := range t.Types {
		if st == typ {
			return true
		}
	}
	return false
}

// IsEmpty returns true if no types are defined.
func (t SchemaType) IsEmpty() bool {
	return len(t.Types) == 0
}

// String returns the types joined for messages, e.g. "string | number".
func (t SchemaType) String() string {
	return strings.Join(t.Types, " | ")
}

// Common type constants for JSON Schema.
const (
	TypeNameString  = "string"
	TypeNameNumber  = "number"
	TypeNameInteger = "integer"
	TypeNameBoolean = "boolean"
	TypeNameArray   = "array"
	TypeNameObject  = "object"
	TypeNameNull    = "null"
)

// Draft identifies the JSON Schema dialect a document declares.
type Draft int

const (
	DraftUnknown Draft = 0
	Draft3       Draft = 3
	Draft4       Draft = 4
	Draft6       Draft = 6
	Draft7       Draft = 7
	Draft2019_09 Draft = 19
	Draft2020_12 Draft = 20
)

var draftsByID = map[string]Draft{
	"json-schema.org/draft-03/schema":      Draft3,
	"json-schema.org/draft-04/schema":      Draft4,
	"json-schema.org/draft-06/schema":      Draft6,
	"json-schema.org/draft-07/schema":      Draft7,
	"json-schema.org/draft/2019-09/schema": Draft2019_09,
	"json-schema.org/draft/2020-12/schema": Draft2020_12,
}

// DraftFromURI maps a `$schema` value to its draft. http and https are
// treated alike and a trailing '#' is ignored.
func DraftFromURI(uri string) Draft {
	id := strings.TrimSuffix(uri, "#")
	id = strings.TrimPrefix(id, "https://")
	id = strings.TrimPrefix(id, "http://")
	return draftsByID[id]
}

func (d Draft) String() string {
	switch d {
	case Draft3:
		return "draft-03"
	case Draft4:
		return "draft-04"
	case Draft6:
		return "draft-06"
	case Draft7:
		return "draft-07"
	case Draft2019_09:
		return "2019-09"
	case Draft2020_12:
		return "2020-12"
	default:
		return "unknown"
	}
}
