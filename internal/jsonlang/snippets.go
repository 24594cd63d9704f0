package jsonlang

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
)

var snippetEscaper = strings.NewReplacer(`\`, `\\`, `$`, `\$`, `}`, `\}`)

// placeholderPattern matches `${1:text}` and `$1` snippet placeholders.
var placeholderPattern = regexp.MustCompile(`\$\{\d+:([^}]+)\}|\$\d+`)

// plainTextSnippet escapes text for use inside a snippet.
func plainTextSnippet(text string) string {
	return snippetEscaper.Replace(text)
}

// toIndentedJSON renders v with tab indentation and no HTML escaping.
func toIndentedJSON(v any) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "\t")
	if err := enc.Encode(v); err != nil {
		return toJSON(v)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func labelForValue(v any) string {
	return toJSON(v)
}

func filterTextForValue(v any) string {
	return toJSON(v)
}

func filterTextForSnippetValue(v any) string {
	return placeholderPattern.ReplaceAllString(toJSON(v), "$1")
}

func labelForSnippetValue(v any) string {
	return placeholderPattern.ReplaceAllString(toJSON(v), "$1")
}

// insertTextForValue renders v as snippet text. Empty containers get a
// tab stop inside.
func insertTextForValue(v any, separatorAfter string) string {
	text := toIndentedJSON(v)
	switch text {
	case "{}":
		return "{$1}" + separatorAfter
	case "[]":
		return "[$1]" + separatorAfter
	}
	return plainTextSnippet(text + separatorAfter)
}

// insertTextForSnippetValue renders a defaultSnippets body. Strings that
// start with '^' are inserted raw so bodies can carry placeholders.
func insertTextForSnippetValue(v any, separatorAfter string) string {
	literal := func(v any) string {
		if s, ok := v.(string); ok && strings.HasPrefix(s, "^") {
			return s[1:]
		}
		return toJSON(v)
	}
	return stringifyObject(v, "", literal) + separatorAfter
}

// insertTextForGuessedValue renders v as a selected placeholder.
func insertTextForGuessedValue(v any, separatorAfter string) string {
	switch val := v.(type) {
	case nil:
		return "${1:null}" + separatorAfter
	case string:
		quoted := toJSON(val)
		return `"${1:` + plainTextSnippet(quoted[1:len(quoted)-1]) + `}"` + separatorAfter
	case float64, bool:
		return "${1:" + toJSON(val) + "}" + separatorAfter
	}
	return insertTextForValue(v, separatorAfter)
}

// stringifyObject prints v one member per line with tab indentation,
// rendering leaves through literal. Object keys are sorted.
func stringifyObject(v any, indent string, literal func(any) string) string {
	newIndent := indent + "\t"
	switch val := v.(type) {
	case []any:
		if len(val) == 0 {
			return "[]"
		}
		var b strings.Builder
		b.WriteString("[\n")
		for i, item := range val {
			b.WriteString(newIndent + stringifyObject(item, newIndent, literal))
			if i < len(val)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(indent + "]")
		return b.String()
	case map[string]any:
		if len(val) == 0 {
			return "{}"
		}
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteString("{\n")
		for i, k := range keys {
			b.WriteString(newIndent + toJSON(k) + ": " + stringifyObject(val[k], newIndent, literal))
			if i < len(keys)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(indent + "}")
		return b.String()
	}
	return literal(v)
}

// insertTextForProperty renders `"key": value` where value is guessed from
// the property schema: a single default/enum/const/example becomes a
// placeholder, several become a bare tab stop.
func insertTextForProperty(key string, propSchema *jsonschema.Schema, addValue bool, separatorAfter string) string {
	propertyText := insertTextForValue(key, "")
	if !addValue {
		return propertyText
	}
	resultText := propertyText + ": "

	value := ""
	proposals := 0
	if propSchema != nil {
		if snippets := propSchema.DefaultSnippets; len(snippets) > 0 {
			if len(snippets) == 1 && snippets[0].Body != nil {
				value = insertTextForSnippetValue(snippets[0].Body, "")
			}
			proposals += len(snippets)
		}
		if propSchema.Enum != nil {
			if value == "" && len(propSchema.Enum) == 1 {
				value = insertTextForGuessedValue(propSchema.Enum[0], "")
			}
			proposals += len(propSchema.Enum)
		}
		if propSchema.HasConst {
			if value == "" {
				value = insertTextForGuessedValue(propSchema.Const, "")
			}
			proposals++
		}
		if propSchema.HasDefault {
			if value == "" {
				value = insertTextForGuessedValue(propSchema.Default, "")
			}
			proposals++
		}
		if len(propSchema.Examples) > 0 {
			if value == "" {
				value = insertTextForGuessedValue(propSchema.Examples[0], "")
			}
			proposals += len(propSchema.Examples)
		}
		if proposals == 0 {
			typ := ""
			if len(propSchema.Type.Types) > 0 {
				typ = propSchema.Type.Types[0]
			} else if propSchema.Properties != nil {
				typ = jsonschema.TypeNameObject
			} else if propSchema.Items != nil || propSchema.TupleItems != nil {
				typ = jsonschema.TypeNameArray
			}
			switch typ {
			case jsonschema.TypeNameBoolean:
				value = "$1"
			case jsonschema.TypeNameString:
				value = `"$1"`
			case jsonschema.TypeNameObject:
				value = "{$1}"
			case jsonschema.TypeNameArray:
				value = "[$1]"
			case jsonschema.TypeNameNumber, jsonschema.TypeNameInteger:
				value = "${1:0}"
			case jsonschema.TypeNameNull:
				value = "${1:null}"
			default:
				return propertyText
			}
		}
	}
	if value == "" || proposals > 1 {
		value = "$1"
	}
	return resultText + value + separatorAfter
}

// suggestionKind maps a schema or node type to a completion kind.
func suggestionKind(types ...string) protocol.CompletionItemKind {
	if len(types) == 0 {
		return protocol.CompletionItemKindValue
	}
	switch types[0] {
	case "object":
		return protocol.CompletionItemKindModule
	case "property":
		return protocol.CompletionItemKindProperty
	}
	return protocol.CompletionItemKindValue
}
