package jsonschema

import (
	_ "embed"
	"encoding/json"
)

// Draft07URI is the identifier of the bundled draft-07 meta-schema.
const Draft07URI = "http://json-schema.org/draft-07/schema"

//go:embed draft-07.schema.json
var draft07 []byte

// BuiltinContributions returns the bundled meta-schema and associates it
// with `*.schema.json` files.
func BuiltinContributions() Contributions {
	return Contributions{
		Schemas: map[string]json.RawMessage{
			Draft07URI: json.RawMessage(draft07),
		},
		Associations: []Association{
			{Pattern: []string{"*.schema.json"}, URIs: []string{Draft07URI}},
		},
	}
}
