package jsonlang

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

const testURI = "file:///project/test.json"

// newTestService returns a language service whose schema service binds
// schema (when non-empty) to test.json documents.
func newTestService(t *testing.T, schema string) *LanguageService {
	t.Helper()
	svc := jsonschema.NewService(nil)
	svc.SetSchemaContributions(jsonschema.BuiltinContributions())
	if schema != "" {
		svc.RegisterExternalSchema(jsonschema.SchemaConfiguration{
			URI:       "http://example.com/test.schema",
			FileMatch: []string{"test.json"},
			Schema:    json.RawMessage(schema),
		})
	}
	return NewLanguageService(svc)
}

// openAt opens text as test.json. The cursor marker '|' is removed and its
// position returned.
func openAt(t *testing.T, ls *LanguageService, text string) (*textdoc.Document, *Document, protocol.Position) {
	t.Helper()
	offset := strings.Index(text, "|")
	if offset < 0 {
		t.Fatalf("no cursor marker in %q", text)
	}
	text = text[:offset] + text[offset+1:]
	td := textdoc.New(testURI, "json", 1, text)
	return td, ls.ParseDocument(td), td.PositionAt(offset)
}

func open(ls *LanguageService, languageID, text string) (*textdoc.Document, *Document) {
	td := textdoc.New(testURI, languageID, 1, text)
	return td, ls.ParseDocument(td)
}
