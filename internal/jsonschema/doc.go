// Package jsonschema loads, resolves and caches JSON Schema documents.
//
// A Service keeps one handle per normalized schema URI. Each handle caches
// the loaded document (UnresolvedSchema) and, on first use, the document
// with every `$ref` merged in (ResolvedSchema). Resolution works on a
// private copy of the loaded documents, so cached documents are never
// mutated. References into other documents load them through the same
// cache and are recorded as dependencies; OnResourceChange drops a schema
// together with everything that depends on it.
//
// Resources are mapped to schemas either by their own `$schema` property or
// by glob associations:
//
//	svc := jsonschema.NewService(jsonschema.DefaultFetcher(nil))
//	svc.SetSchemaContributions(jsonschema.BuiltinContributions())
//	svc.RegisterExternalSchema(jsonschema.SchemaConfiguration{
//	    URI:       "https://json.schemastore.org/package.json",
//	    FileMatch: []string{"package.json"},
//	})
//	resolved, err := svc.GetSchemaForResource(ctx, "file:///app/package.json", doc)
//
// Load and resolution problems never fail a call; they are reported in the
// Errors and Warnings of the returned schema.
package jsonschema
