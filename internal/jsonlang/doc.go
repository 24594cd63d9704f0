// Package jsonlang implements the JSON language features: a fault-tolerant
// parser producing a position-aware tree, a JSON Schema validator, and the
// editor services built on them (diagnostics, completion, hover, symbols,
// colors, folding, selection ranges and formatting).
//
// Parse never fails. Syntax problems are collected on the Document and the
// tree holds whatever could be recovered, so every service works on broken
// input:
//
//	doc := jsonlang.Parse(text, jsonlang.ParseOptions{CollectComments: true})
//	problems := doc.Validate(schema, protocol.DiagnosticSeverityWarning, jsonschema.DraftUnknown)
//
// LanguageService binds the services to a jsonschema.Service, which picks
// the schema for each document. Offsets inside this package are byte
// offsets; LanguageService methods convert them to LSP positions through
// the textdoc.Document they are given.
package jsonlang
