package jsonlang

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

// SeverityLevel is a user-facing severity setting. The empty level means
// the built-in default.
type SeverityLevel string

const (
	SeverityDefault SeverityLevel = ""
	SeverityError   SeverityLevel = "error"
	SeverityWarning SeverityLevel = "warning"
	SeverityInfo    SeverityLevel = "info"
	SeverityIgnore  SeverityLevel = "ignore"
)

// Valid reports whether l is a known level.
func (l SeverityLevel) Valid() bool {
	switch l {
	case SeverityDefault, SeverityError, SeverityWarning, SeverityInfo, SeverityIgnore:
		return true
	}
	return false
}

// resolve maps l to a diagnostic severity. ok is false when the problems
// should be dropped.
func (l SeverityLevel) resolve(def protocol.DiagnosticSeverity) (sev protocol.DiagnosticSeverity, ok bool) {
	switch l {
	case SeverityError:
		return protocol.DiagnosticSeverityError, true
	case SeverityWarning:
		return protocol.DiagnosticSeverityWarning, true
	case SeverityInfo:
		return protocol.DiagnosticSeverityInformation, true
	case SeverityIgnore:
		return 0, false
	}
	return def, def != 0
}

// ValidationSettings grade the problems DoValidation reports.
type ValidationSettings struct {
	// Validate turns validation on. The zero value reports nothing.
	Validate bool

	// AllowComments sets the default for Comments to ignore.
	AllowComments bool

	Comments         SeverityLevel
	TrailingCommas   SeverityLevel
	SchemaValidation SeverityLevel
	SchemaRequest    SeverityLevel

	// SchemaDraft overrides the draft the schema declares.
	SchemaDraft jsonschema.Draft
}

// DefaultValidationSettings returns the settings for a language id. JSON
// with comments ignores comments and downgrades trailing commas.
func DefaultValidationSettings(languageID string) ValidationSettings {
	if languageID == "jsonc" {
		return ValidationSettings{
			Validate:       true,
			Comments:       SeverityIgnore,
			TrailingCommas: SeverityWarning,
		}
	}
	return ValidationSettings{
		Validate:       true,
		Comments:       SeverityError,
		TrailingCommas: SeverityError,
	}
}

// DoValidation reports the problems of doc. When schema is non-empty it is
// used instead of the schema associated with the document.
func (ls *LanguageService) DoValidation(ctx context.Context, td *textdoc.Document, doc *Document, settings ValidationSettings, schema json.RawMessage) ([]protocol.Diagnostic, error) {
	if !settings.Validate {
		return nil, nil
	}

	var resolved *jsonschema.ResolvedSchema
	if len(schema) > 0 {
		id := "schemaservice://untitled/" + strconv.FormatInt(ls.untitled.Add(1), 10)
		resolved = ls.schemas.ResolveSchemaContent(ctx, jsonschema.ParseSchemaContent(id, string(schema)), id)
	} else {
		var err error
		resolved, err = ls.schemas.GetSchemaForResource(ctx, string(td.URI), doc)
		if err != nil {
			return nil, fmt.Errorf("schema for %s: %w", td.URI, err)
		}
	}

	return newDiagnosticCollector(td).collect(doc, settings, resolved), nil
}

type diagnosticCollector struct {
	td     *textdoc.Document
	source string
	seen   map[string]bool
	out    []protocol.Diagnostic
}

func newDiagnosticCollector(td *textdoc.Document) *diagnosticCollector {
	source := td.LanguageID
	if source == "" {
		source = "json"
	}
	return &diagnosticCollector{
		td:     td,
		source: source,
		seen:   map[string]bool{},
		out:    []protocol.Diagnostic{},
	}
}

// add appends p unless a problem with the same start and message exists.
func (c *diagnosticCollector) add(p Diagnostic, severity protocol.DiagnosticSeverity) {
	rng := c.td.RangeAt(p.Offset, p.Length)
	signature := fmt.Sprintf("%d %d %s", rng.Start.Line, rng.Start.Character, p.Message)
	if c.seen[signature] {
		return
	}
	c.seen[signature] = true

	d := protocol.Diagnostic{
		Range:    rng,
		Severity: severity,
		Source:   c.source,
		Message:  p.Message,
	}
	if p.Code != Undefined {
		d.Code = int(p.Code)
	}
	if p.Code == Deprecated {
		d.Tags = []protocol.DiagnosticTag{protocol.DiagnosticTagDeprecated}
	}
	c.out = append(c.out, d)
}

func (c *diagnosticCollector) collect(doc *Document, settings ValidationSettings, schema *jsonschema.ResolvedSchema) []protocol.Diagnostic {
	defaultComments := protocol.DiagnosticSeverityError
	if settings.AllowComments {
		defaultComments = 0
	}
	commentSeverity, reportComments := settings.Comments.resolve(defaultComments)
	trailingSeverity, reportTrailing := settings.TrailingCommas.resolve(protocol.DiagnosticSeverityError)

	if schema != nil {
		requestSeverity, reportRequest := settings.SchemaRequest.resolve(protocol.DiagnosticSeverityWarning)
		validationSeverity, reportValidation := settings.SchemaValidation.resolve(protocol.DiagnosticSeverityWarning)

		addSchemaProblem := func(message string, code ErrorCode) {
			if doc.Root == nil || !reportRequest {
				return
			}
			p := Diagnostic{Offset: doc.Root.Offset(), Length: 1, Code: code, Message: message}
			if obj, ok := doc.Root.(*ObjectNode); ok && len(obj.Properties) > 0 && obj.Properties[0].KeyNode.Content == "$schema" {
				var target Node = obj.Properties[0]
				if v := obj.Properties[0].ValueNode; v != nil {
					target = v
				}
				p.Offset, p.Length = target.Offset(), target.Length()
			}
			c.add(p, requestSeverity)
		}

		if len(schema.Errors) > 0 {
			addSchemaProblem(schema.Errors[0], SchemaResolveError)
		} else if reportValidation {
			for _, w := range schema.Warnings {
				addSchemaProblem(w, SchemaUnsupportedFeature)
			}
			for _, p := range doc.Validate(schema.Schema, validationSeverity, settings.SchemaDraft) {
				c.add(p, p.Severity)
			}
		}

		if s := schema.Schema; s != nil {
			if s.AllowComments != nil && *s.AllowComments {
				reportComments = false
			}
			if s.AllowTrailingCommas != nil && *s.AllowTrailingCommas {
				reportTrailing = false
			}
		}
	}

	for _, p := range doc.SyntaxErrors {
		severity := p.Severity
		if p.Code == TrailingComma {
			if !reportTrailing {
				continue
			}
			severity = trailingSeverity
		}
		c.add(p, severity)
	}

	if reportComments {
		for _, r := range doc.Comments {
			c.add(Diagnostic{
				Offset:  r.Offset,
				Length:  r.Length,
				Code:    CommentNotPermitted,
				Message: "Comments are not permitted in JSON.",
			}, commentSeverity)
		}
	}
	return c.out
}
