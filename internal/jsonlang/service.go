package jsonlang

import (
	"sync/atomic"

	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

// LanguageService answers language queries for JSON documents. It is safe
// for concurrent use; all state lives in the schema service.
type LanguageService struct {
	schemas          *jsonschema.Service
	supportsMarkdown bool
	untitled         atomic.Int64
}

// Option configures a LanguageService.
type Option func(*LanguageService)

// WithClientCapabilities adapts results to what the client renders.
func WithClientCapabilities(caps protocol.ClientCapabilities) Option {
	return func(ls *LanguageService) {
		td := caps.TextDocument
		if td == nil || td.Completion == nil || td.Completion.CompletionItem == nil {
			return
		}
		ls.supportsMarkdown = false
		for _, kind := range td.Completion.CompletionItem.DocumentationFormat {
			if kind == protocol.MarkupKindMarkdown {
				ls.supportsMarkdown = true
			}
		}
	}
}

// NewLanguageService creates a language service backed by schemas.
func NewLanguageService(schemas *jsonschema.Service, opts ...Option) *LanguageService {
	ls := &LanguageService{
		schemas:          schemas,
		supportsMarkdown: true,
	}
	for _, opt := range opts {
		opt(ls)
	}
	return ls
}

// Schemas returns the schema service.
func (ls *LanguageService) Schemas() *jsonschema.Service {
	return ls.schemas
}

// ParseDocument parses td for the other operations. Comments are collected
// and trailing commas reported so validation settings can grade them.
func (ls *LanguageService) ParseDocument(td *textdoc.Document) *Document {
	return Parse(td.Text(), ParseOptions{CollectComments: true})
}

func (ls *LanguageService) markup(value string) *protocol.MarkupContent {
	if value == "" || !ls.supportsMarkdown {
		return nil
	}
	return &protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: value}
}

// documentation picks the markdown description when the client renders
// markdown, else the plain one. It returns nil when both are empty.
func (ls *LanguageService) documentation(markdown, plain string) any {
	if md := ls.markup(markdown); md != nil {
		return md
	}
	if plain != "" {
		return plain
	}
	return nil
}
