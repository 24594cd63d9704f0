package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dshills/jsonls/internal/jsonc"
	"github.com/dshills/jsonls/internal/jsonrpc"
	"github.com/dshills/jsonls/internal/protocol"
)

func (s *Server) completion(ctx context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.CompletionParams](methodCompletion, raw)
	if err != nil {
		return nil, err
	}
	td, lang := s.document(params.TextDocument.URI)
	if td == nil {
		return nil, nil
	}
	return lang.DoComplete(ctx, td, params.Position, lang.ParseDocument(td))
}

func (s *Server) completionResolve(ctx context.Context, raw json.RawMessage) (any, error) {
	item, err := decode[protocol.CompletionItem](methodCompletionResolve, raw)
	if err != nil {
		return nil, err
	}
	return s.language().DoResolve(ctx, item), nil
}

func (s *Server) hover(ctx context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.HoverParams](methodHover, raw)
	if err != nil {
		return nil, err
	}
	td, lang := s.document(params.TextDocument.URI)
	if td == nil {
		return nil, nil
	}
	return lang.DoHover(ctx, td, params.Position, lang.ParseDocument(td))
}

func (s *Server) formatting(_ context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.DocumentFormattingParams](methodFormatting, raw)
	if err != nil {
		return nil, err
	}
	td, lang := s.document(params.TextDocument.URI)
	if td == nil || !s.formatterEnabled() {
		return []protocol.TextEdit{}, nil
	}
	return lang.Format(td, nil, s.formattingOptions(params.Options)), nil
}

func (s *Server) rangeFormatting(_ context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.DocumentRangeFormattingParams](methodRangeFormatting, raw)
	if err != nil {
		return nil, err
	}
	td, lang := s.document(params.TextDocument.URI)
	if td == nil || !s.formatterEnabled() {
		return []protocol.TextEdit{}, nil
	}
	return lang.Format(td, &params.Range, s.formattingOptions(params.Options)), nil
}

func (s *Server) formatterEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provideFormatter && s.settings.format
}

// formattingOptions fills in what the client left out from the defaults.
func (s *Server) formattingOptions(o protocol.FormattingOptions) jsonc.FormattingOptions {
	opts := s.format
	if o.TabSize > 0 {
		opts.TabSize = o.TabSize
		opts.InsertSpaces = o.InsertSpaces
	}
	opts.InsertFinalNewline = opts.InsertFinalNewline || o.InsertFinalNewline

	s.mu.RLock()
	opts.KeepLines = opts.KeepLines || o.KeepLines || s.settings.keepLines
	s.mu.RUnlock()
	return opts
}

func (s *Server) documentSymbol(_ context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.DocumentSymbolParams](methodDocumentSymbol, raw)
	if err != nil {
		return nil, err
	}
	td, lang := s.document(params.TextDocument.URI)
	if td == nil {
		return []protocol.DocumentSymbol{}, nil
	}
	limit := s.limit(func(c clientSettings) int { return c.resultLimit })
	symbols, exceeded := lang.FindDocumentSymbols(td, lang.ParseDocument(td), limit)
	if exceeded {
		s.resultLimitReached(td.URI, "document symbols", limit)
	}
	return symbols, nil
}

func (s *Server) foldingRange(_ context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.FoldingRangeParams](methodFoldingRange, raw)
	if err != nil {
		return nil, err
	}
	td, lang := s.document(params.TextDocument.URI)
	if td == nil {
		return []protocol.FoldingRange{}, nil
	}
	limit := s.limit(func(c clientSettings) int { return c.foldingLimit })
	s.mu.RLock()
	if s.clientFoldLimit > 0 && s.clientFoldLimit < limit {
		limit = s.clientFoldLimit
	}
	s.mu.RUnlock()

	ranges, exceeded := lang.GetFoldingRanges(td, limit)
	if exceeded {
		s.resultLimitReached(td.URI, "folding ranges", limit)
	}
	return ranges, nil
}

func (s *Server) selectionRange(_ context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.SelectionRangeParams](methodSelectionRange, raw)
	if err != nil {
		return nil, err
	}
	td, lang := s.document(params.TextDocument.URI)
	if td == nil {
		return []protocol.SelectionRange{}, nil
	}
	return lang.GetSelectionRanges(td, params.Positions, lang.ParseDocument(td)), nil
}

func (s *Server) documentColor(ctx context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.DocumentColorParams](methodDocumentColor, raw)
	if err != nil {
		return nil, err
	}
	td, lang := s.document(params.TextDocument.URI)
	if td == nil {
		return []protocol.ColorInformation{}, nil
	}
	limit := s.limit(func(c clientSettings) int { return c.colorLimit })
	colors, err := lang.FindDocumentColors(ctx, td, lang.ParseDocument(td), limit)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(colors) >= limit {
		s.resultLimitReached(td.URI, "color decorators", limit)
	}
	return colors, nil
}

func (s *Server) colorPresentation(_ context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.ColorPresentationParams](methodColorPresentation, raw)
	if err != nil {
		return nil, err
	}
	return s.language().GetColorPresentations(params.Color, params.Range), nil
}

// validateRequest validates a document now, publishes and returns the
// diagnostics.
func (s *Server) validateRequest(ctx context.Context, raw json.RawMessage) (any, error) {
	var uri string
	if err := jsonrpc.UnmarshalParams(raw, &uri); err != nil {
		return nil, invalidParams(methodValidate, err)
	}
	td, _ := s.document(protocol.DocumentURI(uri))
	if td == nil {
		return []protocol.Diagnostic{}, nil
	}
	var diagnostics []protocol.Diagnostic
	err := s.withProgress(ctx, "Validating", uri, func() error {
		var err error
		diagnostics, err = s.validate(ctx, td)
		return err
	})
	if err != nil {
		return nil, err
	}
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	version := td.Version
	s.publish(td.URI, &version, diagnostics)
	return diagnostics, nil
}

// languageStatus is the result of json/languageStatus.
type languageStatus struct {
	Schemas []string `json:"schemas"`
}

// languageStatus lists the schemas in effect for a document.
func (s *Server) languageStatus(_ context.Context, raw json.RawMessage) (any, error) {
	var uri string
	if err := jsonrpc.UnmarshalParams(raw, &uri); err != nil {
		return nil, invalidParams(methodLanguageStatus, err)
	}
	status := languageStatus{Schemas: []string{}}
	td, lang := s.document(protocol.DocumentURI(uri))
	if td == nil {
		return status, nil
	}
	if declared, ok := lang.ParseDocument(td).DeclaredSchema(); ok {
		status.Schemas = append(status.Schemas, declared)
		return status, nil
	}
	status.Schemas = append(status.Schemas, s.schemas.GetSchemaURIsForResource(uri)...)
	return status, nil
}

// limit returns the client's limit from pick, else the configured result
// limit.
func (s *Server) limit(pick func(clientSettings) int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n := pick(s.settings); n > 0 {
		return n
	}
	if s.settings.resultLimit > 0 {
		return s.settings.resultLimit
	}
	return s.resultLimit
}

// resultLimitReached tells the client once per document and kind that a
// result was truncated.
func (s *Server) resultLimitReached(uri protocol.DocumentURI, kind string, limit int) {
	key := limitWarningKey(uri, kind)
	s.mu.Lock()
	warned := s.limitWarnings[key]
	s.limitWarnings[key] = true
	s.mu.Unlock()
	if warned {
		return
	}

	msg := fmt.Sprintf("%s: For performance reasons, %s have been limited to %d items.", uri, kind, limit)
	if err := s.conn.Notify(methodResultLimitReached, msg); err != nil {
		s.logger.Debug("Sending %s failed: %v", methodResultLimitReached, err)
	}
}

func limitWarningKey(uri protocol.DocumentURI, kind string) string {
	return kind + "\x00" + string(uri)
}

func limitWarningURI(key string) protocol.DocumentURI {
	_, uri, _ := strings.Cut(key, "\x00")
	return protocol.DocumentURI(uri)
}
