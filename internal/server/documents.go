package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dshills/jsonls/internal/jsonlang"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

func (s *Server) didOpen(raw json.RawMessage) {
	params, err := decode[protocol.DidOpenTextDocumentParams](methodDidOpen, raw)
	if err != nil {
		s.logger.Error("%v", err)
		return
	}
	if _, err := s.docs.Open(params.TextDocument); err != nil {
		s.logger.Warn("Open failed: %v", err)
	}
}

func (s *Server) didChange(raw json.RawMessage) {
	params, err := decode[protocol.DidChangeTextDocumentParams](methodDidChange, raw)
	if err != nil {
		s.logger.Error("%v", err)
		return
	}
	if _, err := s.docs.Change(params.TextDocument, params.ContentChanges); err != nil {
		s.logger.Warn("Change failed: %v", err)
	}
}

func (s *Server) didClose(raw json.RawMessage) {
	params, err := decode[protocol.DidCloseTextDocumentParams](methodDidClose, raw)
	if err != nil {
		s.logger.Error("%v", err)
		return
	}
	if err := s.docs.Close(params.TextDocument.URI); err != nil && !errors.Is(err, textdoc.ErrDocumentNotOpen) {
		s.logger.Warn("Close failed: %v", err)
	}
}

// documentClosed clears the diagnostics of a closed document.
func (s *Server) documentClosed(uri protocol.DocumentURI) {
	s.mu.Lock()
	for key := range s.limitWarnings {
		if limitWarningURI(key) == uri {
			delete(s.limitWarnings, key)
		}
	}
	s.mu.Unlock()

	s.publish(uri, nil, nil)
}

// document returns the open document for uri and the language service,
// or nil when the document is not open.
func (s *Server) document(uri protocol.DocumentURI) (*textdoc.Document, *jsonlang.LanguageService) {
	td, ok := s.docs.Get(uri)
	if !ok {
		return nil, nil
	}
	return td, s.language()
}

// validateAndPublish runs when a document has been quiet for the
// diagnostics delay.
func (s *Server) validateAndPublish(td *textdoc.Document) {
	diagnostics, err := s.validate(s.ctx, td)
	if err != nil {
		if s.ctx.Err() == nil {
			s.logger.Warn("Validating %s failed: %v", td.URI, err)
		}
		return
	}

	// A newer version has its own validation scheduled.
	if current, ok := s.docs.Get(td.URI); !ok || current.Version != td.Version {
		return
	}
	version := td.Version
	s.publish(td.URI, &version, diagnostics)
}

func (s *Server) validate(ctx context.Context, td *textdoc.Document) ([]protocol.Diagnostic, error) {
	lang := s.language()
	if lang == nil {
		return nil, ErrNotInitialized
	}
	doc := lang.ParseDocument(td)
	return lang.DoValidation(ctx, td, doc, s.validationSettings(td.LanguageID), nil)
}

func (s *Server) validationSettings(languageID string) jsonlang.ValidationSettings {
	settings := s.validation(languageID)
	s.mu.RLock()
	settings.Validate = settings.Validate && s.settings.validate
	s.mu.RUnlock()
	return settings
}

func (s *Server) publish(uri protocol.DocumentURI, version *int, diagnostics []protocol.Diagnostic) {
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	err := s.conn.Notify(methodPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Version:     version,
		Diagnostics: diagnostics,
	})
	if err != nil {
		s.logger.Debug("Publishing diagnostics for %s failed: %v", uri, err)
	}
}
