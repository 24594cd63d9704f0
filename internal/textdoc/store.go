package textdoc

import (
	"fmt"
	"sync"
	"time"

	"github.com/dshills/jsonls/internal/protocol"
)

// Store tracks open documents and schedules a debounced callback after each
// open or change.
type Store struct {
	mu        sync.RWMutex
	documents map[protocol.DocumentURI]*Document

	// Change debouncing
	debounceDelay time.Duration
	pendingTimers map[protocol.DocumentURI]*time.Timer

	// Callbacks
	onChange func(doc *Document)
	onClose  func(uri protocol.DocumentURI)
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithDebounceDelay sets the delay between the last change to a document and
// the change callback.
func WithDebounceDelay(d time.Duration) StoreOption {
	return func(s *Store) {
		s.debounceDelay = d
	}
}

// WithChangeHandler sets the debounced callback for opened and changed
// documents. It receives the latest snapshot.
func WithChangeHandler(handler func(doc *Document)) StoreOption {
	return func(s *Store) {
		s.onChange = handler
	}
}

// WithCloseHandler sets a callback for closed documents.
func WithCloseHandler(handler func(uri protocol.DocumentURI)) StoreOption {
	return func(s *Store) {
		s.onClose = handler
	}
}

// NewStore creates a new document store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		documents:     make(map[protocol.DocumentURI]*Document),
		debounceDelay: 500 * time.Millisecond,
		pendingTimers: make(map[protocol.DocumentURI]*time.Timer),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open adds a document.
func (s *Store) Open(item protocol.TextDocumentItem) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[item.URI]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDocumentAlreadyOpen, item.URI)
	}

	doc := New(item.URI, item.LanguageID, item.Version, item.Text)
	s.documents[item.URI] = doc
	s.scheduleLocked(item.URI)
	return doc, nil
}

// Change applies content changes. The version must be newer than the
// current one.
func (s *Store) Change(id protocol.VersionedTextDocumentIdentifier, changes []protocol.TextDocumentContentChangeEvent) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.documents[id.URI]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotOpen, id.URI)
	}
	if id.Version <= doc.Version {
		return nil, fmt.Errorf("%w: %s has version %d, change has %d", ErrStaleVersion, id.URI, doc.Version, id.Version)
	}

	doc = doc.Apply(id.Version, changes)
	s.documents[id.URI] = doc
	s.scheduleLocked(id.URI)
	return doc, nil
}

// Close removes a document and cancels its pending callback.
func (s *Store) Close(uri protocol.DocumentURI) error {
	s.mu.Lock()
	if _, exists := s.documents[uri]; !exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, uri)
	}
	if timer, ok := s.pendingTimers[uri]; ok {
		timer.Stop()
		delete(s.pendingTimers, uri)
	}
	delete(s.documents, uri)
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose(uri)
	}
	return nil
}

// Get returns the current snapshot of a document.
func (s *Store) Get(uri protocol.DocumentURI) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[uri]
	return doc, ok
}

// All returns snapshots of every open document.
func (s *Store) All() []*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	return docs
}

// Touch schedules the change callback for an open document without changing
// it. It is used to re-validate after a schema changes.
func (s *Store) Touch(uri protocol.DocumentURI) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[uri]; ok {
		s.scheduleLocked(uri)
	}
}

// TouchAll schedules the change callback for every open document.
func (s *Store) TouchAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for uri := range s.documents {
		s.scheduleLocked(uri)
	}
}

// Flush runs every pending callback immediately.
func (s *Store) Flush() {
	s.mu.Lock()
	uris := make([]protocol.DocumentURI, 0, len(s.pendingTimers))
	for uri, timer := range s.pendingTimers {
		timer.Stop()
		uris = append(uris, uri)
	}
	s.pendingTimers = make(map[protocol.DocumentURI]*time.Timer)
	s.mu.Unlock()

	for _, uri := range uris {
		s.fire(uri)
	}
}

// Dispose cancels all pending callbacks.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for uri, timer := range s.pendingTimers {
		timer.Stop()
		delete(s.pendingTimers, uri)
	}
}

// Pending returns the number of scheduled callbacks.
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pendingTimers)
}

func (s *Store) scheduleLocked(uri protocol.DocumentURI) {
	if s.onChange == nil {
		return
	}
	if timer, ok := s.pendingTimers[uri]; ok {
		timer.Stop()
	}
	s.pendingTimers[uri] = time.AfterFunc(s.debounceDelay, func() {
		s.mu.Lock()
		delete(s.pendingTimers, uri)
		s.mu.Unlock()
		s.fire(uri)
	})
}

func (s *Store) fire(uri protocol.DocumentURI) {
	s.mu.RLock()
	doc, ok := s.documents[uri]
	onChange := s.onChange
	s.mu.RUnlock()

	if ok && onChange != nil {
		onChange(doc)
	}
}
