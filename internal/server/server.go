package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/jsonls/internal/jsonc"
	"github.com/dshills/jsonls/internal/jsonlang"
	"github.com/dshills/jsonls/internal/jsonrpc"
	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

// LSP and JSON extension method names.
const (
	methodInitialize             = "initialize"
	methodInitialized            = "initialized"
	methodShutdown               = "shutdown"
	methodExit                   = "exit"
	methodDidOpen                = "textDocument/didOpen"
	methodDidChange              = "textDocument/didChange"
	methodDidClose               = "textDocument/didClose"
	methodCompletion             = "textDocument/completion"
	methodCompletionResolve      = "completionItem/resolve"
	methodHover                  = "textDocument/hover"
	methodFormatting             = "textDocument/formatting"
	methodRangeFormatting        = "textDocument/rangeFormatting"
	methodDocumentSymbol         = "textDocument/documentSymbol"
	methodFoldingRange           = "textDocument/foldingRange"
	methodSelectionRange         = "textDocument/selectionRange"
	methodDocumentColor          = "textDocument/documentColor"
	methodColorPresentation      = "textDocument/colorPresentation"
	methodPublishDiagnostics     = "textDocument/publishDiagnostics"
	methodDidChangeConfiguration = "workspace/didChangeConfiguration"
	methodSchemaAssociations     = "json/schemaAssociations"
	methodSchemaContent          = "json/schemaContent"
	methodValidate               = "json/validate"
	methodLanguageStatus         = "json/languageStatus"
	methodResultLimitReached     = "json/resultLimitReached"
	methodWorkDoneProgressCreate = "window/workDoneProgress/create"
)

type serverState int32

const (
	stateUninitialized serverState = iota
	stateInitialized
	stateShutdown
)

// Server is a JSON language server bound to one connection.
type Server struct {
	conn    *jsonrpc.Connection
	schemas *jsonschema.Service
	logger  jsonrpc.Logger

	// Configuration
	name             string
	version          string
	diagnosticsDelay time.Duration
	resultLimit      int
	validation       func(languageID string) jsonlang.ValidationSettings
	format           jsonc.FormattingOptions
	staticSchemas    []jsonschema.SchemaConfiguration
	onSchemaFiles    func(paths []string)
	tracer           jsonrpc.Tracer
	trace            jsonrpc.Trace

	ctx    context.Context
	cancel context.CancelFunc
	docs   *textdoc.Store
	state  atomic.Int32

	mu               sync.RWMutex
	lang             *jsonlang.LanguageService
	rootURI          string
	clientFoldLimit  int
	provideFormatter bool
	workDoneProgress bool
	settings         clientSettings
	associations     []jsonschema.SchemaConfiguration
	limitWarnings    map[string]bool

	done     chan struct{}
	doneOnce sync.Once
	exitCode int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l jsonrpc.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithServerInfo sets the name and version reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// WithDiagnosticsDelay sets how long a document must stay unchanged
// before it is validated.
func WithDiagnosticsDelay(d time.Duration) Option {
	return func(s *Server) {
		s.diagnosticsDelay = d
	}
}

// WithResultLimit caps symbols, folding ranges and colors. The client's
// json.resultLimit setting takes precedence.
func WithResultLimit(n int) Option {
	return func(s *Server) {
		s.resultLimit = n
	}
}

// WithValidationSettings sets the per-language validation settings. The
// client's json.validate.enable setting can still turn validation off.
func WithValidationSettings(fn func(languageID string) jsonlang.ValidationSettings) Option {
	return func(s *Server) {
		if fn != nil {
			s.validation = fn
		}
	}
}

// WithFormattingDefaults sets the options merged into client formatting
// requests.
func WithFormattingDefaults(opts jsonc.FormattingOptions) Option {
	return func(s *Server) {
		s.format = opts
	}
}

// WithSchemas registers schema associations that apply regardless of
// client settings.
func WithSchemas(configs []jsonschema.SchemaConfiguration) Option {
	return func(s *Server) {
		s.staticSchemas = configs
	}
}

// WithSchemaFilesHandler sets a callback receiving the local schema files
// in use whenever the associations change.
func WithSchemaFilesHandler(fn func(paths []string)) Option {
	return func(s *Server) {
		s.onSchemaFiles = fn
	}
}

// WithTrace sets the message trace level used until the client picks one.
func WithTrace(level jsonrpc.Trace, tracer jsonrpc.Tracer) Option {
	return func(s *Server) {
		s.trace = level
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New creates a server answering on conn. Schemas are resolved with
// schemas, which should fetch unknown schemes with ClientFetcher(conn).
func New(conn *jsonrpc.Connection, schemas *jsonschema.Service, opts ...Option) *Server {
	s := &Server{
		conn:             conn,
		schemas:          schemas,
		logger:           jsonrpc.NullLogger{},
		name:             "jsonls",
		diagnosticsDelay: 500 * time.Millisecond,
		resultLimit:      5000,
		validation:       jsonlang.DefaultValidationSettings,
		format:           jsonc.FormattingOptions{TabSize: 4, InsertSpaces: true},
		provideFormatter: true,
		settings:         defaultClientSettings(),
		limitWarnings:    make(map[string]bool),
		done:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = jsonrpc.TracerFunc(s.logTrace)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.docs = textdoc.NewStore(
		textdoc.WithDebounceDelay(s.diagnosticsDelay),
		textdoc.WithChangeHandler(s.validateAndPublish),
		textdoc.WithCloseHandler(s.documentClosed),
	)
	return s
}

// requestHandler answers a request. ctx is cancelled when the client
// cancels the request or the server exits.
type requestHandler func(ctx context.Context, params json.RawMessage) (any, error)

// notificationHandler handles a notification.
type notificationHandler func(params json.RawMessage)

// Start registers the protocol handlers and starts listening.
func (s *Server) Start() error {
	requests := []struct {
		method  string
		handler requestHandler
		async   bool
	}{
		{methodInitialize, s.initialize, false},
		{methodShutdown, s.shutdown, false},
		{methodCompletion, s.completion, true},
		{methodCompletionResolve, s.completionResolve, false},
		{methodHover, s.hover, true},
		{methodFormatting, s.formatting, false},
		{methodRangeFormatting, s.rangeFormatting, false},
		{methodDocumentSymbol, s.documentSymbol, false},
		{methodFoldingRange, s.foldingRange, false},
		{methodSelectionRange, s.selectionRange, false},
		{methodDocumentColor, s.documentColor, true},
		{methodColorPresentation, s.colorPresentation, false},
		{methodValidate, s.validateRequest, true},
		{methodLanguageStatus, s.languageStatus, true},
	}
	for _, r := range requests {
		if _, err := s.conn.OnRequest(jsonrpc.Method(r.method), s.wrapRequest(r.method, r.handler, r.async)); err != nil {
			return err
		}
	}

	notifications := []struct {
		method  string
		handler notificationHandler
	}{
		{methodInitialized, s.initialized},
		{methodExit, s.exit},
		{methodDidOpen, s.didOpen},
		{methodDidChange, s.didChange},
		{methodDidClose, s.didClose},
		{methodDidChangeConfiguration, s.didChangeConfiguration},
		{methodSchemaAssociations, s.schemaAssociations},
		{methodSchemaContent, s.schemaContentChanged},
	}
	for _, n := range notifications {
		if _, err := s.conn.OnNotification(jsonrpc.Method(n.method), s.wrapNotification(n.method, n.handler)); err != nil {
			return err
		}
	}

	s.conn.OnClose(func() {
		s.finish(1)
	})
	return s.conn.Listen()
}

// Done is closed when the client sent exit or the connection closed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// ExitCode is 0 after an orderly shutdown and exit, else 1. It is valid
// once Done is closed.
func (s *Server) ExitCode() int {
	<-s.done
	return s.exitCode
}

// Close stops the server and disposes the connection.
func (s *Server) Close() {
	s.finish(1)
	s.conn.Dispose()
}

func (s *Server) finish(code int) {
	s.doneOnce.Do(func() {
		s.exitCode = code
		s.cancel()
		s.docs.Dispose()
		close(s.done)
	})
}

func (s *Server) wrapRequest(method string, h requestHandler, async bool) jsonrpc.RequestHandler {
	return func(params json.RawMessage, token jsonrpc.CancellationToken) (any, error) {
		if err := s.checkState(method); err != nil {
			return nil, toResponseError(err)
		}
		run := func() (any, error) {
			ctx, cancel := tokenContext(s.ctx, token)
			defer cancel()

			result, err := h(ctx, params)
			if token != nil && token.IsCancellationRequested() {
				return nil, jsonrpc.NewResponseError(jsonrpc.CodeRequestCancelled, "Request cancelled", nil)
			}
			if err != nil {
				s.logger.Debug("Request %s failed: %v", method, err)
				return nil, toResponseError(err)
			}
			return result, nil
		}
		if async {
			return jsonrpc.Async(run), nil
		}
		return run()
	}
}

func (s *Server) wrapNotification(method string, h notificationHandler) jsonrpc.NotificationHandler {
	return func(params json.RawMessage) {
		if method != methodExit && serverState(s.state.Load()) == stateUninitialized {
			s.logger.Debug("Dropping %s before initialize", method)
			return
		}
		h(params)
	}
}

func (s *Server) checkState(method string) error {
	switch serverState(s.state.Load()) {
	case stateUninitialized:
		if method != methodInitialize {
			return ErrNotInitialized
		}
	case stateInitialized:
		if method == methodInitialize {
			return ErrAlreadyInitialized
		}
	default:
		return ErrShuttingDown
	}
	return nil
}

// tokenContext derives a context cancelled with token.
func tokenContext(parent context.Context, token jsonrpc.CancellationToken) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if token == nil || token.Done() == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-token.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func decode[T any](method string, raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, invalidParams(method, errMissingParams)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, invalidParams(method, err)
	}
	return v, nil
}

func (s *Server) logTrace(message, data string) {
	if data == "" {
		s.logger.Info("[Trace] %s", message)
		return
	}
	s.logger.Info("[Trace] %s\n%s", message, data)
}

// --- Lifecycle ---

func (s *Server) initialize(_ context.Context, raw json.RawMessage) (any, error) {
	params, err := decode[protocol.InitializeParams](methodInitialize, raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lang = jsonlang.NewLanguageService(s.schemas, jsonlang.WithClientCapabilities(params.Capabilities))
	s.rootURI = string(params.RootURI)
	if s.rootURI == "" && len(params.WorkspaceFolders) > 0 {
		s.rootURI = string(params.WorkspaceFolders[0].URI)
	}
	if td := params.Capabilities.TextDocument; td != nil && td.FoldingRange != nil {
		s.clientFoldLimit = td.FoldingRange.RangeLimit
	}
	if w := params.Capabilities.Window; w != nil {
		s.workDoneProgress = w.WorkDoneProgress
	}
	if v := gjson.GetBytes(params.InitializationOptions, "provideFormatter"); v.Exists() {
		s.provideFormatter = v.Bool()
	}
	provideFormatter := s.provideFormatter
	s.mu.Unlock()

	trace := s.trace
	if params.Trace != "" {
		trace = jsonrpc.ParseTrace(params.Trace)
	}
	if err := s.conn.SetTrace(trace, s.tracer, jsonrpc.TraceOptions{}); err != nil {
		s.logger.Warn("Setting trace level failed: %v", err)
	}

	s.state.Store(int32(stateInitialized))
	s.updateSchemas()
	s.logger.Info("Initialized for %s", s.rootURI)

	return protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncKindIncremental,
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{"\"", ":"},
			},
			HoverProvider:                   true,
			DocumentSymbolProvider:          true,
			DocumentFormattingProvider:      provideFormatter,
			DocumentRangeFormattingProvider: provideFormatter,
			FoldingRangeProvider:            true,
			SelectionRangeProvider:          true,
			ColorProvider:                   true,
		},
		ServerInfo: &protocol.ServerInfo{Name: s.name, Version: s.version},
	}, nil
}

func (s *Server) initialized(json.RawMessage) {
	s.logger.Debug("Client initialized")
}

func (s *Server) shutdown(context.Context, json.RawMessage) (any, error) {
	s.state.Store(int32(stateShutdown))
	s.docs.Dispose()
	s.logger.Info("Shutting down")
	return nil, nil
}

func (s *Server) exit(json.RawMessage) {
	code := 1
	if serverState(s.state.Load()) == stateShutdown {
		code = 0
	}
	s.finish(code)
}

func (s *Server) language() *jsonlang.LanguageService {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lang
}
