package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jsonls/internal/jsonrpc"
	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

const waitTimeout = 2 * time.Second

// testClient is the editor side of a server under test.
type testClient struct {
	t      *testing.T
	conn   *jsonrpc.Connection
	srv    *Server
	diags  chan protocol.PublishDiagnosticsParams
	limits chan string

	mu             sync.Mutex
	schemaContent  map[string]string
	schemaRequests []string
}

func newTestClient(t *testing.T, opts ...Option) *testClient {
	t.Helper()
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	serverConn := jsonrpc.NewStreamConnection(c2sR, s2cW)
	schemas := jsonschema.NewService(ClientFetcher(serverConn))
	schemas.SetSchemaContributions(jsonschema.BuiltinContributions())

	opts = append([]Option{WithDiagnosticsDelay(10 * time.Millisecond)}, opts...)
	srv := New(serverConn, schemas, opts...)
	require.NoError(t, srv.Start())

	c := &testClient{
		t:             t,
		conn:          jsonrpc.NewStreamConnection(s2cR, c2sW),
		srv:           srv,
		diags:         make(chan protocol.PublishDiagnosticsParams, 16),
		limits:        make(chan string, 16),
		schemaContent: make(map[string]string),
	}
	_, err := c.conn.OnNotification(jsonrpc.Method(methodPublishDiagnostics), func(raw json.RawMessage) {
		var params protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(raw, &params); err == nil {
			c.diags <- params
		}
	})
	require.NoError(t, err)
	_, err = c.conn.OnNotification(jsonrpc.Method(methodResultLimitReached), func(raw json.RawMessage) {
		var msg string
		if err := jsonrpc.UnmarshalParams(raw, &msg); err == nil {
			c.limits <- msg
		}
	})
	require.NoError(t, err)
	_, err = c.conn.OnRequest(jsonrpc.Method(methodSchemaContent), func(raw json.RawMessage, _ jsonrpc.CancellationToken) (any, error) {
		var uri string
		if err := jsonrpc.UnmarshalParams(raw, &uri); err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.schemaRequests = append(c.schemaRequests, uri)
		content, ok := c.schemaContent[uri]
		if !ok {
			return nil, jsonrpc.NewResponseError(jsonrpc.CodeInvalidParams, "unknown schema "+uri, nil)
		}
		return content, nil
	})
	require.NoError(t, err)
	require.NoError(t, c.conn.Listen())

	t.Cleanup(func() {
		srv.Close()
		c.conn.Dispose()
		c2sW.Close()
		s2cW.Close()
	})
	return c
}

func (c *testClient) call(method string, params, result any) error {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return c.conn.Call(ctx, method, params, result)
}

func (c *testClient) notify(method string, params any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.Notify(method, params))
}

func (c *testClient) initialize(options string) protocol.InitializeResult {
	c.t.Helper()
	params := protocol.InitializeParams{RootURI: "file:///work"}
	if options != "" {
		params.InitializationOptions = json.RawMessage(options)
	}
	var result protocol.InitializeResult
	require.NoError(c.t, c.call(methodInitialize, params, &result))
	c.notify(methodInitialized, struct{}{})
	return result
}

func (c *testClient) open(uri, languageID, text string) {
	c.t.Helper()
	c.notify(methodDidOpen, protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: protocol.DocumentURI(uri), LanguageID: languageID, Version: 1, Text: text},
	})
}

func (c *testClient) nextDiagnostics() protocol.PublishDiagnosticsParams {
	c.t.Helper()
	select {
	case d := <-c.diags:
		return d
	case <-time.After(waitTimeout):
		c.t.Fatal("timed out waiting for diagnostics")
		return protocol.PublishDiagnosticsParams{}
	}
}

// diagnosticsFor skips publications for other versions until version
// arrives.
func (c *testClient) diagnosticsFor(version int) protocol.PublishDiagnosticsParams {
	c.t.Helper()
	for {
		d := c.nextDiagnostics()
		if d.Version != nil && *d.Version == version {
			return d
		}
	}
}

func messages(diags []protocol.Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Message
	}
	return out
}

func requireCode(t *testing.T, err error, code jsonrpc.ErrorCode) {
	t.Helper()
	var rerr *jsonrpc.ResponseError
	require.True(t, errors.As(err, &rerr), "error %v is not a response error", err)
	assert.Equal(t, code, rerr.Code)
}

func TestServer_RequestBeforeInitialize(t *testing.T) {
	c := newTestClient(t)
	err := c.call(methodHover, protocol.HoverParams{}, nil)
	requireCode(t, err, jsonrpc.CodeServerNotInitialized)
}

func TestServer_Initialize(t *testing.T) {
	c := newTestClient(t, WithServerInfo("jsonls", "1.2.3"))
	result := c.initialize("")

	caps := result.Capabilities
	assert.Equal(t, protocol.TextDocumentSyncKindIncremental, caps.TextDocumentSync)
	require.NotNil(t, caps.CompletionProvider)
	assert.Equal(t, []string{"\"", ":"}, caps.CompletionProvider.TriggerCharacters)
	assert.True(t, caps.HoverProvider)
	assert.True(t, caps.DocumentFormattingProvider)
	assert.True(t, caps.FoldingRangeProvider)
	assert.True(t, caps.ColorProvider)
	require.NotNil(t, result.ServerInfo)
	assert.Equal(t, "1.2.3", result.ServerInfo.Version)

	err := c.call(methodInitialize, protocol.InitializeParams{}, nil)
	requireCode(t, err, jsonrpc.CodeInvalidRequest)
}

func TestServer_InitializeWithoutFormatter(t *testing.T) {
	c := newTestClient(t)
	result := c.initialize(`{"provideFormatter": false}`)
	assert.False(t, result.Capabilities.DocumentFormattingProvider)
	assert.False(t, result.Capabilities.DocumentRangeFormattingProvider)

	c.open("file:///work/a.json", "json", `{"a":1}`)
	var edits []protocol.TextEdit
	require.NoError(t, c.call(methodFormatting, protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///work/a.json"},
		Options:      protocol.FormattingOptions{TabSize: 2, InsertSpaces: true},
	}, &edits))
	assert.Empty(t, edits)
}

func TestServer_DiagnosticsLifecycle(t *testing.T) {
	c := newTestClient(t)
	c.initialize("")

	c.open("file:///work/a.json", "json", `{"a": 1,}`)
	d := c.diagnosticsFor(1)
	assert.Equal(t, protocol.DocumentURI("file:///work/a.json"), d.URI)
	assert.Equal(t, []string{"Trailing comma"}, messages(d.Diagnostics))

	c.notify(methodDidChange, protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{URI: "file:///work/a.json", Version: 2},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "{}"}},
	})
	d = c.diagnosticsFor(2)
	assert.Empty(t, d.Diagnostics)

	c.notify(methodDidClose, protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///work/a.json"},
	})
	d = c.nextDiagnostics()
	assert.Nil(t, d.Version)
	assert.Empty(t, d.Diagnostics)
}

func TestServer_JSONCTrailingCommaIsWarning(t *testing.T) {
	c := newTestClient(t)
	c.initialize("")

	c.open("file:///work/settings.json", "jsonc", "{\n// comment\n\"a\": 1,\n}")
	d := c.diagnosticsFor(1)
	require.Len(t, d.Diagnostics, 1)
	assert.Equal(t, "Trailing comma", d.Diagnostics[0].Message)
	assert.Equal(t, protocol.DiagnosticSeverityWarning, d.Diagnostics[0].Severity)
}

func TestServer_SettingsSchema(t *testing.T) {
	c := newTestClient(t)
	c.initialize("")

	c.notify(methodDidChangeConfiguration, map[string]any{
		"settings": map[string]any{
			"json": map[string]any{
				"schemas": []any{map[string]any{
					"fileMatch": []string{"*.num.json"},
					"schema": map[string]any{
						"type":       "object",
						"properties": map[string]any{"a": map[string]any{"type": "number"}},
					},
				}},
			},
		},
	})
	c.open("file:///work/a.num.json", "json", `{"a": "x"}`)
	d := c.diagnosticsFor(1)
	assert.Equal(t, []string{`Incorrect type. Expected "number".`}, messages(d.Diagnostics))

	var status languageStatus
	require.NoError(t, c.call(methodLanguageStatus, "file:///work/a.num.json", &status))
	assert.Equal(t, []string{"inmemory://schemas/custom/0"}, status.Schemas)
}

func TestServer_ValidationDisabledBySettings(t *testing.T) {
	c := newTestClient(t)
	c.initialize("")

	c.notify(methodDidChangeConfiguration, map[string]any{
		"settings": map[string]any{"json": map[string]any{"validate": map[string]any{"enable": false}}},
	})
	c.open("file:///work/a.json", "json", `{"a": 1,}`)
	d := c.diagnosticsFor(1)
	assert.Empty(t, d.Diagnostics)
}

func TestServer_ClientServedSchema(t *testing.T) {
	c := newTestClient(t)
	c.schemaContent["http://example.com/cfg.json"] = `{
		"type": "object",
		"properties": {"name": {"type": "string"}, "port": {"type": "integer"}},
		"required": ["name"]
	}`
	c.initialize("")

	c.notify(methodSchemaAssociations, map[string][]string{
		"*.cfg.json": {"http://example.com/cfg.json"},
	})
	c.open("file:///work/app.cfg.json", "json", `{}`)
	d := c.diagnosticsFor(1)
	assert.Equal(t, []string{`Missing property "name".`}, messages(d.Diagnostics))

	var list protocol.CompletionList
	require.NoError(t, c.call(methodCompletion, protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///work/app.cfg.json"},
			Position:     protocol.Position{Line: 0, Character: 1},
		},
	}, &list))
	var got []string
	for _, item := range list.Items {
		got = append(got, item.Label)
	}
	assert.ElementsMatch(t, []string{"name", "port"}, got)

	c.mu.Lock()
	requests := append([]string(nil), c.schemaRequests...)
	c.mu.Unlock()
	assert.Equal(t, []string{"http://example.com/cfg.json"}, requests, "the schema should be fetched once")
}

func TestServer_SchemaContentChanged(t *testing.T) {
	c := newTestClient(t)
	c.schemaContent["http://example.com/cfg.json"] = `{"required": ["name"]}`
	c.initialize("")

	c.notify(methodSchemaAssociations, map[string][]string{
		"*.cfg.json": {"http://example.com/cfg.json"},
	})
	c.open("file:///work/app.cfg.json", "json", `{}`)
	d := c.diagnosticsFor(1)
	require.Len(t, d.Diagnostics, 1)

	c.mu.Lock()
	c.schemaContent["http://example.com/cfg.json"] = `{}`
	c.mu.Unlock()
	c.notify(methodSchemaContent, "http://example.com/cfg.json")

	d = c.diagnosticsFor(1)
	assert.Empty(t, d.Diagnostics)
}

func TestServer_Formatting(t *testing.T) {
	c := newTestClient(t)
	c.initialize("")

	text := `{"a":1}`
	c.open("file:///work/a.json", "json", text)

	var edits []protocol.TextEdit
	require.NoError(t, c.call(methodFormatting, protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///work/a.json"},
		Options:      protocol.FormattingOptions{TabSize: 2, InsertSpaces: true},
	}, &edits))

	formatted, err := textdoc.New("file:///work/a.json", "json", 1, text).ApplyEdits(edits)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", formatted)
}

func TestServer_UnknownDocument(t *testing.T) {
	c := newTestClient(t)
	c.initialize("")

	var symbols []protocol.DocumentSymbol
	require.NoError(t, c.call(methodDocumentSymbol, protocol.DocumentSymbolParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: "file:///work/missing.json"},
	}, &symbols))
	assert.Empty(t, symbols)

	var diags []protocol.Diagnostic
	require.NoError(t, c.call(methodValidate, "file:///work/missing.json", &diags))
	assert.Empty(t, diags)
}

func TestServer_ValidateRequest(t *testing.T) {
	c := newTestClient(t, WithDiagnosticsDelay(time.Hour))
	c.initialize("")

	c.open("file:///work/a.json", "json", `{"a": 1,}`)
	var diags []protocol.Diagnostic
	require.NoError(t, c.call(methodValidate, "file:///work/a.json", &diags))
	assert.Equal(t, []string{"Trailing comma"}, messages(diags))

	d := c.diagnosticsFor(1)
	assert.Equal(t, []string{"Trailing comma"}, messages(d.Diagnostics))
}

func TestServer_ValidateRequestProgress(t *testing.T) {
	c := newTestClient(t, WithDiagnosticsDelay(time.Hour))

	tokens := make(chan jsonrpc.ProgressToken, 1)
	values := make(chan map[string]any, 4)
	_, err := c.conn.OnRequest(jsonrpc.Method(methodWorkDoneProgressCreate), func(raw json.RawMessage, _ jsonrpc.CancellationToken) (any, error) {
		var params workDoneProgressCreateParams
		if err := jsonrpc.UnmarshalParams(raw, &params); err != nil {
			return nil, err
		}
		_, err := c.conn.OnProgress(jsonrpc.WorkDoneProgress, params.Token, func(value json.RawMessage) {
			var v map[string]any
			if json.Unmarshal(value, &v) == nil {
				values <- v
			}
		})
		if err != nil {
			return nil, err
		}
		tokens <- params.Token
		return nil, nil
	})
	require.NoError(t, err)

	require.NoError(t, c.call(methodInitialize, protocol.InitializeParams{
		RootURI:      "file:///work",
		Capabilities: protocol.ClientCapabilities{Window: &protocol.WindowClientCapabilities{WorkDoneProgress: true}},
	}, nil))
	c.open("file:///work/a.json", "json", `{"a": 1,}`)

	var diags []protocol.Diagnostic
	require.NoError(t, c.call(methodValidate, "file:///work/a.json", &diags))
	assert.Equal(t, []string{"Trailing comma"}, messages(diags))

	select {
	case token := <-tokens:
		assert.NotEmpty(t, token.String())
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for window/workDoneProgress/create")
	}

	next := func() map[string]any {
		t.Helper()
		select {
		case v := <-values:
			return v
		case <-time.After(waitTimeout):
			t.Fatal("timed out waiting for $/progress")
			return nil
		}
	}
	begin := next()
	assert.Equal(t, "begin", begin["kind"])
	assert.Equal(t, "Validating", begin["title"])
	assert.Equal(t, "file:///work/a.json", begin["message"])
	assert.Equal(t, "end", next()["kind"])
}

func TestServer_ValidateRequestWithoutProgressSupport(t *testing.T) {
	c := newTestClient(t, WithDiagnosticsDelay(time.Hour))
	created := make(chan struct{}, 1)
	_, err := c.conn.OnRequest(jsonrpc.Method(methodWorkDoneProgressCreate), func(json.RawMessage, jsonrpc.CancellationToken) (any, error) {
		created <- struct{}{}
		return nil, nil
	})
	require.NoError(t, err)
	c.initialize("")

	c.open("file:///work/a.json", "json", `{}`)
	var diags []protocol.Diagnostic
	require.NoError(t, c.call(methodValidate, "file:///work/a.json", &diags))
	assert.Empty(t, diags)

	select {
	case <-created:
		t.Fatal("progress created for a client without workDoneProgress")
	default:
	}
}

func TestServer_ResultLimit(t *testing.T) {
	c := newTestClient(t, WithResultLimit(2))
	c.initialize("")

	c.open("file:///work/a.json", "json", `{"a": 1, "b": 2, "c": 3}`)
	params := protocol.DocumentSymbolParams{TextDocument: protocol.TextDocumentIdentifier{URI: "file:///work/a.json"}}

	var symbols []protocol.DocumentSymbol
	require.NoError(t, c.call(methodDocumentSymbol, params, &symbols))
	assert.Len(t, symbols, 2)

	select {
	case msg := <-c.limits:
		assert.Equal(t, "file:///work/a.json: For performance reasons, document symbols have been limited to 2 items.", msg)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the result limit notification")
	}

	require.NoError(t, c.call(methodDocumentSymbol, params, &symbols))
	select {
	case msg := <-c.limits:
		t.Fatalf("unexpected second notification %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServer_ShutdownAndExit(t *testing.T) {
	c := newTestClient(t)
	c.initialize("")

	require.NoError(t, c.call(methodShutdown, nil, nil))
	err := c.call(methodHover, protocol.HoverParams{}, nil)
	requireCode(t, err, jsonrpc.CodeInvalidRequest)

	c.notify(methodExit, nil)
	select {
	case <-c.srv.Done():
	case <-time.After(waitTimeout):
		t.Fatal("server did not stop after exit")
	}
	assert.Equal(t, 0, c.srv.ExitCode())
}

func TestServer_ExitWithoutShutdown(t *testing.T) {
	c := newTestClient(t)
	c.initialize("")

	c.notify(methodExit, nil)
	select {
	case <-c.srv.Done():
	case <-time.After(waitTimeout):
		t.Fatal("server did not stop after exit")
	}
	assert.Equal(t, 1, c.srv.ExitCode())
}

func TestServer_SchemaFilesHandler(t *testing.T) {
	var mu sync.Mutex
	var got []string
	c := newTestClient(t,
		WithSchemas([]jsonschema.SchemaConfiguration{
			{URI: "file:///schemas/app.json", FileMatch: []string{"app.json"}},
			{URI: "http://example.com/remote.json", FileMatch: []string{"remote.json"}},
		}),
		WithSchemaFilesHandler(func(paths []string) {
			mu.Lock()
			got = paths
			mu.Unlock()
		}),
	)
	c.initialize("")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{protocol.URIToFilePath("file:///schemas/app.json")}, got)
}
