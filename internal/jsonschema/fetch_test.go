package jsonschema

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/jsonls/internal/protocol"
)

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "s.json")
	yamlPath := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"type": "string"}`), 0o644))
	require.NoError(t, os.WriteFile(yamlPath, []byte("type: object\nrequired:\n  - name\n"), 0o644))

	fetch := FileFetcher()
	ctx := context.Background()

	got, err := fetch(ctx, string(protocol.FilePathToURI(jsonPath)))
	require.NoError(t, err)
	assert.Equal(t, `{"type": "string"}`, got)

	got, err = fetch(ctx, string(protocol.FilePathToURI(yamlPath)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "object", "required": ["name"]}`, got)

	_, err = fetch(ctx, string(protocol.FilePathToURI(filepath.Join(dir, "missing.json"))))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/s.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"type": "number"}`))
		case "/s":
			w.Header().Set("Content-Type", "application/yaml")
			_, _ = w.Write([]byte("type: boolean\n"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetch := HTTPFetcher(srv.Client())
	ctx := context.Background()

	got, err := fetch(ctx, srv.URL+"/s.json")
	require.NoError(t, err)
	assert.Equal(t, `{"type": "number"}`, got)

	got, err = fetch(ctx, srv.URL+"/s")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type": "boolean"}`, got)

	_, err = fetch(ctx, srv.URL+"/missing")
	assert.ErrorIs(t, err, ErrHTTPStatus)
}

func TestMultiFetcher(t *testing.T) {
	fetch := MultiFetcher(map[string]FetchFunc{
		"mem": func(ctx context.Context, uri string) (string, error) { return "{}", nil },
	})

	got, err := fetch(context.Background(), "MEM://a")
	require.NoError(t, err)
	assert.Equal(t, "{}", got)

	_, err = fetch(context.Background(), "vscode://schemas/settings")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestYAMLToJSON(t *testing.T) {
	got, err := YAMLToJSON([]byte("properties:\n  port:\n    type: integer\n    enum: [80, 443]\n  1: {type: string}\n"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"properties": {"port": {"type": "integer", "enum": [80, 443]}, "1": {"type": "string"}}}`, got)

	_, err = YAMLToJSON([]byte("a: [1"))
	assert.Error(t, err)
}
