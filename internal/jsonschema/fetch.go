package jsonschema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dshills/jsonls/internal/protocol"
)

// FetchFunc returns the text of the schema document at uri.
type FetchFunc func(ctx context.Context, uri string) (string, error)

var (
	// ErrUnsupportedScheme is returned by MultiFetcher for unknown schemes.
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")

	// ErrHTTPStatus is returned by HTTPFetcher for non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected http status")
)

// maxSchemaSize bounds a fetched document.
const maxSchemaSize = 16 << 20

// FileFetcher reads file:// URIs from disk. YAML documents are converted
// to JSON.
func FileFetcher() FetchFunc {
	return func(ctx context.Context, uri string) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := protocol.URIToFilePath(protocol.DocumentURI(uri))
		data, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		if isYAMLPath(p) {
			return YAMLToJSON(data)
		}
		return string(data), nil
	}
}

// HTTPFetcher fetches http and https URIs with client, or
// http.DefaultClient when nil. YAML documents are converted to JSON.
func HTTPFetcher(client *http.Client) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, uri string) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Accept", "application/schema+json, application/json, application/yaml;q=0.9, */*;q=0.5")

		resp, err := client.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", fmt.Errorf("%w: %s", ErrHTTPStatus, resp.Status)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxSchemaSize))
		if err != nil {
			return "", err
		}
		if isYAMLPath(req.URL.Path) || strings.Contains(resp.Header.Get("Content-Type"), "yaml") {
			return YAMLToJSON(data)
		}
		return string(data), nil
	}
}

// MultiFetcher dispatches on the URI scheme.
func MultiFetcher(byScheme map[string]FetchFunc) FetchFunc {
	return func(ctx context.Context, uri string) (string, error) {
		scheme, _, ok := strings.Cut(uri, ":")
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, uri)
		}
		fetch, ok := byScheme[strings.ToLower(scheme)]
		if !ok {
			if fetch, ok = byScheme["*"]; !ok {
				return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
			}
		}
		return fetch(ctx, uri)
	}
}

// DefaultFetcher handles file, http and https.
func DefaultFetcher(client *http.Client) FetchFunc {
	web := HTTPFetcher(client)
	return MultiFetcher(map[string]FetchFunc{
		"file":  FileFetcher(),
		"http":  web,
		"https": web,
	})
}

func isYAMLPath(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// YAMLToJSON re-encodes a YAML document as JSON text.
func YAMLToJSON(data []byte) (string, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("invalid yaml: %w", err)
	}
	out, err := json.Marshal(yamlToJSONValue(v))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func yamlToJSONValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = yamlToJSONValue(val)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = yamlToJSONValue(val)
		}
		return m
	case []any:
		for i, val := range t {
			t[i] = yamlToJSONValue(val)
		}
		return t
	default:
		return v
	}
}
