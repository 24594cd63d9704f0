package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dshills/jsonls/internal/jsonrpc"
	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
)

// clientSettings are the json.* settings sent with
// workspace/didChangeConfiguration.
type clientSettings struct {
	validate     bool
	format       bool
	keepLines    bool
	resultLimit  int
	foldingLimit int
	colorLimit   int
	schemas      []jsonschema.SchemaConfiguration
}

func defaultClientSettings() clientSettings {
	return clientSettings{
		validate: true,
		format:   true,
	}
}

// parseSettings reads the json section of the client settings. Relative
// schema URLs are resolved against rootURI.
func parseSettings(raw json.RawMessage, rootURI string) clientSettings {
	cs := defaultClientSettings()
	root := gjson.GetBytes(raw, "json")
	if !root.Exists() {
		return cs
	}

	if v := root.Get("validate.enable"); v.Exists() {
		cs.validate = v.Bool()
	}
	if v := root.Get("format.enable"); v.Exists() {
		cs.format = v.Bool()
	}
	if v := root.Get("keepLines.enable"); v.Exists() {
		cs.keepLines = v.Bool()
	}
	cs.resultLimit = positive(root.Get("resultLimit"))
	cs.foldingLimit = positive(root.Get("jsonFoldingLimit"))
	cs.colorLimit = positive(root.Get("jsonColorDecoratorLimit"))

	index := 0
	root.Get("schemas").ForEach(func(_, v gjson.Result) bool {
		defer func() { index++ }()

		uri := v.Get("url").String()
		if uri == "" {
			uri = v.Get("uri").String()
		}
		schema := v.Get("schema")
		switch {
		case uri != "":
			uri = resolveSchemaURI(uri, rootURI)
		case schema.IsObject():
			uri = fmt.Sprintf("inmemory://schemas/custom/%d", index)
		default:
			return true
		}

		cfg := jsonschema.SchemaConfiguration{
			URI:       uri,
			FileMatch: stringArray(v.Get("fileMatch")),
			FolderURI: v.Get("folderUri").String(),
		}
		if schema.IsObject() {
			cfg.Schema = json.RawMessage(schema.Raw)
		}
		cs.schemas = append(cs.schemas, cfg)
		return true
	})
	return cs
}

// parseAssociations reads json/schemaAssociations params: either a map
// from file pattern to schema URIs or a list of schema configurations,
// optionally wrapped in a one element params array.
func parseAssociations(raw json.RawMessage) []jsonschema.SchemaConfiguration {
	v := gjson.ParseBytes(raw)
	if v.IsArray() {
		items := v.Array()
		if len(items) == 1 && (items[0].IsArray() || !isSchemaConfiguration(items[0])) {
			v = items[0]
		}
	}

	var configs []jsonschema.SchemaConfiguration
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			uri := item.Get("uri").String()
			if uri == "" {
				return true
			}
			configs = append(configs, jsonschema.SchemaConfiguration{
				URI:       uri,
				FileMatch: stringArray(item.Get("fileMatch")),
				FolderURI: item.Get("folderUri").String(),
			})
			return true
		})
	case v.IsObject():
		v.ForEach(func(pattern, uris gjson.Result) bool {
			for _, uri := range stringArray(uris) {
				configs = append(configs, jsonschema.SchemaConfiguration{
					URI:       uri,
					FileMatch: []string{pattern.String()},
				})
			}
			return true
		})
	}
	return configs
}

func isSchemaConfiguration(v gjson.Result) bool {
	return v.IsObject() && (v.Get("uri").Exists() || v.Get("fileMatch").Exists())
}

// resolveSchemaURI makes workspace relative and absolute file paths into
// URIs.
func resolveSchemaURI(uri, rootURI string) string {
	switch {
	case strings.HasPrefix(uri, "."):
		if rootURI == "" {
			return uri
		}
		u, err := url.Parse(rootURI)
		if err != nil {
			return uri
		}
		u.Path = path.Join(u.Path, filepath.ToSlash(uri))
		return u.String()
	case filepath.IsAbs(uri):
		return string(protocol.FilePathToURI(uri))
	}
	return uri
}

func stringArray(v gjson.Result) []string {
	if v.Type == gjson.String {
		return []string{v.String()}
	}
	var out []string
	for _, item := range v.Array() {
		if s := item.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func positive(v gjson.Result) int {
	if n := v.Int(); n > 0 {
		return int(n)
	}
	return 0
}

func (s *Server) didChangeConfiguration(raw json.RawMessage) {
	params, err := decode[protocol.DidChangeConfigurationParams](methodDidChangeConfiguration, raw)
	if err != nil {
		s.logger.Error("%v", err)
		return
	}
	s.mu.Lock()
	s.settings = parseSettings(params.Settings, s.rootURI)
	s.mu.Unlock()
	s.updateSchemas()
}

func (s *Server) schemaAssociations(raw json.RawMessage) {
	configs := parseAssociations(raw)
	s.mu.Lock()
	s.associations = configs
	s.mu.Unlock()
	s.updateSchemas()
}

// schemaContentChanged handles the client telling the server that schema
// content it served has changed.
func (s *Server) schemaContentChanged(raw json.RawMessage) {
	v := gjson.ParseBytes(raw)
	if v.IsArray() && len(v.Array()) == 1 && v.Array()[0].IsArray() {
		v = v.Array()[0]
	}
	s.SchemaChanged(stringArray(v)...)
}

// updateSchemas re-registers every association and revalidates the open
// documents.
func (s *Server) updateSchemas() {
	s.mu.RLock()
	configs := slices.Concat(s.staticSchemas, s.associations, s.settings.schemas)
	s.mu.RUnlock()

	s.schemas.ClearExternalSchemas()
	for _, cfg := range configs {
		s.schemas.RegisterExternalSchema(cfg)
	}
	s.logger.Debug("Registered %d schema associations", len(configs))

	if s.onSchemaFiles != nil {
		ids := s.schemas.RegisteredSchemaIDs(func(scheme string) bool { return scheme == "file" })
		paths := make([]string, 0, len(ids))
		for _, id := range ids {
			paths = append(paths, protocol.URIToFilePath(protocol.DocumentURI(id)))
		}
		s.onSchemaFiles(paths)
	}
	s.docs.TouchAll()
}

// SchemaChanged drops the cached schemas for uris and everything depending
// on them. Open documents are revalidated if anything was dropped.
func (s *Server) SchemaChanged(uris ...string) {
	changed := false
	for _, uri := range uris {
		if s.schemas.OnResourceChange(uri) {
			changed = true
		}
	}
	if changed {
		s.logger.Debug("Schemas changed: %v", uris)
		s.docs.TouchAll()
	}
}

// ClientFetcher loads schemas by asking the client with json/schemaContent.
func ClientFetcher(conn *jsonrpc.Connection) jsonschema.FetchFunc {
	return func(ctx context.Context, uri string) (string, error) {
		var content string
		if err := conn.Call(ctx, methodSchemaContent, uri, &content); err != nil {
			return "", err
		}
		return content, nil
	}
}
