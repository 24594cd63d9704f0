package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dshills/jsonls/internal/config"
	"github.com/dshills/jsonls/internal/jsonschema"
)

// NewFetcher loads file schemas from disk and http and https schemas from
// the network when downloads are enabled. Other schemes go to fallback,
// which may be nil.
func NewFetcher(cfg config.SchemaConfig, client *http.Client, fallback jsonschema.FetchFunc) jsonschema.FetchFunc {
	web := jsonschema.HTTPFetcher(client)
	if !cfg.Download {
		web = func(_ context.Context, uri string) (string, error) {
			return "", fmt.Errorf("%w: %s", ErrDownloadDisabled, uri)
		}
	}
	byScheme := map[string]jsonschema.FetchFunc{
		"file":  jsonschema.FileFetcher(),
		"http":  web,
		"https": web,
	}
	if fallback != nil {
		byScheme["*"] = fallback
	}
	return jsonschema.MultiFetcher(byScheme)
}
