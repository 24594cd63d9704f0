// Package config provides the configuration of the JSON language server.
//
// Configuration is assembled from three sources, higher overriding lower:
//
//	┌─────────────────────────────┐
//	│  3. Environment Variables   │  ← JSONLS_*
//	├─────────────────────────────┤
//	│  2. Config File             │  ← --config jsonls.toml (or .yaml)
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← DefaultConfig()
//	└─────────────────────────────┘
//
// A minimal file:
//
//	log_level = "debug"
//
//	[validation]
//	trailing_commas = "warning"
//
//	[transport]
//	content_encoding = "gzip"
//
//	[[schemas]]
//	path = "schemas/app.schema.json"
//	file_match = ["app.config.json"]
//
// Environment variables address settings by section and key, so
// JSONLS_FORMAT_TAB_SIZE=2 sets format.tab_size. Unknown settings are
// rejected.
package config
