package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dshills/jsonls/internal/jsonc"
	"github.com/dshills/jsonls/internal/jsonlang"
	"github.com/dshills/jsonls/internal/jsonrpc"
	"github.com/dshills/jsonls/internal/protocol"
)

// Config is the server configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// Trace is the initial message trace level: off, messages, compact
	// or verbose. The client can change it with $/setTrace.
	Trace string `toml:"trace"`

	// DiagnosticsDelay is how long a document must stay unchanged before
	// it is validated.
	DiagnosticsDelay Duration `toml:"diagnostics_delay"`

	// ResultLimit caps symbols, folding ranges and colors per request.
	ResultLimit int `toml:"result_limit"`

	Format     FormatConfig        `toml:"format"`
	Validation ValidationConfig    `toml:"validation"`
	Schema     SchemaConfig        `toml:"schema"`
	Schemas    []SchemaAssociation `toml:"schemas"`
	Watch      WatchConfig         `toml:"watch"`
	Metrics    MetricsConfig       `toml:"metrics"`
	Transport  TransportConfig     `toml:"transport"`
}

// FormatConfig holds the formatting defaults used by the CLI and when a
// client sends no options.
type FormatConfig struct {
	TabSize            int  `toml:"tab_size"`
	InsertSpaces       bool `toml:"insert_spaces"`
	InsertFinalNewline bool `toml:"insert_final_newline"`
	KeepLines          bool `toml:"keep_lines"`
}

// Options converts the config to formatter options.
func (f FormatConfig) Options() jsonc.FormattingOptions {
	return jsonc.FormattingOptions{
		TabSize:            f.TabSize,
		InsertSpaces:       f.InsertSpaces,
		InsertFinalNewline: f.InsertFinalNewline,
		KeepLines:          f.KeepLines,
	}
}

// ValidationConfig grades reported problems. Empty severities keep the
// per-language defaults.
type ValidationConfig struct {
	Enabled          bool   `toml:"enabled"`
	Comments         string `toml:"comments"`
	TrailingCommas   string `toml:"trailing_commas"`
	SchemaValidation string `toml:"schema_validation"`
	SchemaRequest    string `toml:"schema_request"`
}

// Settings returns the validation settings for a language id.
func (v ValidationConfig) Settings(languageID string) jsonlang.ValidationSettings {
	s := jsonlang.DefaultValidationSettings(languageID)
	s.Validate = v.Enabled
	if v.Comments != "" {
		s.Comments = jsonlang.SeverityLevel(v.Comments)
	}
	if v.TrailingCommas != "" {
		s.TrailingCommas = jsonlang.SeverityLevel(v.TrailingCommas)
	}
	s.SchemaValidation = jsonlang.SeverityLevel(v.SchemaValidation)
	s.SchemaRequest = jsonlang.SeverityLevel(v.SchemaRequest)
	return s
}

// SchemaConfig controls how schemas are loaded.
type SchemaConfig struct {
	// Download allows fetching http and https schemas.
	Download bool `toml:"download"`

	// LoadTimeout bounds a single schema fetch. Zero means no timeout.
	LoadTimeout Duration `toml:"load_timeout"`
}

// SchemaAssociation binds file patterns to a schema. Path names a local
// schema file and stands in for URI when URI is empty.
type SchemaAssociation struct {
	URI       string   `toml:"uri"`
	Path      string   `toml:"path"`
	FileMatch []string `toml:"file_match"`
}

// SchemaURI returns the association's schema URI.
func (a SchemaAssociation) SchemaURI() string {
	if a.URI != "" {
		return a.URI
	}
	return string(protocol.FilePathToURI(a.Path))
}

// WatchConfig controls invalidation of local schema files.
type WatchConfig struct {
	Enabled  bool     `toml:"enabled"`
	Debounce Duration `toml:"debounce"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Address is the listen address of the /metrics endpoint. Empty
	// disables it.
	Address string `toml:"address"`
}

// TransportConfig controls message framing on stdio.
type TransportConfig struct {
	// Charset of outgoing bodies, and of incoming bodies that don't name
	// one in Content-Type.
	Charset string `toml:"charset"`

	// ContentEncoding compresses outgoing bodies: gzip, deflate or empty
	// for none. Compressed incoming bodies are always accepted.
	ContentEncoding string `toml:"content_encoding"`

	// PartialMessageTimeout is how long a started message may stall before
	// a warning is logged.
	PartialMessageTimeout Duration `toml:"partial_message_timeout"`
}

// ConnectionOptions converts the config to connection options.
func (t TransportConfig) ConnectionOptions() ([]jsonrpc.ConnectionOption, error) {
	if err := jsonrpc.CheckCharset(t.Charset); err != nil {
		return nil, err
	}
	codec, err := jsonrpc.ContentCodecByName(t.ContentEncoding)
	if err != nil {
		return nil, err
	}

	decoders := make([]jsonrpc.ContentDecoder, 0, 2)
	for _, c := range jsonrpc.ContentCodecs() {
		decoders = append(decoders, c)
	}
	readerOpts := []jsonrpc.ReaderOption{
		jsonrpc.WithReaderCharset(t.Charset),
		jsonrpc.WithContentDecoders(decoders...),
		jsonrpc.WithPartialMessageTimeout(t.PartialMessageTimeout.Duration),
	}
	writerOpts := []jsonrpc.WriterOption{jsonrpc.WithWriterCharset(t.Charset)}
	if codec != nil {
		writerOpts = append(writerOpts, jsonrpc.WithContentEncoder(codec))
	}
	return []jsonrpc.ConnectionOption{
		jsonrpc.WithReaderOptions(readerOpts...),
		jsonrpc.WithWriterOptions(writerOpts...),
	}, nil
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		Trace:            "off",
		DiagnosticsDelay: Duration{500 * time.Millisecond},
		ResultLimit:      5000,
		Format: FormatConfig{
			TabSize:      4,
			InsertSpaces: true,
		},
		Validation: ValidationConfig{
			Enabled: true,
		},
		Schema: SchemaConfig{
			Download:    true,
			LoadTimeout: Duration{30 * time.Second},
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: Duration{100 * time.Millisecond},
		},
		Transport: TransportConfig{
			Charset:               jsonrpc.DefaultCharset,
			PartialMessageTimeout: Duration{jsonrpc.DefaultPartialMessageTimeout},
		},
	}
}

// Validate checks the configuration. All problems are reported, joined.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(path string, value any, reason string) {
		errs = append(errs, &ValidationError{Path: path, Value: value, Reason: reason})
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid("log_level", c.LogLevel, "must be debug, info, warn or error")
	}
	switch c.Trace {
	case "off", "messages", "compact", "verbose":
	default:
		invalid("trace", c.Trace, "must be off, messages, compact or verbose")
	}
	if c.DiagnosticsDelay.Duration < 0 {
		invalid("diagnostics_delay", c.DiagnosticsDelay, "must not be negative")
	}
	if c.ResultLimit < 0 {
		invalid("result_limit", c.ResultLimit, "must not be negative")
	}
	if c.Format.TabSize < 1 {
		invalid("format.tab_size", c.Format.TabSize, "must be at least 1")
	}

	for path, level := range map[string]string{
		"validation.comments":          c.Validation.Comments,
		"validation.trailing_commas":   c.Validation.TrailingCommas,
		"validation.schema_validation": c.Validation.SchemaValidation,
		"validation.schema_request":    c.Validation.SchemaRequest,
	} {
		if !jsonlang.SeverityLevel(level).Valid() {
			invalid(path, level, "must be error, warning, info or ignore")
		}
	}

	if c.Schema.LoadTimeout.Duration < 0 {
		invalid("schema.load_timeout", c.Schema.LoadTimeout, "must not be negative")
	}
	for i, a := range c.Schemas {
		if a.URI == "" && a.Path == "" {
			invalid(fmt.Sprintf("schemas[%d]", i), "", "needs a uri or a path")
		}
		if len(a.FileMatch) == 0 {
			invalid(fmt.Sprintf("schemas[%d].file_match", i), a.FileMatch, "must name at least one pattern")
		}
	}

	if c.Watch.Debounce.Duration < 0 {
		invalid("watch.debounce", c.Watch.Debounce, "must not be negative")
	}
	if addr := c.Metrics.Address; addr != "" {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			invalid("metrics.address", addr, err.Error())
		}
	}

	if err := jsonrpc.CheckCharset(c.Transport.Charset); err != nil {
		invalid("transport.charset", c.Transport.Charset, "unknown charset")
	}
	if _, err := jsonrpc.ContentCodecByName(c.Transport.ContentEncoding); err != nil {
		invalid("transport.content_encoding", c.Transport.ContentEncoding, "must be gzip, deflate or empty")
	}
	if c.Transport.PartialMessageTimeout.Duration < 0 {
		invalid("transport.partial_message_timeout", c.Transport.PartialMessageTimeout, "must not be negative")
	}

	sortValidationErrors(errs)
	return errors.Join(errs...)
}
