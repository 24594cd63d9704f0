package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset is the charset used when none is configured.
const DefaultCharset = "utf-8"

// DefaultContentType is the mime type of JSON-RPC payloads.
const DefaultContentType = "application/vscode-jsonrpc"

// ContentDecoder reverses a Content-Encoding such as gzip.
type ContentDecoder interface {
	Name() string
	Decode(data []byte) ([]byte, error)
}

// ContentEncoder applies a Content-Encoding to an outgoing payload.
type ContentEncoder interface {
	Name() string
	Encode(data []byte) ([]byte, error)
}

// ContentTypeDecoder turns a body in the given charset into a message.
type ContentTypeDecoder interface {
	Name() string
	Decode(data []byte, charset string) (*Message, error)
}

// ContentTypeEncoder turns a message into a body in the given charset.
type ContentTypeEncoder interface {
	Name() string
	Encode(msg *Message, charset string) ([]byte, error)
}

// GzipCodec implements the gzip content encoding.
type GzipCodec struct {
	Level int
}

// Name returns "gzip".
func (GzipCodec) Name() string { return "gzip" }

// Decode decompresses data.
func (GzipCodec) Decode(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return out, nil
}

// Encode compresses data.
func (c GzipCodec) Encode(data []byte) ([]byte, error) {
	level := c.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// DeflateCodec implements the deflate content encoding.
type DeflateCodec struct {
	Level int
}

// Name returns "deflate".
func (DeflateCodec) Name() string { return "deflate" }

// Decode decompresses data.
func (DeflateCodec) Decode(data []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	out, err := io.ReadAll(fr)
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return out, nil
}

// Encode compresses data.
func (c DeflateCodec) Encode(data []byte) ([]byte, error) {
	level := c.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	return buf.Bytes(), nil
}

// JSONCodec is the default content-type codec. Bodies in a charset other
// than UTF-8 are transcoded with golang.org/x/text.
type JSONCodec struct{}

// Name returns the JSON-RPC mime type.
func (JSONCodec) Name() string { return "application/json" }

// Decode parses a message body.
func (JSONCodec) Decode(data []byte, charset string) (*Message, error) {
	enc, err := lookupCharset(charset)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		if data, err = enc.NewDecoder().Bytes(data); err != nil {
			return nil, fmt.Errorf("decode %s body: %w", charset, err)
		}
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return &msg, nil
}

// Encode serializes a message.
func (JSONCodec) Encode(msg *Message, charset string) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	enc, err := lookupCharset(charset)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		if data, err = enc.NewEncoder().Bytes(data); err != nil {
			return nil, fmt.Errorf("encode %s body: %w", charset, err)
		}
	}
	return data, nil
}

// ContentCodec both applies and reverses a Content-Encoding.
type ContentCodec interface {
	ContentEncoder
	Decode(data []byte) ([]byte, error)
}

// ContentCodecs returns the built-in content encodings.
func ContentCodecs() []ContentCodec {
	return []ContentCodec{GzipCodec{}, DeflateCodec{}}
}

// ContentCodecByName returns the built-in codec for a Content-Encoding
// name. The empty name and "identity" mean no encoding and return nil.
func ContentCodecByName(name string) (ContentCodec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "identity":
		return nil, nil
	}
	for _, c := range ContentCodecs() {
		if strings.EqualFold(c.Name(), strings.TrimSpace(name)) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
}

// CheckCharset reports an error when charset cannot be transcoded.
func CheckCharset(charset string) error {
	_, err := lookupCharset(charset)
	return err
}

// lookupCharset returns nil for UTF-8.
func lookupCharset(charset string) (encoding.Encoding, error) {
	if isUTF8(charset) {
		return nil, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: charset %q", ErrUnsupportedEncoding, charset)
	}
	return enc, nil
}

func isUTF8(charset string) bool {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// parseContentType splits a Content-Type header into its mime type and
// charset parameter.
func parseContentType(value string) (mime, charset string) {
	parts := strings.Split(value, ";")
	mime = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "charset") {
			charset = strings.Trim(strings.TrimSpace(v), `"`)
		}
	}
	return mime, charset
}

// parseContentEncoding splits a Content-Encoding header into the list of
// encodings in the order they were applied.
func parseContentEncoding(value string) []string {
	var out []string
	for _, e := range strings.Split(value, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
