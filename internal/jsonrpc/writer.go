package jsonrpc

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// MessageWriter sends messages for a connection.
type MessageWriter interface {
	Write(msg *Message) error
	OnError(fn func(*WriteError)) Disposable
	OnClose(fn func()) Disposable
	End() error
	Dispose()
}

// WriterOption configures a StreamMessageWriter.
type WriterOption func(*StreamMessageWriter)

// WithWriterCharset sets the charset of outgoing bodies. A charset other
// than UTF-8 is announced with a Content-Type header.
func WithWriterCharset(charset string) WriterOption {
	return func(w *StreamMessageWriter) { w.charset = charset }
}

// WithContentEncoder compresses every outgoing body.
func WithContentEncoder(enc ContentEncoder) WriterOption {
	return func(w *StreamMessageWriter) { w.contentEncoder = enc }
}

// WithContentTypeEncoder replaces the JSON body encoder.
func WithContentTypeEncoder(enc ContentTypeEncoder) WriterOption {
	return func(w *StreamMessageWriter) {
		if enc != nil {
			w.typeEncoder = enc
		}
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(l Logger) WriterOption {
	return func(w *StreamMessageWriter) {
		if l != nil {
			w.logger = l
		}
	}
}

// StreamMessageWriter writes Content-Length framed messages to an
// io.Writer. Concurrent writes are serialized so frames never interleave.
type StreamMessageWriter struct {
	w      io.Writer
	logger Logger

	charset        string
	contentEncoder ContentEncoder
	typeEncoder    ContentTypeEncoder

	sem     *Semaphore
	onError Emitter[*WriteError]
	onClose Emitter[struct{}]

	mu         sync.Mutex
	errorCount int
	ended      bool
}

// NewStreamMessageWriter creates a writer over w.
func NewStreamMessageWriter(w io.Writer, opts ...WriterOption) *StreamMessageWriter {
	wr := &StreamMessageWriter{
		w:           w,
		logger:      NullLogger{},
		charset:     DefaultCharset,
		typeEncoder: JSONCodec{},
		sem:         NewSemaphore(1),
	}
	for _, opt := range opts {
		opt(wr)
	}
	return wr
}

// Write frames and writes msg. A failure is reported to OnError listeners
// and returned.
func (w *StreamMessageWriter) Write(msg *Message) error {
	_, err := w.sem.Lock(func() (any, error) {
		payload, headers, err := w.encode(msg)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(w.w, headers); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
		if _, err := w.w.Write(payload); err != nil {
			return nil, fmt.Errorf("write body: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		w.mu.Lock()
		w.errorCount++
		count := w.errorCount
		w.mu.Unlock()

		writeErrors.Inc()
		werr := &WriteError{Err: err, Message: msg, Count: count}
		w.logger.Error("Failed to write message: %v", werr)
		w.onError.Fire(werr)
		return werr
	}
	return nil
}

func (w *StreamMessageWriter) encode(msg *Message) ([]byte, string, error) {
	payload, err := w.typeEncoder.Encode(msg, w.charset)
	if err != nil {
		return nil, "", err
	}

	var hb strings.Builder
	hb.WriteString("Content-Length: ")
	if w.contentEncoder != nil {
		if payload, err = w.contentEncoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	hb.WriteString(strconv.Itoa(len(payload)))
	hb.WriteString("\r\n")
	if w.contentEncoder != nil {
		hb.WriteString("Content-Encoding: ")
		hb.WriteString(w.contentEncoder.Name())
		hb.WriteString("\r\n")
	}
	if !isUTF8(w.charset) {
		hb.WriteString("Content-Type: ")
		hb.WriteString(DefaultContentType)
		hb.WriteString("; charset=")
		hb.WriteString(w.charset)
		hb.WriteString("\r\n")
	}
	hb.WriteString("\r\n")
	return payload, hb.String(), nil
}

// OnError registers a listener for write failures.
func (w *StreamMessageWriter) OnError(fn func(*WriteError)) Disposable { return w.onError.Event(fn) }

// OnClose registers a listener fired by End.
func (w *StreamMessageWriter) OnClose(fn func()) Disposable {
	return w.onClose.Event(func(struct{}) { fn() })
}

// End closes the underlying writer if it is an io.Closer.
func (w *StreamMessageWriter) End() error {
	w.mu.Lock()
	if w.ended {
		w.mu.Unlock()
		return nil
	}
	w.ended = true
	w.mu.Unlock()

	var err error
	if c, ok := w.w.(io.Closer); ok {
		err = c.Close()
	}
	w.onClose.Fire(struct{}{})
	return err
}

// Dispose drops all listeners.
func (w *StreamMessageWriter) Dispose() {
	w.onError.Dispose()
	w.onClose.Dispose()
}
