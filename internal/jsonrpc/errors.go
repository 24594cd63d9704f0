package jsonrpc

import (
	"errors"
	"fmt"
)

// Standard errors returned by the jsonrpc package.
var (
	// ErrMalformedHeader indicates a header line without a ':' separator.
	ErrMalformedHeader = errors.New("message header must separate key and value using ':'")

	// ErrMissingContentLength indicates a header block without Content-Length.
	ErrMissingContentLength = errors.New("header must provide a Content-Length property")

	// ErrInvalidContentLength indicates a non-numeric Content-Length value.
	ErrInvalidContentLength = errors.New("content-length value must be a number")

	// ErrNotListening indicates a request was sent before Listen was called.
	ErrNotListening = errors.New("call Listen() first")

	// ErrUnsupportedEncoding indicates an unknown Content-Encoding header.
	ErrUnsupportedEncoding = errors.New("unsupported content encoding")

	// ErrUnsupportedContentType indicates an unknown Content-Type header.
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

// ConnectionErrorCode classifies connection state errors.
type ConnectionErrorCode int

const (
	// ConnectionClosed is returned when the underlying stream closed.
	ConnectionClosed ConnectionErrorCode = 1
	// ConnectionDisposed is returned after Dispose.
	ConnectionDisposed ConnectionErrorCode = 2
	// ConnectionAlreadyListening is returned by a second Listen call.
	ConnectionAlreadyListening ConnectionErrorCode = 3
)

func (c ConnectionErrorCode) String() string {
	switch c {
	case ConnectionClosed:
		return "Closed"
	case ConnectionDisposed:
		return "Disposed"
	case ConnectionAlreadyListening:
		return "AlreadyListening"
	default:
		return "Unknown"
	}
}

// ConnectionError is a local error raised when an operation is not valid
// in the connection's current state. It never crosses the wire.
type ConnectionError struct {
	Code    ConnectionErrorCode
	Message string
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %s", e.Code, e.Message)
}

// Is matches connection errors by code.
func (e *ConnectionError) Is(target error) bool {
	t, ok := target.(*ConnectionError)
	return ok && t.Code == e.Code
}

// Sentinel connection errors for use with errors.Is.
var (
	ErrConnectionClosed           = &ConnectionError{Code: ConnectionClosed, Message: "Connection is closed."}
	ErrConnectionDisposed         = &ConnectionError{Code: ConnectionDisposed, Message: "Connection is disposed."}
	ErrConnectionAlreadyListening = &ConnectionError{Code: ConnectionAlreadyListening, Message: "Connection is already listening"}
)

// WriteError reports a failed message write.
type WriteError struct {
	Err     error
	Message *Message
	Count   int
}

// Error implements the error interface.
func (e *WriteError) Error() string {
	return fmt.Sprintf("write message (failure %d): %v", e.Count, e.Err)
}

// Unwrap returns the underlying error.
func (e *WriteError) Unwrap() error {
	return e.Err
}

// ReadError reports a failure while reading from the stream.
type ReadError struct {
	Err error
}

// Error implements the error interface.
func (e *ReadError) Error() string {
	return fmt.Sprintf("read message: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ReadError) Unwrap() error {
	return e.Err
}
