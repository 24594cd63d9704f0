package jsonrpc

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"
)

// DefaultPartialMessageTimeout is how long a reader waits for the rest of a
// message body before reporting it as partial.
const DefaultPartialMessageTimeout = 10 * time.Second

const readChunkSize = 64 * 1024

// DataCallback receives each decoded message.
type DataCallback func(msg *Message)

// PartialMessageInfo is fired while a reader waits for a message body.
type PartialMessageInfo struct {
	MessageToken int
	WaitingTime  time.Duration
}

// MessageReader produces messages for a connection.
type MessageReader interface {
	Listen(callback DataCallback) (Disposable, error)
	OnError(fn func(error)) Disposable
	OnClose(fn func()) Disposable
	OnPartialMessage(fn func(PartialMessageInfo)) Disposable
	Dispose()
}

// ReaderOption configures a StreamMessageReader.
type ReaderOption func(*StreamMessageReader)

// WithReaderCharset sets the charset assumed when a message has no
// Content-Type charset.
func WithReaderCharset(charset string) ReaderOption {
	return func(r *StreamMessageReader) { r.charset = charset }
}

// WithContentDecoders registers decoders by Content-Encoding name.
func WithContentDecoders(decoders ...ContentDecoder) ReaderOption {
	return func(r *StreamMessageReader) {
		for _, d := range decoders {
			r.contentDecoders[d.Name()] = d
		}
	}
}

// WithContentTypeDecoders registers decoders by mime type. The first one
// becomes the default.
func WithContentTypeDecoders(decoders ...ContentTypeDecoder) ReaderOption {
	return func(r *StreamMessageReader) {
		for i, d := range decoders {
			if i == 0 {
				r.defaultTypeDecoder = d
			}
			r.typeDecoders[d.Name()] = d
		}
	}
}

// WithPartialMessageTimeout overrides DefaultPartialMessageTimeout.
func WithPartialMessageTimeout(d time.Duration) ReaderOption {
	return func(r *StreamMessageReader) {
		if d > 0 {
			r.partialTimeout = d
		}
	}
}

// WithReaderLogger sets the logger.
func WithReaderLogger(l Logger) ReaderOption {
	return func(r *StreamMessageReader) {
		if l != nil {
			r.logger = l
		}
	}
}

// StreamMessageReader reads Content-Length framed messages from an
// io.Reader on its own goroutine.
type StreamMessageReader struct {
	r      io.Reader
	logger Logger

	charset            string
	contentDecoders    map[string]ContentDecoder
	typeDecoders       map[string]ContentTypeDecoder
	defaultTypeDecoder ContentTypeDecoder
	partialTimeout     time.Duration

	onError   Emitter[error]
	onClose   Emitter[struct{}]
	onPartial Emitter[PartialMessageInfo]

	// Owned by the read goroutine.
	buffer         *MessageBuffer
	nextLength     int
	pendingHeaders map[string]string

	mu           sync.Mutex
	callback     DataCallback
	listening    bool
	disposed     bool
	messageToken int
	timer        *time.Timer
}

// NewStreamMessageReader creates a reader over r.
func NewStreamMessageReader(r io.Reader, opts ...ReaderOption) *StreamMessageReader {
	codec := JSONCodec{}
	rd := &StreamMessageReader{
		r:                  r,
		logger:             NullLogger{},
		charset:            DefaultCharset,
		contentDecoders:    make(map[string]ContentDecoder),
		typeDecoders:       map[string]ContentTypeDecoder{codec.Name(): codec, DefaultContentType: codec},
		defaultTypeDecoder: codec,
		partialTimeout:     DefaultPartialMessageTimeout,
		buffer:             NewMessageBuffer(),
		nextLength:         -1,
	}
	for _, opt := range opts {
		opt(rd)
	}
	return rd
}

// Listen starts reading. It may be called once.
func (r *StreamMessageReader) Listen(callback DataCallback) (Disposable, error) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil, errors.New("reader is disposed")
	}
	if r.listening {
		r.mu.Unlock()
		return nil, errors.New("reader is already listening")
	}
	r.listening = true
	r.callback = callback
	r.mu.Unlock()

	go r.readLoop()
	return DisposableFunc(r.Dispose), nil
}

// OnError registers a listener for read and decode errors.
func (r *StreamMessageReader) OnError(fn func(error)) Disposable { return r.onError.Event(fn) }

// OnClose registers a listener for end of stream.
func (r *StreamMessageReader) OnClose(fn func()) Disposable {
	return r.onClose.Event(func(struct{}) { fn() })
}

// OnPartialMessage registers a listener for partial message timeouts.
func (r *StreamMessageReader) OnPartialMessage(fn func(PartialMessageInfo)) Disposable {
	return r.onPartial.Event(fn)
}

// Dispose stops delivering messages and events. The read goroutine exits
// after its current Read returns.
func (r *StreamMessageReader) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	r.callback = nil
	r.stopTimerLocked()
	r.mu.Unlock()

	r.onError.Dispose()
	r.onClose.Dispose()
	r.onPartial.Dispose()
}

func (r *StreamMessageReader) isDisposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

func (r *StreamMessageReader) readLoop() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !r.onData(chunk) {
				return
			}
		}
		if err != nil {
			r.mu.Lock()
			r.stopTimerLocked()
			r.mu.Unlock()
			if r.isDisposed() {
				return
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				r.onError.Fire(&ReadError{Err: err})
			}
			r.onClose.Fire(struct{}{})
			return
		}
		if r.isDisposed() {
			return
		}
	}
}

// onData consumes a chunk and delivers every complete message. It returns
// false when a framing error makes the stream unusable.
func (r *StreamMessageReader) onData(chunk []byte) bool {
	r.buffer.Append(chunk)
	for {
		if r.nextLength == -1 {
			headers, err := r.buffer.TryReadHeaders(true)
			if err != nil {
				r.fatal(err)
				return false
			}
			if headers == nil {
				return true
			}
			value, ok := headers["content-length"]
			if !ok {
				r.fatal(fmt.Errorf("%w: %v", ErrMissingContentLength, headers))
				return false
			}
			length, err := strconv.Atoi(value)
			if err != nil || length < 0 {
				r.fatal(fmt.Errorf("%w: %q", ErrInvalidContentLength, value))
				return false
			}
			r.nextLength = length
			r.pendingHeaders = headers
		}

		body, ok := r.buffer.TryReadBody(r.nextLength)
		if !ok {
			r.setPartialMessageTimer()
			return true
		}
		headers := r.pendingHeaders
		r.pendingHeaders = nil
		r.nextLength = -1

		r.mu.Lock()
		r.stopTimerLocked()
		r.messageToken++
		r.mu.Unlock()

		msg, err := r.decode(headers, body)
		if err != nil {
			r.logger.Error("Failed to decode message: %v", err)
			r.onError.Fire(err)
			continue
		}

		r.mu.Lock()
		cb := r.callback
		r.mu.Unlock()
		if cb == nil {
			return false
		}
		cb(msg)
	}
}

func (r *StreamMessageReader) fatal(err error) {
	r.logger.Error("Stream framing error: %v", err)
	r.mu.Lock()
	r.stopTimerLocked()
	r.mu.Unlock()
	r.onError.Fire(err)
}

func (r *StreamMessageReader) decode(headers map[string]string, body []byte) (*Message, error) {
	data := body
	if enc, ok := headers["content-encoding"]; ok {
		encodings := parseContentEncoding(enc)
		// Encodings are undone in reverse order of application.
		for i := len(encodings) - 1; i >= 0; i-- {
			name := encodings[i]
			if name == "identity" {
				continue
			}
			dec, ok := r.contentDecoders[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, name)
			}
			var err error
			if data, err = dec.Decode(data); err != nil {
				return nil, err
			}
		}
	}

	decoder := r.defaultTypeDecoder
	charset := r.charset
	if ct, ok := headers["content-type"]; ok {
		mime, cs := parseContentType(ct)
		if cs != "" {
			charset = cs
		}
		if mime != "" {
			d, ok := r.typeDecoders[mime]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mime)
			}
			decoder = d
		}
	}
	return decoder.Decode(data, charset)
}

// setPartialMessageTimer arms a timer for the current message token. Each
// expiry reports the wait so far and re-arms while the token is current.
func (r *StreamMessageReader) setPartialMessageTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || r.timer != nil || r.partialTimeout <= 0 {
		return
	}
	token := r.messageToken
	interval := r.partialTimeout
	var waited time.Duration
	var fire func()
	fire = func() {
		r.mu.Lock()
		if r.disposed || token != r.messageToken || r.timer == nil {
			r.mu.Unlock()
			return
		}
		waited += interval
		r.timer = time.AfterFunc(interval, fire)
		r.mu.Unlock()
		r.onPartial.Fire(PartialMessageInfo{MessageToken: token, WaitingTime: waited})
	}
	r.timer = time.AfterFunc(interval, fire)
}

func (r *StreamMessageReader) stopTimerLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
