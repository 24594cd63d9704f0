package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

type connectionState int

const (
	stateNew connectionState = iota + 1
	stateListening
	stateClosed
	stateDisposed
)

func (s connectionState) String() string {
	switch s {
	case stateNew:
		return "new"
	case stateListening:
		return "listening"
	case stateClosed:
		return "closed"
	case stateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// RequestHandler handles a request. It returns the result, a Future that
// produces it later, or an error. A nil result is sent as JSON null.
type RequestHandler func(params json.RawMessage, token CancellationToken) (any, error)

// StarRequestHandler handles requests without a dedicated handler.
type StarRequestHandler func(method string, params json.RawMessage, token CancellationToken) (any, error)

// NotificationHandler handles a notification.
type NotificationHandler func(params json.RawMessage)

// StarNotificationHandler handles notifications without a dedicated handler.
type StarNotificationHandler func(method string, params json.RawMessage)

// Future is a result that is not available yet. A request handler returns
// one to reply asynchronously without blocking the dispatch of later
// messages.
type Future interface {
	Await() (any, error)
}

type asyncFuture struct {
	done  chan struct{}
	value any
	err   error
}

// Async runs fn on a new goroutine and returns its eventual result.
func Async(fn func() (any, error)) Future {
	f := &asyncFuture{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = &panicError{value: r}
			}
		}()
		f.value, f.err = fn()
	}()
	return f
}

// Await blocks until the result is available.
func (f *asyncFuture) Await() (any, error) {
	<-f.done
	return f.value, f.err
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.value)
}

type requestHandlerEntry struct {
	sig     MessageSignature
	handler RequestHandler
}

type notificationHandlerEntry struct {
	sig     MessageSignature
	handler NotificationHandler
}

type pendingResult struct {
	result json.RawMessage
	err    error
}

type pendingResponse struct {
	method  string
	started time.Time
	ch      chan pendingResult
}

// ConnectionOption configures a Connection.
type ConnectionOption func(*Connection)

// WithLogger sets the connection logger.
func WithLogger(l Logger) ConnectionOption {
	return func(c *Connection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCancellationStrategy replaces the $/cancelRequest based strategy.
func WithCancellationStrategy(s CancellationStrategy) ConnectionOption {
	return func(c *Connection) {
		if s.Receiver != nil {
			c.cancellation.Receiver = s.Receiver
		}
		if s.Sender != nil {
			c.cancellation.Sender = s.Sender
		}
	}
}

// WithConnectionStrategy sets the strategy for requests cancelled before
// dispatch.
func WithConnectionStrategy(s ConnectionStrategy) ConnectionOption {
	return func(c *Connection) { c.strategy = s }
}

// WithReaderOptions configures the reader created by NewStreamConnection.
func WithReaderOptions(opts ...ReaderOption) ConnectionOption {
	return func(c *Connection) { c.readerOpts = append(c.readerOpts, opts...) }
}

// WithWriterOptions configures the writer created by NewStreamConnection.
func WithWriterOptions(opts ...WriterOption) ConnectionOption {
	return func(c *Connection) { c.writerOpts = append(c.writerOpts, opts...) }
}

// Connection is a JSON-RPC endpoint over a MessageReader and MessageWriter.
//
// Inbound messages are queued by the reader goroutine and dispatched one
// at a time, in arrival order, by a single dispatch goroutine. Request
// handlers run on the dispatch goroutine; a handler that returns a Future
// is awaited on its own goroutine so dispatch can continue.
type Connection struct {
	reader       MessageReader
	writer       MessageWriter
	logger       Logger
	cancellation CancellationStrategy
	strategy     ConnectionStrategy
	readerOpts   []ReaderOption
	writerOpts   []WriterOption

	nextID atomic.Int64

	mu                      sync.Mutex
	state                   connectionState
	requestHandlers         map[string]requestHandlerEntry
	starRequestHandler      StarRequestHandler
	notificationHandlers    map[string]notificationHandlerEntry
	starNotificationHandler StarNotificationHandler
	progressHandlers        map[string]ProgressHandler
	pending                 map[string]*pendingResponse
	requestTokens           map[string]AbstractCancellationTokenSource
	knownCanceled           map[string]struct{}
	queue                   *messageQueue
	notificationSeq         int
	unknownResponseSeq      int
	trace                   traceState
	subscriptions           []Disposable

	tick chan struct{}
	done chan struct{}

	onError                 Emitter[error]
	onClose                 Emitter[struct{}]
	onDispose               Emitter[struct{}]
	onUnhandledNotification Emitter[*Message]
	onUnhandledProgress     Emitter[UnhandledProgress]
}

// NewConnection creates a connection. Call Listen to start processing.
func NewConnection(reader MessageReader, writer MessageWriter, opts ...ConnectionOption) *Connection {
	c := newConnection(opts)
	c.reader = reader
	c.writer = writer
	return c
}

// NewStreamConnection creates a connection that reads framed messages from
// r and writes them to w. WithReaderOptions and WithWriterOptions configure
// the stream reader and writer.
func NewStreamConnection(r io.Reader, w io.Writer, opts ...ConnectionOption) *Connection {
	c := newConnection(opts)
	c.reader = NewStreamMessageReader(r, append([]ReaderOption{WithReaderLogger(c.logger)}, c.readerOpts...)...)
	c.writer = NewStreamMessageWriter(w, append([]WriterOption{WithWriterLogger(c.logger)}, c.writerOpts...)...)
	return c
}

func newConnection(opts []ConnectionOption) *Connection {
	c := &Connection{
		logger:               NullLogger{},
		cancellation:         DefaultCancellationStrategy,
		state:                stateNew,
		requestHandlers:      make(map[string]requestHandlerEntry),
		notificationHandlers: make(map[string]notificationHandlerEntry),
		progressHandlers:     make(map[string]ProgressHandler),
		pending:              make(map[string]*pendingResponse),
		requestTokens:        make(map[string]AbstractCancellationTokenSource),
		knownCanceled:        make(map[string]struct{}),
		queue:                newMessageQueue(),
		tick:                 make(chan struct{}, 1),
		done:                 make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Listen starts reading and dispatching messages. It may be called once.
func (c *Connection) Listen() error {
	c.mu.Lock()
	if c.state != stateNew {
		c.mu.Unlock()
		return &ConnectionError{Code: ConnectionAlreadyListening, Message: ErrConnectionAlreadyListening.Message}
	}
	c.state = stateListening
	c.subscriptions = append(c.subscriptions,
		c.reader.OnError(func(err error) { c.onError.Fire(err) }),
		c.reader.OnClose(c.closeHandler),
		c.reader.OnPartialMessage(func(info PartialMessageInfo) {
			c.logger.Info("Received partial message %d, still waiting after %s", info.MessageToken, info.WaitingTime)
		}),
		c.writer.OnError(func(err *WriteError) { c.onError.Fire(err) }),
		c.writer.OnClose(c.closeHandler),
	)
	c.mu.Unlock()

	go c.dispatchLoop()

	sub, err := c.reader.Listen(c.onMessage)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	c.mu.Lock()
	c.subscriptions = append(c.subscriptions, sub)
	c.mu.Unlock()
	return nil
}

func (c *Connection) checkUsable() error {
	switch c.state {
	case stateClosed:
		return &ConnectionError{Code: ConnectionClosed, Message: ErrConnectionClosed.Message}
	case stateDisposed:
		return &ConnectionError{Code: ConnectionDisposed, Message: ErrConnectionDisposed.Message}
	}
	return nil
}

func (c *Connection) closeHandler() {
	c.mu.Lock()
	if c.state != stateNew && c.state != stateListening {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	pending := c.pending
	c.pending = make(map[string]*pendingResponse)
	c.mu.Unlock()

	for _, p := range pending {
		pendingRequests.Dec()
		p.ch <- pendingResult{err: &ConnectionError{Code: ConnectionClosed, Message: ErrConnectionClosed.Message}}
	}
	c.onClose.Fire(struct{}{})
}

// onMessage runs on the reader goroutine.
func (c *Connection) onMessage(msg *Message) {
	c.mu.Lock()
	if c.state == stateDisposed {
		c.mu.Unlock()
		return
	}
	switch {
	case msg.IsRequest():
		messagesReceived.WithLabelValues(kindRequest).Inc()
		c.queue.Set(requestQueueKey(*msg.ID), msg)
	case msg.IsResponse():
		messagesReceived.WithLabelValues(kindResponse).Inc()
		if msg.ID.IsNull() {
			c.unknownResponseSeq++
			c.queue.Set(unknownResponseQueueKey(c.unknownResponseSeq), msg)
		} else {
			c.queue.Set(responseQueueKey(*msg.ID), msg)
		}
	case msg.IsNotification() && msg.Method == CancelRequestMethod:
		messagesReceived.WithLabelValues(kindNotification).Inc()
		c.mu.Unlock()
		c.handleCancelRequest(msg)
		return
	default:
		if msg.IsNotification() {
			messagesReceived.WithLabelValues(kindNotification).Inc()
		} else {
			messagesReceived.WithLabelValues(kindInvalid).Inc()
		}
		c.notificationSeq++
		c.queue.Set(notificationQueueKey(c.notificationSeq), msg)
	}
	c.mu.Unlock()
	c.triggerMessageQueue()
}

// handleCancelRequest answers a queued request through the connection
// strategy, or cancels the running request's token. A queued request the
// strategy lets through starts with a cancelled token.
func (c *Connection) handleCancelRequest(msg *Message) {
	c.mu.Lock()
	trace := c.trace
	c.mu.Unlock()
	trace.receivedNotification(msg)

	id, ok := idFromResult(gjson.GetBytes(msg.Params, "id"))
	if !ok || id.IsNull() {
		c.logger.Warn("Received %s without a valid id: %s", CancelRequestMethod, string(msg.Params))
		return
	}
	key := requestQueueKey(id)

	c.mu.Lock()
	if queued, ok := c.queue.Get(key); ok {
		var response *Message
		if c.strategy.CancelUndispatched != nil {
			response = c.strategy.CancelUndispatched(queued, func(*Message) *Message { return nil })
		}
		if response != nil {
			c.queue.Delete(key)
			c.mu.Unlock()
			started := time.Now()
			if err := c.writer.Write(response); err != nil {
				c.logger.Error("Sending response for canceled message failed: %v", err)
				return
			}
			messagesSent.WithLabelValues(kindResponse).Inc()
			trace.sendingResponse(response, queued.Method, started)
			return
		}
		c.knownCanceled[id.String()] = struct{}{}
		c.mu.Unlock()
		return
	}
	source := c.requestTokens[id.String()]
	c.mu.Unlock()
	if source != nil {
		source.Cancel()
	}
}

func (c *Connection) triggerMessageQueue() {
	select {
	case c.tick <- struct{}{}:
	default:
	}
}

func (c *Connection) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.tick:
			c.processMessageQueue()
		}
	}
}

// processMessageQueue dispatches exactly one message and re-arms the tick
// while messages remain.
func (c *Connection) processMessageQueue() {
	c.mu.Lock()
	msg, ok := c.queue.Shift()
	var source AbstractCancellationTokenSource
	if ok && msg.IsRequest() {
		// Registered with the dequeue so that a cancel arriving from here
		// on finds the running token.
		source = c.registerRequestToken(*msg.ID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	switch {
	case msg.IsRequest():
		c.handleRequest(msg, source)
	case msg.IsNotification():
		c.handleNotification(msg)
	case msg.IsResponse():
		c.handleResponse(msg)
	default:
		c.handleInvalidMessage(msg)
	}

	c.mu.Lock()
	more := c.queue.Len() > 0
	c.mu.Unlock()
	if more {
		c.triggerMessageQueue()
	}
}

// registerRequestToken creates the cancellation source of a dispatched
// request, cancelled already when a cancel arrived while it was queued.
// c.mu must be held.
func (c *Connection) registerRequestToken(id ID) AbstractCancellationTokenSource {
	key := id.String()
	source := c.cancellation.Receiver.CreateCancellationTokenSource(id)
	if _, canceled := c.knownCanceled[key]; canceled {
		delete(c.knownCanceled, key)
		source.Cancel()
	}
	c.requestTokens[key] = source
	return source
}

func (c *Connection) handleRequest(msg *Message, source AbstractCancellationTokenSource) {
	started := time.Now()
	c.mu.Lock()
	if c.state == stateDisposed {
		c.mu.Unlock()
		return
	}
	trace := c.trace
	entry, hasEntry := c.requestHandlers[msg.Method]
	star := c.starRequestHandler
	c.mu.Unlock()

	trace.receivedRequest(msg)

	if !hasEntry && star == nil {
		c.replyError(msg, NewResponseError(CodeMethodNotFound, fmt.Sprintf("Unhandled method %s", msg.Method), nil), started)
		return
	}
	if hasEntry {
		if rerr := checkRequestParams(entry.sig, msg.Params); rerr != nil {
			c.replyError(msg, rerr, started)
			return
		}
	}

	result, err := invokeRequestHandler(entry.handler, star, msg, source.Token())
	if f, ok := result.(Future); ok && err == nil {
		go func() {
			v, err := awaitFuture(f)
			c.reply(msg, v, err, started)
		}()
		return
	}
	c.reply(msg, result, err, started)
}

func invokeRequestHandler(handler RequestHandler, star StarRequestHandler, msg *Message, token CancellationToken) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &panicError{value: r}
		}
	}()
	if handler != nil {
		return handler(msg.Params, token)
	}
	return star(msg.Method, msg.Params, token)
}

func awaitFuture(f Future) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &panicError{value: r}
		}
	}()
	return f.Await()
}

// checkRequestParams compares the params shape to the handler signature.
func checkRequestParams(sig MessageSignature, params json.RawMessage) *ResponseError {
	if len(params) == 0 {
		if sig.NumberOfParams != AnyParams && sig.NumberOfParams != 0 {
			return NewResponseError(CodeInvalidParams,
				fmt.Sprintf("Request %s defines %d params but received none.", sig.Method, sig.NumberOfParams), nil)
		}
		return nil
	}
	p := gjson.ParseBytes(params)
	switch {
	case p.IsArray():
		if sig.ParameterStructures == ParamsByName {
			return NewResponseError(CodeInvalidParams,
				fmt.Sprintf("Request %s defines parameters by name but received parameters by position", sig.Method), nil)
		}
		if n := len(p.Array()); sig.NumberOfParams != AnyParams && n != sig.NumberOfParams {
			return NewResponseError(CodeInvalidParams,
				fmt.Sprintf("Request %s defines %d params but received %d", sig.Method, sig.NumberOfParams, n), nil)
		}
	case p.IsObject():
		if sig.ParameterStructures == ParamsByPosition {
			return NewResponseError(CodeInvalidParams,
				fmt.Sprintf("Request %s defines parameters by position but received parameters by name", sig.Method), nil)
		}
	}
	return nil
}

func (c *Connection) reply(msg *Message, result any, err error, started time.Time) {
	if err != nil {
		c.replyError(msg, toResponseError(msg.Method, err), started)
		return
	}
	raw, merr := marshalResult(result)
	if merr != nil {
		c.replyError(msg, toResponseError(msg.Method, merr), started)
		return
	}
	c.sendResponse(msg, &Message{JSONRPC: Version, ID: msg.ID, Result: raw}, started)
}

func (c *Connection) replyError(msg *Message, rerr *ResponseError, started time.Time) {
	c.sendResponse(msg, &Message{JSONRPC: Version, ID: msg.ID, Error: rerr}, started)
}

func (c *Connection) sendResponse(req, resp *Message, started time.Time) {
	c.mu.Lock()
	key := req.ID.String()
	if source, ok := c.requestTokens[key]; ok {
		delete(c.requestTokens, key)
		source.Dispose()
	}
	disposed := c.state == stateDisposed
	trace := c.trace
	c.mu.Unlock()
	if disposed {
		return
	}

	trace.sendingResponse(resp, req.Method, started)
	requestDuration.WithLabelValues(req.Method, directionInbound).Observe(time.Since(started).Seconds())
	if err := c.writer.Write(resp); err != nil {
		c.logger.Error("Sending response for request %s failed: %v", req.Method, err)
		return
	}
	messagesSent.WithLabelValues(kindResponse).Inc()
}

func marshalResult(result any) (json.RawMessage, error) {
	switch v := result.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("null"), nil
		}
		return v, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return data, nil
}

// toResponseError classifies a handler error for the wire.
func toResponseError(method string, err error) *ResponseError {
	var rerr *ResponseError
	if errors.As(err, &rerr) {
		return rerr
	}
	var perr *panicError
	if errors.As(err, &perr) || err.Error() == "" {
		return NewResponseError(CodeInternalError,
			fmt.Sprintf("Request %s failed unexpectedly without providing any details.", method), nil)
	}
	return NewResponseError(CodeInternalError,
		fmt.Sprintf("Request %s failed with message: %s", method, err.Error()), nil)
}

func (c *Connection) handleNotification(msg *Message) {
	c.mu.Lock()
	if c.state == stateDisposed {
		c.mu.Unlock()
		return
	}
	trace := c.trace
	entry, hasEntry := c.notificationHandlers[msg.Method]
	star := c.starNotificationHandler
	c.mu.Unlock()

	trace.receivedNotification(msg)

	switch {
	case msg.Method == ProgressMethod:
		c.handleProgress(msg)
		return
	case hasEntry:
		if problem := checkNotificationParams(entry.sig, msg.Params); problem != "" {
			c.logger.Error("%s", problem)
		}
		c.invokeNotification(msg, func() { entry.handler(msg.Params) })
	case star != nil:
		c.invokeNotification(msg, func() { star(msg.Method, msg.Params) })
	case msg.Method == SetTraceMethod:
		var p setTraceParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			c.logger.Error("Invalid %s params: %v", SetTraceMethod, err)
			return
		}
		c.mu.Lock()
		c.trace.level = ParseTrace(p.Value)
		c.mu.Unlock()
	case msg.Method == LogTraceMethod:
		var p logTraceParams
		if err := json.Unmarshal(msg.Params, &p); err != nil {
			c.logger.Error("Invalid %s params: %v", LogTraceMethod, err)
			return
		}
		if trace.tracer != nil {
			trace.tracer.Log(p.Message, p.Verbose)
		}
	default:
		c.onUnhandledNotification.Fire(msg)
	}
}

func (c *Connection) invokeNotification(msg *Message, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Notification handler '%s' failed: %v", msg.Method, r)
		}
	}()
	fn()
}

// checkNotificationParams returns a description of a params mismatch or
// the empty string.
func checkNotificationParams(sig MessageSignature, params json.RawMessage) string {
	if len(params) == 0 {
		if sig.NumberOfParams != AnyParams && sig.NumberOfParams != 0 {
			return fmt.Sprintf("Notification %s defines %d params but received none.", sig.Method, sig.NumberOfParams)
		}
		return ""
	}
	p := gjson.ParseBytes(params)
	switch {
	case p.IsArray():
		if sig.ParameterStructures == ParamsByName {
			return fmt.Sprintf("Notification %s defines parameters by name but received parameters by position", sig.Method)
		}
		if n := len(p.Array()); sig.NumberOfParams != AnyParams && n != sig.NumberOfParams {
			return fmt.Sprintf("Notification %s defines %d params but received %d", sig.Method, sig.NumberOfParams, n)
		}
	case p.IsObject():
		if sig.ParameterStructures == ParamsByPosition {
			return fmt.Sprintf("Notification %s defines parameters by position but received parameters by name", sig.Method)
		}
	}
	return ""
}

func (c *Connection) handleProgress(msg *Message) {
	var p ProgressParams
	if err := json.Unmarshal(msg.Params, &p); err != nil {
		c.logger.Error("Invalid %s params: %v", ProgressMethod, err)
		return
	}
	c.mu.Lock()
	handler := c.progressHandlers[p.Token.String()]
	c.mu.Unlock()
	if handler == nil {
		c.onUnhandledProgress.Fire(UnhandledProgress(p))
		return
	}
	c.invokeNotification(msg, func() { handler(p.Value) })
}

func (c *Connection) handleResponse(msg *Message) {
	if msg.ID.IsNull() {
		if msg.Error != nil {
			c.logger.Error("Received response message without id: Error is: %s (%d)", msg.Error.Message, msg.Error.Code)
		} else {
			c.logger.Error("Received response message without id. No further error information provided.")
		}
		return
	}

	key := msg.ID.String()
	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	trace := c.trace
	c.mu.Unlock()

	if !ok {
		trace.receivedResponse(msg, "", time.Time{})
		return
	}
	pendingRequests.Dec()
	c.cancellation.Sender.Cleanup(*msg.ID)
	trace.receivedResponse(msg, p.method, p.started)
	requestDuration.WithLabelValues(p.method, directionOutbound).Observe(time.Since(p.started).Seconds())

	if msg.Error != nil {
		p.ch <- pendingResult{err: NewResponseError(msg.Error.Code, msg.Error.Message, msg.Error.Data)}
		return
	}
	p.ch <- pendingResult{result: msg.Result}
}

func (c *Connection) handleInvalidMessage(msg *Message) {
	raw, _ := json.Marshal(msg)
	c.logger.Error("Received message which is neither a response nor a notification message: %s", string(raw))
	if msg.ID == nil || msg.ID.IsNull() {
		return
	}
	key := msg.ID.String()
	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.mu.Unlock()
	if ok {
		pendingRequests.Dec()
		p.ch <- pendingResult{err: NewResponseError(CodeInternalError,
			"The received response has neither a result nor an error property.", nil)}
	}
}

// SendRequest sends a request and waits for its response. A trailing
// CancellationToken argument is not sent; cancelling it sends a
// cancellation to the remote side and keeps waiting for the response.
// Cancelling ctx also sends a cancellation but returns ctx.Err at once.
func (c *Connection) SendRequest(ctx context.Context, sig MessageSignature, args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	if err := c.checkUsable(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if c.state != stateListening {
		c.mu.Unlock()
		return nil, ErrNotListening
	}
	c.mu.Unlock()

	var token CancellationToken
	if n := len(args); n > 0 {
		if t, ok := args[n-1].(CancellationToken); ok {
			token = t
			args = args[:n-1]
		}
	}
	params, err := computeMessageParams(sig, args)
	if err != nil {
		return nil, err
	}

	id := NumberID(c.nextID.Add(1))
	msg := &Message{JSONRPC: Version, ID: &id, Method: sig.Method, Params: params}
	p := &pendingResponse{method: sig.Method, started: time.Now(), ch: make(chan pendingResult, 1)}

	key := id.String()
	c.mu.Lock()
	c.pending[key] = p
	trace := c.trace
	c.mu.Unlock()
	pendingRequests.Inc()

	trace.sendingRequest(msg)
	if err := c.writer.Write(msg); err != nil {
		if c.removePending(key) {
			pendingRequests.Dec()
		}
		return nil, NewResponseError(CodeMessageWriteError, err.Error(), nil)
	}
	messagesSent.WithLabelValues(kindRequest).Inc()

	var tokenDone <-chan struct{}
	if token != nil {
		tokenDone = token.Done()
	}
	for {
		select {
		case res := <-p.ch:
			return res.result, res.err
		case <-tokenDone:
			tokenDone = nil
			c.sendCancellation(id)
		case <-ctx.Done():
			if c.removePending(key) {
				pendingRequests.Dec()
				c.sendCancellation(id)
				c.cancellation.Sender.Cleanup(id)
			}
			return nil, ctx.Err()
		}
	}
}

func (c *Connection) removePending(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[key]; !ok {
		return false
	}
	delete(c.pending, key)
	return true
}

func (c *Connection) sendCancellation(id ID) {
	if err := c.cancellation.Sender.SendCancellation(c, id); err != nil {
		c.logger.Warn("Failed to send cancellation for request %s: %v", id, err)
	}
}

// Call sends a request with a single params value and decodes the result
// into result, which may be nil.
func (c *Connection) Call(ctx context.Context, method string, params, result any) error {
	var args []any
	if params != nil {
		args = append(args, params)
	}
	raw, err := c.SendRequest(ctx, Method(method), args...)
	if err != nil {
		return err
	}
	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// SendNotification sends a notification.
func (c *Connection) SendNotification(sig MessageSignature, args ...any) error {
	c.mu.Lock()
	if err := c.checkUsable(); err != nil {
		c.mu.Unlock()
		return err
	}
	trace := c.trace
	c.mu.Unlock()

	params, err := computeMessageParams(sig, args)
	if err != nil {
		return err
	}
	msg := &Message{JSONRPC: Version, Method: sig.Method, Params: params}
	trace.sendingNotification(msg)
	if err := c.writer.Write(msg); err != nil {
		return err
	}
	messagesSent.WithLabelValues(kindNotification).Inc()
	return nil
}

// Notify sends a notification with a single params value.
func (c *Connection) Notify(method string, params any) error {
	if params == nil {
		return c.SendNotification(Method(method))
	}
	return c.SendNotification(Method(method), params)
}

// OnRequest registers the handler for sig.Method.
func (c *Connection) OnRequest(sig MessageSignature, handler RequestHandler) (Disposable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	c.requestHandlers[sig.Method] = requestHandlerEntry{sig: sig, handler: handler}
	return DisposableFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.requestHandlers, sig.Method)
	}), nil
}

// OnStarRequest registers the catch-all request handler.
func (c *Connection) OnStarRequest(handler StarRequestHandler) (Disposable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	c.starRequestHandler = handler
	return DisposableFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.starRequestHandler = nil
	}), nil
}

// OnNotification registers the handler for sig.Method.
func (c *Connection) OnNotification(sig MessageSignature, handler NotificationHandler) (Disposable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	c.notificationHandlers[sig.Method] = notificationHandlerEntry{sig: sig, handler: handler}
	return DisposableFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.notificationHandlers, sig.Method)
	}), nil
}

// OnStarNotification registers the catch-all notification handler.
func (c *Connection) OnStarNotification(handler StarNotificationHandler) (Disposable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	c.starNotificationHandler = handler
	return DisposableFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.starNotificationHandler = nil
	}), nil
}

// OnProgress registers a handler for values reported against token.
func (c *Connection) OnProgress(_ ProgressType, token ProgressToken, handler ProgressHandler) (Disposable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkUsable(); err != nil {
		return nil, err
	}
	key := token.String()
	if _, exists := c.progressHandlers[key]; exists {
		return nil, fmt.Errorf("progress handler for token %s already registered", key)
	}
	c.progressHandlers[key] = handler
	return DisposableFunc(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.progressHandlers, key)
	}), nil
}

// SendProgress reports value for token.
func (c *Connection) SendProgress(_ ProgressType, token ProgressToken, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal progress value: %w", err)
	}
	return c.SendNotification(Method(ProgressMethod), ProgressParams{Token: token, Value: raw})
}

// OnUnhandledProgress registers a listener for progress without a handler.
func (c *Connection) OnUnhandledProgress(fn func(UnhandledProgress)) Disposable {
	return c.onUnhandledProgress.Event(fn)
}

// OnUnhandledNotification registers a listener for notifications without
// a handler.
func (c *Connection) OnUnhandledNotification(fn func(*Message)) Disposable {
	return c.onUnhandledNotification.Event(fn)
}

// OnError registers a listener for reader and writer errors.
func (c *Connection) OnError(fn func(error)) Disposable { return c.onError.Event(fn) }

// OnClose registers a listener fired when the stream closes.
func (c *Connection) OnClose(fn func()) Disposable {
	return c.onClose.Event(func(struct{}) { fn() })
}

// OnDispose registers a listener fired by Dispose.
func (c *Connection) OnDispose(fn func()) Disposable {
	return c.onDispose.Event(func(struct{}) { fn() })
}

// SetTrace changes the trace level and tracer. With SendNotification set
// the new level is announced with $/setTrace.
func (c *Connection) SetTrace(level Trace, tracer Tracer, opts TraceOptions) error {
	format := opts.Format
	if format == "" {
		format = TraceFormatText
	}
	c.mu.Lock()
	c.trace = traceState{level: level, format: format, tracer: tracer}
	listening := c.state == stateListening
	c.mu.Unlock()

	if opts.SendNotification && listening {
		return c.SendNotification(Method(SetTraceMethod), setTraceParams{Value: level.String()})
	}
	return nil
}

// HasPendingResponse reports whether a sent request awaits its response.
func (c *Connection) HasPendingResponse() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// End closes the writer.
func (c *Connection) End() error {
	return c.writer.End()
}

// Dispose releases the connection. Pending requests fail with
// CodePendingResponseRejected and running requests are cancelled. It is
// safe to call more than once.
func (c *Connection) Dispose() {
	c.mu.Lock()
	if c.state == stateDisposed {
		c.mu.Unlock()
		return
	}
	c.state = stateDisposed
	pending := c.pending
	tokens := c.requestTokens
	subs := c.subscriptions
	c.pending = make(map[string]*pendingResponse)
	c.requestTokens = make(map[string]AbstractCancellationTokenSource)
	c.knownCanceled = make(map[string]struct{})
	c.requestHandlers = make(map[string]requestHandlerEntry)
	c.notificationHandlers = make(map[string]notificationHandlerEntry)
	c.progressHandlers = make(map[string]ProgressHandler)
	c.starRequestHandler = nil
	c.starNotificationHandler = nil
	c.subscriptions = nil
	c.queue.Clear()
	close(c.done)
	c.mu.Unlock()

	c.onDispose.Fire(struct{}{})

	for _, p := range pending {
		pendingRequests.Dec()
		p.ch <- pendingResult{err: NewResponseError(CodePendingResponseRejected,
			"Pending response rejected since connection got disposed", nil)}
	}
	for _, source := range tokens {
		source.Cancel()
		source.Dispose()
	}
	for _, sub := range subs {
		sub.Dispose()
	}
	if c.reader != nil {
		c.reader.Dispose()
	}
	if c.writer != nil {
		c.writer.Dispose()
	}

	c.onError.Dispose()
	c.onClose.Dispose()
	c.onDispose.Dispose()
	c.onUnhandledNotification.Dispose()
	c.onUnhandledProgress.Dispose()
}

// Inspection is a snapshot of connection bookkeeping.
type Inspection struct {
	State           string
	PendingRequests int
	RunningRequests int
	QueuedMessages  int
	Trace           Trace
}

// Inspect returns a snapshot of the connection state.
func (c *Connection) Inspect() Inspection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Inspection{
		State:           c.state.String(),
		PendingRequests: len(c.pending),
		RunningRequests: len(c.requestTokens),
		QueuedMessages:  c.queue.Len(),
		Trace:           c.trace.level,
	}
}
