package jsonrpc

import "sync"

// CancellationToken signals cooperative cancellation to a running
// operation. Handlers either poll IsCancellationRequested, subscribe with
// OnCancellationRequested or select on Done.
type CancellationToken interface {
	IsCancellationRequested() bool

	// OnCancellationRequested registers fn. If the token is already
	// cancelled fn is invoked asynchronously, never on the caller's stack.
	OnCancellationRequested(fn func()) Disposable

	// Done returns a channel closed on cancellation. It is nil for a
	// token that can never be cancelled.
	Done() <-chan struct{}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type staticToken struct {
	cancelled bool
}

func (t staticToken) IsCancellationRequested() bool { return t.cancelled }

func (t staticToken) OnCancellationRequested(fn func()) Disposable {
	if t.cancelled && fn != nil {
		go fn()
	}
	return noopDisposable{}
}

func (t staticToken) Done() <-chan struct{} {
	if t.cancelled {
		return closedChan
	}
	return nil
}

// Shared immutable tokens.
var (
	CancellationTokenNone      CancellationToken = staticToken{cancelled: false}
	CancellationTokenCancelled CancellationToken = staticToken{cancelled: true}
)

// mutableToken fires its listeners at most once.
type mutableToken struct {
	mu        sync.Mutex
	cancelled bool
	emitter   *Emitter[struct{}]
	done      chan struct{}
}

func (t *mutableToken) IsCancellationRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *mutableToken) OnCancellationRequested(fn func()) Disposable {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		if fn != nil {
			go fn()
		}
		return noopDisposable{}
	}
	if t.emitter == nil {
		t.emitter = &Emitter[struct{}]{}
	}
	em := t.emitter
	t.mu.Unlock()
	return em.Event(func(struct{}) { fn() })
}

func (t *mutableToken) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done == nil {
		t.done = make(chan struct{})
		if t.cancelled {
			close(t.done)
		}
	}
	return t.done
}

func (t *mutableToken) cancel() {
	t.mu.Lock()
	if t.cancelled {
		t.mu.Unlock()
		return
	}
	t.cancelled = true
	em := t.emitter
	done := t.done
	t.mu.Unlock()

	if done != nil {
		close(done)
	}
	if em != nil {
		em.Fire(struct{}{})
		em.Dispose()
	}
}

func (t *mutableToken) dispose() {
	t.mu.Lock()
	em := t.emitter
	t.emitter = nil
	t.mu.Unlock()
	if em != nil {
		em.Dispose()
	}
}

// AbstractCancellationTokenSource is what a receiver strategy hands out
// for each incoming request.
type AbstractCancellationTokenSource interface {
	Token() CancellationToken
	Cancel()
	Dispose()
}

// CancellationTokenSource creates and controls a CancellationToken.
//
// The token is created lazily. Cancelling a source whose token was never
// requested makes Token return CancellationTokenCancelled.
type CancellationTokenSource struct {
	mu    sync.Mutex
	token CancellationToken
}

// NewCancellationTokenSource creates a source.
func NewCancellationTokenSource() *CancellationTokenSource {
	return &CancellationTokenSource{}
}

// Token returns the source's token.
func (s *CancellationTokenSource) Token() CancellationToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		s.token = &mutableToken{}
	}
	return s.token
}

// Cancel cancels the token. Calling it more than once is a no-op.
func (s *CancellationTokenSource) Cancel() {
	s.mu.Lock()
	if s.token == nil {
		s.token = CancellationTokenCancelled
		s.mu.Unlock()
		return
	}
	mt, ok := s.token.(*mutableToken)
	s.mu.Unlock()
	if ok {
		mt.cancel()
	}
}

// Dispose releases listeners. An untouched source ends with the None token.
func (s *CancellationTokenSource) Dispose() {
	s.mu.Lock()
	if s.token == nil {
		s.token = CancellationTokenNone
		s.mu.Unlock()
		return
	}
	mt, ok := s.token.(*mutableToken)
	s.mu.Unlock()
	if ok {
		mt.dispose()
	}
}

// CancellationReceiverStrategy creates the token source used for an
// incoming request.
type CancellationReceiverStrategy interface {
	CreateCancellationTokenSource(id ID) AbstractCancellationTokenSource
}

// CancellationSenderStrategy tells the remote side that an outgoing
// request was cancelled.
type CancellationSenderStrategy interface {
	SendCancellation(conn *Connection, id ID) error
	Cleanup(id ID)
}

// CancellationStrategy bundles the receiver and sender strategies.
type CancellationStrategy struct {
	Receiver CancellationReceiverStrategy
	Sender   CancellationSenderStrategy
}

type defaultReceiverStrategy struct{}

func (defaultReceiverStrategy) CreateCancellationTokenSource(ID) AbstractCancellationTokenSource {
	return NewCancellationTokenSource()
}

type defaultSenderStrategy struct{}

type cancelParams struct {
	ID ID `json:"id"`
}

func (defaultSenderStrategy) SendCancellation(conn *Connection, id ID) error {
	return conn.SendNotification(Method(CancelRequestMethod), cancelParams{ID: id})
}

func (defaultSenderStrategy) Cleanup(ID) {}

// DefaultCancellationStrategy uses $/cancelRequest notifications.
var DefaultCancellationStrategy = CancellationStrategy{
	Receiver: defaultReceiverStrategy{},
	Sender:   defaultSenderStrategy{},
}

// ConnectionStrategy customizes how the connection treats requests that
// are cancelled while still queued. CancelUndispatched returns the
// response to send instead of running the handler, or nil to let the
// request run. next is the default behaviour, which returns nil.
type ConnectionStrategy struct {
	CancelUndispatched func(msg *Message, next func(*Message) *Message) *Message
}

// CancelUndispatchedWithError returns a ConnectionStrategy that answers
// requests cancelled before dispatch with the given error code.
func CancelUndispatchedWithError(code ErrorCode, message string) ConnectionStrategy {
	return ConnectionStrategy{
		CancelUndispatched: func(msg *Message, _ func(*Message) *Message) *Message {
			return &Message{
				JSONRPC: Version,
				ID:      msg.ID,
				Error:   NewResponseError(code, message, nil),
			}
		},
	}
}
