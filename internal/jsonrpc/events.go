package jsonrpc

import "sync"

// Disposable releases a registration or resource.
type Disposable interface {
	Dispose()
}

// DisposableFunc adapts a function to Disposable.
type DisposableFunc func()

// Dispose calls f.
func (f DisposableFunc) Dispose() {
	if f != nil {
		f()
	}
}

type noopDisposable struct{}

func (noopDisposable) Dispose() {}

// Emitter delivers events of type T to registered listeners in
// registration order. Listeners run on the firing goroutine.
type Emitter[T any] struct {
	mu        sync.Mutex
	listeners []emitterEntry[T]
	nextID    int
	disposed  bool
}

type emitterEntry[T any] struct {
	id int
	fn func(T)
}

// Event registers a listener.
func (e *Emitter[T]) Event(fn func(T)) Disposable {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed || fn == nil {
		return noopDisposable{}
	}
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, emitterEntry[T]{id: id, fn: fn})
	return DisposableFunc(func() { e.remove(id) })
}

func (e *Emitter[T]) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Fire delivers v to every listener registered at the time of the call.
func (e *Emitter[T]) Fire(v T) {
	e.mu.Lock()
	listeners := make([]emitterEntry[T], len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	for _, l := range listeners {
		l.fn(v)
	}
}

// HasListeners reports whether any listener is registered.
func (e *Emitter[T]) HasListeners() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners) > 0
}

// Dispose drops all listeners. Later registrations are ignored.
func (e *Emitter[T]) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = true
	e.listeners = nil
}
