package jsonrpc

import (
	"container/list"
	"fmt"
	"sync"
)

// Semaphore admits at most capacity thunks at a time, in FIFO order.
// Thunks are started from a separate goroutine, never from Lock's caller.
type Semaphore struct {
	capacity int

	mu      sync.Mutex
	active  int
	waiting *list.List
}

type semaphoreResult struct {
	value any
	err   error
}

type semaphoreWaiter struct {
	thunk func() (any, error)
	done  chan semaphoreResult
}

// NewSemaphore creates a semaphore. A capacity below 1 is treated as 1.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{capacity: capacity, waiting: list.New()}
}

// Lock queues thunk and blocks until it has run, returning its result.
// A panicking thunk is reported as an error.
func (s *Semaphore) Lock(thunk func() (any, error)) (any, error) {
	w := &semaphoreWaiter{thunk: thunk, done: make(chan semaphoreResult, 1)}
	s.mu.Lock()
	s.waiting.PushBack(w)
	s.mu.Unlock()

	s.runNext()
	res := <-w.done
	return res.value, res.err
}

// Active returns the number of thunks currently running.
func (s *Semaphore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *Semaphore) runNext() {
	s.mu.Lock()
	ready := s.waiting.Len() > 0 && s.active < s.capacity
	s.mu.Unlock()
	if ready {
		go s.doRunNext()
	}
}

func (s *Semaphore) doRunNext() {
	s.mu.Lock()
	if s.waiting.Len() == 0 || s.active == s.capacity {
		s.mu.Unlock()
		return
	}
	w := s.waiting.Remove(s.waiting.Front()).(*semaphoreWaiter)
	s.active++
	if s.active > s.capacity {
		s.mu.Unlock()
		panic("jsonrpc: too many thunks active")
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		s.runNext()
	}()

	w.done <- runThunk(w.thunk)
}

func runThunk(thunk func() (any, error)) (res semaphoreResult) {
	defer func() {
		if r := recover(); r != nil {
			res = semaphoreResult{err: fmt.Errorf("semaphore thunk panicked: %v", r)}
		}
	}()
	v, err := thunk()
	return semaphoreResult{value: v, err: err}
}
