package watcher

import (
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestOp_String(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{OpRename, "RENAME"},
		{OpChmod, "CHMOD"},
		{OpCreate | OpWrite, "CREATE|WRITE"},
		{Op(0), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestOp_Has(t *testing.T) {
	op := OpCreate | OpWrite

	if !op.Has(OpCreate) {
		t.Error("op should have OpCreate")
	}
	if !op.Has(OpWrite) {
		t.Error("op should have OpWrite")
	}
	if op.Has(OpRemove) {
		t.Error("op should not have OpRemove")
	}
	if op.Has(0) {
		t.Error("no op is never contained")
	}
}

func TestConvertOp(t *testing.T) {
	tests := []struct {
		in   fsnotify.Op
		want Op
	}{
		{fsnotify.Create, OpCreate},
		{fsnotify.Write, OpWrite},
		{fsnotify.Remove, OpRemove},
		{fsnotify.Rename, OpRename},
		{fsnotify.Chmod, OpChmod},
		{fsnotify.Create | fsnotify.Write, OpCreate | OpWrite},
	}

	for _, tt := range tests {
		if got := convertOp(tt.in); got != tt.want {
			t.Errorf("convertOp(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.DebounceDelay != 100*time.Millisecond {
		t.Errorf("DebounceDelay = %v, want 100ms", config.DebounceDelay)
	}
	if !config.IgnoreChmod {
		t.Error("IgnoreChmod should default to true")
	}
}

func TestOptions(t *testing.T) {
	config := DefaultConfig()
	called := false
	for _, opt := range []Option{
		WithDebounceDelay(time.Second),
		WithIgnoreChmod(false),
		WithErrorHandler(func(error) { called = true }),
	} {
		opt(&config)
	}

	if config.DebounceDelay != time.Second {
		t.Errorf("DebounceDelay = %v, want 1s", config.DebounceDelay)
	}
	if config.IgnoreChmod {
		t.Error("IgnoreChmod should be false")
	}
	config.OnError(nil)
	if !called {
		t.Error("OnError should be the handler passed in")
	}
}

// collector records delivered events.
type collector struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newCollector() *collector {
	return &collector{ch: make(chan Event, 100)}
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	c.ch <- e
}

func (c *collector) wait(t *testing.T, timeout time.Duration) Event {
	t.Helper()
	select {
	case e := <-c.ch:
		return e
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
