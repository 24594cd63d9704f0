package watcher

import (
	"testing"
	"time"
)

func TestDebouncer_Coalesces(t *testing.T) {
	c := newCollector()
	d := newDebouncer(50*time.Millisecond, c.handle)
	defer d.stop()

	now := time.Now()
	d.add(Event{Path: "/a.json", Op: OpCreate, Timestamp: now})
	d.add(Event{Path: "/a.json", Op: OpWrite, Timestamp: now.Add(time.Millisecond)})
	d.add(Event{Path: "/a.json", Op: OpWrite, Timestamp: now.Add(2 * time.Millisecond)})

	if got := d.count(); got != 1 {
		t.Errorf("count() = %d, want 1", got)
	}

	e := c.wait(t, time.Second)
	if e.Path != "/a.json" {
		t.Errorf("Path = %q, want /a.json", e.Path)
	}
	if e.Op != OpCreate|OpWrite {
		t.Errorf("Op = %v, want CREATE|WRITE", e.Op)
	}
	if !e.Timestamp.Equal(now.Add(2 * time.Millisecond)) {
		t.Errorf("Timestamp should be the last event's")
	}

	time.Sleep(100 * time.Millisecond)
	if got := c.count(); got != 1 {
		t.Errorf("delivered %d events, want 1", got)
	}
}

func TestDebouncer_SeparatePaths(t *testing.T) {
	c := newCollector()
	d := newDebouncer(20*time.Millisecond, c.handle)
	defer d.stop()

	d.add(Event{Path: "/a.json", Op: OpWrite})
	d.add(Event{Path: "/b.json", Op: OpWrite})

	seen := map[string]bool{}
	seen[c.wait(t, time.Second).Path] = true
	seen[c.wait(t, time.Second).Path] = true
	if !seen["/a.json"] || !seen["/b.json"] {
		t.Errorf("seen = %v, want both paths", seen)
	}
}

func TestDebouncer_ZeroDelay(t *testing.T) {
	c := newCollector()
	d := newDebouncer(0, c.handle)

	d.add(Event{Path: "/a.json", Op: OpWrite})
	if got := c.count(); got != 1 {
		t.Errorf("delivered %d events, want 1 without delay", got)
	}
}

func TestDebouncer_Flush(t *testing.T) {
	c := newCollector()
	d := newDebouncer(time.Hour, c.handle)
	defer d.stop()

	d.add(Event{Path: "/a.json", Op: OpWrite})
	d.add(Event{Path: "/b.json", Op: OpRemove})
	d.flush()

	if got := c.count(); got != 2 {
		t.Errorf("delivered %d events after flush, want 2", got)
	}
	if got := d.count(); got != 0 {
		t.Errorf("count() = %d after flush, want 0", got)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	c := newCollector()
	d := newDebouncer(10*time.Millisecond, c.handle)

	d.add(Event{Path: "/a.json", Op: OpWrite})
	d.stop()
	d.add(Event{Path: "/b.json", Op: OpWrite})

	time.Sleep(50 * time.Millisecond)
	if got := c.count(); got != 0 {
		t.Errorf("delivered %d events after stop, want 0", got)
	}
}
