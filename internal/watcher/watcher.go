// Package watcher reports changes to individual files on disk.
//
// The language server uses it to invalidate local schema files: when a
// schema a document depends on is edited, moved or removed, the handler
// receives one event per file after changes have settled. Files are
// watched through their parent directory so that editors which save by
// writing a temporary file and renaming it over the original are seen.
package watcher

import (
	"errors"
	"strings"
	"time"
)

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("path is already being watched")
	ErrNotWatching     = errors.New("path is not being watched")
	ErrPathNotExist    = errors.New("path does not exist")
	ErrNotAFile        = errors.New("path is a directory")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file was removed.
	OpRemove
	// OpRename indicates a file was renamed.
	OpRename
	// OpChmod indicates file permissions were changed.
	OpChmod
)

var opNames = []struct {
	op   Op
	name string
}{
	{OpCreate, "CREATE"},
	{OpWrite, "WRITE"},
	{OpRemove, "REMOVE"},
	{OpRename, "RENAME"},
	{OpChmod, "CHMOD"},
}

// String returns the operation names joined with "|".
func (op Op) String() string {
	var names []string
	for _, n := range opNames {
		if op.Has(n.op) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(names, "|")
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return o != 0 && op&o == o
}

// Event represents a settled change to a watched file.
type Event struct {
	// Path is the absolute path of the affected file.
	Path string

	// Op is every operation seen during the debounce window.
	Op Op

	// Timestamp is when the last operation occurred.
	Timestamp time.Time
}

// Stats provides watcher status information.
type Stats struct {
	// WatchedPaths is the number of files being watched.
	WatchedPaths int

	// WatchedDirs is the number of directories registered with the OS.
	WatchedDirs int

	// PendingEvents is the number of events waiting out the debounce delay.
	PendingEvents int

	// TotalEvents is the total number of events delivered.
	TotalEvents int64

	// Errors is the total number of errors encountered.
	Errors int64

	// LastError is the most recent error, if any.
	LastError error

	// StartTime is when the watcher was started.
	StartTime time.Time
}

// Handler is a function that handles file change events.
type Handler func(event Event)

// ErrorHandler is a function that handles watcher errors.
type ErrorHandler func(err error)

// Config holds watcher configuration options.
type Config struct {
	// DebounceDelay is how long a file must stay quiet before its event is
	// delivered. Zero delivers every event immediately.
	// Default: 100ms
	DebounceDelay time.Duration

	// IgnoreChmod drops events that only change permissions.
	// Default: true
	IgnoreChmod bool

	// OnError receives errors from the OS watcher.
	OnError ErrorHandler
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
		IgnoreChmod:   true,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithDebounceDelay sets the debounce delay.
func WithDebounceDelay(d time.Duration) Option {
	return func(c *Config) {
		c.DebounceDelay = d
	}
}

// WithIgnoreChmod controls whether permission-only changes are reported.
func WithIgnoreChmod(ignore bool) Option {
	return func(c *Config) {
		c.IgnoreChmod = ignore
	}
}

// WithErrorHandler sets the handler for OS watcher errors.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Config) {
		c.OnError = h
	}
}
