package jsonrpc

// Logger receives diagnostic output from readers, writers and connections.
// Messages are printf-style format strings.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}

// NullLogger discards everything.
type NullLogger struct{}

func (NullLogger) Error(string, ...any) {}
func (NullLogger) Warn(string, ...any)  {}
func (NullLogger) Info(string, ...any)  {}
func (NullLogger) Debug(string, ...any) {}
