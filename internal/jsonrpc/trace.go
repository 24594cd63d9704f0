package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Trace is the verbosity of message tracing.
type Trace int

const (
	TraceOff Trace = iota
	TraceMessages
	TraceCompact
	TraceVerbose
)

// String returns the wire value used by $/setTrace.
func (t Trace) String() string {
	switch t {
	case TraceMessages:
		return "messages"
	case TraceCompact:
		return "compact"
	case TraceVerbose:
		return "verbose"
	default:
		return "off"
	}
}

// ParseTrace converts a wire value to a Trace. Unknown values are off.
func ParseTrace(value string) Trace {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "messages":
		return TraceMessages
	case "compact":
		return TraceCompact
	case "verbose":
		return TraceVerbose
	default:
		return TraceOff
	}
}

// TraceFormat selects between human readable and JSON trace output.
type TraceFormat string

const (
	TraceFormatText TraceFormat = "text"
	TraceFormatJSON TraceFormat = "json"
)

// Tracer receives trace output. data is empty unless the level is verbose
// or compact.
type Tracer interface {
	Log(message, data string)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(message, data string)

// Log calls f.
func (f TracerFunc) Log(message, data string) { f(message, data) }

// TraceOptions configures SetTrace.
type TraceOptions struct {
	Format TraceFormat
	// SendNotification sends $/setTrace to the remote side.
	SendNotification bool
}

type setTraceParams struct {
	Value string `json:"value"`
}

type logTraceParams struct {
	Message string `json:"message"`
	Verbose string `json:"verbose,omitempty"`
}

// traceEntry is the JSON trace record.
type traceEntry struct {
	IsLSPMessage bool            `json:"isLSPMessage"`
	Type         string          `json:"type"`
	Message      json.RawMessage `json:"message"`
	Timestamp    int64           `json:"timestamp"`
}

// traceState is owned by the connection and guarded by its mutex.
type traceState struct {
	level  Trace
	format TraceFormat
	tracer Tracer
}

func (s traceState) enabled() bool {
	return s.level != TraceOff && s.tracer != nil
}

func (s traceState) dataFor(raw json.RawMessage, label string) string {
	switch s.level {
	case TraceVerbose:
		if len(raw) == 0 {
			return fmt.Sprintf("No %s specified.", label)
		}
		return fmt.Sprintf("%s: %s\n\n", capitalize(label), indentJSON(raw))
	case TraceCompact:
		if len(raw) == 0 {
			return ""
		}
		return string(raw)
	}
	return ""
}

func (s traceState) json(kind string, msg *Message) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	entry, err := json.Marshal(traceEntry{
		IsLSPMessage: true,
		Type:         kind,
		Message:      raw,
		Timestamp:    time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	s.tracer.Log(string(entry), "")
}

func (s traceState) sendingRequest(msg *Message) {
	if !s.enabled() {
		return
	}
	if s.format == TraceFormatJSON {
		s.json("send-request", msg)
		return
	}
	s.tracer.Log(fmt.Sprintf("Sending request '%s - (%s)'.", msg.Method, msg.ID),
		s.dataFor(msg.Params, "params"))
}

func (s traceState) sendingNotification(msg *Message) {
	if !s.enabled() {
		return
	}
	if s.format == TraceFormatJSON {
		s.json("send-notification", msg)
		return
	}
	s.tracer.Log(fmt.Sprintf("Sending notification '%s'.", msg.Method),
		s.dataFor(msg.Params, "params"))
}

func (s traceState) sendingResponse(msg *Message, method string, started time.Time) {
	if !s.enabled() {
		return
	}
	if s.format == TraceFormatJSON {
		s.json("send-response", msg)
		return
	}
	var data string
	if msg.Error != nil {
		data = fmt.Sprintf("Request failed: %s (%d).", msg.Error.Message, msg.Error.Code)
	} else if s.level == TraceVerbose || s.level == TraceCompact {
		data = s.dataFor(msg.Result, "result")
	}
	s.tracer.Log(fmt.Sprintf("Sending response '%s - (%s)'. Processing request took %dms",
		method, msg.ID, time.Since(started).Milliseconds()), data)
}

func (s traceState) receivedRequest(msg *Message) {
	if !s.enabled() {
		return
	}
	if s.format == TraceFormatJSON {
		s.json("receive-request", msg)
		return
	}
	s.tracer.Log(fmt.Sprintf("Received request '%s - (%s)'.", msg.Method, msg.ID),
		s.dataFor(msg.Params, "params"))
}

func (s traceState) receivedNotification(msg *Message) {
	if !s.enabled() || msg.Method == LogTraceMethod {
		return
	}
	if s.format == TraceFormatJSON {
		s.json("receive-notification", msg)
		return
	}
	s.tracer.Log(fmt.Sprintf("Received notification '%s'.", msg.Method),
		s.dataFor(msg.Params, "params"))
}

func (s traceState) receivedResponse(msg *Message, method string, started time.Time) {
	if !s.enabled() {
		return
	}
	if s.format == TraceFormatJSON {
		s.json("receive-response", msg)
		return
	}
	var data string
	if msg.Error != nil {
		data = fmt.Sprintf("Response failed: %s (%d).", msg.Error.Message, msg.Error.Code)
	} else {
		data = s.dataFor(msg.Result, "result")
	}
	if method == "" {
		s.tracer.Log(fmt.Sprintf("Received response %s without active response promise.", msg.ID), data)
		return
	}
	s.tracer.Log(fmt.Sprintf("Received response '%s - (%s)' in %dms.",
		method, msg.ID, time.Since(started).Milliseconds()), data)
}

func indentJSON(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
