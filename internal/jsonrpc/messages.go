package jsonrpc

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/tidwall/gjson"
)

// Version is the JSON-RPC protocol version carried by every message.
const Version = "2.0"

// Reserved method names handled by the connection itself.
const (
	CancelRequestMethod = "$/cancelRequest"
	ProgressMethod      = "$/progress"
	SetTraceMethod      = "$/setTrace"
	LogTraceMethod      = "$/logTrace"
)

type idKind uint8

const (
	idNull idKind = iota
	idNumber
	idString
)

// ID is a JSON-RPC message id. It is either a number, a string or null.
// The zero value is the null id.
type ID struct {
	kind  idKind
	value string
}

// NumberID returns a numeric id.
func NumberID(n int64) ID {
	return ID{kind: idNumber, value: strconv.FormatInt(n, 10)}
}

// StringID returns a string id.
func StringID(s string) ID {
	return ID{kind: idString, value: s}
}

// NullID returns the null id used by responses that cannot be correlated.
func NullID() ID {
	return ID{kind: idNull}
}

// IsNull reports whether the id is null.
func (id ID) IsNull() bool { return id.kind == idNull }

// IsNumber reports whether the id is numeric.
func (id ID) IsNumber() bool { return id.kind == idNumber }

// IsString reports whether the id is a string.
func (id ID) IsString() bool { return id.kind == idString }

// String returns the id in the form used as a table key.
func (id ID) String() string {
	if id.kind == idNull {
		return "null"
	}
	return id.value
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	switch id.kind {
	case idNumber:
		return []byte(id.value), nil
	case idString:
		return json.Marshal(id.value)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	parsed, ok := idFromResult(gjson.ParseBytes(data))
	if !ok {
		return fmt.Errorf("invalid id %s", string(data))
	}
	*id = parsed
	return nil
}

func idFromResult(r gjson.Result) (ID, bool) {
	switch r.Type {
	case gjson.Null:
		return NullID(), true
	case gjson.Number:
		return ID{kind: idNumber, value: r.Raw}, true
	case gjson.String:
		return StringID(r.Str), true
	default:
		return ID{}, false
	}
}

// ErrorCode is a JSON-RPC error code.
type ErrorCode int

// Standard JSON-RPC and LSP error codes.
const (
	// JSON-RPC standard errors
	CodeParseError     ErrorCode = -32700
	CodeInvalidRequest ErrorCode = -32600
	CodeMethodNotFound ErrorCode = -32601
	CodeInvalidParams  ErrorCode = -32602
	CodeInternalError  ErrorCode = -32603

	// Reserved range used by the transport itself.
	CodeServerNotInitialized    ErrorCode = -32002
	CodeUnknownErrorCode        ErrorCode = -32001
	CodeMessageWriteError       ErrorCode = 1
	CodeMessageReadError        ErrorCode = 2
	CodePendingResponseRejected ErrorCode = 3
	CodeConnectionInactive      ErrorCode = 4

	// LSP-specific errors
	CodeRequestCancelled ErrorCode = -32800
	CodeContentModified  ErrorCode = -32801
	CodeServerCancelled  ErrorCode = -32802
	CodeRequestFailed    ErrorCode = -32803
)

// ResponseError is the error object of a JSON-RPC response. It is returned
// by SendRequest when the remote side answers with an error, and handlers
// may return it to control the error sent back.
type ResponseError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// NewResponseError creates a response error.
func NewResponseError(code ErrorCode, message string, data any) *ResponseError {
	return &ResponseError{Code: code, Message: message, Data: data}
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("rpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Message is a decoded JSON-RPC message: a request, a notification or a
// response. Presence of optional members is tracked explicitly so that an
// absent id can be told apart from a null one.
type Message struct {
	JSONRPC string
	ID      *ID
	Method  string
	Params  json.RawMessage
	Result  json.RawMessage
	Error   *ResponseError

	// invalidID is set when the id member is neither a string, a number
	// nor null.
	invalidID bool
}

// IsRequest reports whether the message is a request: a method and a
// string or number id.
func (m *Message) IsRequest() bool {
	return m != nil && m.Method != "" && m.ID != nil && !m.ID.IsNull()
}

// IsNotification reports whether the message is a notification.
func (m *Message) IsNotification() bool {
	return m != nil && m.Method != "" && m.ID == nil && !m.invalidID
}

// IsResponse reports whether the message is a response: an id and either
// a result or an error.
func (m *Message) IsResponse() bool {
	return m != nil && m.ID != nil && (m.Result != nil || m.Error != nil)
}

type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m *Message) MarshalJSON() ([]byte, error) {
	jsonrpc := m.JSONRPC
	if jsonrpc == "" {
		jsonrpc = Version
	}
	return json.Marshal(wireMessage{
		JSONRPC: jsonrpc,
		ID:      m.ID,
		Method:  m.Method,
		Params:  m.Params,
		Result:  m.Result,
		Error:   m.Error,
	})
}

// UnmarshalJSON implements json.Unmarshaler. A member that is present with
// a JSON null is kept (a null result is still a result).
func (m *Message) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid JSON message")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return fmt.Errorf("message must be a JSON object")
	}

	var msg Message
	msg.JSONRPC = root.Get("jsonrpc").String()

	if id := root.Get("id"); id.Exists() {
		parsed, ok := idFromResult(id)
		if ok {
			msg.ID = &parsed
		} else {
			msg.invalidID = true
		}
	}
	if method := root.Get("method"); method.Type == gjson.String {
		msg.Method = method.Str
	}
	if params := root.Get("params"); params.Exists() {
		msg.Params = json.RawMessage(params.Raw)
	}
	if result := root.Get("result"); result.Exists() {
		msg.Result = json.RawMessage(result.Raw)
	}
	if e := root.Get("error"); e.Exists() && e.Type != gjson.Null && e.Type != gjson.False {
		var rerr ResponseError
		if e.IsObject() {
			rerr.Code = ErrorCode(e.Get("code").Int())
			rerr.Message = e.Get("message").String()
			if d := e.Get("data"); d.Exists() {
				rerr.Data = d.Value()
			}
		} else {
			rerr.Code = CodeUnknownErrorCode
			rerr.Message = e.String()
		}
		msg.Error = &rerr
	}

	*m = msg
	return nil
}

// ParameterStructures controls how the arguments of a request or
// notification are encoded.
type ParameterStructures int

const (
	// ParamsAuto encodes a lone object argument by name and everything
	// else by position.
	ParamsAuto ParameterStructures = iota
	// ParamsByPosition always encodes arguments as an array.
	ParamsByPosition
	// ParamsByName requires a single object argument.
	ParamsByName
)

func (p ParameterStructures) String() string {
	switch p {
	case ParamsByPosition:
		return "byPosition"
	case ParamsByName:
		return "byName"
	default:
		return "auto"
	}
}

// AnyParams disables arity checking for a signature.
const AnyParams = -1

// MessageSignature describes a request or notification: its method, the
// number of parameters it declares and how they are structured.
type MessageSignature struct {
	Method              string
	NumberOfParams      int
	ParameterStructures ParameterStructures
}

// NewSignature creates a signature with the given arity and automatic
// parameter structure.
func NewSignature(method string, numberOfParams int) MessageSignature {
	return MessageSignature{Method: method, NumberOfParams: numberOfParams}
}

// Method returns a signature that accepts any parameters.
func Method(method string) MessageSignature {
	return MessageSignature{Method: method, NumberOfParams: AnyParams}
}

// WithStructures returns a copy of the signature using the given
// parameter structure.
func (s MessageSignature) WithStructures(ps ParameterStructures) MessageSignature {
	s.ParameterStructures = ps
	return s
}

// computeMessageParams encodes call arguments according to the signature.
func computeMessageParams(sig MessageSignature, args []any) (json.RawMessage, error) {
	var params any
	switch {
	case sig.NumberOfParams == 0 || len(args) == 0:
		return nil, nil
	case len(args) == 1:
		arg := args[0]
		switch sig.ParameterStructures {
		case ParamsByName:
			if !isNamedParam(arg) {
				return nil, fmt.Errorf("received parameters by name but param is not an object literal")
			}
			params = arg
		case ParamsByPosition:
			params = []any{arg}
		default:
			if isNamedParam(arg) {
				params = arg
			} else {
				params = []any{arg}
			}
		}
	default:
		if sig.ParameterStructures == ParamsByName {
			return nil, fmt.Errorf("received %d parameters for 'by name' notification parameter structure", len(args))
		}
		params = args
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	return data, nil
}

// isNamedParam reports whether v encodes as a JSON object.
func isNamedParam(v any) bool {
	if v == nil {
		return false
	}
	switch p := v.(type) {
	case json.RawMessage:
		return gjson.ParseBytes(p).IsObject()
	case map[string]any:
		return true
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct || (t.Kind() == reflect.Map && t.Key().Kind() == reflect.String)
}

// UnmarshalParams decodes params into targets. Positional params are
// assigned in order; named params are decoded into the first target.
func UnmarshalParams(params json.RawMessage, targets ...any) error {
	if len(targets) == 0 || len(params) == 0 {
		return nil
	}
	p := gjson.ParseBytes(params)
	if !p.IsArray() {
		if err := json.Unmarshal(params, targets[0]); err != nil {
			return NewResponseError(CodeInvalidParams, err.Error(), nil)
		}
		return nil
	}
	items := p.Array()
	for i, target := range targets {
		if i >= len(items) {
			break
		}
		if err := json.Unmarshal([]byte(items[i].Raw), target); err != nil {
			return NewResponseError(CodeInvalidParams, fmt.Sprintf("param %d: %v", i, err), nil)
		}
	}
	return nil
}
