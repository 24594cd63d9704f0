package jsonrpc

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// ProgressToken identifies a progress stream. It is a string or an integer.
type ProgressToken struct {
	id ID
}

// NewProgressToken mints a random string token.
func NewProgressToken() ProgressToken {
	return ProgressToken{id: StringID(uuid.NewString())}
}

// StringProgressToken wraps s.
func StringProgressToken(s string) ProgressToken {
	return ProgressToken{id: StringID(s)}
}

// IntProgressToken wraps n.
func IntProgressToken(n int64) ProgressToken {
	return ProgressToken{id: NumberID(n)}
}

// String returns the token in handler-table form.
func (t ProgressToken) String() string {
	return t.id.String()
}

// MarshalJSON implements json.Marshaler.
func (t ProgressToken) MarshalJSON() ([]byte, error) {
	return t.id.MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *ProgressToken) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	if r.Type != gjson.String && r.Type != gjson.Number {
		return fmt.Errorf("invalid progress token %s", string(data))
	}
	return t.id.UnmarshalJSON(data)
}

// ProgressType names the payload carried by a progress stream. It is only
// used to document handler registrations.
type ProgressType struct {
	Name string
}

// ProgressParams is the payload of a $/progress notification.
type ProgressParams struct {
	Token ProgressToken   `json:"token"`
	Value json.RawMessage `json:"value"`
}

// ProgressHandler receives values reported for a token.
type ProgressHandler func(value json.RawMessage)

// UnhandledProgress is fired for $/progress with no registered handler.
type UnhandledProgress struct {
	Token ProgressToken
	Value json.RawMessage
}

// WorkDoneProgressBegin starts a work-done progress stream.
type WorkDoneProgressBegin struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Cancellable bool   `json:"cancellable,omitempty"`
	Message     string `json:"message,omitempty"`
	Percentage  *int   `json:"percentage,omitempty"`
}

// WorkDoneProgressEnd ends a work-done progress stream.
type WorkDoneProgressEnd struct {
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

// WorkDoneProgress is the progress type used by LSP work-done reporting.
var WorkDoneProgress = ProgressType{Name: "workDoneProgress"}
