package jsonlang

import (
	"fmt"

	"github.com/dshills/jsonls/internal/protocol"
)

// ErrorCode classifies a problem. Values are stable and sent to clients as
// the diagnostic code.
type ErrorCode int

const (
	Undefined         ErrorCode = 0
	EnumValueMismatch ErrorCode = 1
	Deprecated        ErrorCode = 2

	UnexpectedEndOfComment ErrorCode = 0x101
	UnexpectedEndOfString  ErrorCode = 0x102
	UnexpectedEndOfNumber  ErrorCode = 0x103
	InvalidUnicode         ErrorCode = 0x104
	InvalidEscapeCharacter ErrorCode = 0x105
	InvalidCharacter       ErrorCode = 0x106
	InvalidNumberFormat    ErrorCode = 0x107

	PropertyExpected               ErrorCode = 0x201
	CommaExpected                  ErrorCode = 0x202
	ColonExpected                  ErrorCode = 0x203
	ValueExpected                  ErrorCode = 0x204
	CommaOrCloseBacketExpected     ErrorCode = 0x205
	CommaOrCloseBraceExpected      ErrorCode = 0x206
	TrailingComma                  ErrorCode = 0x207
	DuplicateKey                   ErrorCode = 0x208
	CommentNotPermitted            ErrorCode = 0x209
	PropertyKeysMustBeDoublequoted ErrorCode = 0x210

	SchemaResolveError         ErrorCode = 0x300
	SchemaUnsupportedFeature   ErrorCode = 0x301
	MissingRequiredPropWarning ErrorCode = 0x302
	TypeMismatchWarning        ErrorCode = 0x303
)

var errorCodeNames = map[ErrorCode]string{
	Undefined:                      "Undefined",
	EnumValueMismatch:              "EnumValueMismatch",
	Deprecated:                     "Deprecated",
	UnexpectedEndOfComment:         "UnexpectedEndOfComment",
	UnexpectedEndOfString:          "UnexpectedEndOfString",
	UnexpectedEndOfNumber:          "UnexpectedEndOfNumber",
	InvalidUnicode:                 "InvalidUnicode",
	InvalidEscapeCharacter:         "InvalidEscapeCharacter",
	InvalidCharacter:               "InvalidCharacter",
	InvalidNumberFormat:            "InvalidNumberFormat",
	PropertyExpected:               "PropertyExpected",
	CommaExpected:                  "CommaExpected",
	ColonExpected:                  "ColonExpected",
	ValueExpected:                  "ValueExpected",
	CommaOrCloseBacketExpected:     "CommaOrCloseBacketExpected",
	CommaOrCloseBraceExpected:      "CommaOrCloseBraceExpected",
	TrailingComma:                  "TrailingComma",
	DuplicateKey:                   "DuplicateKey",
	CommentNotPermitted:            "CommentNotPermitted",
	PropertyKeysMustBeDoublequoted: "PropertyKeysMustBeDoublequoted",
	SchemaResolveError:             "SchemaResolveError",
	SchemaUnsupportedFeature:       "SchemaUnsupportedFeature",
	MissingRequiredPropWarning:     "MissingRequiredPropWarning",
	TypeMismatchWarning:            "TypeMismatchWarning",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%#x)", int(c))
}

// Diagnostic is a problem located by byte offset. A zero Severity means
// the caller's default applies.
type Diagnostic struct {
	Offset   int
	Length   int
	Severity protocol.DiagnosticSeverity
	Code     ErrorCode
	Message  string
}

// End returns the offset just past the problem.
func (d Diagnostic) End() int { return d.Offset + d.Length }
