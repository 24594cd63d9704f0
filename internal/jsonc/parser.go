package jsonc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParseErrorCode identifies a syntax problem reported by Visit.
type ParseErrorCode int

const (
	InvalidSymbol ParseErrorCode = iota + 1
	InvalidNumberFormat
	PropertyNameExpected
	ValueExpected
	ColonExpected
	CommaExpected
	CloseBraceExpected
	CloseBracketExpected
	EndOfFileExpected
	InvalidCommentToken
	UnexpectedEndOfComment
	UnexpectedEndOfString
	UnexpectedEndOfNumber
	InvalidUnicode
	InvalidEscapeCharacter
	InvalidCharacter
)

var parseErrorNames = [...]string{
	InvalidSymbol:          "InvalidSymbol",
	InvalidNumberFormat:    "InvalidNumberFormat",
	PropertyNameExpected:   "PropertyNameExpected",
	ValueExpected:          "ValueExpected",
	ColonExpected:          "ColonExpected",
	CommaExpected:          "CommaExpected",
	CloseBraceExpected:     "CloseBraceExpected",
	CloseBracketExpected:   "CloseBracketExpected",
	EndOfFileExpected:      "EndOfFileExpected",
	InvalidCommentToken:    "InvalidCommentToken",
	UnexpectedEndOfComment: "UnexpectedEndOfComment",
	UnexpectedEndOfString:  "UnexpectedEndOfString",
	UnexpectedEndOfNumber:  "UnexpectedEndOfNumber",
	InvalidUnicode:         "InvalidUnicode",
	InvalidEscapeCharacter: "InvalidEscapeCharacter",
	InvalidCharacter:       "InvalidCharacter",
}

// String returns the code name.
func (c ParseErrorCode) String() string {
	if c > 0 && int(c) < len(parseErrorNames) {
		return parseErrorNames[c]
	}
	return "<unknown ParseErrorCode>"
}

// ParseError is a syntax problem at a byte span.
type ParseError struct {
	Code   ParseErrorCode
	Offset int
	Length int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Code, e.Offset)
}

// ParseOptions controls what Visit and Parse accept.
type ParseOptions struct {
	DisallowComments   bool
	AllowTrailingComma bool
	AllowEmptyContent  bool
}

// Span locates a token for visitor callbacks.
type Span struct {
	Offset         int
	Length         int
	StartLine      int
	StartCharacter int
}

// Visitor receives parse events. Nil callbacks are skipped.
type Visitor struct {
	OnObjectBegin    func(span Span)
	OnObjectProperty func(property string, span Span)
	OnObjectEnd      func(span Span)
	OnArrayBegin     func(span Span)
	OnArrayEnd       func(span Span)
	OnLiteralValue   func(value any, span Span)
	OnSeparator      func(sep byte, span Span)
	OnComment        func(span Span)
	OnError          func(code ParseErrorCode, span Span)
}

// Visit parses text and reports every token of interest to v. It returns
// false when the text holds no value.
func Visit(text string, v Visitor, opts ParseOptions) bool {
	p := &visitParser{
		scanner: NewScanner(text, false),
		v:       v,
		opts:    opts,
	}
	return p.run()
}

type visitParser struct {
	scanner *Scanner
	v       Visitor
	opts    ParseOptions
}

func (p *visitParser) span() Span {
	s := p.scanner
	return Span{
		Offset:         s.TokenOffset(),
		Length:         s.TokenLength(),
		StartLine:      s.TokenStartLine(),
		StartCharacter: s.TokenStartCharacter(),
	}
}

func (p *visitParser) token() SyntaxKind { return p.scanner.Token() }

func (p *visitParser) scanNext() SyntaxKind {
	for {
		token := p.scanner.Scan()
		switch p.scanner.TokenError() {
		case ScanErrorInvalidUnicode:
			p.handleError(InvalidUnicode, nil, nil)
		case ScanErrorInvalidEscapeCharacter:
			p.handleError(InvalidEscapeCharacter, nil, nil)
		case ScanErrorUnexpectedEndOfNumber:
			p.handleError(UnexpectedEndOfNumber, nil, nil)
		case ScanErrorUnexpectedEndOfComment:
			if !p.opts.DisallowComments {
				p.handleError(UnexpectedEndOfComment, nil, nil)
			}
		case ScanErrorUnexpectedEndOfString:
			p.handleError(UnexpectedEndOfString, nil, nil)
		case ScanErrorInvalidCharacter:
			p.handleError(InvalidCharacter, nil, nil)
		}
		switch token {
		case LineCommentTrivia, BlockCommentTrivia:
			if p.opts.DisallowComments {
				p.handleError(InvalidCommentToken, nil, nil)
			} else if p.v.OnComment != nil {
				p.v.OnComment(p.span())
			}
		case Unknown:
			p.handleError(InvalidSymbol, nil, nil)
		case Trivia, LineBreakTrivia:
		default:
			return token
		}
	}
}

func (p *visitParser) handleError(code ParseErrorCode, skipUntilAfter, skipUntil []SyntaxKind) {
	if p.v.OnError != nil {
		p.v.OnError(code, p.span())
	}
	if len(skipUntilAfter)+len(skipUntil) == 0 {
		return
	}
	token := p.token()
	for token != EOF {
		if containsKind(skipUntilAfter, token) {
			p.scanNext()
			break
		}
		if containsKind(skipUntil, token) {
			break
		}
		token = p.scanNext()
	}
}

func containsKind(kinds []SyntaxKind, k SyntaxKind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

func (p *visitParser) parseString(isValue bool) bool {
	value := p.scanner.TokenValue()
	if isValue {
		if p.v.OnLiteralValue != nil {
			p.v.OnLiteralValue(value, p.span())
		}
	} else if p.v.OnObjectProperty != nil {
		p.v.OnObjectProperty(value, p.span())
	}
	p.scanNext()
	return true
}

func (p *visitParser) parseLiteral() bool {
	var value any
	switch p.token() {
	case NumericLiteral:
		n, err := strconv.ParseFloat(p.scanner.TokenValue(), 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			p.handleError(InvalidNumberFormat, nil, nil)
			n = 0
		}
		value = n
	case NullKeyword:
		value = nil
	case TrueKeyword:
		value = true
	case FalseKeyword:
		value = false
	default:
		return false
	}
	if p.v.OnLiteralValue != nil {
		p.v.OnLiteralValue(value, p.span())
	}
	p.scanNext()
	return true
}

var (
	propertyResync = []SyntaxKind{CloseBraceToken, CommaToken}
	itemResync     = []SyntaxKind{CloseBracketToken, CommaToken}
)

func (p *visitParser) parseProperty() bool {
	if p.token() != StringLiteral {
		p.handleError(PropertyNameExpected, nil, propertyResync)
		return false
	}
	p.parseString(false)
	if p.token() == ColonToken {
		if p.v.OnSeparator != nil {
			p.v.OnSeparator(':', p.span())
		}
		p.scanNext()
		if !p.parseValue() {
			p.handleError(ValueExpected, nil, propertyResync)
		}
	} else {
		p.handleError(ColonExpected, nil, propertyResync)
	}
	return true
}

func (p *visitParser) parseObject() bool {
	if p.v.OnObjectBegin != nil {
		p.v.OnObjectBegin(p.span())
	}
	p.scanNext()
	needsComma := false
	for p.token() != CloseBraceToken && p.token() != EOF {
		if p.token() == CommaToken {
			if !needsComma {
				p.handleError(ValueExpected, nil, nil)
			}
			if p.v.OnSeparator != nil {
				p.v.OnSeparator(',', p.span())
			}
			p.scanNext()
			if p.token() == CloseBraceToken && p.opts.AllowTrailingComma {
				break
			}
		} else if needsComma {
			p.handleError(CommaExpected, nil, nil)
		}
		if !p.parseProperty() {
			p.handleError(ValueExpected, nil, propertyResync)
		}
		needsComma = true
	}
	if p.v.OnObjectEnd != nil {
		p.v.OnObjectEnd(p.span())
	}
	if p.token() != CloseBraceToken {
		p.handleError(CloseBraceExpected, []SyntaxKind{CloseBraceToken}, nil)
	} else {
		p.scanNext()
	}
	return true
}

func (p *visitParser) parseArray() bool {
	if p.v.OnArrayBegin != nil {
		p.v.OnArrayBegin(p.span())
	}
	p.scanNext()
	needsComma := false
	for p.token() != CloseBracketToken && p.token() != EOF {
		if p.token() == CommaToken {
			if !needsComma {
				p.handleError(ValueExpected, nil, nil)
			}
			if p.v.OnSeparator != nil {
				p.v.OnSeparator(',', p.span())
			}
			p.scanNext()
			if p.token() == CloseBracketToken && p.opts.AllowTrailingComma {
				break
			}
		} else if needsComma {
			p.handleError(CommaExpected, nil, nil)
		}
		if !p.parseValue() {
			p.handleError(ValueExpected, nil, itemResync)
		}
		needsComma = true
	}
	if p.v.OnArrayEnd != nil {
		p.v.OnArrayEnd(p.span())
	}
	if p.token() != CloseBracketToken {
		p.handleError(CloseBracketExpected, []SyntaxKind{CloseBracketToken}, nil)
	} else {
		p.scanNext()
	}
	return true
}

func (p *visitParser) parseValue() bool {
	switch p.token() {
	case OpenBracketToken:
		return p.parseArray()
	case OpenBraceToken:
		return p.parseObject()
	case StringLiteral:
		return p.parseString(true)
	default:
		return p.parseLiteral()
	}
}

func (p *visitParser) run() bool {
	p.scanNext()
	if p.token() == EOF {
		if p.opts.AllowEmptyContent {
			return true
		}
		p.handleError(ValueExpected, nil, nil)
		return false
	}
	if !p.parseValue() {
		p.handleError(ValueExpected, nil, nil)
		return false
	}
	if p.token() != EOF {
		p.handleError(EndOfFileExpected, nil, nil)
	}
	return true
}

// Parse builds plain Go values (map[string]any, []any, float64, string,
// bool, nil) from text. Problems are appended to errs when it is non-nil;
// the returned value is a best effort.
func Parse(text string, errs *[]ParseError, opts ParseOptions) any {
	type frame struct {
		obj     map[string]any
		arr     []any
		isArray bool
		key     string
		hasKey  bool
	}

	root := &frame{isArray: true}
	stack := []*frame{root}
	top := func() *frame { return stack[len(stack)-1] }

	addValue := func(value any) {
		f := top()
		if f.isArray {
			f.arr = append(f.arr, value)
		} else if f.hasKey {
			f.obj[f.key] = value
		}
	}
	push := func(f *frame) { stack = append(stack, f) }
	pop := func() {
		f := top()
		stack = stack[:len(stack)-1]
		if f.isArray {
			if f.arr == nil {
				f.arr = []any{}
			}
			addValue(f.arr)
		} else {
			addValue(f.obj)
		}
	}

	Visit(text, Visitor{
		OnObjectBegin: func(Span) {
			push(&frame{obj: map[string]any{}})
		},
		OnObjectProperty: func(name string, _ Span) {
			f := top()
			f.key = name
			f.hasKey = true
		},
		OnObjectEnd: func(Span) { pop() },
		OnArrayBegin: func(Span) {
			push(&frame{isArray: true})
		},
		OnArrayEnd:     func(Span) { pop() },
		OnLiteralValue: func(value any, _ Span) { addValue(value) },
		OnError: func(code ParseErrorCode, s Span) {
			if errs != nil {
				*errs = append(*errs, ParseError{Code: code, Offset: s.Offset, Length: s.Length})
			}
		},
	}, opts)

	if len(root.arr) == 0 {
		return nil
	}
	return root.arr[0]
}

// StripComments removes comments from text. When replace is non-zero every
// code point of a comment other than line breaks is replaced with it, which
// keeps line numbers stable.
func StripComments(text string, replace rune) string {
	s := NewScanner(text, false)
	var b strings.Builder
	offset := 0
	for {
		pos := s.Position()
		kind := s.Scan()
		switch kind {
		case LineCommentTrivia, BlockCommentTrivia, EOF:
			if offset != pos {
				b.WriteString(text[offset:pos])
			}
			if replace != 0 {
				for _, r := range s.TokenValue() {
					if r == '\r' || r == '\n' {
						b.WriteRune(r)
					} else {
						b.WriteRune(replace)
					}
				}
			}
			offset = s.Position()
		}
		if kind == EOF {
			return b.String()
		}
	}
}
