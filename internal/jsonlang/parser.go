package jsonlang

import (
	"errors"
	"strconv"
	"strings"

	"github.com/dshills/jsonls/internal/jsonc"
	"github.com/dshills/jsonls/internal/protocol"
)

// ParseOptions controls Parse.
type ParseOptions struct {
	// AllowTrailingComma suppresses the TrailingComma problem.
	AllowTrailingComma bool

	// CollectComments records comment ranges in Document.Comments.
	CollectComments bool
}

// Parse builds a position-annotated AST from text. It never fails: syntax
// problems are recorded on the document and the tree covers as much of the
// input as could be recovered.
func Parse(text string, opts ParseOptions) *Document {
	p := &domParser{
		text:              text,
		opts:              opts,
		scanner:           jsonc.NewScanner(text, false),
		lastProblemOffset: -1,
	}
	if opts.CollectComments {
		p.comments = []jsonc.Range{}
	}

	var root Node
	if p.scanNext() != jsonc.EOF {
		root = p.parseValue(nil)
		if root == nil {
			p.error("Expected a JSON object, array or literal.", Undefined, nil, nil, nil)
		} else if p.scanner.Token() != jsonc.EOF {
			p.error("End of file expected.", Undefined, nil, nil, nil)
		}
	}

	return &Document{
		Root:         root,
		SyntaxErrors: p.problems,
		Comments:     p.comments,
	}
}

type domParser struct {
	text    string
	opts    ParseOptions
	scanner *jsonc.Scanner

	problems          []Diagnostic
	comments          []jsonc.Range
	lastProblemOffset int
}

// scanNext advances to the next significant token, reporting scan errors
// and collecting comments on the way.
func (p *domParser) scanNext() jsonc.SyntaxKind {
	for {
		token := p.scanner.Scan()
		p.checkScanError()
		switch token {
		case jsonc.LineCommentTrivia, jsonc.BlockCommentTrivia:
			if p.comments != nil {
				p.comments = append(p.comments, jsonc.Range{
					Offset: p.scanner.TokenOffset(),
					Length: p.scanner.TokenLength(),
				})
			}
		case jsonc.Trivia, jsonc.LineBreakTrivia:
		default:
			return token
		}
	}
}

func (p *domParser) errorAtRange(message string, code ErrorCode, start, end int, severity protocol.DiagnosticSeverity) {
	if len(p.problems) == 0 || start != p.lastProblemOffset {
		p.problems = append(p.problems, Diagnostic{
			Offset:   start,
			Length:   end - start,
			Severity: severity,
			Code:     code,
			Message:  message,
		})
		p.lastProblemOffset = start
	}
}

// error reports a problem at the current token. When node is non-nil it is
// finalized at the current token. The scanner then skips forward until a
// token in skipUntilAfter (consumed) or skipUntil (left in place).
func (p *domParser) error(message string, code ErrorCode, node Node, skipUntilAfter, skipUntil []jsonc.SyntaxKind) {
	start := p.scanner.TokenOffset()
	end := start + p.scanner.TokenLength()
	if start == end && start > 0 {
		start--
		for start > 0 && isSpace(p.text[start]) {
			start--
		}
		end = start + 1
	}
	p.errorAtRange(message, code, start, end, protocol.DiagnosticSeverityError)

	if node != nil {
		p.finalize(node, false)
	}
	if len(skipUntilAfter)+len(skipUntil) > 0 {
		token := p.scanner.Token()
		for token != jsonc.EOF {
			if containsKind(skipUntilAfter, token) {
				p.scanNext()
				break
			} else if containsKind(skipUntil, token) {
				break
			}
			token = p.scanNext()
		}
	}
}

func (p *domParser) checkScanError() {
	switch p.scanner.TokenError() {
	case jsonc.ScanErrorInvalidUnicode:
		p.error("Invalid unicode sequence in string.", InvalidUnicode, nil, nil, nil)
	case jsonc.ScanErrorInvalidEscapeCharacter:
		p.error("Invalid escape character in string.", InvalidEscapeCharacter, nil, nil, nil)
	case jsonc.ScanErrorUnexpectedEndOfNumber:
		p.error("Unexpected end of number.", UnexpectedEndOfNumber, nil, nil, nil)
	case jsonc.ScanErrorUnexpectedEndOfComment:
		p.error("Unexpected end of comment.", UnexpectedEndOfComment, nil, nil, nil)
	case jsonc.ScanErrorUnexpectedEndOfString:
		p.error("Unexpected end of string.", UnexpectedEndOfString, nil, nil, nil)
	case jsonc.ScanErrorInvalidCharacter:
		p.error("Invalid characters in string. Control characters must be escaped.", InvalidCharacter, nil, nil, nil)
	}
}

// finalize sets the node length to end at the current token.
func (p *domParser) finalize(node Node, scanNext bool) {
	node.setLength(p.scanner.TokenOffset() + p.scanner.TokenLength() - node.Offset())
	if scanNext {
		p.scanNext()
	}
}

func (p *domParser) parseArray(parent Node) Node {
	if p.scanner.Token() != jsonc.OpenBracketToken {
		return nil
	}
	node := &ArrayNode{baseNode: baseNode{offset: p.scanner.TokenOffset(), parent: parent}}
	p.scanNext()

	needsComma := false
	for p.scanner.Token() != jsonc.CloseBracketToken && p.scanner.Token() != jsonc.EOF {
		if p.scanner.Token() == jsonc.CommaToken {
			if !needsComma {
				p.error("Value expected", ValueExpected, nil, nil, nil)
			}
			commaOffset := p.scanner.TokenOffset()
			p.scanNext()
			if p.scanner.Token() == jsonc.CloseBracketToken {
				if needsComma {
					p.trailingComma(commaOffset)
				}
				continue
			}
		} else if needsComma {
			p.error("Expected comma", CommaExpected, nil, nil, nil)
		}
		item := p.parseValue(node)
		if item == nil {
			p.error("Value expected", ValueExpected, nil, nil,
				[]jsonc.SyntaxKind{jsonc.CloseBracketToken, jsonc.CommaToken})
		} else {
			node.Items = append(node.Items, item)
		}
		needsComma = true
	}

	if p.scanner.Token() != jsonc.CloseBracketToken {
		p.error("Expected comma or closing bracket", CommaOrCloseBacketExpected, node, nil, nil)
		return node
	}
	p.finalize(node, true)
	return node
}

func (p *domParser) trailingComma(commaOffset int) {
	if p.opts.AllowTrailingComma {
		return
	}
	p.errorAtRange("Trailing comma", TrailingComma, commaOffset, commaOffset+1, protocol.DiagnosticSeverityError)
}

// keySeen tracks duplicate keys: the first property with a key, or nil
// once the duplicate has been reported.
type keySeen map[string]*PropertyNode

func (p *domParser) parseProperty(parent *ObjectNode, seen keySeen) *PropertyNode {
	node := &PropertyNode{
		baseNode:    baseNode{offset: p.scanner.TokenOffset(), parent: parent},
		ColonOffset: -1,
	}
	key := p.parseString(node)
	if key == nil {
		if p.scanner.Token() != jsonc.Unknown {
			return nil
		}
		p.error("Property keys must be doublequoted", PropertyKeysMustBeDoublequoted, nil, nil, nil)
		key = &StringNode{
			baseNode: baseNode{offset: p.scanner.TokenOffset(), length: p.scanner.TokenLength(), parent: node},
			Content:  p.scanner.TokenValue(),
		}
		p.scanNext()
	}
	node.KeyNode = key

	// "//" is a conventional comment key in JSON files that forbid
	// comments and may repeat.
	if key.Content != "//" {
		if first, dup := seen[key.Content]; dup {
			p.errorAtRange("Duplicate object key", DuplicateKey, key.offset, End(key), protocol.DiagnosticSeverityWarning)
			if first != nil {
				p.errorAtRange("Duplicate object key", DuplicateKey, first.KeyNode.offset, End(first.KeyNode), protocol.DiagnosticSeverityWarning)
			}
			seen[key.Content] = nil
		} else {
			seen[key.Content] = node
		}
	}

	if p.scanner.Token() == jsonc.ColonToken {
		node.ColonOffset = p.scanner.TokenOffset()
		p.scanNext()
	} else {
		p.error("Colon expected", ColonExpected, nil, nil, nil)
		// A string on a later line starts the next property.
		if p.scanner.Token() == jsonc.StringLiteral &&
			strings.ContainsAny(p.text[End(key):p.scanner.TokenOffset()], "\r\n") {
			node.length = key.length
			return node
		}
	}

	value := p.parseValue(node)
	if value == nil {
		p.error("Value expected", ValueExpected, node, nil,
			[]jsonc.SyntaxKind{jsonc.CloseBraceToken, jsonc.CommaToken})
		return node
	}
	node.ValueNode = value
	node.length = End(value) - node.offset
	return node
}

func (p *domParser) parseObject(parent Node) Node {
	if p.scanner.Token() != jsonc.OpenBraceToken {
		return nil
	}
	node := &ObjectNode{baseNode: baseNode{offset: p.scanner.TokenOffset(), parent: parent}}
	seen := keySeen{}
	p.scanNext()

	needsComma := false
	for p.scanner.Token() != jsonc.CloseBraceToken && p.scanner.Token() != jsonc.EOF {
		if p.scanner.Token() == jsonc.CommaToken {
			if !needsComma {
				p.error("Property expected", PropertyExpected, nil, nil, nil)
			}
			commaOffset := p.scanner.TokenOffset()
			p.scanNext()
			if p.scanner.Token() == jsonc.CloseBraceToken {
				if needsComma {
					p.trailingComma(commaOffset)
				}
				continue
			}
		} else if needsComma {
			p.error("Expected comma", CommaExpected, nil, nil, nil)
		}
		property := p.parseProperty(node, seen)
		if property == nil {
			p.error("Property expected", PropertyExpected, nil, nil,
				[]jsonc.SyntaxKind{jsonc.CloseBraceToken, jsonc.CommaToken})
		} else {
			node.Properties = append(node.Properties, property)
		}
		needsComma = true
	}

	if p.scanner.Token() != jsonc.CloseBraceToken {
		p.error("Expected comma or closing brace", CommaOrCloseBraceExpected, node, nil, nil)
		return node
	}
	p.finalize(node, true)
	return node
}

func (p *domParser) parseString(parent Node) *StringNode {
	if p.scanner.Token() != jsonc.StringLiteral {
		return nil
	}
	node := &StringNode{
		baseNode: baseNode{offset: p.scanner.TokenOffset(), parent: parent},
		Content:  p.scanner.TokenValue(),
	}
	p.finalize(node, true)
	return node
}

func (p *domParser) parseNumber(parent Node) Node {
	if p.scanner.Token() != jsonc.NumericLiteral {
		return nil
	}
	node := &NumberNode{
		baseNode:  baseNode{offset: p.scanner.TokenOffset(), parent: parent},
		IsInteger: true,
	}
	if p.scanner.TokenError() == jsonc.ScanErrorNone {
		literal := p.scanner.TokenValue()
		// Out-of-range literals are valid JSON; they become ±Inf or 0.
		v, err := strconv.ParseFloat(literal, 64)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			p.error("Invalid number format.", InvalidNumberFormat, nil, nil, nil)
		} else {
			node.Number = v
		}
		node.IsInteger = !strings.Contains(literal, ".")
	}
	p.finalize(node, true)
	return node
}

func (p *domParser) parseLiteral(parent Node) Node {
	var node Node
	base := baseNode{offset: p.scanner.TokenOffset(), parent: parent}
	switch p.scanner.Token() {
	case jsonc.NullKeyword:
		node = &NullNode{baseNode: base}
	case jsonc.TrueKeyword:
		node = &BooleanNode{baseNode: base, Bool: true}
	case jsonc.FalseKeyword:
		node = &BooleanNode{baseNode: base, Bool: false}
	default:
		return nil
	}
	p.finalize(node, true)
	return node
}

func (p *domParser) parseValue(parent Node) Node {
	if n := p.parseArray(parent); n != nil {
		return n
	}
	if n := p.parseObject(parent); n != nil {
		return n
	}
	if n := p.parseString(parent); n != nil {
		return n
	}
	if n := p.parseNumber(parent); n != nil {
		return n
	}
	return p.parseLiteral(parent)
}

func containsKind(kinds []jsonc.SyntaxKind, k jsonc.SyntaxKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
