package jsonc

import (
	"strings"
	"unicode/utf8"
)

// SyntaxKind identifies a token.
type SyntaxKind int

const (
	OpenBraceToken SyntaxKind = iota + 1
	CloseBraceToken
	OpenBracketToken
	CloseBracketToken
	CommaToken
	ColonToken
	NullKeyword
	TrueKeyword
	FalseKeyword
	StringLiteral
	NumericLiteral
	LineCommentTrivia
	BlockCommentTrivia
	LineBreakTrivia
	Trivia
	Unknown
	EOF
)

var syntaxKindNames = [...]string{
	OpenBraceToken:     "OpenBraceToken",
	CloseBraceToken:    "CloseBraceToken",
	OpenBracketToken:   "OpenBracketToken",
	CloseBracketToken:  "CloseBracketToken",
	CommaToken:         "CommaToken",
	ColonToken:         "ColonToken",
	NullKeyword:        "NullKeyword",
	TrueKeyword:        "TrueKeyword",
	FalseKeyword:       "FalseKeyword",
	StringLiteral:      "StringLiteral",
	NumericLiteral:     "NumericLiteral",
	LineCommentTrivia:  "LineCommentTrivia",
	BlockCommentTrivia: "BlockCommentTrivia",
	LineBreakTrivia:    "LineBreakTrivia",
	Trivia:             "Trivia",
	Unknown:            "Unknown",
	EOF:                "EOF",
}

// String returns the kind name.
func (k SyntaxKind) String() string {
	if k > 0 && int(k) < len(syntaxKindNames) {
		return syntaxKindNames[k]
	}
	return "SyntaxKind(?)"
}

// ScanError describes a problem with the current token.
type ScanError int

const (
	ScanErrorNone ScanError = iota
	ScanErrorUnexpectedEndOfComment
	ScanErrorUnexpectedEndOfString
	ScanErrorUnexpectedEndOfNumber
	ScanErrorInvalidUnicode
	ScanErrorInvalidEscapeCharacter
	ScanErrorInvalidCharacter
)

// Scanner tokenizes JSON with comments. All offsets are byte offsets into
// the text; TokenStartCharacter is a byte column.
type Scanner struct {
	text         string
	ignoreTrivia bool

	pos         int
	value       string
	tokenOffset int
	token       SyntaxKind
	scanError   ScanError

	lineNumber        int
	lineStartOffset   int
	tokenStartLine    int
	tokenLineStartOff int
}

// NewScanner creates a scanner over text. With ignoreTrivia set, Scan skips
// whitespace, line breaks and comments.
func NewScanner(text string, ignoreTrivia bool) *Scanner {
	return &Scanner{text: text, ignoreTrivia: ignoreTrivia, token: Unknown}
}

// SetPosition moves the scanner to a byte offset.
func (s *Scanner) SetPosition(pos int) {
	s.pos = pos
	s.value = ""
	s.tokenOffset = 0
	s.token = Unknown
	s.scanError = ScanErrorNone
}

// Position returns the offset after the current token.
func (s *Scanner) Position() int { return s.pos }

// Token returns the current token.
func (s *Scanner) Token() SyntaxKind { return s.token }

// TokenValue returns the token text. String literals are unquoted and
// unescaped.
func (s *Scanner) TokenValue() string { return s.value }

// TokenOffset returns the start offset of the current token.
func (s *Scanner) TokenOffset() int { return s.tokenOffset }

// TokenLength returns the byte length of the current token.
func (s *Scanner) TokenLength() int { return s.pos - s.tokenOffset }

// TokenStartLine returns the zero-based line of the current token.
func (s *Scanner) TokenStartLine() int { return s.tokenStartLine }

// TokenStartCharacter returns the byte column of the current token.
func (s *Scanner) TokenStartCharacter() int { return s.tokenOffset - s.tokenLineStartOff }

// TokenError returns the error of the current token.
func (s *Scanner) TokenError() ScanError { return s.scanError }

// Scan reads the next token.
func (s *Scanner) Scan() SyntaxKind {
	if !s.ignoreTrivia {
		return s.scanNext()
	}
	for {
		t := s.scanNext()
		if t < LineCommentTrivia || t > Trivia {
			return t
		}
	}
}

func (s *Scanner) scanNext() SyntaxKind {
	s.value = ""
	s.scanError = ScanErrorNone
	s.tokenOffset = s.pos
	s.tokenStartLine = s.lineNumber
	s.tokenLineStartOff = s.lineStartOffset

	if s.pos >= len(s.text) {
		s.tokenOffset = len(s.text)
		s.token = EOF
		return s.token
	}

	r, size := s.peekRune(s.pos)

	if isWhiteSpace(r) {
		for {
			s.pos += size
			if s.pos >= len(s.text) {
				break
			}
			if r, size = s.peekRune(s.pos); !isWhiteSpace(r) {
				break
			}
		}
		s.value = s.text[s.tokenOffset:s.pos]
		s.token = Trivia
		return s.token
	}

	if isLineBreak(r) {
		s.pos += size
		if r == '\r' && s.pos < len(s.text) && s.text[s.pos] == '\n' {
			s.pos++
		}
		s.value = s.text[s.tokenOffset:s.pos]
		s.lineNumber++
		s.lineStartOffset = s.pos
		s.token = LineBreakTrivia
		return s.token
	}

	switch r {
	case '{':
		return s.single(OpenBraceToken)
	case '}':
		return s.single(CloseBraceToken)
	case '[':
		return s.single(OpenBracketToken)
	case ']':
		return s.single(CloseBracketToken)
	case ':':
		return s.single(ColonToken)
	case ',':
		return s.single(CommaToken)
	case '"':
		s.pos++
		s.value = s.scanString()
		s.token = StringLiteral
		return s.token
	case '/':
		return s.scanSlash()
	case '-':
		s.pos++
		if s.pos == len(s.text) || !isDigit(s.text[s.pos]) {
			s.value = "-"
			s.token = Unknown
			return s.token
		}
		s.value = "-" + s.scanNumber()
		s.token = NumericLiteral
		return s.token
	}

	if r >= '0' && r <= '9' {
		s.value = s.scanNumber()
		s.token = NumericLiteral
		return s.token
	}

	// Keywords and runs of unknown characters.
	for s.pos < len(s.text) {
		c, n := s.peekRune(s.pos)
		if !isUnknownContentCharacter(c) {
			break
		}
		s.pos += n
	}
	if s.tokenOffset != s.pos {
		s.value = s.text[s.tokenOffset:s.pos]
		switch s.value {
		case "true":
			s.token = TrueKeyword
		case "false":
			s.token = FalseKeyword
		case "null":
			s.token = NullKeyword
		default:
			s.token = Unknown
		}
		return s.token
	}

	s.pos += size
	s.value = s.text[s.tokenOffset:s.pos]
	s.token = Unknown
	return s.token
}

func (s *Scanner) single(kind SyntaxKind) SyntaxKind {
	s.pos++
	s.value = s.text[s.tokenOffset:s.pos]
	s.token = kind
	return kind
}

func (s *Scanner) scanSlash() SyntaxKind {
	start := s.pos
	next := byte(0)
	if s.pos+1 < len(s.text) {
		next = s.text[s.pos+1]
	}

	switch next {
	case '/':
		s.pos += 2
		for s.pos < len(s.text) {
			r, n := s.peekRune(s.pos)
			if isLineBreak(r) {
				break
			}
			s.pos += n
		}
		s.value = s.text[start:s.pos]
		s.token = LineCommentTrivia
		return s.token

	case '*':
		s.pos += 2
		closed := false
		for s.pos < len(s.text)-1 {
			c := s.text[s.pos]
			if c == '*' && s.text[s.pos+1] == '/' {
				s.pos += 2
				closed = true
				break
			}
			r, n := s.peekRune(s.pos)
			s.pos += n
			if isLineBreak(r) {
				if r == '\r' && s.pos < len(s.text) && s.text[s.pos] == '\n' {
					s.pos++
				}
				s.lineNumber++
				s.lineStartOffset = s.pos
			}
		}
		if !closed {
			s.pos = len(s.text)
			s.scanError = ScanErrorUnexpectedEndOfComment
		}
		s.value = s.text[start:s.pos]
		s.token = BlockCommentTrivia
		return s.token
	}

	s.pos++
	s.value = "/"
	s.token = Unknown
	return s.token
}

func (s *Scanner) scanNumber() string {
	start := s.pos
	if s.text[s.pos] == '0' {
		s.pos++
	} else {
		s.pos++
		for s.pos < len(s.text) && isDigit(s.text[s.pos]) {
			s.pos++
		}
	}
	if s.pos < len(s.text) && s.text[s.pos] == '.' {
		s.pos++
		if s.pos < len(s.text) && isDigit(s.text[s.pos]) {
			s.pos++
			for s.pos < len(s.text) && isDigit(s.text[s.pos]) {
				s.pos++
			}
		} else {
			s.scanError = ScanErrorUnexpectedEndOfNumber
			return s.text[start:s.pos]
		}
	}
	end := s.pos
	if s.pos < len(s.text) && (s.text[s.pos] == 'E' || s.text[s.pos] == 'e') {
		s.pos++
		if s.pos < len(s.text) && (s.text[s.pos] == '+' || s.text[s.pos] == '-') {
			s.pos++
		}
		if s.pos < len(s.text) && isDigit(s.text[s.pos]) {
			s.pos++
			for s.pos < len(s.text) && isDigit(s.text[s.pos]) {
				s.pos++
			}
			end = s.pos
		} else {
			s.scanError = ScanErrorUnexpectedEndOfNumber
		}
	}
	return s.text[start:end]
}

// scanString reads a string body after the opening quote and returns the
// decoded value.
func (s *Scanner) scanString() string {
	var b strings.Builder
	start := s.pos
	for {
		if s.pos >= len(s.text) {
			b.WriteString(s.text[start:s.pos])
			s.scanError = ScanErrorUnexpectedEndOfString
			break
		}
		c := s.text[s.pos]
		if c == '"' {
			b.WriteString(s.text[start:s.pos])
			s.pos++
			break
		}
		if c == '\\' {
			b.WriteString(s.text[start:s.pos])
			s.pos++
			if s.pos >= len(s.text) {
				s.scanError = ScanErrorUnexpectedEndOfString
				break
			}
			esc := s.text[s.pos]
			s.pos++
			switch esc {
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			case '/':
				b.WriteByte('/')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'u':
				s.scanUnicodeEscape(&b)
			default:
				s.scanError = ScanErrorInvalidEscapeCharacter
			}
			start = s.pos
			continue
		}
		if c <= 0x1f {
			if c == '\r' || c == '\n' {
				b.WriteString(s.text[start:s.pos])
				s.scanError = ScanErrorUnexpectedEndOfString
				break
			}
			s.scanError = ScanErrorInvalidCharacter
		}
		s.pos++
	}
	return b.String()
}

// scanUnicodeEscape decodes the digits of a \u escape. A high surrogate
// followed by an escaped low surrogate is combined into one code point; a
// lone surrogate decodes to U+FFFD.
func (s *Scanner) scanUnicodeEscape(b *strings.Builder) {
	ch, ok := s.scanHexDigits(4)
	if !ok {
		s.scanError = ScanErrorInvalidUnicode
		return
	}
	if ch >= 0xD800 && ch <= 0xDBFF && s.pos+1 < len(s.text) && s.text[s.pos] == '\\' && s.text[s.pos+1] == 'u' {
		save := s.pos
		s.pos += 2
		low, ok := s.scanHexDigits(4)
		if ok && low >= 0xDC00 && low <= 0xDFFF {
			b.WriteRune(rune((ch-0xD800)<<10 + (low - 0xDC00) + 0x10000))
			return
		}
		s.pos = save
	}
	b.WriteRune(rune(ch))
}

// scanHexDigits reads exactly count hex digits.
func (s *Scanner) scanHexDigits(count int) (int, bool) {
	value := 0
	for i := 0; i < count; i++ {
		if s.pos >= len(s.text) {
			return 0, false
		}
		c := s.text[s.pos]
		var d int
		switch {
		case c >= '0' && c <= '9':
			d = int(c - '0')
		case c >= 'a' && c <= 'f':
			d = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int(c-'A') + 10
		default:
			return 0, false
		}
		value = value*16 + d
		s.pos++
	}
	return value, true
}

func (s *Scanner) peekRune(pos int) (rune, int) {
	c := s.text[pos]
	if c < utf8.RuneSelf {
		return rune(c), 1
	}
	return utf8.DecodeRuneInString(s.text[pos:])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWhiteSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\v', '\f', 0xA0, 0x1680, 0x202F, 0x205F, 0x3000, 0xFEFF:
		return true
	}
	return r >= 0x2000 && r <= 0x200B
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r' || r == 0x2028 || r == 0x2029
}

func isUnknownContentCharacter(r rune) bool {
	if isWhiteSpace(r) || isLineBreak(r) {
		return false
	}
	switch r {
	case '}', ']', ',', ':', '"', '/', '{', '[':
		return false
	}
	return true
}
