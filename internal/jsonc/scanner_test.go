package jsonc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scannedToken struct {
	kind  SyntaxKind
	value string
	err   ScanError
}

func scanAll(text string, ignoreTrivia bool) []scannedToken {
	s := NewScanner(text, ignoreTrivia)
	var out []scannedToken
	for {
		kind := s.Scan()
		if kind == EOF {
			return out
		}
		out = append(out, scannedToken{kind: kind, value: s.TokenValue(), err: s.TokenError()})
	}
}

func TestScanner_Tokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []SyntaxKind
	}{
		{"punctuation", "{}[]:,", []SyntaxKind{OpenBraceToken, CloseBraceToken, OpenBracketToken, CloseBracketToken, ColonToken, CommaToken}},
		{"keywords", "true false null", []SyntaxKind{TrueKeyword, Trivia, FalseKeyword, Trivia, NullKeyword}},
		{"unknown word", "truex", []SyntaxKind{Unknown}},
		{"line break", "1\r\n2", []SyntaxKind{NumericLiteral, LineBreakTrivia, NumericLiteral}},
		{"comments", "// a\n/* b */", []SyntaxKind{LineCommentTrivia, LineBreakTrivia, BlockCommentTrivia}},
		{"lone slash", "/", []SyntaxKind{Unknown}},
		{"lone minus", "-", []SyntaxKind{Unknown}},
		{"unicode whitespace", " 　[", []SyntaxKind{Trivia, OpenBracketToken}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kinds []SyntaxKind
			for _, tok := range scanAll(tt.text, false) {
				kinds = append(kinds, tok.kind)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestScanner_Strings(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		value string
		err   ScanError
	}{
		{"plain", `"abc"`, "abc", ScanErrorNone},
		{"escapes", `"a\"b\\c\/d\b\f\n\r\t"`, "a\"b\\c/d\b\f\n\r\t", ScanErrorNone},
		{"unicode", `"é"`, "é", ScanErrorNone},
		{"surrogate pair", `"\ud83d\ude00"`, "😀", ScanErrorNone},
		{"lone surrogate", `"\ud83dx"`, "�x", ScanErrorNone},
		{"bad unicode", `"\u12g4"`, "g4", ScanErrorInvalidUnicode},
		{"bad escape", `"\x"`, "", ScanErrorInvalidEscapeCharacter},
		{"unterminated", `"abc`, "abc", ScanErrorUnexpectedEndOfString},
		{"newline ends string", "\"ab\ncd\"", "ab", ScanErrorUnexpectedEndOfString},
		{"control character", "\"a\u0001b\"", "a\u0001b", ScanErrorInvalidCharacter},
		{"multibyte", `"日本"`, "日本", ScanErrorNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScanner(tt.text, false)
			require.Equal(t, StringLiteral, s.Scan())
			assert.Equal(t, tt.value, s.TokenValue())
			assert.Equal(t, tt.err, s.TokenError())
		})
	}
}

func TestScanner_Numbers(t *testing.T) {
	tests := []struct {
		text  string
		value string
		err   ScanError
	}{
		{"0", "0", ScanErrorNone},
		{"-12", "-12", ScanErrorNone},
		{"3.25", "3.25", ScanErrorNone},
		{"1e10", "1e10", ScanErrorNone},
		{"1E-2", "1E-2", ScanErrorNone},
		{"1.", "1.", ScanErrorUnexpectedEndOfNumber},
		{"2e", "2", ScanErrorUnexpectedEndOfNumber},
		{"2e+", "2", ScanErrorUnexpectedEndOfNumber},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			s := NewScanner(tt.text, false)
			require.Equal(t, NumericLiteral, s.Scan())
			assert.Equal(t, tt.value, s.TokenValue())
			assert.Equal(t, tt.err, s.TokenError())
		})
	}

	// "01" scans as two numbers.
	toks := scanAll("01", false)
	require.Len(t, toks, 2)
	assert.Equal(t, "0", toks[0].value)
	assert.Equal(t, "1", toks[1].value)
}

func TestScanner_UnterminatedBlockComment(t *testing.T) {
	s := NewScanner("/* abc", false)
	require.Equal(t, BlockCommentTrivia, s.Scan())
	assert.Equal(t, ScanErrorUnexpectedEndOfComment, s.TokenError())
	assert.Equal(t, 6, s.TokenLength())
	assert.Equal(t, EOF, s.Scan())
}

func TestScanner_Positions(t *testing.T) {
	text := "{\n  \"a\": 1,\r\n  /* x\n y */ \"b\": 2\n}"
	s := NewScanner(text, true)

	type pos struct {
		kind      SyntaxKind
		offset    int
		line      int
		character int
	}
	var got []pos
	for k := s.Scan(); k != EOF; k = s.Scan() {
		got = append(got, pos{k, s.TokenOffset(), s.TokenStartLine(), s.TokenStartCharacter()})
	}

	assert.Equal(t, []pos{
		{OpenBraceToken, 0, 0, 0},
		{StringLiteral, 4, 1, 2},
		{ColonToken, 7, 1, 5},
		{NumericLiteral, 9, 1, 7},
		{CommaToken, 10, 1, 8},
		{StringLiteral, 26, 3, 6},
		{ColonToken, 29, 3, 9},
		{NumericLiteral, 31, 3, 11},
		{CloseBraceToken, 33, 4, 0},
	}, got)
}

func TestScanner_SetPosition(t *testing.T) {
	s := NewScanner(`[1, 2]`, true)
	s.SetPosition(4)
	require.Equal(t, NumericLiteral, s.Scan())
	assert.Equal(t, "2", s.TokenValue())
	assert.Equal(t, 4, s.TokenOffset())
	assert.Equal(t, 5, s.Position())
}
