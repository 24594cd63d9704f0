package jsonc

import (
	"fmt"
	"sort"
	"strings"
)

// Range is a byte span of a document.
type Range struct {
	Offset int
	Length int
}

// Edit replaces Length bytes at Offset with Content.
type Edit struct {
	Offset  int
	Length  int
	Content string
}

// FormattingOptions controls Format.
type FormattingOptions struct {
	TabSize            int
	InsertSpaces       bool
	EOL                string
	InsertFinalNewline bool
	KeepLines          bool
}

// Format computes the whitespace edits that pretty-print text, or only the
// lines touched by r when it is non-nil. Edits never change token text.
// Whitespace around a token with a scan error is left alone.
func Format(text string, r *Range, opts FormattingOptions) []Edit {
	f := &formatter{
		text: text,
		opts: opts,
	}
	return f.format(r)
}

type formatter struct {
	text string
	opts FormattingOptions

	scanner          *Scanner
	eol              string
	indentValue      string
	initialIndent    int
	indentLevel      int
	numberLineBreaks int
	hasError         bool

	hasRange   bool
	rangeStart int
	rangeEnd   int
	edits      []Edit
}

func (f *formatter) format(r *Range) []Edit {
	text := f.text
	var formatText string
	var formatTextStart int

	if r != nil {
		f.hasRange = true
		f.rangeStart = r.Offset
		f.rangeEnd = r.Offset + r.Length

		formatTextStart = f.rangeStart
		for formatTextStart > 0 && !isEOL(text, formatTextStart-1) {
			formatTextStart--
		}
		endOffset := f.rangeEnd
		for endOffset < len(text) && !isEOL(text, endOffset) {
			endOffset++
		}
		formatText = text[formatTextStart:endOffset]
		f.initialIndent = computeIndentLevel(formatText, f.opts)
	} else {
		formatText = text
		f.rangeEnd = len(text)
	}

	f.eol = getEOL(f.opts, text)
	if f.opts.InsertSpaces {
		tabSize := f.opts.TabSize
		if tabSize <= 0 {
			tabSize = 4
		}
		f.indentValue = strings.Repeat(" ", tabSize)
	} else {
		f.indentValue = "\t"
	}
	f.scanner = NewScanner(formatText, false)

	firstToken := f.scanNext()
	if f.opts.KeepLines && f.numberLineBreaks > 0 {
		f.addEdit(strings.Repeat(f.eol, f.numberLineBreaks), 0, 0)
	}
	if firstToken != EOF {
		firstTokenStart := f.scanner.TokenOffset() + formatTextStart
		f.addEdit(strings.Repeat(f.indentValue, f.initialIndent), formatTextStart, firstTokenStart)
	}

	keep := f.opts.KeepLines
	for firstToken != EOF {
		firstTokenEnd := f.scanner.TokenOffset() + f.scanner.TokenLength() + formatTextStart
		secondToken := f.scanNext()
		replaceContent := ""
		needsLineBreak := false

		for f.numberLineBreaks == 0 && (secondToken == LineCommentTrivia || secondToken == BlockCommentTrivia) {
			commentTokenStart := f.scanner.TokenOffset() + formatTextStart
			f.addEdit(" ", firstTokenEnd, commentTokenStart)
			firstTokenEnd = f.scanner.TokenOffset() + f.scanner.TokenLength() + formatTextStart
			needsLineBreak = secondToken == LineCommentTrivia
			if needsLineBreak {
				replaceContent = f.newLinesAndIndent()
			} else {
				replaceContent = ""
			}
			secondToken = f.scanNext()
		}

		breakOrKeep := (keep && f.numberLineBreaks > 0) || !keep

		switch {
		case secondToken == CloseBraceToken || secondToken == CloseBracketToken:
			open := OpenBraceToken
			if secondToken == CloseBracketToken {
				open = OpenBracketToken
			}
			if firstToken != open {
				f.indentLevel--
			}
			if (keep && f.numberLineBreaks > 0) || (!keep && firstToken != open) {
				replaceContent = f.newLinesAndIndent()
			} else if keep {
				replaceContent = " "
			}

		default:
			switch firstToken {
			case OpenBracketToken, OpenBraceToken:
				f.indentLevel++
				if breakOrKeep {
					replaceContent = f.newLinesAndIndent()
				} else {
					replaceContent = " "
				}
			case CommaToken:
				if breakOrKeep {
					replaceContent = f.newLinesAndIndent()
				} else {
					replaceContent = " "
				}
			case LineCommentTrivia:
				replaceContent = f.newLinesAndIndent()
			case BlockCommentTrivia:
				if f.numberLineBreaks > 0 {
					replaceContent = f.newLinesAndIndent()
				} else if !needsLineBreak {
					replaceContent = " "
				}
			case ColonToken:
				if keep && f.numberLineBreaks > 0 {
					replaceContent = f.newLinesAndIndent()
				} else if !needsLineBreak {
					replaceContent = " "
				}
			case StringLiteral:
				if keep && f.numberLineBreaks > 0 {
					replaceContent = f.newLinesAndIndent()
				} else if secondToken == ColonToken && !needsLineBreak {
					replaceContent = ""
				}
			case NullKeyword, TrueKeyword, FalseKeyword, NumericLiteral, CloseBraceToken, CloseBracketToken:
				if keep && f.numberLineBreaks > 0 {
					replaceContent = f.newLinesAndIndent()
				} else if (secondToken == LineCommentTrivia || secondToken == BlockCommentTrivia) && !needsLineBreak {
					replaceContent = " "
				} else if secondToken != CommaToken && secondToken != EOF {
					f.hasError = true
				}
			case Unknown:
				f.hasError = true
			}
			if f.numberLineBreaks > 0 && (secondToken == LineCommentTrivia || secondToken == BlockCommentTrivia) {
				replaceContent = f.newLinesAndIndent()
			}
		}

		if secondToken == EOF {
			if keep && f.numberLineBreaks > 0 {
				replaceContent = f.newLinesAndIndent()
			} else if f.opts.InsertFinalNewline {
				replaceContent = f.eol
			} else {
				replaceContent = ""
			}
		}

		secondTokenStart := f.scanner.TokenOffset() + formatTextStart
		f.addEdit(replaceContent, firstTokenEnd, secondTokenStart)
		firstToken = secondToken
	}
	return f.edits
}

func (f *formatter) newLinesAndIndent() string {
	indent := strings.Repeat(f.indentValue, max(f.initialIndent+f.indentLevel, 0))
	if f.numberLineBreaks > 1 {
		return strings.Repeat(f.eol, f.numberLineBreaks) + indent
	}
	return f.eol + indent
}

func (f *formatter) scanNext() SyntaxKind {
	token := f.scanner.Scan()
	f.numberLineBreaks = 0
	for token == Trivia || token == LineBreakTrivia {
		if token == LineBreakTrivia {
			if f.opts.KeepLines {
				f.numberLineBreaks++
			} else {
				f.numberLineBreaks = 1
			}
		}
		token = f.scanner.Scan()
	}
	f.hasError = token == Unknown || f.scanner.TokenError() != ScanErrorNone
	return token
}

func (f *formatter) addEdit(content string, start, end int) {
	if f.hasError {
		return
	}
	if f.hasRange && !(start < f.rangeEnd && end > f.rangeStart) {
		return
	}
	if f.text[start:end] == content {
		return
	}
	f.edits = append(f.edits, Edit{Offset: start, Length: end - start, Content: content})
}

func computeIndentLevel(content string, opts FormattingOptions) int {
	tabSize := opts.TabSize
	if tabSize <= 0 {
		tabSize = 4
	}
	n := 0
	for i := 0; i < len(content); i++ {
		switch content[i] {
		case ' ':
			n++
		case '\t':
			n += tabSize
		default:
			return n / tabSize
		}
	}
	return n / tabSize
}

// getEOL returns the first line break used in text, else the configured one.
func getEOL(opts FormattingOptions, text string) string {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				return "\r\n"
			}
			return "\r"
		case '\n':
			return "\n"
		}
	}
	if opts.EOL != "" {
		return opts.EOL
	}
	return "\n"
}

func isEOL(text string, offset int) bool {
	return text[offset] == '\r' || text[offset] == '\n'
}

// ApplyEdits applies edits to text. Edits must not overlap.
func ApplyEdits(text string, edits []Edit) (string, error) {
	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].Length < sorted[j].Length
	})

	lastModified := len(text)
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		if e.Offset < 0 || e.Offset+e.Length > lastModified {
			return "", fmt.Errorf("overlapping edit at offset %d", e.Offset)
		}
		text = text[:e.Offset] + e.Content + text[e.Offset+e.Length:]
		lastModified = e.Offset
	}
	return text, nil
}
