package textdoc

import (
	"sort"

	"github.com/dshills/jsonls/internal/protocol"
)

// lineIndex records the byte offset at which every line starts. A line ends
// at "\n", "\r\n" or a lone "\r".
type lineIndex []int

func buildLineIndex(text string) lineIndex {
	idx := lineIndex{0}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			idx = append(idx, i+1)
		case '\n':
			idx = append(idx, i+1)
		}
	}
	return idx
}

// lineOf returns the line containing byteOffset.
func (idx lineIndex) lineOf(byteOffset int) int {
	// First line whose start is past the offset, minus one.
	return sort.Search(len(idx), func(i int) bool { return idx[i] > byteOffset }) - 1
}

// contentEnd returns the byte offset where line's content ends, before its
// line break.
func (idx lineIndex) contentEnd(text string, line int) int {
	if line+1 >= len(idx) {
		return len(text)
	}
	end := idx[line+1]
	if end > 0 && text[end-1] == '\n' {
		end--
	}
	if end > idx[line] && text[end-1] == '\r' {
		end--
	}
	return end
}

// positionAt converts a byte offset into a line and UTF-16 column.
func positionAt(text string, idx lineIndex, byteOffset int) protocol.Position {
	if byteOffset < 0 {
		byteOffset = 0
	}
	if byteOffset > len(text) {
		byteOffset = len(text)
	}
	line := idx.lineOf(byteOffset)
	return protocol.Position{
		Line:      line,
		Character: utf16Len(text[idx[line]:byteOffset]),
	}
}

// offsetAt converts a line and UTF-16 column into a byte offset. Columns past
// the end of the line clamp to the line end.
func offsetAt(text string, idx lineIndex, pos protocol.Position) int {
	if pos.Line >= len(idx) {
		return len(text)
	}
	if pos.Line < 0 {
		return 0
	}
	start := idx[pos.Line]
	end := idx.contentEnd(text, pos.Line)
	return start + utf16ToByteOffset(text[start:end], pos.Character)
}

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	count := 0
	for _, r := range s {
		if r >= 0x10000 {
			count += 2 // Surrogate pair
		} else {
			count++
		}
	}
	return count
}

// utf16ToByteOffset converts a UTF-16 offset to a byte offset within s.
func utf16ToByteOffset(s string, utf16Off int) int {
	if utf16Off <= 0 {
		return 0
	}
	count := 0
	for i, r := range s {
		if count >= utf16Off {
			return i
		}
		if r >= 0x10000 {
			count += 2
		} else {
			count++
		}
	}
	return len(s)
}
