package jsonlang

import (
	"regexp"

	"github.com/dshills/jsonls/internal/jsonc"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

var regionMarker = regexp.MustCompile(`^//\s*#(region\b)|(endregion\b)`)

// maxFoldingLevel caps the nesting levels considered when trimming ranges
// to a limit.
const maxFoldingLevel = 30

type foldKind int

const (
	foldObject foldKind = iota
	foldArray
	foldComment
	foldRegion
)

type openFold struct {
	startLine int
	kind      foldKind
}

// GetFoldingRanges returns the foldable regions of td: multi-line objects
// and arrays, block comments and `// #region` / `// #endregion` pairs.
// With limit > 0 at most limit ranges are returned, dropping the most
// deeply nested first; exceeded reports that ranges were dropped.
func (ls *LanguageService) GetFoldingRanges(td *textdoc.Document, limit int) (ranges []protocol.FoldingRange, exceeded bool) {
	text := td.Text()
	ranges = []protocol.FoldingRange{}
	var levels []int
	var stack []openFold
	prevStart := -1

	add := func(start, end int, kind foldKind) {
		r := protocol.FoldingRange{StartLine: start, EndLine: end}
		switch kind {
		case foldComment:
			r.Kind = protocol.FoldingRangeKindComment
		case foldRegion:
			r.Kind = protocol.FoldingRangeKindRegion
		}
		ranges = append(ranges, r)
		levels = append(levels, len(stack))
		prevStart = start
	}

	s := jsonc.NewScanner(text, false)
	for token := s.Scan(); token != jsonc.EOF; token = s.Scan() {
		switch token {
		case jsonc.OpenBraceToken, jsonc.OpenBracketToken:
			kind := foldObject
			if token == jsonc.OpenBracketToken {
				kind = foldArray
			}
			stack = append(stack, openFold{startLine: td.PositionAt(s.TokenOffset()).Line, kind: kind})

		case jsonc.CloseBraceToken, jsonc.CloseBracketToken:
			kind := foldObject
			if token == jsonc.CloseBracketToken {
				kind = foldArray
			}
			if len(stack) == 0 || stack[len(stack)-1].kind != kind {
				continue
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			line := td.PositionAt(s.TokenOffset()).Line
			if line > open.startLine+1 && prevStart != open.startLine {
				add(open.startLine, line-1, kind)
			}

		case jsonc.BlockCommentTrivia:
			startLine := td.PositionAt(s.TokenOffset()).Line
			endLine := td.PositionAt(s.TokenOffset() + s.TokenLength()).Line
			if s.TokenError() == jsonc.ScanErrorUnexpectedEndOfComment && startLine+1 < td.LineCount() {
				s.SetPosition(td.OffsetAt(protocol.Position{Line: startLine + 1}))
			} else if startLine < endLine {
				add(startLine, endLine, foldComment)
			}

		case jsonc.LineCommentTrivia:
			m := regionMarker.FindStringSubmatch(text[s.TokenOffset() : s.TokenOffset()+s.TokenLength()])
			if m == nil {
				continue
			}
			line := td.PositionAt(s.TokenOffset()).Line
			if m[1] != "" {
				stack = append(stack, openFold{startLine: line, kind: foldRegion})
				continue
			}
			i := len(stack) - 1
			for i >= 0 && stack[i].kind != foldRegion {
				i--
			}
			if i < 0 {
				continue
			}
			open := stack[i]
			stack = stack[:i]
			if line > open.startLine && prevStart != open.startLine {
				add(open.startLine, line, foldRegion)
			}
		}
	}

	if limit <= 0 || len(ranges) <= limit {
		return ranges, false
	}
	return limitFoldingRanges(ranges, levels, limit), true
}

// limitFoldingRanges keeps whole nesting levels from the outside in, and
// the first ranges of the level that no longer fits.
func limitFoldingRanges(ranges []protocol.FoldingRange, levels []int, limit int) []protocol.FoldingRange {
	counts := make([]int, maxFoldingLevel)
	for _, level := range levels {
		if level < maxFoldingLevel {
			counts[level]++
		}
	}
	entries, maxLevel := 0, 0
	for level, n := range counts {
		if n == 0 {
			continue
		}
		if n+entries > limit {
			maxLevel = level
			break
		}
		entries += n
	}

	result := make([]protocol.FoldingRange, 0, limit)
	for i, r := range ranges {
		level := levels[i]
		if level < maxLevel {
			result = append(result, r)
		} else if level == maxLevel && entries < limit {
			entries++
			result = append(result, r)
		}
	}
	return result
}

// GetSelectionRanges returns, for each position, the chain of ever larger
// syntactic ranges around it: value contents, the value, the value with its
// trailing comma, the enclosing property and so on up to the root.
func (ls *LanguageService) GetSelectionRanges(td *textdoc.Document, positions []protocol.Position, doc *Document) []protocol.SelectionRange {
	s := jsonc.NewScanner(td.Text(), true)
	offsetAfterComma := func(offset int) int {
		s.SetPosition(offset)
		if s.Scan() == jsonc.CommaToken {
			return s.TokenOffset() + s.TokenLength()
		}
		return -1
	}

	result := make([]protocol.SelectionRange, len(positions))
	for i, pos := range positions {
		offset := td.OffsetAt(pos)
		var spans [][2]int
		for node := doc.GetNodeFromOffset(offset, true); node != nil; node = node.Parent() {
			switch node.Type() {
			case NodeString, NodeObject, NodeArray:
				cStart, cEnd := node.Offset()+1, End(node)-1
				if cStart < cEnd && offset >= cStart && offset <= cEnd {
					spans = append(spans, [2]int{cStart, cEnd})
				}
			}
			spans = append(spans, [2]int{node.Offset(), End(node)})

			_, inArray := node.Parent().(*ArrayNode)
			if node.Type() == NodeProperty || inArray {
				if after := offsetAfterComma(End(node)); after != -1 {
					spans = append(spans, [2]int{node.Offset(), after})
				}
			}
		}

		var current *protocol.SelectionRange
		for j := len(spans) - 1; j >= 0; j-- {
			current = &protocol.SelectionRange{
				Range:  td.RangeAt(spans[j][0], spans[j][1]-spans[j][0]),
				Parent: current,
			}
		}
		if current == nil {
			current = &protocol.SelectionRange{Range: protocol.Range{Start: pos, End: pos}}
		}
		result[i] = *current
	}
	return result
}

// Format returns the edits that pretty-print td, or only rng when it is
// non-nil.
func (ls *LanguageService) Format(td *textdoc.Document, rng *protocol.Range, opts jsonc.FormattingOptions) []protocol.TextEdit {
	var r *jsonc.Range
	if rng != nil {
		start, end := td.Offsets(*rng)
		r = &jsonc.Range{Offset: start, Length: end - start}
	}
	edits := jsonc.Format(td.Text(), r, opts)
	out := make([]protocol.TextEdit, len(edits))
	for i, e := range edits {
		out[i] = protocol.TextEdit{Range: td.RangeAt(e.Offset, e.Length), NewText: e.Content}
	}
	return out
}
