package textdoc

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/jsonls/internal/protocol"
)

var (
	// ErrDocumentNotOpen indicates the document is not open.
	ErrDocumentNotOpen = errors.New("document not open")

	// ErrDocumentAlreadyOpen indicates the document is already open.
	ErrDocumentAlreadyOpen = errors.New("document already open")

	// ErrStaleVersion indicates a change carried a version that is not newer
	// than the current one.
	ErrStaleVersion = errors.New("stale document version")
)

// Document is an immutable snapshot of a text document. Offsets are byte
// offsets into Text; positions use UTF-16 columns.
type Document struct {
	URI        protocol.DocumentURI
	LanguageID string
	Version    int

	text  string
	lines lineIndex
}

// New creates a document snapshot.
func New(uri protocol.DocumentURI, languageID string, version int, text string) *Document {
	return &Document{
		URI:        uri,
		LanguageID: languageID,
		Version:    version,
		text:       text,
		lines:      buildLineIndex(text),
	}
}

// Text returns the document content.
func (d *Document) Text() string { return d.text }

// LineCount returns the number of lines. An empty document has one line.
func (d *Document) LineCount() int { return len(d.lines) }

// PositionAt converts a byte offset into a position.
func (d *Document) PositionAt(offset int) protocol.Position {
	return positionAt(d.text, d.lines, offset)
}

// OffsetAt converts a position into a byte offset.
func (d *Document) OffsetAt(pos protocol.Position) int {
	return offsetAt(d.text, d.lines, pos)
}

// RangeAt converts a byte span into a range.
func (d *Document) RangeAt(offset, length int) protocol.Range {
	return protocol.Range{
		Start: d.PositionAt(offset),
		End:   d.PositionAt(offset + length),
	}
}

// Offsets converts a range into start and end byte offsets.
func (d *Document) Offsets(r protocol.Range) (start, end int) {
	start, end = d.OffsetAt(r.Start), d.OffsetAt(r.End)
	if end < start {
		start, end = end, start
	}
	return start, end
}

// LineContent returns the text of a line without its line break.
func (d *Document) LineContent(line int) string {
	if line < 0 || line >= len(d.lines) {
		return ""
	}
	return d.text[d.lines[line]:d.lines.contentEnd(d.text, line)]
}

// Apply returns a new snapshot with the changes applied in order. A change
// without a range replaces the whole text.
func (d *Document) Apply(version int, changes []protocol.TextDocumentContentChangeEvent) *Document {
	text := d.text
	lines := d.lines
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
		} else {
			start := offsetAt(text, lines, change.Range.Start)
			end := offsetAt(text, lines, change.Range.End)
			if end < start {
				start, end = end, start
			}
			text = text[:start] + change.Text + text[end:]
		}
		lines = buildLineIndex(text)
	}
	return &Document{
		URI:        d.URI,
		LanguageID: d.LanguageID,
		Version:    version,
		text:       text,
		lines:      lines,
	}
}

// ApplyEdits applies text edits computed against this snapshot and returns
// the resulting text. Overlapping edits are rejected.
func (d *Document) ApplyEdits(edits []protocol.TextEdit) (string, error) {
	type span struct {
		start, end int
		text       string
	}
	spans := make([]span, 0, len(edits))
	for _, e := range edits {
		s, end := d.Offsets(e.Range)
		spans = append(spans, span{start: s, end: end, text: e.NewText})
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.start < last {
			return "", fmt.Errorf("overlapping edit at offset %d", s.start)
		}
		b.WriteString(d.text[last:s.start])
		b.WriteString(s.text)
		last = s.end
	}
	b.WriteString(d.text[last:])
	return b.String(), nil
}
