package protocol

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// NewRange creates a range from line/character pairs.
func NewRange(startLine, startChar, endLine, endChar int) Range {
	return Range{
		Start: Position{Line: startLine, Character: startChar},
		End:   Position{Line: endLine, Character: endChar},
	}
}

// IsPositionBefore returns true if a is before b.
func IsPositionBefore(a, b Position) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Character < b.Character
}

// ComparePositions returns -1 if a < b, 0 if a == b, 1 if a > b.
func ComparePositions(a, b Position) int {
	switch {
	case IsPositionBefore(a, b):
		return -1
	case IsPositionBefore(b, a):
		return 1
	default:
		return 0
	}
}

// IsPositionInRange returns true if pos is within the range (inclusive).
func IsPositionInRange(pos Position, rng Range) bool {
	return !IsPositionBefore(pos, rng.Start) && !IsPositionBefore(rng.End, pos)
}

// RangeContains returns true if outer contains inner.
func RangeContains(outer, inner Range) bool {
	return !IsPositionBefore(inner.Start, outer.Start) &&
		!IsPositionBefore(outer.End, inner.End)
}

// IsEmptyRange returns true if the range covers no text.
func IsEmptyRange(r Range) bool {
	return r.Start == r.End
}

// FilePathToURI converts a file path to a DocumentURI.
func FilePathToURI(path string) DocumentURI {
	if path == "" {
		return ""
	}

	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	path = filepath.ToSlash(path)

	// On Windows, add extra slash for drive letter
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = "/" + path
	}

	u := &url.URL{Scheme: "file", Path: path}
	return DocumentURI(u.String())
}

// URIToFilePath converts a file:// DocumentURI to a file path. Other URIs are
// returned unchanged.
func URIToFilePath(uri DocumentURI) string {
	if uri == "" {
		return ""
	}

	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}

	path := u.Path
	if runtime.GOOS == "windows" && len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

// DetectLanguageID returns the language ID for a file path: "jsonc" for
// files that conventionally carry comments, "json" otherwise.
func DetectLanguageID(path string) string {
	base := strings.ToLower(filepath.Base(path))
	switch base {
	case "tsconfig.json", "jsconfig.json", ".eslintrc", ".eslintrc.json", ".babelrc", "settings.json", "devcontainer.json":
		return "jsonc"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonc", ".json5":
		return "jsonc"
	default:
		return "json"
	}
}

// MarkdownContent wraps a markdown string.
func MarkdownContent(value string) MarkupContent {
	return MarkupContent{Kind: MarkupKindMarkdown, Value: value}
}
