// Package jsonc tokenizes, parses and formats JSON with comments.
//
// It is the low-level layer under the JSON language engine: it knows nothing
// about schemas or documents, only about text. All offsets are byte offsets
// into the input string.
//
// # Components
//
//   - Scanner: token stream with decoded string values and per-token errors
//   - Visit: SAX-style parser that reports structure, separators, comments
//     and syntax errors to a Visitor, recovering after each error
//   - Parse: builds plain Go values on top of Visit
//   - StripComments: removes or blanks out comments
//   - Format: computes whitespace edits that pretty-print a document or range
//   - ApplyEdits: applies non-overlapping edits
//
// # Example
//
//	var errs []jsonc.ParseError
//	v := jsonc.Parse(`{"a": 1, /* note */ "b": [true]}`, &errs, jsonc.ParseOptions{})
//
//	edits := jsonc.Format(text, nil, jsonc.FormattingOptions{TabSize: 2, InsertSpaces: true})
//	pretty, err := jsonc.ApplyEdits(text, edits)
package jsonc
